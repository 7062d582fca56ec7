// Package imageprep turns uploaded pictures into upright JPEGs the encoder accepts.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

// Largest frame kept as-is; bigger images are fitted within it before encoding.
const (
	MaxWidth  = 3840
	MaxHeight = 2160
)

// ErrEmptyImage is returned for an empty payload.
var ErrEmptyImage = errors.New("empty image payload")

// Normalize decodes any supported image format, applies its EXIF orientation, fits
// it within MaxWidth x MaxHeight and re-encodes it as JPEG at the given quality.
func Normalize(data []byte, quality int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > MaxWidth || b.Dy() > MaxHeight {
		img = imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("JPEG encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
