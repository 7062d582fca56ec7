// Package render holds the slideshow render request and result types shared by the
// assembly pipeline, the job service and the outer surfaces.
package render

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/memory-images/internal/transition"
)

// MediaTypeMP4 is the media type of every rendered video.
const MediaTypeMP4 = "video/mp4"

// Timing bounds, in seconds.
const (
	MinPhotoDuration      = 0.5
	MaxPhotoDuration      = 30
	MinTransitionDuration = 0.1
	MaxTransitionDuration = 5
)

// ErrInvalidRequest wraps every validation failure of a Request.
var ErrInvalidRequest = errors.New("invalid render request")

// ImageItem is one still image of the slideshow.
type ImageItem struct {
	// ID is an opaque caller-assigned identity used for reordering in the UI.
	ID string
	// Data is the encoded image payload.
	Data []byte `validate:"required"`
	// Position is the display position the caller assigned.
	Position int
}

// AudioAsset is the single soundtrack of a render.
type AudioAsset struct {
	// Name is the original file name, informational only.
	Name string
	// Data is the encoded audio payload.
	Data []byte `validate:"required"`
}

// Timing holds the per-image display and transition durations, in seconds.
type Timing struct {
	PhotoDuration      float64 `json:"photo_duration" toml:"photo_duration" validate:"min=0.5,max=30"`
	TransitionDuration float64 `json:"transition_duration" toml:"transition_duration" validate:"min=0.1,max=5"`
}

// DefaultTiming returns the timing a fresh session starts with.
func DefaultTiming() Timing {
	return Timing{PhotoDuration: 3, TransitionDuration: 1}
}

// Request is everything needed to render one slideshow.
// Images are rendered in slice order; payloads are only read, never modified.
type Request struct {
	Images      []ImageItem `validate:"min=1,dive"`
	Audio       *AudioAsset `validate:"required"`
	Transitions transition.Spec
	Timing      Timing
}

// Result is a rendered video.
type Result struct {
	Data      []byte
	MediaType string
	// Media describes the encoded file, nil when it could not be inspected.
	Media *MediaInfo
}

// MediaInfo is what the encoder actually produced. DurationSeconds can differ from
// EstimateDuration: the mux stops at the shorter of video and audio.
type MediaInfo struct {
	DurationSeconds float64
	VideoStreams    int
	AudioStreams    int
}

var validate = validator.New()

// Validate checks the request invariants: at least one image, an audio asset with data,
// a usable transition selection and timing within bounds.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := r.Transitions.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// EstimateDuration returns the displayed length estimate of a slideshow with n images:
// n photo durations plus a transition between each consecutive pair.
// The rendered video is governed by the segment and audio lengths and can differ.
func EstimateDuration(n int, t Timing) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n)*t.PhotoDuration + float64(n-1)*t.TransitionDuration
}

// FormatEstimate renders seconds as m:ss, truncating fractions.
func FormatEstimate(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FileName is the name offered for a video saved at t: memory-images-<unix-ms>.mp4.
func FileName(t time.Time) string {
	return fmt.Sprintf("memory-images-%d.mp4", t.UnixMilli())
}

// ValidationMessage flattens validator errors into a short human readable string.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
