// Package transition defines the closed set of transition kinds a slideshow can use,
// how kinds are assigned to images, and the visual effect each kind maps to.
package transition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a transition name is not part of the enumeration.
var ErrUnknownKind = errors.New("unknown transition kind")

// Kind identifies a visual treatment applied to an image segment.
type Kind string

// Transition kinds. Wire names are camelCase to stay compatible with existing clients.
const (
	KindFade         Kind = "fade"
	KindSlideLeft    Kind = "slideLeft"
	KindSlideRight   Kind = "slideRight"
	KindSlideUp      Kind = "slideUp"
	KindSlideDown    Kind = "slideDown"
	KindZoomIn       Kind = "zoomIn"
	KindZoomOut      Kind = "zoomOut"
	KindBlur         Kind = "blur"
	KindCircularWipe Kind = "circularWipe"
	KindCrossZoom    Kind = "crossZoom"
	KindRotate       Kind = "rotate"
	KindPixelate     Kind = "pixelate"
)

// DefaultKind is used whenever a selection is empty or unusable.
const DefaultKind = KindFade

var kinds = []Kind{
	KindFade,
	KindSlideLeft,
	KindSlideRight,
	KindSlideUp,
	KindSlideDown,
	KindZoomIn,
	KindZoomOut,
	KindBlur,
	KindCircularWipe,
	KindCrossZoom,
	KindRotate,
	KindPixelate,
}

var labels = map[Kind]string{
	KindFade:         "Fade",
	KindSlideLeft:    "Slide Left",
	KindSlideRight:   "Slide Right",
	KindSlideUp:      "Slide Up",
	KindSlideDown:    "Slide Down",
	KindZoomIn:       "Zoom In",
	KindZoomOut:      "Zoom Out",
	KindBlur:         "Blur",
	KindCircularWipe: "Circular Wipe",
	KindCrossZoom:    "Cross Zoom",
	KindRotate:       "Rotate",
	KindPixelate:     "Pixelate",
}

// All returns every transition kind in display order.
func All() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// IsValid reports whether k is part of the enumeration.
func (k Kind) IsValid() bool {
	_, ok := labels[k]
	return ok
}

// Label returns the human readable name of the kind.
func (k Kind) Label() string {
	if l, ok := labels[k]; ok {
		return l
	}
	return string(k)
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind resolves a transition name. Matching ignores case, spaces, dashes and
// underscores so "slide-left", "Slide Left" and "slideLeft" are equivalent.
func ParseKind(s string) (Kind, error) {
	want := normalizeName(s)
	for _, k := range kinds {
		if normalizeName(string(k)) == want {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func normalizeName(s string) string {
	r := strings.NewReplacer(" ", "", "-", "", "_", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(s)))
}
