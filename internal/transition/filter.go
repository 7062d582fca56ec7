package transition

import (
	"fmt"
	"math"
	"strconv"
)

// FilterMode selects how a segment's video filter is derived.
type FilterMode string

const (
	// FilterModeTransition wires the per-kind effect into every segment encode.
	FilterModeTransition FilterMode = "transition"
	// FilterModeLegacy applies the same scale/pad/fade treatment to every segment
	// regardless of kind, matching the output of earlier releases byte for byte.
	FilterModeLegacy FilterMode = "legacy"
)

// IsValid reports whether m is a known filter mode.
func (m FilterMode) IsValid() bool {
	return m == FilterModeTransition || m == FilterModeLegacy
}

// legacyFadeFrames is the length of the fixed fade in/out in legacy segments.
const legacyFadeFrames = 15

// Canvas returns the steps fitting an image into a WxH frame: scaled down to fit while
// preserving aspect ratio, padded with black and given square pixels.
func Canvas(width, height int) []Step {
	w, h := strconv.Itoa(width), strconv.Itoa(height)
	return []Step{
		{Filter: "scale", Params: []Param{{"", w}, {"", h}, {"force_original_aspect_ratio", "decrease"}}},
		{Filter: "pad", Params: []Param{{"", w}, {"", h}, {"", "(ow-iw)/2"}, {"", "(oh-ih)/2"}}},
		{Filter: "setsar", Params: []Param{{"", "1"}}},
	}
}

// SegmentFilter returns the -vf chain used to encode one image segment.
func SegmentFilter(mode FilterMode, k Kind, p EffectParams) string {
	if mode == FilterModeLegacy {
		return LegacyFilter(p)
	}
	steps := Canvas(p.Width, p.Height)
	steps = append(steps, EffectFor(k, p).Steps...)
	steps = append(steps, fadeOut(p))
	return chain(steps)
}

// LegacyFilter is the kind-independent treatment: canvas, a 15 frame fade-in and a
// 15 frame fade-out starting half a second before the photo duration elapses.
func LegacyFilter(p EffectParams) string {
	fps := p.FPS
	if fps <= 0 {
		fps = 25
	}
	outStart := int(math.Floor((p.PhotoDuration - 0.5) * float64(fps)))
	if outStart < 0 {
		outStart = 0
	}
	steps := Canvas(p.Width, p.Height)
	steps = append(steps,
		Step{Filter: "fade", Params: []Param{{"", "in"}, {"", "0"}, {"", strconv.Itoa(legacyFadeFrames)}}},
		Step{Filter: "fade", Params: []Param{{"", "out"}, {"", strconv.Itoa(outStart)}, {"", strconv.Itoa(legacyFadeFrames)}}},
	)
	return chain(steps)
}

func fadeOut(p EffectParams) Step {
	start := p.PhotoDuration - 0.5
	if start < 0 {
		start = 0
	}
	d := p.PhotoDuration - start
	return Step{Filter: "fade", Params: []Param{
		{"t", "out"},
		{"st", num(start)},
		{"d", num(d)},
	}}
}

// ParseFilterMode resolves a filter mode name.
func ParseFilterMode(s string) (FilterMode, error) {
	m := FilterMode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown segment filter mode %q", s)
	}
	return m, nil
}
