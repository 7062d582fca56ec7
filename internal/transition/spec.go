package transition

import (
	"errors"
	"fmt"
)

// Mode selects how transition kinds are assigned to images.
type Mode string

const (
	// ModeSingle applies one kind to every image.
	ModeSingle Mode = "single"
	// ModeMultiple rotates through a set of kinds by image index.
	ModeMultiple Mode = "multiple"
)

// Static errors for spec validation.
var (
	ErrUnknownMode  = errors.New("unknown transition mode")
	ErrNoTransition = errors.New("at least one transition must be selected")
)

// Spec is the caller's transition selection.
type Spec struct {
	Mode     Mode   `json:"mode" toml:"mode"`
	Single   Kind   `json:"single,omitempty" toml:"single"`
	Multiple []Kind `json:"multiple,omitempty" toml:"multiple"`
}

// DefaultSpec mirrors the settings a fresh session starts with.
func DefaultSpec() Spec {
	return Spec{
		Mode:     ModeSingle,
		Single:   KindFade,
		Multiple: []Kind{KindFade, KindSlideLeft, KindZoomIn},
	}
}

// Uniform returns a single-mode spec using k for every image.
func Uniform(k Kind) Spec {
	return Spec{Mode: ModeSingle, Single: k}
}

// Cycle returns a multiple-mode spec rotating through ks.
func Cycle(ks ...Kind) Spec {
	return Spec{Mode: ModeMultiple, Multiple: ks}
}

// Selected returns the kinds the spec draws from, in order.
func (s Spec) Selected() []Kind {
	if s.Mode == ModeMultiple {
		return s.Multiple
	}
	if s.Single == "" {
		return nil
	}
	return []Kind{s.Single}
}

// Validate checks the spec is usable as-is. KindFor never fails, so a spec that does not
// validate still renders with DefaultKind.
func (s Spec) Validate() error {
	switch s.Mode {
	case ModeSingle, ModeMultiple:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, s.Mode)
	}
	selected := s.Selected()
	if len(selected) == 0 {
		return ErrNoTransition
	}
	for _, k := range selected {
		if !k.IsValid() {
			return fmt.Errorf("%w: %q", ErrUnknownKind, k)
		}
	}
	return nil
}

// KindFor returns the kind applied to the image at index i.
//
// In multiple mode image i uses Multiple[i mod len(Multiple)]; the rotation is
// deterministic. Any other mode behaves as single. An empty selection or an
// invalid kind yields DefaultKind.
func (s Spec) KindFor(i int) Kind {
	var k Kind
	if s.Mode == ModeMultiple {
		if len(s.Multiple) == 0 {
			return DefaultKind
		}
		if i < 0 {
			i = -i
		}
		k = s.Multiple[i%len(s.Multiple)]
	} else {
		k = s.Single
	}
	if !k.IsValid() {
		return DefaultKind
	}
	return k
}

// Assign returns the kind for each of n images.
func (s Spec) Assign(n int) []Kind {
	out := make([]Kind, n)
	for i := range out {
		out[i] = s.KindFor(i)
	}
	return out
}
