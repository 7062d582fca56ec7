package transition

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EffectParams carries the frame geometry and timing an effect is computed for.
type EffectParams struct {
	Width              int
	Height             int
	FPS                int
	PhotoDuration      float64
	TransitionDuration float64
}

// Frames returns the number of frames spanning the photo duration.
func (p EffectParams) Frames() int {
	return int(math.Round(p.PhotoDuration * float64(p.FPS)))
}

// TransitionFrames returns the number of frames spanning the transition duration.
func (p EffectParams) TransitionFrames() int {
	n := int(math.Round(p.TransitionDuration * float64(p.FPS)))
	if n < 1 {
		n = 1
	}
	return n
}

// Param is one option of a filter step. An empty Key renders positionally.
type Param struct {
	Key   string
	Value string
}

// Step is a single ffmpeg filter invocation.
type Step struct {
	Filter string
	Params []Param
}

// String renders the step in ffmpeg filtergraph syntax.
func (s Step) String() string {
	if len(s.Params) == 0 {
		return s.Filter
	}
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		if p.Key == "" {
			parts = append(parts, p.Value)
			continue
		}
		parts = append(parts, p.Key+"="+p.Value)
	}
	return s.Filter + "=" + strings.Join(parts, ":")
}

// Effect is the declarative visual treatment for one transition kind.
type Effect struct {
	Kind  Kind
	Steps []Step
}

// Filtergraph renders the effect steps as a comma separated filter chain.
func (e Effect) Filtergraph() string {
	return chain(e.Steps)
}

// Filters returns the filter names used by the effect, in order.
func (e Effect) Filters() []string {
	out := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		out[i] = s.Filter
	}
	return out
}

type effectBuilder func(p EffectParams) []Step

var effects = map[Kind]effectBuilder{
	KindFade: func(p EffectParams) []Step {
		return []Step{fadeIn(p)}
	},
	KindSlideLeft: func(p EffectParams) []Step {
		return slide(p, 2*p.Width, p.Height, 0, 0, "x", fmt.Sprintf("%d*max(0,1-t/%s)", p.Width, num(p.TransitionDuration)))
	},
	KindSlideRight: func(p EffectParams) []Step {
		return slide(p, 2*p.Width, p.Height, p.Width, 0, "x", fmt.Sprintf("%d*min(1,t/%s)", p.Width, num(p.TransitionDuration)))
	},
	KindSlideUp: func(p EffectParams) []Step {
		return slide(p, p.Width, 2*p.Height, 0, 0, "y", fmt.Sprintf("%d*max(0,1-t/%s)", p.Height, num(p.TransitionDuration)))
	},
	KindSlideDown: func(p EffectParams) []Step {
		return slide(p, p.Width, 2*p.Height, 0, p.Height, "y", fmt.Sprintf("%d*min(1,t/%s)", p.Height, num(p.TransitionDuration)))
	},
	KindZoomIn: func(p EffectParams) []Step {
		return []Step{zoompan(p, fmt.Sprintf("min(1+0.5*on/%d,1.5)", max(p.Frames(), 1)))}
	},
	KindZoomOut: func(p EffectParams) []Step {
		return []Step{zoompan(p, fmt.Sprintf("max(1.5-0.5*on/%d,1)", max(p.Frames(), 1)))}
	},
	KindBlur: func(p EffectParams) []Step {
		return []Step{
			fadeIn(p),
			{Filter: "gblur", Params: []Param{{"sigma", "10"}, {"steps", "1"}}},
		}
	},
	// No native circular wipe exists for a single input; a fade-in stands in for it.
	KindCircularWipe: func(p EffectParams) []Step {
		return []Step{fadeIn(p)}
	},
	KindCrossZoom: func(p EffectParams) []Step {
		t := p.TransitionFrames()
		return []Step{
			zoompan(p, fmt.Sprintf("if(lt(on,%d),1.5-0.5*on/%d,1)", t, t)),
			fadeIn(p),
		}
	},
	KindRotate: func(p EffectParams) []Step {
		d := num(p.TransitionDuration)
		return []Step{
			{Filter: "rotate", Params: []Param{
				{"angle", quote(fmt.Sprintf("if(lt(t,%s),2*PI*t/%s,0)", d, d))},
				{"fillcolor", "black"},
			}},
			fadeIn(p),
		}
	},
	KindPixelate: func(p EffectParams) []Step {
		return []Step{
			{Filter: "scale", Params: []Param{{"", "iw/10"}, {"", "ih/10"}}},
			{Filter: "scale", Params: []Param{{"", strconv.Itoa(p.Width)}, {"", strconv.Itoa(p.Height)}, {"flags", "neighbor"}}},
			fadeIn(p),
		}
	},
}

// EffectFor returns the effect for kind k. Unknown kinds map to the DefaultKind effect.
func EffectFor(k Kind, p EffectParams) Effect {
	build, ok := effects[k]
	if !ok {
		k = DefaultKind
		build = effects[k]
	}
	return Effect{Kind: k, Steps: build(p)}
}

func fadeIn(p EffectParams) Step {
	return Step{Filter: "fade", Params: []Param{
		{"t", "in"},
		{"st", "0"},
		{"d", num(p.TransitionDuration)},
	}}
}

// slide places the frame on a doubled canvas and moves a frame-sized crop window
// across it so the picture enters from the black half.
func slide(p EffectParams, padW, padH, padX, padY int, axis, expr string) []Step {
	crop := Step{Filter: "crop", Params: []Param{
		{"w", strconv.Itoa(p.Width)},
		{"h", strconv.Itoa(p.Height)},
		{"x", "0"},
		{"y", "0"},
	}}
	for i := range crop.Params {
		if crop.Params[i].Key == axis {
			crop.Params[i].Value = quote(expr)
		}
	}
	return []Step{
		{Filter: "pad", Params: []Param{
			{"w", strconv.Itoa(padW)},
			{"h", strconv.Itoa(padH)},
			{"x", strconv.Itoa(padX)},
			{"y", strconv.Itoa(padY)},
			{"color", "black"},
		}},
		crop,
		fadeIn(p),
	}
}

func zoompan(p EffectParams, zoomExpr string) Step {
	return Step{Filter: "zoompan", Params: []Param{
		{"z", quote(zoomExpr)},
		{"d", "1"},
		{"x", quote("iw/2-(iw/zoom/2)")},
		{"y", quote("ih/2-(ih/zoom/2)")},
		{"s", fmt.Sprintf("%dx%d", p.Width, p.Height)},
		{"fps", strconv.Itoa(p.FPS)},
	}}
}

func chain(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

func quote(expr string) string {
	return "'" + expr + "'"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
