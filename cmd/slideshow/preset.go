package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/transition"
)

// preset holds render defaults read from a TOML file. Command line flags win over it.
type preset struct {
	Output      string            `toml:"output"`
	FilterMode  string            `toml:"filter_mode"`
	Transitions presetTransitions `toml:"transitions"`
	Timing      render.Timing     `toml:"timing"`
}

type presetTransitions struct {
	Mode     string   `toml:"mode"`
	Single   string   `toml:"single"`
	Multiple []string `toml:"multiple"`
}

func loadPreset(path string) (*preset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open preset: %w", err)
	}
	defer file.Close()

	var p preset
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}

	if p.FilterMode != "" {
		if _, err := transition.ParseFilterMode(p.FilterMode); err != nil {
			return nil, fmt.Errorf("preset %s: %w", path, err)
		}
	}
	return &p, nil
}

// spec resolves the preset's transition selection, falling back to a single fade.
func (p *preset) spec() (transition.Spec, error) {
	mode := p.Transitions.Mode
	if mode == "" {
		mode = string(transition.ModeSingle)
	}
	return buildSpec(mode, p.Transitions.Single, p.Transitions.Multiple)
}

func buildSpec(mode, single string, multiple []string) (transition.Spec, error) {
	spec := transition.Spec{Mode: transition.Mode(mode)}
	if single != "" {
		k, err := transition.ParseKind(single)
		if err != nil {
			return transition.Spec{}, err
		}
		spec.Single = k
	}
	for _, name := range multiple {
		k, err := transition.ParseKind(name)
		if err != nil {
			return transition.Spec{}, err
		}
		spec.Multiple = append(spec.Multiple, k)
	}
	if spec.Mode == transition.ModeSingle && spec.Single == "" {
		spec.Single = transition.DefaultKind
	}
	return spec, spec.Validate()
}
