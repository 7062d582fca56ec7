package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/memory-images/internal/bootstrap"
	"github.com/maauso/memory-images/internal/config"
	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/transition"
)

var errNoImages = errors.New("at least one --image is required")

var errNoAudio = errors.New("--audio is required")

type renderOptions struct {
	images             []string
	audio              string
	mode               string
	transitions        []string
	photoDuration      float64
	transitionDuration float64
	presetPath         string
	output             string
	legacyFilters      bool
}

// renderPlan is a fully resolved render: the request plus where and how to write it.
type renderPlan struct {
	request    render.Request
	output     string
	filterMode transition.FilterMode
}

func newRenderCommand(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}
	def := render.DefaultTiming()

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a slideshow video from images and an MP3",
		Example: `  slideshow render -i beach.jpg -i sunset.png -a song.mp3
  slideshow render -i a.jpg -i b.jpg -a song.mp3 --mode multiple -t fade -t zoomIn -o trip.mp4
  slideshow render -i a.jpg -a song.mp3 --preset wedding.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := opts.plan(cmd.Flags().Changed, time.Now())
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if plan.filterMode != "" {
				cfg.SegmentFilterMode = string(plan.filterMode)
			}

			stderr := cmd.ErrOrStderr()
			logger := root.logger(stderr)
			assembler := bootstrap.NewAssembler(cfg, bootstrap.NewLoader(cfg, logger), logger)

			reporter := newProgressReporter(stderr, logger, isTerminal(stderr))
			result, err := assembler.Generate(cmd.Context(), plan.request, reporter)
			reporter.finish()
			if err != nil {
				return fmt.Errorf("render failed: %w", err)
			}

			if err := writeOutput(plan.output, result.Data); err != nil {
				return err
			}

			logger.Info("video written",
				slog.String("path", plan.output),
				slog.Int("bytes", len(result.Data)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d images, ~%s)\n",
				plan.output,
				len(plan.request.Images),
				render.FormatEstimate(render.EstimateDuration(len(plan.request.Images), plan.request.Timing)),
			)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.images, "image", "i", nil, "Image file, repeat in display order")
	flags.StringVarP(&opts.audio, "audio", "a", "", "MP3 soundtrack")
	flags.StringVar(&opts.mode, "mode", string(transition.ModeSingle), "Transition mode: single or multiple")
	flags.StringArrayVarP(&opts.transitions, "transition", "t", nil, "Transition kind, repeat for multiple mode")
	flags.Float64Var(&opts.photoDuration, "photo-duration", def.PhotoDuration, "Seconds each photo is shown")
	flags.Float64Var(&opts.transitionDuration, "transition-duration", def.TransitionDuration, "Seconds of each transition")
	flags.StringVar(&opts.presetPath, "preset", "", "TOML preset with default transitions, timing and output")
	flags.StringVarP(&opts.output, "output", "o", "", "Output file (default memory-images-<unix-ms>.mp4)")
	flags.BoolVar(&opts.legacyFilters, "legacy-filters", false, "Use the kind-independent fade filter for every segment")

	return cmd
}

// plan resolves flags, the optional preset and defaults into a validated render.
// changed reports whether a flag was set explicitly.
func (o *renderOptions) plan(changed func(string) bool, now time.Time) (*renderPlan, error) {
	if len(o.images) == 0 {
		return nil, errNoImages
	}
	if o.audio == "" {
		return nil, errNoAudio
	}

	p := &preset{}
	if o.presetPath != "" {
		loaded, err := loadPreset(o.presetPath)
		if err != nil {
			return nil, err
		}
		p = loaded
	}

	spec, err := o.spec(changed, p)
	if err != nil {
		return nil, err
	}

	timing := render.DefaultTiming()
	if p.Timing.PhotoDuration > 0 {
		timing.PhotoDuration = p.Timing.PhotoDuration
	}
	if p.Timing.TransitionDuration > 0 {
		timing.TransitionDuration = p.Timing.TransitionDuration
	}
	if changed("photo-duration") {
		timing.PhotoDuration = o.photoDuration
	}
	if changed("transition-duration") {
		timing.TransitionDuration = o.transitionDuration
	}

	output := o.output
	if output == "" {
		output = p.Output
	}
	if output == "" {
		output = render.FileName(now)
	}

	var mode transition.FilterMode
	if p.FilterMode != "" {
		mode = transition.FilterMode(p.FilterMode)
	}
	if o.legacyFilters {
		mode = transition.FilterModeLegacy
	}

	req, err := o.readRequest(spec, timing)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, errors.New(render.ValidationMessage(err))
	}

	return &renderPlan{request: req, output: output, filterMode: mode}, nil
}

func (o *renderOptions) spec(changed func(string) bool, p *preset) (transition.Spec, error) {
	if !changed("mode") && len(o.transitions) == 0 {
		if p.Transitions.Mode != "" || p.Transitions.Single != "" || len(p.Transitions.Multiple) > 0 {
			return p.spec()
		}
		return transition.Uniform(transition.DefaultKind), nil
	}

	switch transition.Mode(o.mode) {
	case transition.ModeMultiple:
		names := o.transitions
		if len(names) == 0 {
			for _, k := range transition.DefaultSpec().Multiple {
				names = append(names, string(k))
			}
		}
		return buildSpec(o.mode, "", names)
	case transition.ModeSingle:
		if len(o.transitions) > 1 {
			return transition.Spec{}, fmt.Errorf("--mode single takes one --transition, got %d", len(o.transitions))
		}
		single := ""
		if len(o.transitions) == 1 {
			single = o.transitions[0]
		}
		return buildSpec(o.mode, single, nil)
	default:
		return transition.Spec{}, fmt.Errorf("%w: %q", transition.ErrUnknownMode, o.mode)
	}
}

func (o *renderOptions) readRequest(spec transition.Spec, timing render.Timing) (render.Request, error) {
	images := make([]render.ImageItem, 0, len(o.images))
	for i, path := range o.images {
		data, err := os.ReadFile(path)
		if err != nil {
			return render.Request{}, fmt.Errorf("read image: %w", err)
		}
		images = append(images, render.ImageItem{ID: filepath.Base(path), Data: data, Position: i})
	}

	audio, err := os.ReadFile(o.audio)
	if err != nil {
		return render.Request{}, fmt.Errorf("read audio: %w", err)
	}

	return render.Request{
		Images:      images,
		Audio:       &render.AudioAsset{Name: filepath.Base(o.audio), Data: audio},
		Transitions: spec,
		Timing:      timing,
	}, nil
}

// writeOutput writes data to a sibling temporary file and renames it into place.
func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write video: %w", err)
	}
	return nil
}
