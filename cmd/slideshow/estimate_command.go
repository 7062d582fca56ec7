package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maauso/memory-images/internal/render"
)

func newEstimateCommand() *cobra.Command {
	timing := render.DefaultTiming()

	cmd := &cobra.Command{
		Use:   "estimate <image-count>",
		Short: "Estimate the slideshow length for a number of images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("image count must be a non-negative integer, got %q", args[0])
			}
			if err := validateTiming(timing); err != nil {
				return err
			}
			seconds := render.EstimateDuration(n, timing)
			fmt.Fprintf(cmd.OutOrStdout(), "~%s (%.1fs)\n", render.FormatEstimate(seconds), seconds)
			return nil
		},
	}

	cmd.Flags().Float64Var(&timing.PhotoDuration, "photo-duration", timing.PhotoDuration, "Seconds each photo is shown")
	cmd.Flags().Float64Var(&timing.TransitionDuration, "transition-duration", timing.TransitionDuration, "Seconds of each transition")

	return cmd
}

func validateTiming(t render.Timing) error {
	if t.PhotoDuration < render.MinPhotoDuration || t.PhotoDuration > render.MaxPhotoDuration {
		return fmt.Errorf("photo duration must be between %g and %g seconds", float64(render.MinPhotoDuration), float64(render.MaxPhotoDuration))
	}
	if t.TransitionDuration < render.MinTransitionDuration || t.TransitionDuration > render.MaxTransitionDuration {
		return fmt.Errorf("transition duration must be between %g and %g seconds", float64(render.MinTransitionDuration), float64(render.MaxTransitionDuration))
	}
	return nil
}
