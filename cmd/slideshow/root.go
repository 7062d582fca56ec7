package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/memory-images/internal/config"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	return config.NewLogger(w, o.logFormat, o.logLevel)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "slideshow",
		Short:         "Turn photos and a song into a slideshow video",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text or json)")

	rootCmd.AddCommand(newRenderCommand(opts))
	rootCmd.AddCommand(newTransitionsCommand())
	rootCmd.AddCommand(newEstimateCommand())

	return rootCmd
}
