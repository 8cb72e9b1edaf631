package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docmux/internal/app"
	"github.com/dgallion1/docmux/internal/config"
)

var version = "dev"

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "docmux",
		Short: "Extract text from documents with prioritized engine fallback",
		Long: `docmux routes a document to the extraction engines configured for its
category, races the parallel tier and falls back through the sequential
tier until one engine returns content.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine attempts to stderr")

	cmd.AddCommand(newExtractCmd(opts), newEnginesCmd(opts))
	return cmd
}

// logger writes to stderr so stdout stays clean for document output.
func (o *rootOptions) logger(cfg config.Config) *slog.Logger {
	level := cfg.LogLevel
	if o.verbose {
		level = slog.LevelDebug
	} else if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// stack loads configuration and builds the extraction stack.
func (o *rootOptions) stack(ctx context.Context) (*app.App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, nil, o.logger(cfg))
}
