// Package app wires configuration into a ready extraction stack shared by
// the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	vision "cloud.google.com/go/vision/v2/apiv1"
	"google.golang.org/api/option"

	"github.com/dgallion1/docmux/internal/config"
	"github.com/dgallion1/docmux/internal/engine"
	"github.com/dgallion1/docmux/internal/fallback"
	"github.com/dgallion1/docmux/internal/parser"
	"github.com/dgallion1/docmux/internal/pipeline"
	"github.com/dgallion1/docmux/internal/stats"
)

// statsWindow is how far back engine statistics look.
const statsWindow = time.Hour

// App holds the running extraction stack.
type App struct {
	Registry   *engine.Registry
	Table      *engine.Table
	Pool       *pipeline.Pool
	Stats      *stats.Engines
	Controller *fallback.Controller

	closers []func() error
	log     *slog.Logger
}

// New builds every engine, loads the descriptor table and starts the pool.
// Call Close when done.
func New(ctx context.Context, cfg config.Config, runner parser.Runner, log *slog.Logger) (*App, error) {
	a := &App{Registry: engine.NewRegistry(), log: log}

	clients := a.cloudClients(ctx, cfg)
	parser.Register(a.Registry, parser.Config{
		OCRConfidenceCutoff: cfg.OCRConfidenceCutoff,
		OCRDPI:              cfg.OCRDPI,
		OCRMaxPages:         cfg.OCRMaxPages,
		TesseractBin:        cfg.TesseractBin,
		TesseractLang:       cfg.TesseractLang,
		PdftotextBin:        cfg.PdftotextBin,
		PdftoppmBin:         cfg.PdftoppmBin,
	}, clients, runner, log)

	var err error
	if cfg.EngineTable != "" {
		a.Table, err = engine.LoadTableFile(cfg.EngineTable, a.Registry)
	} else {
		a.Table, err = engine.DefaultTable(a.Registry)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Pool = pipeline.NewPool(log,
		pipeline.WithWorkers(cfg.WorkerCount),
		pipeline.WithQueueSize(cfg.MaxQueueSize),
		pipeline.WithMaxRetries(cfg.JobMaxRetries),
		pipeline.WithJobTTL(cfg.JobTTL),
	)
	a.Pool.Start(ctx)

	a.Stats = stats.NewEngines(statsWindow)
	opts := []fallback.Option{
		fallback.WithTimeouts(cfg.CategoryTimeouts),
		fallback.WithStats(a.Stats),
	}
	if cfg.ResultCacheSize > 0 {
		cache, err := fallback.NewCache(cfg.ResultCacheSize)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("result cache: %w", err)
		}
		opts = append(opts, fallback.WithCache(cache))
	}
	a.Controller = fallback.New(a.Table, a.Pool, log, opts...)
	return a, nil
}

// cloudClients connects the Google backends that have credentials
// configured. A backend that cannot connect is left out and its engine
// reports itself unavailable.
func (a *App) cloudClients(ctx context.Context, cfg config.Config) parser.Clients {
	var creds []option.ClientOption
	switch {
	case cfg.GoogleCredentials != "":
		creds = append(creds, option.WithCredentialsJSON([]byte(cfg.GoogleCredentials)))
	case cfg.GoogleCredentialsFile != "":
		creds = append(creds, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	default:
		a.log.Debug("no google credentials; cloud engines disabled")
		return parser.Clients{}
	}

	var clients parser.Clients
	if vc, err := vision.NewImageAnnotatorClient(ctx, creds...); err != nil {
		a.log.Warn("vision client unavailable", "error", err)
	} else {
		clients.Vision = vc
		a.closers = append(a.closers, vc.Close)
	}

	if processor := cfg.DocumentAIProcessor(); processor != "" {
		opts := append([]option.ClientOption{option.WithEndpoint(cfg.DocumentAIEndpoint())}, creds...)
		if dc, err := documentai.NewDocumentProcessorClient(ctx, opts...); err != nil {
			a.log.Warn("document ai client unavailable", "location", cfg.GoogleLocation, "error", err)
		} else {
			clients.DocumentAI = dc
			clients.Processor = processor
			a.closers = append(a.closers, dc.Close)
		}
	}
	return clients
}

// MaxExtractDuration is the longest a single extraction can wait on engines:
// one category timeout for the parallel race plus one per sequential engine,
// taken over every category in the table.
func (a *App) MaxExtractDuration() time.Duration {
	var longest time.Duration
	for _, c := range a.Table.Categories() {
		ds, err := a.Table.Descriptors(c)
		if err != nil {
			continue
		}
		parallel, sequential := engine.Partition(ds)
		waits := len(sequential)
		if len(parallel) > 0 {
			waits++
		}
		longest = max(longest, time.Duration(waits)*a.Controller.Timeout(c))
	}
	return longest
}

// Close stops the pool and releases cloud clients.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Stop()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close client", "error", err)
		}
	}
	a.closers = nil
}
