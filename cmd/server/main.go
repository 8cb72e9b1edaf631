package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/docmux/internal/api"
	"github.com/dgallion1/docmux/internal/app"
	"github.com/dgallion1/docmux/internal/config"
)

// writeSlack is added to the worst-case extraction time for the write deadline.
const writeSlack = time.Minute

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stack, err := app.New(ctx, cfg, nil, log)
	if err != nil {
		log.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(stack.Controller, stack.Pool, stack.Table, stack.Stats, log, cfg)

	// The write deadline covers the slowest possible extraction plus the
	// upload and response.
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: stack.MaxExtractDuration() + writeSlack,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		stack.Close()
	}()

	log.Info("starting docmux",
		"port", cfg.Port,
		"workers", cfg.WorkerCount,
		"categories", stack.Table.Categories(),
		"write_timeout", httpServer.WriteTimeout,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
