package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/klntsky/compression-bench/internal/admin"
	"github.com/klntsky/compression-bench/internal/config"
	"github.com/klntsky/compression-bench/internal/evaluator"
	"github.com/klntsky/compression-bench/internal/httpapi"
	"github.com/klntsky/compression-bench/internal/llm"
	"github.com/klntsky/compression-bench/internal/metrics"
	"github.com/klntsky/compression-bench/internal/store"
	"github.com/klntsky/compression-bench/internal/tasker"
	"github.com/klntsky/compression-bench/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling worker pool and health/metrics server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, err := cmd.Flags().GetString("config-dir")
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), configDir)
		},
	}
}

func runServe(ctx context.Context, configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log.Printf("Starting %s", version.Full())

	repo, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("error closing database connection: %v", err)
		}
	}()
	log.Println("connected to postgres, migrations applied")

	if err := admin.Seed(ctx, repo, cfg.Admin, cfg.SaltRounds); err != nil {
		return fmt.Errorf("seeding administrator: %w", err)
	}

	gateway := llm.New(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		HTTPReferer:    cfg.LLM.HTTPReferer,
		XTitle:         cfg.LLM.XTitle,
		RequestTimeout: cfg.LLM.RequestTimeout,
	})
	eval := evaluator.New(gateway)

	registry := prometheus.NewRegistry()
	tsk := metrics.NewWithRegisterer(registry)

	runner := tasker.NewRunner("tasker", repo, eval, tsk, cfg.Tasker.WorkerCount, cfg.Tasker.PollInterval, cfg.Tasker.PollJitter)
	runner.Start(ctx)
	log.Printf("worker pool started: %d workers, poll interval %s", cfg.Tasker.WorkerCount, cfg.Tasker.PollInterval)

	server := httpapi.New(repo, runner, registry)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: server.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		runner.Stop()
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during HTTP shutdown: %v", err)
	}
	runner.Stop()
	log.Println("worker pool stopped")

	return nil
}
