package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/adapters/collector"
	"github.com/target/domain-enricher/internal/adapters/dispatcher"
	"github.com/target/domain-enricher/internal/adapters/reaper"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/observability/statsd"
)

// DispatcherRunConfig contains configuration for the primary dispatcher.
type DispatcherRunConfig struct {
	DB       *sql.DB
	Enricher core.Enricher
	WorkerID string
	Config   config.DispatcherConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// RunDispatcher starts the primary stage dispatcher.
func RunDispatcher(ctx context.Context, cfg DispatcherRunConfig) error {
	runner, err := dispatcher.NewRunner(dispatcher.RunnerOptions{
		DB:       cfg.DB,
		Enricher: cfg.Enricher,
		WorkerID: cfg.WorkerID,
		Config:   cfg.Config,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher runner: %w", err)
	}
	return runner.Run(ctx)
}

// CollectorRunConfig contains configuration for one polling collector.
type CollectorRunConfig struct {
	DB       *sql.DB
	Enricher core.Enricher
	WorkerID string
	Config   config.CollectorConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// RunCollector starts a polling collector for the enricher's stage.
func RunCollector(ctx context.Context, cfg CollectorRunConfig) error {
	runner, err := collector.NewRunner(collector.RunnerOptions{
		DB:       cfg.DB,
		Enricher: cfg.Enricher,
		WorkerID: cfg.WorkerID,
		Config:   cfg.Config,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create collector runner: %w", err)
	}
	return runner.Run(ctx)
}

// ReaperRunConfig contains configuration for the lease reaper.
type ReaperRunConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the lease reaper service.
func RunReaper(ctx context.Context, cfg ReaperRunConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}
	return runner.Run(ctx)
}
