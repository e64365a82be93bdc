// Package dispatcher provides the adapter for running the primary stage dispatcher.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/data"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/observability/statsd"
	"github.com/target/domain-enricher/internal/service"
)

// RunnerOptions configures the dispatcher adapter.
type RunnerOptions struct {
	DB       *sql.DB
	Enricher core.Enricher
	WorkerID string
	Config   config.DispatcherConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Optional dependency injections (useful for tests/decoupling)
	Store core.StageClaimStore
	Sink  core.ResultSink
	Stats core.WorkerStatsRecorder
}

// Runner drives the adaptive primary dispatcher.
type Runner struct {
	svc    *service.DispatcherService
	logger *slog.Logger
}

// NewRunner wires the Postgres repositories around a DispatcherService.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Enricher == nil {
		return nil, errors.New("enricher is required")
	}
	if opts.Enricher.Stage() != model.StagePrimary {
		return nil, fmt.Errorf("dispatcher requires the primary enricher, got %s", opts.Enricher.Stage())
	}
	if opts.DB == nil && (opts.Store == nil || opts.Sink == nil) {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repoCfg := data.RepoConfig{Logger: opts.Logger}
	if opts.Store == nil {
		opts.Store = data.NewWorkRepo(opts.DB, repoCfg)
	}
	if opts.Sink == nil {
		opts.Sink = data.NewResultRepo(opts.DB, repoCfg)
	}
	if opts.Stats == nil && opts.DB != nil {
		opts.Stats = data.NewWorkerStatsRepo(opts.DB, repoCfg)
	}

	svc, err := service.NewDispatcherService(service.DispatcherServiceOptions{
		Store:    opts.Store,
		Sink:     opts.Sink,
		Enricher: opts.Enricher,
		Stats:    opts.Stats,
		WorkerID: opts.WorkerID,
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire dispatcher: %w", err)
	}
	return &Runner{svc: svc, logger: opts.Logger}, nil
}

// Run starts the self re-arming dispatch loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting dispatcher runner")
	return r.svc.Run(ctx)
}
