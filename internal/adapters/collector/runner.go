// Package collector provides adapters for running polling collector stages.
package collector

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

// RunnerOptions configures the collector adapter.
type RunnerOptions struct {
	DB       *sql.DB
	Enricher core.Enricher
	WorkerID string
	Config   config.CollectorConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Optional dependency injections (useful for tests/decoupling)
	Store    core.StageClaimStore
	Sink     core.ResultSink
	Stats    core.WorkerStatsRecorder
	Notifier core.WorkNotifier
}

// Runner claims and enriches units of one stage until the context is cancelled.
type Runner struct {
	svc    *service.CollectorService
	logger *slog.Logger
}

// NewRunner wires the Postgres repositories around a CollectorService.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Enricher == nil {
		return nil, errors.New("enricher is required")
	}
	if opts.DB == nil && (opts.Store == nil || opts.Sink == nil) {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	stage := opts.Enricher.Stage()
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
	if opts.Notifier == nil && opts.DB != nil && opts.Config.ListenForWork {
		opts.Notifier = data.NewWorkNotifier(opts.DB)
	}

	var filter model.ClaimFilter
	if stage == model.StageCompany {
		filter.RequireOwner = true
	}

	svc, err := service.NewCollectorService(service.CollectorServiceOptions{
		Store:    opts.Store,
		Sink:     opts.Sink,
		Enricher: opts.Enricher,
		Stats:    opts.Stats,
		Notifier: opts.Notifier,
		WorkerID: opts.WorkerID,
		Filter:   filter,
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire %s collector: %w", stage, err)
	}
	return &Runner{svc: svc, logger: opts.Logger.With("stage", stage.String())}, nil
}

// Run starts the collector loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting collector runner")
	return r.svc.Run(ctx)
}
