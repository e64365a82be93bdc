// Package reaper provides adapters for running the lease reaper.
package reaper

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

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the reclaim loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Stages []model.Stage
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Reclaimer core.LeaseReclaimer
	Metrics   statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := wireReaperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Reclaimer == nil {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireReaperService(opts RunnerOptions) (*service.ReaperService, error) {
	reclaimer := opts.Reclaimer
	if reclaimer == nil {
		reclaimer = data.NewWorkRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	return service.NewReaperService(service.ReaperServiceOptions{
		Reclaimer: reclaimer,
		Config:    opts.Config,
		Stages:    opts.Stages,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// RunOnce performs a single reclaim pass, used by the admin CLI.
func (r *Runner) RunOnce(ctx context.Context) (service.ReapReport, error) {
	return r.reaper.RunOnce(ctx)
}
