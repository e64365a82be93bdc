package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
	obserrors "github.com/target/domain-enricher/internal/observability/errors"
	"github.com/target/domain-enricher/internal/observability/metrics"
	"github.com/target/domain-enricher/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Reclaimer core.LeaseReclaimer // Required: returns expired claims to not started
	Config    config.ReaperConfig // Required: reaper configuration
	Stages    []model.Stage       // Optional: defaults to every stage
	Logger    *slog.Logger        // Optional: structured logger
	Metrics   statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// ReaperService returns expired claims to the pool.
//
// Claims only expire when they were taken with a non-zero lease, so a stage configured
// without a lease is never touched. Worker stats rows are left alone; each belongs to
// the worker that writes it.
type ReaperService struct {
	reclaimer core.LeaseReclaimer
	config    config.ReaperConfig
	stages    []model.Stage
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Reclaimer == nil {
		return nil, errors.New("LeaseReclaimer is required")
	}

	stages := opts.Stages
	if len(stages) == 0 {
		stages = model.AllStages()
	}
	for _, st := range stages {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidStage, string(st))
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &ReaperService{
		reclaimer: opts.Reclaimer,
		config:    opts.Config,
		stages:    stages,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Spread instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial reap")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "reap")
			}
		}
	}
}

// ReapReport counts what one pass changed.
type ReapReport struct {
	Reclaimed map[model.Stage]int64 `json:"reclaimed"`
}

// RunOnce reclaims expired claims for every configured stage.
func (s *ReaperService) RunOnce(ctx context.Context) (ReapReport, error) {
	start := time.Now()
	report := ReapReport{Reclaimed: make(map[model.Stage]int64, len(s.stages))}
	var (
		errs        []error
		allCanceled = true
	)

	record := func(operation string, count int64, err error) {
		s.emitOperationMetric(operation, count, err)
		if err == nil {
			return
		}
		errs = append(errs, fmt.Errorf("%s: %w", operation, err))
		allCanceled = allCanceled && isContextCancellation(err)
	}

	for _, stage := range s.stages {
		n, err := s.ReclaimStage(ctx, stage)
		report.Reclaimed[stage] = n
		record("reclaim_"+stage.String(), n, err)
	}

	joined := errors.Join(errs...)
	s.emitPassMetrics(time.Since(start), joined)

	if joined != nil {
		if allCanceled {
			return report, context.Canceled
		}
		return report, fmt.Errorf("reap failed: %w", joined)
	}
	return report, nil
}

// ReclaimStage loops over batches until no expired claim of the stage remains.
func (s *ReaperService) ReclaimStage(ctx context.Context, stage model.Stage) (int64, error) {
	var total int64
	for {
		n, err := s.reclaimer.ReclaimExpired(ctx, stage, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 || s.config.BatchSize <= 0 || n < int64(s.config.BatchSize) {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "reclaimed expired claims", "stage", stage, "count", total)
		}
		metrics.EmitStageLifecycle(s.metrics, metrics.StageMetric{
			Stage:      stage.String(),
			Transition: metrics.TransitionReclaimed,
			Result:     metrics.ResultSuccess,
		})
	}
	return total, nil
}

// waitWithJitter delays up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	_ = sleepContext(ctx, jitter)
}

func (s *ReaperService) emitPassMetrics(elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	tags := map[string]string{"result": metrics.ResultSuccess}
	if err := suppressContextCancellation(err); err != nil {
		tags["result"] = metrics.ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.rows_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
