package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/observability/statsd"
)

// CollectorServiceOptions groups dependencies for CollectorService.
type CollectorServiceOptions struct {
	Store    core.StageClaimStore     // Required: claim store
	Sink     core.ResultSink          // Required: result sink
	Enricher core.Enricher            // Required: stage enricher; its Stage() selects the claimed stage
	Stats    core.WorkerStatsRecorder // Optional: per-worker counters
	Notifier core.WorkNotifier        // Optional: wakes the idle wait when work is inserted
	WorkerID string                   // Required: claim owner identity
	Filter   model.ClaimFilter
	Config   config.CollectorConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Now      func() time.Time
}

// CollectorService polls one stage: claim, enrich, persist, complete.
type CollectorService struct {
	stage    model.Stage
	store    core.StageClaimStore
	enricher core.Enricher
	notifier core.WorkNotifier
	workerID string
	filter   model.ClaimFilter
	config   config.CollectorConfig
	logger   *slog.Logger
	now      func() time.Time
	writer   *outcomeWriter

	// pending is a unit whose persistence failed; it is retried before new claims.
	pending *unitOutcome
}

// NewCollectorService constructs a CollectorService.
func NewCollectorService(opts CollectorServiceOptions) (*CollectorService, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("StageClaimStore is required")
	case opts.Sink == nil:
		return nil, errors.New("ResultSink is required")
	case opts.Enricher == nil:
		return nil, errors.New("Enricher is required")
	case opts.WorkerID == "":
		return nil, errors.New("WorkerID is required")
	}
	stage := opts.Enricher.Stage()
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStage, string(stage))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "collector", "stage", stage.String(), "worker_id", opts.WorkerID)

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &CollectorService{
		stage:    stage,
		store:    opts.Store,
		enricher: opts.Enricher,
		notifier: opts.Notifier,
		workerID: opts.WorkerID,
		filter:   opts.Filter,
		config:   opts.Config,
		logger:   logger,
		now:      now,
		writer: &outcomeWriter{
			store:   opts.Store,
			sink:    opts.Sink,
			stats:   opts.Stats,
			logger:  logger,
			metrics: opts.Metrics,
		},
	}, nil
}

// Stage returns the stage this collector claims.
func (s *CollectorService) Stage() model.Stage { return s.stage }

// Run polls until the context is cancelled. Returns nil on graceful shutdown.
func (s *CollectorService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting collector",
		"idle_interval", s.config.IdleInterval,
		"timeout", s.config.Timeout,
		"claim_lease", s.config.ClaimLease,
	)

	for {
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "collector stopping", "reason", ctx.Err())
			return nil
		}

		processed, err := s.Step(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			s.logger.ErrorContext(ctx, "collector step failed", "error", err, "backoff", s.config.StoreBackoff)
			_ = sleepContext(ctx, s.config.StoreBackoff)
		case processed:
			continue
		default:
			s.waitIdle(ctx)
		}
	}
}

// Step runs one cycle. It reports whether a unit was persisted. A returned error means a
// store call failed; the caller backs off and calls Step again.
func (s *CollectorService) Step(ctx context.Context) (bool, error) {
	if s.pending != nil {
		if err := s.writer.write(ctx, s.pending); err != nil {
			return false, fmt.Errorf("retry %s: %w", s.pending.handle.Unit.Domain, err)
		}
		s.logger.InfoContext(ctx, "persisted retained result", "domain", s.pending.handle.Unit.Domain)
		s.pending = nil
		return true, nil
	}

	s.writer.heartbeat(ctx, s.workerID, s.stage)

	h, err := s.store.ClaimOne(ctx, model.ClaimRequest{
		Stage:    s.stage,
		Filter:   s.filter,
		WorkerID: s.workerID,
		Lease:    s.config.ClaimLease,
	})
	if errors.Is(err, model.ErrNoWorkAvailable) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", s.stage, err)
	}
	s.writer.recordClaim(ctx, h)

	outcome, err := s.enrich(ctx, h)
	if err != nil {
		return false, err
	}

	s.pending = outcome
	if err := s.writer.write(ctx, outcome); err != nil {
		return false, err
	}
	s.pending = nil
	return true, nil
}

func (s *CollectorService) enrich(ctx context.Context, h *model.ClaimHandle) (*unitOutcome, error) {
	start := s.now()
	payload, errs := invokeEnricher(ctx, s.enricher, h.Unit, s.config.Timeout)
	if err := ctx.Err(); err != nil {
		// Shutdown mid-unit: the claim stays with this worker until its lease is reclaimed.
		s.logger.WarnContext(ctx, "enrichment interrupted by shutdown", "domain", h.Unit.Domain)
		return nil, err
	}
	elapsed := s.now().Sub(start)

	level := slog.LevelInfo
	if len(errs) > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "enriched unit",
		"domain", h.Unit.Domain,
		"errors", len(errs),
		"elapsed", elapsed,
	)

	return &unitOutcome{
		handle: h,
		result: model.StageResult{
			Domain:     h.Unit.Domain,
			Stage:      s.stage,
			Payload:    payload,
			Errors:     model.ErrorStrings(errs),
			AnalyzedAt: s.now().UTC(),
			WorkerID:   s.workerID,
		},
		elapsed: elapsed,
		failure: invocationFailure(errs),
	}, nil
}

// waitIdle sleeps for the idle interval or until a work notification arrives.
func (s *CollectorService) waitIdle(ctx context.Context) {
	if s.notifier == nil || !s.config.ListenForWork {
		_ = sleepContext(ctx, s.config.IdleInterval)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.config.IdleInterval)
	defer cancel()

	err := s.notifier.WaitForWork(waitCtx)
	if err == nil || isContextCancellation(err) {
		return
	}
	s.logger.WarnContext(ctx, "work notification wait failed", "error", err)
	<-waitCtx.Done()
}
