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

// TickOutcome names what a dispatcher tick did.
type TickOutcome string

const (
	// TickProcessed means a unit was claimed, enriched and completed.
	TickProcessed TickOutcome = "processed"
	// TickRetried means a retained unit from an earlier store failure was persisted.
	TickRetried TickOutcome = "retried"
	// TickBusy means this worker still holds a primary claim.
	TickBusy TickOutcome = "busy"
	// TickBacklog means nothing was claimable but eligible units remain.
	TickBacklog TickOutcome = "backlog"
	// TickIdle means no eligible units remain.
	TickIdle TickOutcome = "idle"
	// TickStoreError means a store call failed and the tick was abandoned.
	TickStoreError TickOutcome = "store_error"
)

// TickResult reports a tick and the delay before the next one.
type TickResult struct {
	Outcome   TickOutcome
	NextDelay time.Duration
	Domain    string
	Backlog   int64
	Err       error
}

// DispatcherServiceOptions groups dependencies for DispatcherService.
type DispatcherServiceOptions struct {
	Store    core.StageClaimStore     // Required: claim store
	Sink     core.ResultSink          // Required: result sink and history
	Enricher core.Enricher            // Required: primary enricher
	Stats    core.WorkerStatsRecorder // Optional: per-worker counters
	WorkerID string                   // Required: claim owner identity
	Config   config.DispatcherConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Now      func() time.Time
	// Sleep waits between invocation retries. Defaults to a context-aware timer.
	Sleep func(context.Context, time.Duration) error
}

// DispatcherService drives the primary stage with a self-re-arming timer whose delay
// adapts to the last tick.
type DispatcherService struct {
	stage    model.Stage
	store    core.StageClaimStore
	enricher core.Enricher
	workerID string
	config   config.DispatcherConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	writer   *outcomeWriter

	// started bounds the in-flight check; claims left by an earlier run under the same ID are ignored.
	started time.Time
	pending *unitOutcome
}

// NewDispatcherService constructs a DispatcherService.
func NewDispatcherService(opts DispatcherServiceOptions) (*DispatcherService, error) {
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

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stage := opts.Enricher.Stage()
	logger = logger.With("component", "dispatcher", "stage", stage.String(), "worker_id", opts.WorkerID)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &DispatcherService{
		stage:    stage,
		store:    opts.Store,
		enricher: opts.Enricher,
		workerID: opts.WorkerID,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
		sleep:    sleep,
		started:  now().UTC(),
		writer: &outcomeWriter{
			store:   opts.Store,
			sink:    opts.Sink,
			stats:   opts.Stats,
			logger:  logger,
			metrics: opts.Metrics,
		},
	}, nil
}

// Run ticks until the context is cancelled, re-arming the timer with each tick's delay.
func (s *DispatcherService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting dispatcher",
		"max_retries", s.config.MaxRetries,
		"retry_delay", s.config.RetryDelay,
		"claim_lease", s.config.ClaimLease,
	)
	s.warnStaleClaims(ctx)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "dispatcher stopping", "reason", ctx.Err())
			return nil
		case <-timer.C:
			res := s.Tick(ctx)
			if ctx.Err() != nil {
				continue
			}
			s.emitTick(res)
			if res.Err != nil {
				s.logger.ErrorContext(ctx, "dispatcher tick failed", "error", res.Err, "next_delay", res.NextDelay)
			}
			timer.Reset(res.NextDelay)
		}
	}
}

// warnStaleClaims reports primary claims held under this worker ID from before startup.
// Without a lease nothing reclaims them.
func (s *DispatcherService) warnStaleClaims(ctx context.Context) {
	stale, err := s.store.HasInFlight(ctx, s.stage, s.workerID, time.Time{})
	if err != nil || !stale {
		return
	}
	if fresh, err := s.store.HasInFlight(ctx, s.stage, s.workerID, s.started); err == nil && !fresh {
		s.logger.WarnContext(ctx, "worker ID holds a claim from an earlier run; it is ignored for the in-flight check",
			"claim_lease", s.config.ClaimLease,
		)
	}
}

// Tick runs one dispatch step and returns the delay the caller should wait before the next.
func (s *DispatcherService) Tick(ctx context.Context) TickResult {
	s.writer.heartbeat(ctx, s.workerID, s.stage)

	if s.pending != nil {
		domain := s.pending.handle.Unit.Domain
		if err := s.writer.write(ctx, s.pending); err != nil {
			return s.storeError(domain, fmt.Errorf("retry %s: %w", domain, err))
		}
		s.pending = nil
		return TickResult{Outcome: TickRetried, NextDelay: s.config.ClaimedDelay, Domain: domain}
	}

	busy, err := s.store.HasInFlight(ctx, s.stage, s.workerID, s.started)
	if err != nil {
		return s.storeError("", fmt.Errorf("in-flight check: %w", err))
	}
	if busy {
		return TickResult{Outcome: TickBusy, NextDelay: s.config.BusyDelay}
	}

	h, err := s.store.ClaimOne(ctx, model.ClaimRequest{
		Stage:    s.stage,
		WorkerID: s.workerID,
		Lease:    s.config.ClaimLease,
	})
	if errors.Is(err, model.ErrNoWorkAvailable) {
		return s.noWork(ctx)
	}
	if err != nil {
		return s.storeError("", fmt.Errorf("claim %s: %w", s.stage, err))
	}
	s.writer.recordClaim(ctx, h)

	outcome, err := s.enrichWithRetry(ctx, h)
	if err != nil {
		return TickResult{Outcome: TickStoreError, NextDelay: s.config.ErrorDelay, Domain: h.Unit.Domain, Err: err}
	}

	s.pending = outcome
	if err := s.writer.write(ctx, outcome); err != nil {
		return s.storeError(h.Unit.Domain, err)
	}
	s.pending = nil
	return TickResult{Outcome: TickProcessed, NextDelay: s.config.ClaimedDelay, Domain: h.Unit.Domain}
}

func (s *DispatcherService) noWork(ctx context.Context) TickResult {
	n, err := s.store.CountEligible(ctx, s.stage, model.ClaimFilter{})
	if err != nil {
		return s.storeError("", fmt.Errorf("count eligible: %w", err))
	}
	if n == 0 {
		return TickResult{Outcome: TickIdle, NextDelay: s.config.IdleDelay}
	}
	return TickResult{Outcome: TickBacklog, NextDelay: s.config.BacklogDelay, Backlog: n}
}

func (s *DispatcherService) storeError(domain string, err error) TickResult {
	return TickResult{Outcome: TickStoreError, NextDelay: s.config.ErrorDelay, Domain: domain, Err: err}
}

// enrichWithRetry repeats the call while it fails as a whole. Partial errors are kept as-is.
func (s *DispatcherService) enrichWithRetry(ctx context.Context, h *model.ClaimHandle) (*unitOutcome, error) {
	start := s.now()
	var (
		payload model.Payload
		errs    []error
	)
	for attempt := 0; ; attempt++ {
		payload, errs = invokeEnricher(ctx, s.enricher, h.Unit, s.config.Timeout)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !model.HasInvocationFailure(errs) || attempt >= s.config.MaxRetries {
			break
		}
		s.logger.WarnContext(ctx, "enrichment invocation failed, retrying",
			"domain", h.Unit.Domain,
			"attempt", attempt+1,
			"retry_delay", s.config.RetryDelay,
			"error", errors.Join(errs...),
		)
		if err := s.sleep(ctx, s.config.RetryDelay); err != nil {
			return nil, err
		}
	}
	elapsed := s.now().Sub(start)
	analyzed := s.now().UTC()
	errStrings := model.ErrorStrings(errs)

	s.logger.InfoContext(ctx, "enriched unit",
		"domain", h.Unit.Domain,
		"errors", len(errs),
		"elapsed", elapsed,
	)

	out := &unitOutcome{
		handle: h,
		result: model.StageResult{
			Domain:     h.Unit.Domain,
			Stage:      s.stage,
			Payload:    payload,
			Errors:     errStrings,
			AnalyzedAt: analyzed,
			WorkerID:   s.workerID,
		},
		elapsed: elapsed,
		failure: invocationFailure(errs),
	}
	if primary, ok := payload.(*model.PrimaryPayload); ok {
		out.history = &model.HistoryEntry{
			Domain:     h.Unit.Domain,
			RecordedAt: analyzed,
			Snapshot:   *primary,
			Errors:     errStrings,
		}
	}
	return out, nil
}

func (s *DispatcherService) emitTick(res TickResult) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{"stage": s.stage.String(), "outcome": string(res.Outcome)}
	s.metrics.Count("dispatcher.tick", 1, tags)
	s.metrics.Gauge("dispatcher.next_delay", res.NextDelay.Seconds(), map[string]string{"stage": s.stage.String()})
	if res.Outcome == TickBacklog || res.Outcome == TickIdle {
		s.metrics.Gauge("backlog", float64(res.Backlog), map[string]string{"stage": s.stage.String()})
	}
}
