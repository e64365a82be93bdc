package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/observability/metrics"
	"github.com/target/domain-enricher/internal/observability/statsd"
)

// unitOutcome is an enriched unit waiting to be written. Each write step is recorded so a
// retry after a store failure resumes where the previous attempt stopped.
type unitOutcome struct {
	handle  *model.ClaimHandle
	result  model.StageResult
	history *model.HistoryEntry
	elapsed time.Duration
	// failure joins the errors that failed the call outright; nil for partial errors only.
	failure error

	saved     bool
	appended  bool
	completed bool
}

// outcomeWriter persists unit outcomes through the ports.
type outcomeWriter struct {
	store   core.StageClaimStore
	sink    core.ResultSink
	stats   core.WorkerStatsRecorder
	logger  *slog.Logger
	metrics statsd.Sink
}

// write stores the result, appends history when present, completes the claim and records stats.
func (w *outcomeWriter) write(ctx context.Context, o *unitOutcome) error {
	if !o.saved {
		if err := w.sink.SaveStageResult(ctx, o.result); err != nil {
			return fmt.Errorf("save %s result: %w", o.result.Stage, err)
		}
		o.saved = true
	}
	if o.history != nil && !o.appended {
		if err := w.sink.AppendHistory(ctx, *o.history); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		o.appended = true
	}
	if !o.completed {
		ok, err := w.store.Complete(ctx, o.handle, model.CompletionInfo{Elapsed: o.elapsed})
		if err != nil {
			return fmt.Errorf("complete %s: %w", o.handle.Stage, err)
		}
		o.completed = true
		if !ok {
			w.logger.WarnContext(ctx, "claim no longer held, completion ignored",
				"domain", o.handle.Unit.Domain,
				"stage", o.handle.Stage,
				"worker_id", o.handle.WorkerID,
			)
			metrics.EmitStageLifecycle(w.metrics, metrics.StageMetric{
				Stage:      o.handle.Stage.String(),
				Transition: metrics.TransitionLost,
				Result:     metrics.ResultNoop,
			})
		}
	}

	w.recordOutcome(ctx, o)
	return nil
}

func (w *outcomeWriter) recordOutcome(ctx context.Context, o *unitOutcome) {
	result := metrics.ResultSuccess
	if o.failure != nil {
		result = metrics.ResultError
	}
	metrics.EmitStageLifecycle(w.metrics, metrics.StageMetric{
		Stage:      o.handle.Stage.String(),
		Transition: metrics.TransitionCompleted,
		Result:     result,
		Duration:   o.elapsed,
		Err:        o.failure,
	})
	if w.stats == nil {
		return
	}
	out := model.WorkerOutcome{Failed: o.failure != nil, Elapsed: o.elapsed}
	if err := w.stats.RecordOutcome(ctx, o.handle.WorkerID, o.handle.Stage, out); err != nil {
		w.logger.WarnContext(ctx, "record outcome failed", "stage", o.handle.Stage, "error", err)
	}
}

func (w *outcomeWriter) heartbeat(ctx context.Context, workerID string, stage model.Stage) {
	if w.stats == nil {
		return
	}
	if err := w.stats.Heartbeat(ctx, workerID, stage); err != nil && !isContextCancellation(err) {
		w.logger.WarnContext(ctx, "heartbeat failed", "stage", stage, "error", err)
	}
}

func (w *outcomeWriter) recordClaim(ctx context.Context, h *model.ClaimHandle) {
	metrics.EmitStageLifecycle(w.metrics, metrics.StageMetric{
		Stage:      h.Stage.String(),
		Transition: metrics.TransitionClaimed,
		Result:     metrics.ResultSuccess,
	})
	if w.stats == nil {
		return
	}
	if err := w.stats.RecordClaim(ctx, h.WorkerID, h.Stage); err != nil {
		w.logger.WarnContext(ctx, "record claim failed", "stage", h.Stage, "error", err)
	}
}

// invokeEnricher runs one enrichment under timeout. Panics and an expired timeout become
// invocation failures and a missing payload is replaced by the stage's empty payload.
func invokeEnricher(
	ctx context.Context,
	enricher core.Enricher,
	unit model.WorkUnit,
	timeout time.Duration,
) (payload model.Payload, errs []error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("%w: panic: %v", model.ErrInvocationFailed, r))
			}
		}()
		payload, errs = enricher.Enrich(ctx, unit)
	}()

	if payload == nil {
		payload, _ = model.EmptyPayload(enricher.Stage())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		errs = markTimedOut(errs, ctx.Err())
	}
	return payload, errs
}

// markTimedOut turns the deadline errors reported by the enricher into invocation failures,
// adding one when the enricher returned without noticing the deadline.
func markTimedOut(errs []error, deadline error) []error {
	found := false
	for i, err := range errs {
		if !errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		found = true
		if !errors.Is(err, model.ErrInvocationFailed) {
			errs[i] = fmt.Errorf("%w: %w", model.ErrInvocationFailed, err)
		}
	}
	if !found {
		errs = append(errs, fmt.Errorf("%w: %w", model.ErrInvocationFailed, deadline))
	}
	return errs
}

// invocationFailure joins the errors that failed the call outright.
func invocationFailure(errs []error) error {
	var failed []error
	for _, err := range errs {
		if errors.Is(err, model.ErrInvocationFailed) {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
