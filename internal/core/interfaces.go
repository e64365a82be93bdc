// Package core defines the ports between the enrichment services and the data layer.
package core

import (
	"context"
	"time"

	"github.com/target/domain-enricher/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces; internal/data and internal/data/memstore provide implementations.

// StageClaimStore is the work record store plus the stage claimer.
type StageClaimStore interface {
	// InsertIfAbsent creates the domain with every stage not started. It returns false when
	// the domain already exists.
	InsertIfAbsent(ctx context.Context, rec model.SeedRecord) (bool, error)
	// GetStageState is a pure read of one stage's progress.
	GetStageState(ctx context.Context, domain string, stage model.Stage) (model.StageState, error)
	// ClaimOne atomically moves the oldest eligible not-started unit to claimed.
	// It returns model.ErrNoWorkAvailable when nothing is eligible.
	ClaimOne(ctx context.Context, req model.ClaimRequest) (*model.ClaimHandle, error)
	// Complete marks a claimed stage done. It returns false when the claim is no longer held by the handle's worker.
	Complete(ctx context.Context, h *model.ClaimHandle, info model.CompletionInfo) (bool, error)
	// CountEligible returns the number of not-started units matching the filter.
	CountEligible(ctx context.Context, stage model.Stage, filter model.ClaimFilter) (int64, error)
	// HasInFlight reports whether the worker holds an unfinished claim for the stage
	// taken at or after since. Older claims under the same worker ID are ignored.
	HasInFlight(ctx context.Context, stage model.Stage, workerID string, since time.Time) (bool, error)
}

// LeaseReclaimer returns expired claims to not started.
type LeaseReclaimer interface {
	ReclaimExpired(ctx context.Context, stage model.Stage, batchSize int) (int64, error)
}

// ResultSink persists stage results and the current-state projection.
type ResultSink interface {
	SaveStageResult(ctx context.Context, res model.StageResult) error
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
}

// WorkerStatsRecorder maintains per-worker counters with atomic increments.
type WorkerStatsRecorder interface {
	Heartbeat(ctx context.Context, workerID string, stage model.Stage) error
	RecordClaim(ctx context.Context, workerID string, stage model.Stage) error
	RecordOutcome(ctx context.Context, workerID string, stage model.Stage, out model.WorkerOutcome) error
}

// WorkerStatsPruner removes rows of workers that stopped heartbeating.
type WorkerStatsPruner interface {
	DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SearchParams groups parameters for ReportRepository.Search.
type SearchParams struct {
	Query string
	Limit int
}

// ReportRepository is the read side used by the API and admin tooling.
type ReportRepository interface {
	GetCurrentState(ctx context.Context, domain string) (*model.CurrentState, error)
	GetHistory(ctx context.Context, domain string, rng model.DateRange) ([]model.HistoryEntry, error)
	Search(ctx context.Context, params SearchParams) ([]model.DomainSummary, error)
	ListByCompanyID(ctx context.Context, identifier string) ([]model.DomainSummary, error)
	ListWorkerStats(ctx context.Context) ([]model.WorkerStats, error)
	Backlog(ctx context.Context) ([]model.StageBacklog, error)
}

// Enricher produces the payload of one stage for one unit. Partial failures are
// reported in the error list; the payload is always usable.
type Enricher interface {
	Stage() model.Stage
	Enrich(ctx context.Context, unit model.WorkUnit) (model.Payload, []error)
}

// WorkNotifier wakes idle collectors when new units are inserted.
type WorkNotifier interface {
	WaitForWork(ctx context.Context) error
}
