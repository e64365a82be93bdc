package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/data/pgxutil"
	"github.com/target/domain-enricher/internal/domain/model"
)

// WorkerStatsRepo maintains worker counters. Every mutation is a single upsert with
// in-place increments, so concurrent writers never lose updates.
type WorkerStatsRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var (
	_ core.WorkerStatsRecorder = (*WorkerStatsRepo)(nil)
	_ core.WorkerStatsPruner   = (*WorkerStatsRepo)(nil)
)

// NewWorkerStatsRepo creates a new WorkerStatsRepo.
func NewWorkerStatsRepo(db *sql.DB, cfg RepoConfig) *WorkerStatsRepo {
	return &WorkerStatsRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger().With("component", "worker_stats_repo"),
	}
}

// Heartbeat sets last_heartbeat and bumps heartbeat_count. first_seen is set only on insert.
func (r *WorkerStatsRepo) Heartbeat(ctx context.Context, workerID string, stage model.Stage) error {
	now := r.timeProvider.Now().UTC()
	return r.upsert(ctx, "heartbeat", `
		INSERT INTO worker_stats (worker_id, stage, heartbeat_count, last_heartbeat, first_seen)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (worker_id, stage) DO UPDATE
		SET heartbeat_count = worker_stats.heartbeat_count + 1,
		    last_heartbeat = EXCLUDED.last_heartbeat
	`, workerID, stage, now)
}

// RecordClaim increments the claim counter.
func (r *WorkerStatsRepo) RecordClaim(ctx context.Context, workerID string, stage model.Stage) error {
	now := r.timeProvider.Now().UTC()
	return r.upsert(ctx, "record claim", `
		INSERT INTO worker_stats (worker_id, stage, claims, first_seen)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (worker_id, stage) DO UPDATE
		SET claims = worker_stats.claims + 1
	`, workerID, stage, now)
}

// RecordOutcome increments processed or errors and accumulates processing time.
func (r *WorkerStatsRepo) RecordOutcome(ctx context.Context, workerID string, stage model.Stage, out model.WorkerOutcome) error {
	processed, failed := int64(1), int64(0)
	if out.Failed {
		processed, failed = 0, 1
	}
	now := r.timeProvider.Now().UTC()
	return r.upsert(ctx, "record outcome", `
		INSERT INTO worker_stats (worker_id, stage, processed, errors, total_processing_seconds, first_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (worker_id, stage) DO UPDATE
		SET processed = worker_stats.processed + EXCLUDED.processed,
		    errors = worker_stats.errors + EXCLUDED.errors,
		    total_processing_seconds = worker_stats.total_processing_seconds + EXCLUDED.total_processing_seconds
	`, workerID, stage, processed, failed, out.Elapsed.Seconds(), now)
}

func (r *WorkerStatsRepo) upsert(ctx context.Context, op, query, workerID string, stage model.Stage, args ...any) error {
	if strings.TrimSpace(workerID) == "" {
		return ErrWorkerIDRequired
	}
	all := append([]any{workerID, stage}, args...)
	if _, err := r.DB.ExecContext(ctx, query, all...); err != nil {
		return wrapPgError(op, err)
	}
	return nil
}

// List returns all worker rows ordered by most recent heartbeat.
func (r *WorkerStatsRepo) List(ctx context.Context) ([]model.WorkerStats, error) {
	var out []model.WorkerStats
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT worker_id, stage, claims, processed, errors, total_processing_seconds,
			       heartbeat_count, last_heartbeat, first_seen
			FROM worker_stats
			ORDER BY last_heartbeat DESC NULLS LAST, worker_id, stage`)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.WorkerStats])
		return err
	})
	if err != nil {
		return nil, wrapPgError("list worker stats", err)
	}
	if out == nil {
		out = []model.WorkerStats{}
	}
	return out, nil
}

// DeleteStale removes rows whose last heartbeat (or first_seen when none) is older than olderThan.
func (r *WorkerStatsRepo) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := r.timeProvider.Now().Add(-olderThan).UTC()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM worker_stats
		WHERE COALESCE(last_heartbeat, first_seen) < $1
	`, cutoff)
	if err != nil {
		return 0, wrapPgError("delete stale worker stats", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
