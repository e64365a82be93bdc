package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/domain-enricher/internal/data/pgxutil"
	"github.com/target/domain-enricher/internal/domain/model"
)

// eligibleFilterSQL applies model.ClaimFilter; $2 is RequireOwner.
const eligibleFilterSQL = `(NOT $2::boolean OR pw.titular <> '' OR pw.identificacion <> '')`

// SQL used by ClaimOne to atomically claim the oldest eligible unit of a stage.
const claimOneSQL = `
  WITH next AS (
    SELECT sc.work_id
    FROM stage_claims sc
    JOIN pending_work pw ON pw.id = sc.work_id
    WHERE sc.stage = $1 AND sc.status = 'not_started'
      AND ` + eligibleFilterSQL + `
    ORDER BY sc.work_id ASC
    LIMIT 1
    FOR UPDATE OF sc SKIP LOCKED
  )
  UPDATE stage_claims sc
  SET
    status = 'claimed',
    claimed_at = $3,
    worker_id = $4,
    lease_expires_at = $5,
    completed_at = NULL,
    updated_at = $3
  FROM next
  JOIN pending_work pw ON pw.id = next.work_id
  WHERE sc.work_id = next.work_id AND sc.stage = $1 AND sc.status = 'not_started'
  RETURNING pw.id, pw.domain, pw.titular, pw.identificacion, sc.claimed_at`

// ClaimOne claims the oldest eligible not-started unit for the request's stage.
func (r *WorkRepo) ClaimOne(ctx context.Context, req model.ClaimRequest) (*model.ClaimHandle, error) {
	if !req.Stage.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidStage, string(req.Stage))
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		return nil, ErrWorkerIDRequired
	}

	var handle *model.ClaimHandle
	err := pgxutil.WithTx(ctx, r.DB, pgxutil.ReadCommitted, func(tx pgx.Tx) error {
		now := r.timeProvider.Now().UTC()
		var lease *time.Time
		if req.Lease > 0 {
			exp := now.Add(req.Lease)
			lease = &exp
		}

		h := &model.ClaimHandle{Stage: req.Stage, WorkerID: req.WorkerID}
		qerr := tx.QueryRow(ctx, claimOneSQL,
			req.Stage, req.Filter.RequireOwner, now, req.WorkerID, lease,
		).Scan(&h.Unit.ID, &h.Unit.Domain, &h.Unit.Owner.Titular, &h.Unit.Owner.Identificacion, &h.ClaimedAt)
		if errors.Is(qerr, pgx.ErrNoRows) {
			return model.ErrNoWorkAvailable
		}
		if qerr != nil {
			return wrapPgError("claim unit", qerr)
		}
		handle = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// Complete marks the handle's stage done if the handle's worker still holds it.
func (r *WorkRepo) Complete(ctx context.Context, h *model.ClaimHandle, info model.CompletionInfo) (bool, error) {
	if h == nil {
		return false, ErrHandleRequired
	}
	now := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE stage_claims
		SET status = 'done',
		    completed_at = $4,
		    processing_ms = $5,
		    lease_expires_at = NULL,
		    updated_at = $4
		WHERE work_id = $1 AND stage = $2 AND status = 'claimed' AND worker_id = $3
	`, h.Unit.ID, h.Stage, h.WorkerID, now, info.Elapsed.Milliseconds())
	if err != nil {
		return false, wrapPgError("complete stage", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return n > 0, nil
}

// CountEligible returns how many units the stage could still claim.
func (r *WorkRepo) CountEligible(ctx context.Context, stage model.Stage, filter model.ClaimFilter) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT count(*)
		FROM stage_claims sc
		JOIN pending_work pw ON pw.id = sc.work_id
		WHERE sc.stage = $1 AND sc.status = 'not_started'
		  AND `+eligibleFilterSQL, stage, filter.RequireOwner).Scan(&n)
	if err != nil {
		return 0, wrapPgError("count eligible", err)
	}
	return n, nil
}

// HasInFlight reports whether the worker still holds a claim for the stage taken at or after since.
func (r *WorkRepo) HasInFlight(ctx context.Context, stage model.Stage, workerID string, since time.Time) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM stage_claims
			WHERE stage = $1 AND status = 'claimed' AND worker_id = $2 AND claimed_at >= $3
		)`, stage, workerID, since).Scan(&exists)
	if err != nil {
		return false, wrapPgError("check in-flight claims", err)
	}
	return exists, nil
}

// Backlog returns per-stage status counts.
func (r *WorkRepo) Backlog(ctx context.Context) ([]model.StageBacklog, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT stage,
		       count(*) FILTER (WHERE status = 'not_started') AS not_started,
		       count(*) FILTER (WHERE status = 'claimed')     AS claimed,
		       count(*) FILTER (WHERE status = 'done')        AS done
		FROM stage_claims
		GROUP BY stage`)
	if err != nil {
		return nil, wrapPgError("stage backlog", err)
	}
	defer rows.Close()

	byStage := make(map[model.Stage]model.StageBacklog, len(model.AllStages()))
	for rows.Next() {
		var b model.StageBacklog
		if err := rows.Scan(&b.Stage, &b.NotStarted, &b.Claimed, &b.Done); err != nil {
			return nil, fmt.Errorf("scan backlog: %w", err)
		}
		byStage[b.Stage] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backlog: %w", err)
	}

	out := make([]model.StageBacklog, 0, len(model.AllStages()))
	for _, s := range model.AllStages() {
		b := byStage[s]
		b.Stage = s
		out = append(out, b)
	}
	return out, nil
}

// Advisory lock namespace for ReclaimExpired so concurrent reapers skip a stage someone else is sweeping.
const advisoryLockReclaimMajor int64 = 2001

func advisoryLockReclaimMinor(stage model.Stage) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(stage))
	return int64(h.Sum32() & uint32(math.MaxInt32))
}

// ReclaimExpired returns claims whose lease has expired to not started.
func (r *WorkRepo) ReclaimExpired(ctx context.Context, stage model.Stage, batchSize int) (int64, error) {
	if !stage.Valid() {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidStage, string(stage))
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	var reclaimed int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked bool
		if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
			advisoryLockReclaimMajor, advisoryLockReclaimMinor(stage)).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			return nil
		}

		now := r.timeProvider.Now().UTC()
		res, err := tx.ExecContext(ctx, `
				UPDATE stage_claims sc
				SET status = 'not_started',
				    claimed_at = NULL,
				    worker_id = NULL,
				    lease_expires_at = NULL,
				    reclaim_count = sc.reclaim_count + 1,
				    updated_at = $2
				FROM (
				  SELECT work_id FROM stage_claims
				  WHERE stage = $1 AND status = 'claimed'
				    AND lease_expires_at IS NOT NULL
				    AND lease_expires_at < $2
				  ORDER BY lease_expires_at
				  LIMIT $3
				  FOR UPDATE SKIP LOCKED
				) expired
				WHERE sc.work_id = expired.work_id AND sc.stage = $1
			`, stage, now, batchSize)
		if err != nil {
			return wrapPgError("reclaim expired", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		reclaimed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		r.logger.InfoContext(ctx, "reclaimed expired claims", "stage", stage, "count", reclaimed)
	}
	return reclaimed, nil
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
