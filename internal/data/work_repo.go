package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/data/pgxutil"
	"github.com/target/domain-enricher/internal/domain/model"
)

// RepoConfig holds configuration options shared by the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

func (c RepoConfig) timeProvider() TimeProvider {
	if c.TimeProvider == nil {
		return RealTimeProvider{}
	}
	return c.TimeProvider
}

func (c RepoConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// WorkRepo stores pending work and per-stage claims in Postgres.
type WorkRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var (
	_ core.StageClaimStore = (*WorkRepo)(nil)
	_ core.LeaseReclaimer  = (*WorkRepo)(nil)
)

// NewWorkRepo creates a new WorkRepo instance with the given database connection and configuration.
func NewWorkRepo(db *sql.DB, cfg RepoConfig) *WorkRepo {
	return &WorkRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger().With("component", "work_repo"),
	}
}

// The data-modifying CTEs run exactly once whether or not the outer query reads them,
// so the domain, its stage rows and its projection row appear together or not at all.
const insertIfAbsentSQL = `
  WITH ins AS (
    INSERT INTO pending_work (domain, titular, identificacion, created_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (domain) DO NOTHING
    RETURNING id
  ), stages AS (
    INSERT INTO stage_claims (work_id, stage, status, updated_at)
    SELECT ins.id, s.stage, 'not_started', $4
    FROM ins CROSS JOIN unnest($5::text[]) AS s(stage)
    RETURNING work_id
  ), projection AS (
    INSERT INTO current_state (domain, titular, identificacion, updated_at)
    SELECT $1, $2, $3, $4 FROM ins
    ON CONFLICT (domain) DO NOTHING
    RETURNING domain
  )
  SELECT count(*) FROM ins`

// InsertIfAbsent creates the domain with every stage not started. Existing domains are left untouched.
func (r *WorkRepo) InsertIfAbsent(ctx context.Context, rec model.SeedRecord) (bool, error) {
	domain := strings.TrimSpace(rec.Domain)
	if domain == "" {
		return false, ErrDomainRequired
	}

	stages := make([]string, 0, len(model.AllStages()))
	for _, s := range model.AllStages() {
		stages = append(stages, string(s))
	}

	var inserted int64
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, insertIfAbsentSQL,
			domain,
			strings.TrimSpace(rec.Owner.Titular),
			strings.TrimSpace(rec.Owner.Identificacion),
			r.timeProvider.Now().UTC(),
			stages,
		).Scan(&inserted)
	})
	if err != nil {
		return false, wrapPgError("insert pending work", err)
	}
	return inserted > 0, nil
}

// GetStageState returns the progress of one stage for a domain.
func (r *WorkRepo) GetStageState(ctx context.Context, domain string, stage model.Stage) (model.StageState, error) {
	if !stage.Valid() {
		return model.StageState{}, fmt.Errorf("%w: %q", model.ErrInvalidStage, string(stage))
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT sc.status, sc.claimed_at, sc.worker_id, sc.lease_expires_at, sc.completed_at, sc.reclaim_count
		FROM stage_claims sc
		JOIN pending_work pw ON pw.id = sc.work_id
		WHERE pw.domain = $1 AND sc.stage = $2
	`, domain, stage)

	st, err := scanStageState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StageState{}, model.ErrDomainNotFound
	}
	if err != nil {
		return model.StageState{}, wrapPgError("get stage state", err)
	}
	return st, nil
}

// GetPendingWork returns a domain's coordination record with every stage.
func (r *WorkRepo) GetPendingWork(ctx context.Context, domain string) (*model.PendingWork, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT pw.id, pw.domain, pw.titular, pw.identificacion, pw.created_at,
		       sc.stage, sc.status, sc.claimed_at, sc.worker_id, sc.lease_expires_at, sc.completed_at, sc.reclaim_count
		FROM pending_work pw
		JOIN stage_claims sc ON sc.work_id = pw.id
		WHERE pw.domain = $1
	`, domain)
	if err != nil {
		return nil, wrapPgError("get pending work", err)
	}
	defer rows.Close()

	var pw *model.PendingWork
	for rows.Next() {
		var (
			cur   model.PendingWork
			stage model.Stage
			data  stageRowData
		)
		if err := rows.Scan(
			&cur.ID, &cur.Domain, &cur.Owner.Titular, &cur.Owner.Identificacion, &cur.CreatedAt,
			&stage, &data.status, &data.claimedAt, &data.workerID, &data.leaseExpiresAt, &data.completedAt, &data.reclaimCount,
		); err != nil {
			return nil, fmt.Errorf("scan pending work: %w", err)
		}
		if pw == nil {
			cur.Stages = make(map[model.Stage]model.StageState, len(model.AllStages()))
			pw = &cur
		}
		pw.Stages[stage] = data.state()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending work: %w", err)
	}
	if pw == nil {
		return nil, model.ErrDomainNotFound
	}
	return pw, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type stageRowData struct {
	status         string
	claimedAt      sql.NullTime
	workerID       sql.NullString
	leaseExpiresAt sql.NullTime
	completedAt    sql.NullTime
	reclaimCount   int
}

func (d stageRowData) state() model.StageState {
	return model.StageState{
		Status:         model.StageStatus(d.status),
		ClaimedAt:      cloneNullableTime(d.claimedAt),
		WorkerID:       d.workerID.String,
		LeaseExpiresAt: cloneNullableTime(d.leaseExpiresAt),
		CompletedAt:    cloneNullableTime(d.completedAt),
		ReclaimCount:   d.reclaimCount,
	}
}

func scanStageState(s rowScanner) (model.StageState, error) {
	var d stageRowData
	if err := s.Scan(&d.status, &d.claimedAt, &d.workerID, &d.leaseExpiresAt, &d.completedAt, &d.reclaimCount); err != nil {
		return model.StageState{}, err
	}
	return d.state(), nil
}

// wrapPgError adds context and maps schema errors to ErrSchemaMissing.
func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%s: %w: %s", op, ErrSchemaMissing, pgErr.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
