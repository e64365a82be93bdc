package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/data/pgxutil"
	"github.com/target/domain-enricher/internal/domain/model"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxHistoryRows     = 1000
)

// ReportRepo serves the read side: projections, history, search and worker statistics.
type ReportRepo struct {
	DB    *sql.DB
	work  *WorkRepo
	stats *WorkerStatsRepo
}

var _ core.ReportRepository = (*ReportRepo)(nil)

// NewReportRepo creates a new ReportRepo.
func NewReportRepo(db *sql.DB, cfg RepoConfig) *ReportRepo {
	return &ReportRepo{
		DB:    db,
		work:  NewWorkRepo(db, cfg),
		stats: NewWorkerStatsRepo(db, cfg),
	}
}

type currentStateRow struct {
	state                                 model.CurrentState
	primary, certificates, links, company []byte
	updatedAt                             sql.NullTime
}

// GetCurrentState returns the merged projection of a domain including per-stage progress and errors.
func (r *ReportRepo) GetCurrentState(ctx context.Context, domain string) (*model.CurrentState, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, ErrDomainRequired
	}

	var row currentStateRow
	err := r.DB.QueryRowContext(ctx, `
		SELECT domain, titular, identificacion,
		       primary_result, certificates_result, links_result, company_result,
		       company_nif, company_name, updated_at
		FROM current_state
		WHERE domain = $1
	`, domain).Scan(
		&row.state.Domain, &row.state.Titular, &row.state.Identificacion,
		&row.primary, &row.certificates, &row.links, &row.company,
		&row.state.CompanyNIF, &row.state.CompanyName, &row.updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrDomainNotFound
	}
	if err != nil {
		return nil, wrapPgError("get current state", err)
	}

	state := &row.state
	state.UpdatedAt = cloneNullableTime(row.updatedAt)
	raw := map[model.Stage][]byte{
		model.StagePrimary:      row.primary,
		model.StageCertificates: row.certificates,
		model.StageLinks:        row.links,
		model.StageCompany:      row.company,
	}
	for _, stage := range model.AllStages() {
		if len(raw[stage]) == 0 {
			continue
		}
		p, derr := model.DecodePayload(stage, raw[stage])
		if derr != nil {
			return nil, derr
		}
		state.SetPayload(p)
	}

	if state.Errors, err = r.stageErrors(ctx, domain); err != nil {
		return nil, err
	}

	pw, err := r.work.GetPendingWork(ctx, domain)
	switch {
	case errors.Is(err, model.ErrDomainNotFound):
	case err != nil:
		return nil, err
	default:
		state.Stages = pw.Stages
	}
	return state, nil
}

func (r *ReportRepo) stageErrors(ctx context.Context, domain string) (map[model.Stage][]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT stage, errors FROM stage_results
		WHERE domain = $1 AND jsonb_array_length(errors) > 0
	`, domain)
	if err != nil {
		return nil, wrapPgError("get stage errors", err)
	}
	defer rows.Close()

	var out map[model.Stage][]string
	for rows.Next() {
		var (
			stage model.Stage
			raw   []byte
		)
		if err := rows.Scan(&stage, &raw); err != nil {
			return nil, fmt.Errorf("scan stage errors: %w", err)
		}
		var errs []string
		if err := json.Unmarshal(raw, &errs); err != nil {
			return nil, fmt.Errorf("decode stage errors: %w", err)
		}
		if out == nil {
			out = make(map[model.Stage][]string)
		}
		out[stage] = errs
	}
	return out, rows.Err()
}

// GetHistory returns primary snapshots within the range, newest first.
func (r *ReportRepo) GetHistory(ctx context.Context, domain string, rng model.DateRange) ([]model.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, domain, recorded_at, snapshot, errors
		FROM history
		WHERE domain = $1
		  AND ($2::timestamptz IS NULL OR recorded_at >= $2)
		  AND ($3::timestamptz IS NULL OR recorded_at <= $3)
		ORDER BY recorded_at DESC
		LIMIT $4
	`, domain, nullableTime(rng.From), nullableTime(rng.To), maxHistoryRows)
	if err != nil {
		return nil, wrapPgError("get history", err)
	}
	defer rows.Close()

	entries := make([]model.HistoryEntry, 0)
	for rows.Next() {
		var (
			e             model.HistoryEntry
			snap, errsRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.Domain, &e.RecordedAt, &snap, &errsRaw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(snap, &e.Snapshot); err != nil {
			return nil, fmt.Errorf("decode history snapshot: %w", err)
		}
		if err := json.Unmarshal(errsRaw, &e.Errors); err != nil {
			return nil, fmt.Errorf("decode history errors: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Search matches a case-insensitive substring against domain, registrant and company identity.
func (r *ReportRepo) Search(ctx context.Context, params core.SearchParams) ([]model.DomainSummary, error) {
	q := strings.TrimSpace(params.Query)
	if q == "" {
		return []model.DomainSummary{}, nil
	}
	pattern := "%" + escapeLike(q) + "%"
	limit := clampLimit(params.Limit)

	return r.collectSummaries(ctx, `
		SELECT domain, titular, identificacion, company_nif, company_name
		FROM current_state
		WHERE domain ILIKE $1 ESCAPE '\'
		   OR titular ILIKE $1 ESCAPE '\'
		   OR company_name ILIKE $1 ESCAPE '\'
		   OR company_nif ILIKE $1 ESCAPE '\'
		ORDER BY domain
		LIMIT $2`, pattern, limit)
}

// ListByCompanyID returns domains whose company NIF or seed identifier equals identifier.
func (r *ReportRepo) ListByCompanyID(ctx context.Context, identifier string) ([]model.DomainSummary, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return []model.DomainSummary{}, nil
	}
	return r.collectSummaries(ctx, `
		SELECT domain, titular, identificacion, company_nif, company_name
		FROM current_state
		WHERE company_nif = $1 OR identificacion = $1
		ORDER BY domain`, id)
}

func (r *ReportRepo) collectSummaries(ctx context.Context, query string, args ...any) ([]model.DomainSummary, error) {
	var out []model.DomainSummary
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.DomainSummary])
		return err
	})
	if err != nil {
		return nil, wrapPgError("list domains", err)
	}
	if out == nil {
		out = []model.DomainSummary{}
	}
	return out, nil
}

// ListWorkerStats returns every worker row.
func (r *ReportRepo) ListWorkerStats(ctx context.Context) ([]model.WorkerStats, error) {
	return r.stats.List(ctx)
}

// Backlog returns per-stage status counts.
func (r *ReportRepo) Backlog(ctx context.Context) ([]model.StageBacklog, error) {
	return r.work.Backlog(ctx)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
