package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

// ResultRepo persists stage results, the current-state projection and primary history.
type ResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.ResultSink = (*ResultRepo)(nil)

// NewResultRepo creates a new ResultRepo.
func NewResultRepo(db *sql.DB, cfg RepoConfig) *ResultRepo {
	return &ResultRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger().With("component", "result_repo"),
	}
}

// projectionColumns maps a stage to its current_state column. Column names are never taken from input.
var projectionColumns = map[model.Stage]string{
	model.StagePrimary:      "primary_result",
	model.StageCertificates: "certificates_result",
	model.StageLinks:        "links_result",
	model.StageCompany:      "company_result",
}

// SaveStageResult upserts the stage result and then the stage's slot in the projection.
// The two writes are independent; a reader may briefly see the result without the projection update.
func (r *ResultRepo) SaveStageResult(ctx context.Context, res model.StageResult) error {
	if strings.TrimSpace(res.Domain) == "" {
		return ErrDomainRequired
	}
	if res.Payload == nil {
		return ErrPayloadRequired
	}
	col, ok := projectionColumns[res.Stage]
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrInvalidStage, string(res.Stage))
	}

	payload, err := json.Marshal(res.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", res.Stage, err)
	}
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	analyzedAt := res.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = r.timeProvider.Now()
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO stage_results (domain, stage, payload, errors, analyzed_at, worker_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain, stage) DO UPDATE
		SET payload = EXCLUDED.payload,
		    errors = EXCLUDED.errors,
		    analyzed_at = EXCLUDED.analyzed_at,
		    worker_id = EXCLUDED.worker_id
	`, res.Domain, res.Stage, payload, errJSON, analyzedAt.UTC(), res.WorkerID); err != nil {
		return wrapPgError("upsert stage result", err)
	}

	nif, name := companyKeys(res.Payload)
	query := `
		INSERT INTO current_state (domain, ` + col + `, company_nif, company_name, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain) DO UPDATE
		SET ` + col + ` = EXCLUDED.` + col + `,
		    updated_at = EXCLUDED.updated_at`
	if res.Stage == model.StageCompany {
		query += `,
		    company_nif = EXCLUDED.company_nif,
		    company_name = EXCLUDED.company_name`
	}
	if _, err := r.DB.ExecContext(ctx, query, res.Domain, payload, nif, name, analyzedAt.UTC()); err != nil {
		return wrapPgError("update current state", err)
	}
	return nil
}

func companyKeys(p model.Payload) (string, string) {
	c, ok := p.(*model.CompanyPayload)
	if !ok || c.Company == nil {
		return "", ""
	}
	return strings.TrimSpace(c.Company.NIF), strings.TrimSpace(c.Company.Name)
}

// AppendHistory inserts a snapshot. History rows are never updated.
func (r *ResultRepo) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	if strings.TrimSpace(entry.Domain) == "" {
		return ErrDomainRequired
	}
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal history snapshot: %w", err)
	}
	errs := entry.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = r.timeProvider.Now()
	}

	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO history (domain, recorded_at, snapshot, errors)
		VALUES ($1, $2, $3, $4)
	`, entry.Domain, recordedAt.UTC(), snapshot, errJSON); err != nil {
		return wrapPgError("append history", err)
	}
	return nil
}
