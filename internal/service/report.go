package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

const (
	// DefaultHistoryWindow is used when a history query has no lower bound.
	DefaultHistoryWindow = 30 * 24 * time.Hour
	// DefaultSearchLimit applies when the caller gives no limit.
	DefaultSearchLimit = 20
	// MaxSearchLimit caps search results.
	MaxSearchLimit = 100
)

var (
	// ErrQueryRequired is returned for blank search terms and identifiers.
	ErrQueryRequired = errors.New("query is required")
	// ErrInvalidRange is returned when a history range ends before it starts.
	ErrInvalidRange = errors.New("invalid range")
)

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	Repo   core.ReportRepository // Required
	Logger *slog.Logger
	Now    func() time.Time
}

// ReportService serves the read side: projections, history, search and worker stats.
type ReportService struct {
	repo   core.ReportRepository
	logger *slog.Logger
	now    func() time.Time
}

// DomainHistory is the history of a domain with its trend points, oldest first.
type DomainHistory struct {
	Domain  string               `json:"domain"`
	From    time.Time            `json:"from"`
	To      time.Time            `json:"to"`
	Entries []model.HistoryEntry `json:"entries"`
	Trend   []model.TrendPoint   `json:"trend"`
}

// NewReportService constructs a ReportService.
func NewReportService(opts ReportServiceOptions) (*ReportService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReportRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ReportService{repo: opts.Repo, logger: logger.With("component", "report_service"), now: now}, nil
}

// GetCurrentState returns the merged projection of a domain.
func (s *ReportService) GetCurrentState(ctx context.Context, domain string) (*model.CurrentState, error) {
	d := normalizeDomain(domain)
	if d == "" {
		return nil, ErrQueryRequired
	}
	return s.repo.GetCurrentState(ctx, d)
}

// GetHistory returns history entries in the range. A zero From defaults to the last 30 days.
func (s *ReportService) GetHistory(ctx context.Context, domain string, rng model.DateRange) (*DomainHistory, error) {
	d := normalizeDomain(domain)
	if d == "" {
		return nil, ErrQueryRequired
	}
	if rng.To.IsZero() {
		rng.To = s.now().UTC()
	}
	if rng.From.IsZero() {
		rng.From = rng.To.Add(-DefaultHistoryWindow)
	}
	if rng.From.After(rng.To) {
		return nil, fmt.Errorf("%w: from %s is after to %s", ErrInvalidRange, rng.From.Format(time.RFC3339), rng.To.Format(time.RFC3339))
	}

	entries, err := s.repo.GetHistory(ctx, d, rng)
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", d, err)
	}
	slices.SortStableFunc(entries, func(a, b model.HistoryEntry) int { return a.RecordedAt.Compare(b.RecordedAt) })

	return &DomainHistory{
		Domain:  d,
		From:    rng.From,
		To:      rng.To,
		Entries: entries,
		Trend:   Trend(entries),
	}, nil
}

// Trend condenses history entries into trend points, preserving order.
func Trend(entries []model.HistoryEntry) []model.TrendPoint {
	out := make([]model.TrendPoint, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.TrendPoint{
			RecordedAt:     e.RecordedAt,
			DNSRecordTypes: len(e.Snapshot.DNS),
			DNSRecords:     e.Snapshot.DNS.Count(),
			Subdomains:     len(e.Snapshot.Subdomains),
			HadErrors:      len(e.Errors) > 0,
		})
	}
	return out
}

// Search matches domains by domain, titular, company name or company NIF.
// The limit defaults to 20 and is capped at 100.
func (s *ReportService) Search(ctx context.Context, query string, limit int) ([]model.DomainSummary, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrQueryRequired
	}
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}
	return s.repo.Search(ctx, core.SearchParams{Query: q, Limit: limit})
}

// GetByCompanyID lists domains whose company NIF or seed identifier matches.
func (s *ReportService) GetByCompanyID(ctx context.Context, identifier string) ([]model.DomainSummary, error) {
	id := strings.Join(strings.FieldsFunc(identifier, isIdentifierSeparator), "")
	if id == "" {
		return nil, ErrQueryRequired
	}
	return s.repo.ListByCompanyID(ctx, id)
}

// GetWorkerStats lists every worker's counters.
func (s *ReportService) GetWorkerStats(ctx context.Context) ([]model.WorkerStats, error) {
	return s.repo.ListWorkerStats(ctx)
}

// Backlog counts units per status for each stage.
func (s *ReportService) Backlog(ctx context.Context) ([]model.StageBacklog, error) {
	return s.repo.Backlog(ctx)
}

func normalizeDomain(d string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
}
