package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/service"
)

// ReportHandlers serves the read API.
type ReportHandlers struct {
	Svc    *service.ReportService
	Logger *slog.Logger
}

// CurrentState handles GET /api/domains/{domain}.
func (h *ReportHandlers) CurrentState(w http.ResponseWriter, r *http.Request) {
	state, err := h.Svc.GetCurrentState(r.Context(), r.PathValue("domain"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// History handles GET /api/domains/{domain}/history?from=&to=.
func (h *ReportHandlers) History(w http.ResponseWriter, r *http.Request) {
	rng, err := parseDateRange(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_range", Err: err})
		return
	}
	hist, err := h.Svc.GetHistory(r.Context(), r.PathValue("domain"), rng)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, hist)
}

// Search handles GET /api/search?q=&limit=.
func (h *ReportHandlers) Search(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_limit", Err: fmt.Errorf("limit must be an integer: %q", raw)})
			return
		}
		limit = n
	}
	results, err := h.Svc.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"results": nonNil(results), "count": len(results)})
}

// CompanyDomains handles GET /api/companies/{id}/domains.
func (h *ReportHandlers) CompanyDomains(w http.ResponseWriter, r *http.Request) {
	results, err := h.Svc.GetByCompanyID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"domains": nonNil(results), "count": len(results)})
}

// Workers handles GET /api/workers.
func (h *ReportHandlers) Workers(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.GetWorkerStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	type workerView struct {
		model.WorkerStats
		AverageSeconds float64 `json:"average_seconds"`
	}
	out := make([]workerView, 0, len(stats))
	for _, s := range stats {
		out = append(out, workerView{WorkerStats: s, AverageSeconds: s.AverageProcessingSeconds()})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"workers": out})
}

// Stages handles GET /api/stages.
func (h *ReportHandlers) Stages(w http.ResponseWriter, r *http.Request) {
	backlog, err := h.Svc.Backlog(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"stages": nonNil(backlog)})
}

func (h *ReportHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrDomainNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case errors.Is(err, service.ErrQueryRequired):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "query_required", Err: err})
	case errors.Is(err, service.ErrInvalidRange):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_range", Err: err})
	default:
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "read api request failed", "path", r.URL.Path, "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: errors.New("internal error")})
	}
}

// parseDateRange reads from/to as RFC 3339 timestamps or YYYY-MM-DD dates.
// A date-only "to" covers the whole day.
func parseDateRange(r *http.Request) (model.DateRange, error) {
	var rng model.DateRange
	q := r.URL.Query()
	from, _, err := parseTimeParam(q.Get("from"))
	if err != nil {
		return rng, fmt.Errorf("from: %w", err)
	}
	to, dateOnly, err := parseTimeParam(q.Get("to"))
	if err != nil {
		return rng, fmt.Errorf("to: %w", err)
	}
	if dateOnly {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	rng.From, rng.To = from, to
	return rng, nil
}

func parseTimeParam(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, true, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
