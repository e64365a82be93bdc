package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

var (
	errDomainRequired   = errors.New("domain is required")
	errWorkerIDRequired = errors.New("worker_id is required")
	errHandleRequired   = errors.New("claim handle is required")
	errPayloadRequired  = errors.New("payload is required")
)

// Heartbeat updates last_heartbeat and heartbeat_count.
func (s *Store) Heartbeat(_ context.Context, workerID string, stage model.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.worker(workerID, stage)
	now := s.now().UTC()
	w.HeartbeatCount++
	w.LastHeartbeat = &now
	return nil
}

// RecordClaim increments the claim counter.
func (s *Store) RecordClaim(_ context.Context, workerID string, stage model.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.worker(workerID, stage).Claims++
	return nil
}

// RecordOutcome increments processed or errors and accumulates time.
func (s *Store) RecordOutcome(_ context.Context, workerID string, stage model.Stage, out model.WorkerOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.worker(workerID, stage)
	if out.Failed {
		w.Errors++
	} else {
		w.Processed++
	}
	w.TotalProcessingSeconds += out.Elapsed.Seconds()
	return nil
}

// DeleteStale drops workers that have not been seen within olderThan.
func (s *Store) DeleteStale(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var n int64
	for k, w := range s.workers {
		last := w.FirstSeen
		if w.LastHeartbeat != nil {
			last = *w.LastHeartbeat
		}
		if last.Before(cutoff) {
			delete(s.workers, k)
			n++
		}
	}
	return n, nil
}

// worker returns the stats row, creating it with first_seen on first use. Callers hold mu.
func (s *Store) worker(id string, stage model.Stage) *model.WorkerStats {
	k := workerKey{id: id, stage: stage}
	w, ok := s.workers[k]
	if !ok {
		w = &model.WorkerStats{WorkerID: id, Stage: stage, FirstSeen: s.now().UTC()}
		s.workers[k] = w
	}
	return w
}

// GetCurrentState builds the projection from stored results.
func (s *Store) GetCurrentState(_ context.Context, domain string) (*model.CurrentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byName[strings.TrimSpace(domain)]
	if !ok {
		return nil, model.ErrDomainNotFound
	}
	state := &model.CurrentState{
		Domain:         r.Domain,
		Titular:        r.Owner.Titular,
		Identificacion: r.Owner.Identificacion,
		Stages:         cloneStages(r.Stages),
	}
	for _, stage := range model.AllStages() {
		res, ok := r.results[stage]
		if !ok {
			continue
		}
		state.SetPayload(res.Payload)
		if len(res.Errors) > 0 {
			if state.Errors == nil {
				state.Errors = make(map[model.Stage][]string)
			}
			state.Errors[stage] = res.Errors
		}
		at := res.AnalyzedAt
		if state.UpdatedAt == nil || at.After(*state.UpdatedAt) {
			state.UpdatedAt = &at
		}
	}
	state.CompanyNIF, state.CompanyName = companyKeys(state.Company)
	return state, nil
}

// GetHistory returns entries for the domain within the range, newest first.
func (s *Store) GetHistory(_ context.Context, domain string, rng model.DateRange) ([]model.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.HistoryEntry, 0)
	for _, e := range s.history {
		if e.Domain != domain {
			continue
		}
		if !rng.From.IsZero() && e.RecordedAt.Before(rng.From) {
			continue
		}
		if !rng.To.IsZero() && e.RecordedAt.After(rng.To) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

// Search matches a case-insensitive substring.
func (s *Store) Search(_ context.Context, params core.SearchParams) ([]model.DomainSummary, error) {
	q := strings.ToLower(strings.TrimSpace(params.Query))
	out := make([]model.DomainSummary, 0)
	if q == "" {
		return out, nil
	}
	for _, sum := range s.summaries() {
		fields := []string{sum.Domain, sum.Titular, sum.CompanyName, sum.CompanyNIF}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, sum)
				break
			}
		}
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

// ListByCompanyID matches the company NIF or the seed identifier.
func (s *Store) ListByCompanyID(_ context.Context, identifier string) ([]model.DomainSummary, error) {
	id := strings.TrimSpace(identifier)
	out := make([]model.DomainSummary, 0)
	if id == "" {
		return out, nil
	}
	for _, sum := range s.summaries() {
		if sum.CompanyNIF == id || sum.Identificacion == id {
			out = append(out, sum)
		}
	}
	return out, nil
}

func (s *Store) summaries() []model.DomainSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DomainSummary, 0, len(s.order))
	for _, r := range s.order {
		sum := model.DomainSummary{Domain: r.Domain, Titular: r.Owner.Titular, Identificacion: r.Owner.Identificacion}
		if res, ok := r.results[model.StageCompany]; ok {
			c, _ := res.Payload.(*model.CompanyPayload)
			sum.CompanyNIF, sum.CompanyName = companyKeys(c)
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// ListWorkerStats returns a copy of every worker row.
func (s *Store) ListWorkerStats(_ context.Context) ([]model.WorkerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.WorkerStats, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkerID != out[j].WorkerID {
			return out[i].WorkerID < out[j].WorkerID
		}
		return out[i].Stage < out[j].Stage
	})
	return out, nil
}

// Backlog counts units per status and stage.
func (s *Store) Backlog(_ context.Context) ([]model.StageBacklog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.StageBacklog, 0, len(model.AllStages()))
	for _, stage := range model.AllStages() {
		b := model.StageBacklog{Stage: stage}
		for _, r := range s.order {
			switch r.Stages[stage].Status {
			case model.StatusNotStarted:
				b.NotStarted++
			case model.StatusClaimed:
				b.Claimed++
			case model.StatusDone:
				b.Done++
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func companyKeys(c *model.CompanyPayload) (string, string) {
	if c == nil || c.Company == nil {
		return "", ""
	}
	return c.Company.NIF, c.Company.Name
}
