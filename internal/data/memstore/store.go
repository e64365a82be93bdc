// Package memstore is an in-process implementation of the work, result and report ports.
// A single mutex makes every operation atomic, matching the per-row atomicity of the Postgres store.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

type workRecord struct {
	model.PendingWork
	results map[model.Stage]model.StageResult
}

// Store holds all state in memory.
type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	nextID  int64
	byName  map[string]*workRecord
	order   []*workRecord
	history []model.HistoryEntry
	workers map[workerKey]*model.WorkerStats
}

type workerKey struct {
	id    string
	stage model.Stage
}

var (
	_ core.StageClaimStore     = (*Store)(nil)
	_ core.LeaseReclaimer      = (*Store)(nil)
	_ core.ResultSink          = (*Store)(nil)
	_ core.WorkerStatsRecorder = (*Store)(nil)
	_ core.WorkerStatsPruner   = (*Store)(nil)
	_ core.ReportRepository    = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		byName:  make(map[string]*workRecord),
		workers: make(map[workerKey]*model.WorkerStats),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertIfAbsent creates the domain with every stage not started.
func (s *Store) InsertIfAbsent(_ context.Context, rec model.SeedRecord) (bool, error) {
	domain := strings.TrimSpace(rec.Domain)
	if domain == "" {
		return false, errDomainRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[domain]; ok {
		return false, nil
	}
	s.nextID++
	stages := make(map[model.Stage]model.StageState, len(model.AllStages()))
	for _, st := range model.AllStages() {
		stages[st] = model.NotStarted()
	}
	r := &workRecord{
		PendingWork: model.PendingWork{
			ID:        s.nextID,
			Domain:    domain,
			Owner:     model.Owner{Titular: strings.TrimSpace(rec.Owner.Titular), Identificacion: strings.TrimSpace(rec.Owner.Identificacion)},
			Stages:    stages,
			CreatedAt: s.now().UTC(),
		},
		results: make(map[model.Stage]model.StageResult),
	}
	s.byName[domain] = r
	s.order = append(s.order, r)
	return true, nil
}

// GetStageState returns a copy of one stage's state.
func (s *Store) GetStageState(_ context.Context, domain string, stage model.Stage) (model.StageState, error) {
	if !stage.Valid() {
		return model.StageState{}, model.ErrInvalidStage
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byName[domain]
	if !ok {
		return model.StageState{}, model.ErrDomainNotFound
	}
	return r.Stages[stage], nil
}

// GetPendingWork returns a copy of a domain's coordination record.
func (s *Store) GetPendingWork(_ context.Context, domain string) (*model.PendingWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byName[domain]
	if !ok {
		return nil, model.ErrDomainNotFound
	}
	cp := r.PendingWork
	cp.Stages = cloneStages(r.Stages)
	return &cp, nil
}

// ClaimOne claims the oldest eligible unit.
func (s *Store) ClaimOne(_ context.Context, req model.ClaimRequest) (*model.ClaimHandle, error) {
	if !req.Stage.Valid() {
		return nil, model.ErrInvalidStage
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		return nil, errWorkerIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.order {
		st := r.Stages[req.Stage]
		if st.Status != model.StatusNotStarted || !req.Filter.Matches(r.Owner) {
			continue
		}
		now := s.now().UTC()
		next := model.StageState{
			Status:       model.StatusClaimed,
			ClaimedAt:    &now,
			WorkerID:     req.WorkerID,
			ReclaimCount: st.ReclaimCount,
		}
		if req.Lease > 0 {
			exp := now.Add(req.Lease)
			next.LeaseExpiresAt = &exp
		}
		r.Stages[req.Stage] = next
		return &model.ClaimHandle{
			Unit:      model.WorkUnit{ID: r.ID, Domain: r.Domain, Owner: r.Owner},
			Stage:     req.Stage,
			WorkerID:  req.WorkerID,
			ClaimedAt: now,
		}, nil
	}
	return nil, model.ErrNoWorkAvailable
}

// Complete marks the stage done if the handle's worker still holds it.
func (s *Store) Complete(_ context.Context, h *model.ClaimHandle, _ model.CompletionInfo) (bool, error) {
	if h == nil {
		return false, errHandleRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byName[h.Unit.Domain]
	if !ok {
		return false, nil
	}
	st := r.Stages[h.Stage]
	if st.Status != model.StatusClaimed || st.WorkerID != h.WorkerID {
		return false, nil
	}
	now := s.now().UTC()
	st.Status = model.StatusDone
	st.CompletedAt = &now
	st.LeaseExpiresAt = nil
	r.Stages[h.Stage] = st
	return true, nil
}

// CountEligible counts not-started units that pass the filter.
func (s *Store) CountEligible(_ context.Context, stage model.Stage, filter model.ClaimFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.order {
		if r.Stages[stage].Status == model.StatusNotStarted && filter.Matches(r.Owner) {
			n++
		}
	}
	return n, nil
}

// HasInFlight reports whether the worker holds a claim for the stage taken at or after since.
func (s *Store) HasInFlight(_ context.Context, stage model.Stage, workerID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.order {
		st := r.Stages[stage]
		if st.Status != model.StatusClaimed || st.WorkerID != workerID || st.ClaimedAt == nil {
			continue
		}
		if !st.ClaimedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// ReclaimExpired returns expired claims to not started.
func (s *Store) ReclaimExpired(_ context.Context, stage model.Stage, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for _, r := range s.order {
		if batchSize > 0 && n >= int64(batchSize) {
			break
		}
		st := r.Stages[stage]
		if !st.LeaseExpired(now) {
			continue
		}
		r.Stages[stage] = model.StageState{Status: model.StatusNotStarted, ReclaimCount: st.ReclaimCount + 1}
		n++
	}
	return n, nil
}

// SaveStageResult stores the latest result for the domain and stage.
func (s *Store) SaveStageResult(_ context.Context, res model.StageResult) error {
	if res.Payload == nil {
		return errPayloadRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byName[res.Domain]
	if !ok {
		return model.ErrDomainNotFound
	}
	res.Errors = slices.Clone(res.Errors)
	r.results[res.Stage] = res
	return nil
}

// AppendHistory appends a snapshot.
func (s *Store) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = int64(len(s.history) + 1)
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = s.now().UTC()
	}
	s.history = append(s.history, entry)
	return nil
}

// Result returns the stored result of a stage, if any.
func (s *Store) Result(domain string, stage model.Stage) (model.StageResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byName[domain]
	if !ok {
		return model.StageResult{}, false
	}
	res, ok := r.results[stage]
	return res, ok
}

func cloneStages(in map[model.Stage]model.StageState) map[model.Stage]model.StageState {
	out := make(map[model.Stage]model.StageState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
