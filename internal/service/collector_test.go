package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/data/memstore"
	"github.com/target/domain-enricher/internal/domain/model"
)

// enricherFunc adapts a function to core.Enricher for one stage.
type enricherFunc struct {
	stage model.Stage
	calls atomic.Int32
	fn    func(ctx context.Context, unit model.WorkUnit) (model.Payload, []error)
}

func (e *enricherFunc) Stage() model.Stage { return e.stage }

func (e *enricherFunc) Enrich(ctx context.Context, unit model.WorkUnit) (model.Payload, []error) {
	e.calls.Add(1)
	return e.fn(ctx, unit)
}

// flakySink fails a fixed number of saves before delegating.
type flakySink struct {
	*memstore.Store
	failures int
}

func (f *flakySink) SaveStageResult(ctx context.Context, res model.StageResult) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset by peer")
	}
	return f.Store.SaveStageResult(ctx, res)
}

func newTestCollector(t *testing.T, store *memstore.Store, e *enricherFunc, cfg config.CollectorConfig, filter model.ClaimFilter) *CollectorService {
	t.Helper()
	svc, err := NewCollectorService(CollectorServiceOptions{
		Store:    store,
		Sink:     store,
		Stats:    store,
		Enricher: e,
		WorkerID: "collector-1",
		Filter:   filter,
		Config:   cfg,
	})
	require.NoError(t, err)
	return svc
}

// transitionSink keeps the tags of every stage.transition count.
type transitionSink struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (s *transitionSink) Count(name string, _ int64, tags map[string]string) {
	if name != "stage.transition" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tags)
}

func (s *transitionSink) Gauge(string, float64, map[string]string)        {}
func (s *transitionSink) Timing(string, time.Duration, map[string]string) {}

func (s *transitionSink) completed() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t["transition"] == "completed" {
			return t
		}
	}
	return nil
}

func seedDomains(t *testing.T, store *memstore.Store, recs ...model.SeedRecord) {
	t.Helper()
	for _, rec := range recs {
		ok, err := store.InsertIfAbsent(context.Background(), rec)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestCollectorStep_TimeoutStillCompletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	seedDomains(t, store, model.SeedRecord{Domain: "slow.test"})

	e := &enricherFunc{stage: model.StageCertificates, fn: func(ctx context.Context, _ model.WorkUnit) (model.Payload, []error) {
		<-ctx.Done()
		return nil, nil
	}}
	sink := &transitionSink{}
	svc, err := NewCollectorService(CollectorServiceOptions{
		Store:    store,
		Sink:     store,
		Stats:    store,
		Enricher: e,
		WorkerID: "collector-1",
		Metrics:  sink,
		Config:   config.CollectorConfig{Timeout: 20 * time.Millisecond},
	})
	require.NoError(t, err)

	processed, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	res, ok := store.Result("slow.test", model.StageCertificates)
	require.True(t, ok)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "context deadline exceeded")
	assert.IsType(t, &model.CertificatesPayload{}, res.Payload)

	st, err := store.GetStageState(ctx, "slow.test", model.StageCertificates)
	require.NoError(t, err)
	assert.True(t, st.IsDone())

	stats, err := store.ListWorkerStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Errors, "a timed-out call is a failed attempt")
	assert.EqualValues(t, 0, stats[0].Processed)

	tags := sink.completed()
	require.NotNil(t, tags)
	assert.Equal(t, "error", tags["result"])
	assert.Equal(t, "timeout", tags["error_class"])
}

func TestCollectorStep_PartialErrorsCountAsProcessed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	seedDomains(t, store, model.SeedRecord{Domain: "partial.test"})

	e := &enricherFunc{stage: model.StageLinks, fn: func(context.Context, model.WorkUnit) (model.Payload, []error) {
		return &model.LinksPayload{}, []error{errors.New("http://partial.test: connection refused")}
	}}
	svc := newTestCollector(t, store, e, config.CollectorConfig{Timeout: time.Second}, model.ClaimFilter{})

	processed, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	stats, err := store.ListWorkerStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Processed)
	assert.EqualValues(t, 0, stats[0].Errors)
}

func TestCollectorStep_RecoversPanic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	seedDomains(t, store, model.SeedRecord{Domain: "boom.test"})

	e := &enricherFunc{stage: model.StageLinks, fn: func(context.Context, model.WorkUnit) (model.Payload, []error) {
		panic("parser crashed")
	}}
	sink := &transitionSink{}
	svc, err := NewCollectorService(CollectorServiceOptions{
		Store:    store,
		Sink:     store,
		Stats:    store,
		Enricher: e,
		WorkerID: "collector-1",
		Metrics:  sink,
		Config:   config.CollectorConfig{Timeout: time.Second},
	})
	require.NoError(t, err)

	processed, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	res, ok := store.Result("boom.test", model.StageLinks)
	require.True(t, ok)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "parser crashed")

	stats, err := store.ListWorkerStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Errors)

	tags := sink.completed()
	require.NotNil(t, tags)
	assert.Equal(t, "error", tags["result"])
	assert.Equal(t, "invocation_failed", tags["error_class"])
}

func TestCollectorStep_NoWork(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	e := &enricherFunc{stage: model.StageLinks, fn: func(context.Context, model.WorkUnit) (model.Payload, []error) {
		t.Fatal("enricher must not be called without a claim")
		return nil, nil
	}}
	svc := newTestCollector(t, store, e, config.CollectorConfig{}, model.ClaimFilter{})

	processed, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestCollectorStep_CompanyFilterSkipsAnonymousDomains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	seedDomains(t, store,
		model.SeedRecord{Domain: "anon.test"},
		model.SeedRecord{Domain: "example.test", Owner: model.Owner{Titular: "Example Co", Identificacion: "B12345678"}},
	)

	var terms []string
	e := &enricherFunc{stage: model.StageCompany, fn: func(_ context.Context, unit model.WorkUnit) (model.Payload, []error) {
		terms = append(terms, unit.Owner.SearchTerm())
		return &model.CompanyPayload{SearchTerm: unit.Owner.SearchTerm()}, nil
	}}
	svc := newTestCollector(t, store, e, config.CollectorConfig{Timeout: time.Second}, model.ClaimFilter{RequireOwner: true})

	processed, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = svc.Step(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	assert.Equal(t, []string{"B12345678"}, terms)
	st, err := store.GetStageState(ctx, "anon.test", model.StageCompany)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotStarted, st.Status)
}

func TestCollectorStep_RetriesWriteWithoutReenriching(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	seedDomains(t, store, model.SeedRecord{Domain: "a.test"}, model.SeedRecord{Domain: "b.test"})

	e := &enricherFunc{stage: model.StageLinks, fn: func(_ context.Context, unit model.WorkUnit) (model.Payload, []error) {
		return &model.LinksPayload{Links: []string{unit.Domain + "/about"}, RelatedDomains: []string{}}, nil
	}}
	sink := &flakySink{Store: store, failures: 1}
	svc, err := NewCollectorService(CollectorServiceOptions{
		Store:    store,
		Sink:     sink,
		Enricher: e,
		WorkerID: "collector-1",
		Config:   config.CollectorConfig{Timeout: time.Second},
	})
	require.NoError(t, err)

	_, err = svc.Step(ctx)
	require.ErrorContains(t, err, "connection reset by peer")

	processed, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.EqualValues(t, 1, e.calls.Load(), "retained result is written, not recomputed")

	st, err := store.GetStageState(ctx, "a.test", model.StageLinks)
	require.NoError(t, err)
	assert.True(t, st.IsDone())
	st, err = store.GetStageState(ctx, "b.test", model.StageLinks)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotStarted, st.Status, "no new claim while a result is pending")
}

func TestCollectorStep_LostClaimIsNotAnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var clock atomic.Int64
	clock.Store(now.UnixNano())
	store := memstore.New(memstore.WithClock(func() time.Time { return time.Unix(0, clock.Load()).UTC() }))
	seedDomains(t, store, model.SeedRecord{Domain: "lease.test"})

	e := &enricherFunc{stage: model.StageCertificates, fn: func(context.Context, model.WorkUnit) (model.Payload, []error) {
		clock.Add(int64(time.Hour))
		_, err := store.ReclaimExpired(context.Background(), model.StageCertificates, 0)
		require.NoError(t, err)
		return &model.CertificatesPayload{}, nil
	}}
	svc := newTestCollector(t, store, e, config.CollectorConfig{Timeout: time.Second, ClaimLease: time.Minute}, model.ClaimFilter{})

	processed, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	st, err := store.GetStageState(ctx, "lease.test", model.StageCertificates)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotStarted, st.Status, "reclaimed unit stays available")
	assert.Equal(t, 1, st.ReclaimCount)
}

func TestCollectorWaitIdle_WakesOnNotification(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	e := &enricherFunc{stage: model.StageLinks}
	svc, err := NewCollectorService(CollectorServiceOptions{
		Store:    store,
		Sink:     store,
		Enricher: e,
		Notifier: notifierFunc(func(context.Context) error { return nil }),
		WorkerID: "collector-1",
		Config:   config.CollectorConfig{IdleInterval: time.Hour, ListenForWork: true},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		svc.waitIdle(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("idle wait did not return on notification")
	}
}

func TestNewCollectorService_Validation(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	e := &enricherFunc{stage: model.StageLinks}

	_, err := NewCollectorService(CollectorServiceOptions{Sink: store, Enricher: e, WorkerID: "w"})
	assert.Error(t, err)
	_, err = NewCollectorService(CollectorServiceOptions{Store: store, Sink: store, Enricher: e})
	assert.Error(t, err)
	_, err = NewCollectorService(CollectorServiceOptions{Store: store, Sink: store, Enricher: &enricherFunc{stage: "bogus"}, WorkerID: "w"})
	assert.ErrorIs(t, err, model.ErrInvalidStage)
}

type notifierFunc func(ctx context.Context) error

func (f notifierFunc) WaitForWork(ctx context.Context) error { return f(ctx) }
