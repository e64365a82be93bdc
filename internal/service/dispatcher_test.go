package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/data/memstore"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/enrich/primary"
	"github.com/target/domain-enricher/internal/enrich/resolver"
	"github.com/target/domain-enricher/internal/mocks"
)

func testDispatcherConfig() config.DispatcherConfig {
	return config.DispatcherConfig{
		ClaimedDelay: time.Second,
		BacklogDelay: 3 * time.Second,
		IdleDelay:    10 * time.Second,
		BusyDelay:    5 * time.Second,
		ErrorDelay:   5 * time.Second,
		MaxRetries:   2,
		RetryDelay:   60 * time.Second,
		Timeout:      time.Minute,
	}
}

type dispatcherMocks struct {
	store    *mocks.MockStageClaimStore
	sink     *mocks.MockResultSink
	enricher *mocks.MockEnricher
}

func newMockedDispatcher(t *testing.T) (*DispatcherService, dispatcherMocks, *[]time.Duration) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := dispatcherMocks{
		store:    mocks.NewMockStageClaimStore(ctrl),
		sink:     mocks.NewMockResultSink(ctrl),
		enricher: mocks.NewMockEnricher(ctrl),
	}
	m.enricher.EXPECT().Stage().Return(model.StagePrimary).AnyTimes()

	var slept []time.Duration
	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Store:    m.store,
		Sink:     m.sink,
		Enricher: m.enricher,
		WorkerID: "w1",
		Config:   testDispatcherConfig(),
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	require.NoError(t, err)
	return svc, m, &slept
}

func primaryHandle(domain string) *model.ClaimHandle {
	return &model.ClaimHandle{
		Unit:     model.WorkUnit{ID: 1, Domain: domain},
		Stage:    model.StagePrimary,
		WorkerID: "w1",
	}
}

func TestDispatcherTick_AdaptiveDelays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no eligible units waits 10s", func(t *testing.T) {
		t.Parallel()
		svc, m, _ := newMockedDispatcher(t)
		m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil)
		m.store.EXPECT().ClaimOne(gomock.Any(), gomock.Any()).Return(nil, model.ErrNoWorkAvailable)
		m.store.EXPECT().CountEligible(gomock.Any(), model.StagePrimary, model.ClaimFilter{}).Return(int64(0), nil)

		res := svc.Tick(ctx)
		assert.Equal(t, TickIdle, res.Outcome)
		assert.Equal(t, 10*time.Second, res.NextDelay)
	})

	t.Run("contended backlog waits 3s", func(t *testing.T) {
		t.Parallel()
		svc, m, _ := newMockedDispatcher(t)
		m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil)
		m.store.EXPECT().ClaimOne(gomock.Any(), gomock.Any()).Return(nil, model.ErrNoWorkAvailable)
		m.store.EXPECT().CountEligible(gomock.Any(), model.StagePrimary, model.ClaimFilter{}).Return(int64(4), nil)

		res := svc.Tick(ctx)
		assert.Equal(t, TickBacklog, res.Outcome)
		assert.Equal(t, 3*time.Second, res.NextDelay)
		assert.EqualValues(t, 4, res.Backlog)
	})

	t.Run("processed unit waits 1s", func(t *testing.T) {
		t.Parallel()
		svc, m, _ := newMockedDispatcher(t)
		h := primaryHandle("a.test")
		payload := &model.PrimaryPayload{Domain: "a.test", DNS: model.DNSRecords{model.RecordA: {{Value: "192.0.2.1"}}}}

		gomock.InOrder(
			m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil),
			m.store.EXPECT().ClaimOne(gomock.Any(), model.ClaimRequest{Stage: model.StagePrimary, WorkerID: "w1"}).Return(h, nil),
			m.enricher.EXPECT().Enrich(gomock.Any(), h.Unit).Return(payload, nil),
			m.sink.EXPECT().SaveStageResult(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, res model.StageResult) error {
					assert.Equal(t, "a.test", res.Domain)
					assert.Equal(t, model.StagePrimary, res.Stage)
					assert.Empty(t, res.Errors)
					return nil
				}),
			m.sink.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, e model.HistoryEntry) error {
					assert.Equal(t, 1, e.Snapshot.DNS.Count())
					return nil
				}),
			m.store.EXPECT().Complete(gomock.Any(), h, gomock.Any()).Return(true, nil),
		)

		res := svc.Tick(ctx)
		assert.Equal(t, TickProcessed, res.Outcome)
		assert.Equal(t, time.Second, res.NextDelay)
		assert.Equal(t, "a.test", res.Domain)
	})

	t.Run("in-flight claim waits 5s", func(t *testing.T) {
		t.Parallel()
		svc, m, _ := newMockedDispatcher(t)
		m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(true, nil)

		res := svc.Tick(ctx)
		assert.Equal(t, TickBusy, res.Outcome)
		assert.Equal(t, 5*time.Second, res.NextDelay)
	})

	t.Run("store error waits 5s", func(t *testing.T) {
		t.Parallel()
		svc, m, _ := newMockedDispatcher(t)
		m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil)
		m.store.EXPECT().ClaimOne(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

		res := svc.Tick(ctx)
		assert.Equal(t, TickStoreError, res.Outcome)
		assert.Equal(t, 5*time.Second, res.NextDelay)
		assert.ErrorContains(t, res.Err, "connection refused")
	})
}

func TestDispatcherTick_RetriesInvocationFailure(t *testing.T) {
	t.Parallel()
	svc, m, slept := newMockedDispatcher(t)
	h := primaryHandle("flaky.test")
	payload := &model.PrimaryPayload{Domain: "flaky.test", DNS: model.DNSRecords{}}
	invocation := fmt.Errorf("%w: resolvers unreachable", model.ErrInvocationFailed)

	m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil)
	m.store.EXPECT().ClaimOne(gomock.Any(), gomock.Any()).Return(h, nil)
	gomock.InOrder(
		m.enricher.EXPECT().Enrich(gomock.Any(), h.Unit).Return(payload, []error{invocation}),
		m.enricher.EXPECT().Enrich(gomock.Any(), h.Unit).Return(payload, []error{errors.New("TXT: servfail")}),
	)
	m.sink.EXPECT().SaveStageResult(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, res model.StageResult) error {
			assert.Equal(t, []string{"TXT: servfail"}, res.Errors, "partial errors are not retried")
			return nil
		})
	m.sink.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil)
	m.store.EXPECT().Complete(gomock.Any(), h, gomock.Any()).Return(true, nil)

	res := svc.Tick(context.Background())
	assert.Equal(t, TickProcessed, res.Outcome)
	assert.Equal(t, []time.Duration{60 * time.Second}, *slept)
}

func TestDispatcherTick_RetriesExhaustedStillCompletes(t *testing.T) {
	t.Parallel()
	svc, m, slept := newMockedDispatcher(t)
	h := primaryHandle("down.test")

	m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil)
	m.store.EXPECT().ClaimOne(gomock.Any(), gomock.Any()).Return(h, nil)
	m.enricher.EXPECT().Enrich(gomock.Any(), h.Unit).DoAndReturn(
		func(context.Context, model.WorkUnit) (model.Payload, []error) {
			panic("resolver exploded")
		}).Times(3)
	m.sink.EXPECT().SaveStageResult(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, res model.StageResult) error {
			require.Len(t, res.Errors, 1)
			assert.Contains(t, res.Errors[0], "resolver exploded")
			_, ok := res.Payload.(*model.PrimaryPayload)
			assert.True(t, ok, "empty primary payload is stored")
			return nil
		})
	m.sink.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil)
	m.store.EXPECT().Complete(gomock.Any(), h, gomock.Any()).Return(true, nil)

	res := svc.Tick(context.Background())
	assert.Equal(t, TickProcessed, res.Outcome)
	assert.Len(t, *slept, 2)
}

func TestDispatcherTick_RetainsOutcomeAfterStoreFailure(t *testing.T) {
	t.Parallel()
	svc, m, _ := newMockedDispatcher(t)
	h := primaryHandle("retry.test")
	payload := &model.PrimaryPayload{Domain: "retry.test", DNS: model.DNSRecords{}}

	m.store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil).Times(1)
	m.store.EXPECT().ClaimOne(gomock.Any(), gomock.Any()).Return(h, nil).Times(1)
	m.enricher.EXPECT().Enrich(gomock.Any(), h.Unit).Return(payload, nil).Times(1)
	gomock.InOrder(
		m.sink.EXPECT().SaveStageResult(gomock.Any(), gomock.Any()).Return(nil),
		m.sink.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(errors.New("disk full")),
		m.sink.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil),
		m.store.EXPECT().Complete(gomock.Any(), h, gomock.Any()).Return(true, nil),
	)

	first := svc.Tick(context.Background())
	assert.Equal(t, TickStoreError, first.Outcome)
	assert.Equal(t, 5*time.Second, first.NextDelay)

	second := svc.Tick(context.Background())
	assert.Equal(t, TickRetried, second.Outcome)
	assert.Equal(t, time.Second, second.NextDelay)
	assert.Equal(t, "retry.test", second.Domain)
}

func TestDispatcher_EndToEndOnMemstore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()

	inserted, err := store.InsertIfAbsent(ctx, model.SeedRecord{
		Domain: "example.test",
		Owner:  model.Owner{Titular: "Example Co", Identificacion: "B12345678"},
	})
	require.NoError(t, err)
	require.True(t, inserted)

	enricher := primary.New(primary.Options{
		Resolver: staticZone{
			"example.test": {
				model.RecordA:  {{Value: "192.0.2.10"}},
				model.RecordMX: {{Value: "mail.example.test", Preference: 10}},
			},
			"mail.example.test": {model.RecordA: {{Value: "192.0.2.25"}}},
		},
		Concurrency: 4,
	})

	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Store:    store,
		Sink:     store,
		Stats:    store,
		Enricher: enricher,
		WorkerID: "w1",
		Config:   testDispatcherConfig(),
	})
	require.NoError(t, err)

	res := svc.Tick(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, TickProcessed, res.Outcome)
	assert.Equal(t, time.Second, res.NextDelay)

	state, err := store.GetCurrentState(ctx, "example.test")
	require.NoError(t, err)
	require.NotNil(t, state.Primary)
	assert.Equal(t, "Example Co", state.Primary.Titular)
	assert.Equal(t, "B12345678", state.Primary.Identificacion)
	assert.Len(t, state.Primary.DNS[model.RecordA], 1)
	require.Len(t, state.Primary.DNS[model.RecordMX], 1)
	assert.Equal(t, "192.0.2.25", state.Primary.DNS[model.RecordMX][0].Addresses[0].IP)
	assert.Equal(t, model.StatusDone, state.Stages[model.StagePrimary].Status)
	for _, st := range []model.Stage{model.StageCertificates, model.StageLinks, model.StageCompany} {
		assert.Equal(t, model.StatusNotStarted, state.Stages[st].Status, st)
	}

	history, err := store.GetHistory(ctx, "example.test", model.DateRange{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	stats, err := store.ListWorkerStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Claims)
	assert.EqualValues(t, 1, stats[0].Processed)
	assert.EqualValues(t, 1, stats[0].HeartbeatCount)

	res = svc.Tick(ctx)
	assert.Equal(t, TickIdle, res.Outcome)
	assert.Equal(t, 10*time.Second, res.NextDelay)
}

// staticZone answers from a fixed table; unknown names have no records.
type staticZone map[string]map[model.RecordType][]resolver.Answer

func (z staticZone) Lookup(_ context.Context, name string, rt model.RecordType) ([]resolver.Answer, error) {
	return z[name][rt], nil
}

func TestDispatcherTick_TimeoutIsRetriedThenCountedAsError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	seedDomains(t, store, model.SeedRecord{Domain: "hang.test"})

	e := &enricherFunc{stage: model.StagePrimary, fn: func(ctx context.Context, _ model.WorkUnit) (model.Payload, []error) {
		<-ctx.Done()
		return nil, []error{fmt.Errorf("A hang.test: %w", ctx.Err())}
	}}
	cfg := testDispatcherConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 1
	var slept []time.Duration
	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Store:    store,
		Sink:     store,
		Stats:    store,
		Enricher: e,
		WorkerID: "w1",
		Config:   cfg,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	require.NoError(t, err)

	res := svc.Tick(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, TickProcessed, res.Outcome)
	assert.EqualValues(t, 2, e.calls.Load())
	assert.Len(t, slept, 1)

	stored, ok := store.Result("hang.test", model.StagePrimary)
	require.True(t, ok)
	require.Len(t, stored.Errors, 1)
	assert.Contains(t, stored.Errors[0], "context deadline exceeded")

	st, err := store.GetStageState(ctx, "hang.test", model.StagePrimary)
	require.NoError(t, err)
	assert.True(t, st.IsDone())

	stats, err := store.ListWorkerStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].Errors)
	assert.EqualValues(t, 0, stats[0].Processed)
}

func TestDispatcherTick_IgnoresClaimFromEarlierRunWithSameID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	store := memstore.New(memstore.WithClock(now))
	seedDomains(t, store,
		model.SeedRecord{Domain: "orphaned.test"},
		model.SeedRecord{Domain: "fresh.test"},
	)

	// A crashed run with the same worker ID and no lease left this claim behind.
	_, err := store.ClaimOne(ctx, model.ClaimRequest{Stage: model.StagePrimary, WorkerID: "w1"})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	e := &enricherFunc{stage: model.StagePrimary, fn: func(context.Context, model.WorkUnit) (model.Payload, []error) {
		return &model.PrimaryPayload{}, nil
	}}
	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Store:    store,
		Sink:     store,
		Enricher: e,
		WorkerID: "w1",
		Config:   testDispatcherConfig(),
		Now:      now,
	})
	require.NoError(t, err)

	res := svc.Tick(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, TickProcessed, res.Outcome)
	assert.Equal(t, "fresh.test", res.Domain)

	orphaned, err := store.GetStageState(ctx, "orphaned.test", model.StagePrimary)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClaimed, orphaned.Status)
}

func TestDispatcherTick_BusyWhileOwnClaimIsOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	seedDomains(t, store,
		model.SeedRecord{Domain: "first.test"},
		model.SeedRecord{Domain: "second.test"},
	)

	e := &enricherFunc{stage: model.StagePrimary, fn: func(context.Context, model.WorkUnit) (model.Payload, []error) {
		return &model.PrimaryPayload{}, nil
	}}
	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Store:    store,
		Sink:     store,
		Enricher: e,
		WorkerID: "w1",
		Config:   testDispatcherConfig(),
	})
	require.NoError(t, err)

	_, err = store.ClaimOne(ctx, model.ClaimRequest{Stage: model.StagePrimary, WorkerID: "w1"})
	require.NoError(t, err)

	res := svc.Tick(ctx)
	assert.Equal(t, TickBusy, res.Outcome)
	assert.Equal(t, 5*time.Second, res.NextDelay)
	assert.Zero(t, e.calls.Load())
}
