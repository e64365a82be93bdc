package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/data/memstore"
	"github.com/target/domain-enricher/internal/domain/model"
)

// batchReclaimer hands out queued batch counts per stage.
type batchReclaimer struct {
	mu      sync.Mutex
	batches map[model.Stage][]int64
	calls   map[model.Stage]int
	err     error
}

func (b *batchReclaimer) ReclaimExpired(_ context.Context, stage model.Stage, _ int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calls == nil {
		b.calls = make(map[model.Stage]int)
	}
	b.calls[stage]++
	if b.err != nil {
		return 0, b.err
	}
	queue := b.batches[stage]
	if len(queue) == 0 {
		return 0, nil
	}
	b.batches[stage] = queue[1:]
	return queue[0], nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *countingMetrics) Count(name string, value int64, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[name] += value
}

func (c *countingMetrics) Gauge(string, float64, map[string]string)        {}
func (c *countingMetrics) Timing(string, time.Duration, map[string]string) {}

func TestReaperService_RunOnceReclaimsExpiredLeasesOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	store := memstore.New(memstore.WithClock(func() time.Time { return now }))
	seedDomains(t, store, model.SeedRecord{Domain: "a.test"}, model.SeedRecord{Domain: "b.test"})

	_, err := store.ClaimOne(ctx, model.ClaimRequest{Stage: model.StageLinks, WorkerID: "gone", Lease: time.Minute})
	require.NoError(t, err)
	_, err = store.ClaimOne(ctx, model.ClaimRequest{Stage: model.StagePrimary, WorkerID: "gone"})
	require.NoError(t, err)
	require.NoError(t, store.Heartbeat(ctx, "gone", model.StageLinks))

	svc, err := NewReaperService(ReaperServiceOptions{
		Reclaimer: store,
		Config:    config.ReaperConfig{Interval: time.Minute, BatchSize: 10, WorkerStatsMaxAge: 24 * time.Hour},
		Logger:    slog.Default(),
	})
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)
	report, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Reclaimed[model.StageLinks])
	assert.Zero(t, report.Reclaimed[model.StagePrimary], "claims without a lease never expire")

	st, err := store.GetStageState(ctx, "a.test", model.StageLinks)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotStarted, st.Status)
	assert.Equal(t, 1, st.ReclaimCount)

	st, err = store.GetStageState(ctx, "a.test", model.StagePrimary)
	require.NoError(t, err)
	assert.True(t, st.IsClaimed())

	stats, err := store.ListWorkerStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1, "a silent worker's stats are only removed by an operator")
	assert.Equal(t, "gone", stats[0].WorkerID)
}

func TestReaperService_ReclaimStageLoopsOverBatches(t *testing.T) {
	t.Parallel()
	rec := &batchReclaimer{batches: map[model.Stage][]int64{model.StageCompany: {5, 5, 2}}}
	sink := &countingMetrics{}
	svc, err := NewReaperService(ReaperServiceOptions{
		Reclaimer: rec,
		Config:    config.ReaperConfig{BatchSize: 5},
		Stages:    []model.Stage{model.StageCompany},
		Metrics:   sink,
	})
	require.NoError(t, err)

	n, err := svc.ReclaimStage(context.Background(), model.StageCompany)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)
	assert.Equal(t, 3, rec.calls[model.StageCompany], "a short batch ends the loop")
	assert.EqualValues(t, 1, sink.counts["stage.transition"])
}

func TestReaperService_RunOnceAggregatesErrors(t *testing.T) {
	t.Parallel()
	rec := &batchReclaimer{err: errors.New("lock timeout")}
	sink := &countingMetrics{}
	svc, err := NewReaperService(ReaperServiceOptions{
		Reclaimer: rec,
		Config:    config.ReaperConfig{BatchSize: 5},
		Metrics:   sink,
	})
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "reclaim_primary")
	assert.ErrorContains(t, err, "lock timeout")
	assert.Len(t, rec.calls, len(model.AllStages()), "every stage is attempted")
	assert.EqualValues(t, len(model.AllStages()), sink.counts["reaper.cleanup_operation"])
}

func TestReaperService_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	svc, err := NewReaperService(ReaperServiceOptions{
		Reclaimer: &batchReclaimer{},
		Config:    config.ReaperConfig{Interval: time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestNewReaperService_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewReaperService(ReaperServiceOptions{})
	assert.Error(t, err)

	_, err = NewReaperService(ReaperServiceOptions{Reclaimer: &batchReclaimer{}, Stages: []model.Stage{"bogus"}})
	assert.ErrorIs(t, err, model.ErrInvalidStage)
}
