package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/mocks"
)

func newTestReportService(t *testing.T, now time.Time) (*ReportService, *mocks.MockReportRepository) {
	t.Helper()
	repo := mocks.NewMockReportRepository(gomock.NewController(t))
	svc, err := NewReportService(ReportServiceOptions{Repo: repo, Now: func() time.Time { return now }})
	require.NoError(t, err)
	return svc, repo
}

func TestReportService_SearchLimits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newTestReportService(t, time.Now())

	repo.EXPECT().Search(gomock.Any(), core.SearchParams{Query: "example", Limit: DefaultSearchLimit}).Return(nil, nil)
	repo.EXPECT().Search(gomock.Any(), core.SearchParams{Query: "example", Limit: MaxSearchLimit}).Return(nil, nil)
	repo.EXPECT().Search(gomock.Any(), core.SearchParams{Query: "example", Limit: 5}).Return(
		[]model.DomainSummary{{Domain: "example.test"}}, nil)

	_, err := svc.Search(ctx, " example ", 0)
	require.NoError(t, err)
	_, err = svc.Search(ctx, "example", 1000)
	require.NoError(t, err)
	hits, err := svc.Search(ctx, "example", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = svc.Search(ctx, "   ", 10)
	assert.ErrorIs(t, err, ErrQueryRequired)
}

func TestReportService_HistoryDefaultsToThirtyDays(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestReportService(t, now)

	newer := model.HistoryEntry{
		Domain:     "example.test",
		RecordedAt: now.Add(-time.Hour),
		Snapshot: model.PrimaryPayload{
			DNS: model.DNSRecords{
				model.RecordA:  {{Value: "192.0.2.1"}, {Value: "192.0.2.2"}},
				model.RecordNS: {{Value: "ns1.example.test"}},
			},
			Subdomains: []model.SubdomainRecord{{Name: "www.example.test"}},
		},
	}
	older := model.HistoryEntry{
		Domain:     "example.test",
		RecordedAt: now.AddDate(0, 0, -10),
		Errors:     []string{"dns TXT example.test: timeout"},
	}

	repo.EXPECT().
		GetHistory(gomock.Any(), "example.test", model.DateRange{From: now.Add(-DefaultHistoryWindow), To: now}).
		Return([]model.HistoryEntry{newer, older}, nil)

	h, err := svc.GetHistory(context.Background(), "Example.Test", model.DateRange{})
	require.NoError(t, err)
	require.Len(t, h.Trend, 2)
	assert.Equal(t, older.RecordedAt, h.Trend[0].RecordedAt, "oldest first")
	assert.True(t, h.Trend[0].HadErrors)
	assert.Equal(t, 2, h.Trend[1].DNSRecordTypes)
	assert.Equal(t, 3, h.Trend[1].DNSRecords)
	assert.Equal(t, 1, h.Trend[1].Subdomains)
}

func TestReportService_HistoryRejectsInvertedRange(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestReportService(t, now)

	_, err := svc.GetHistory(context.Background(), "example.test", model.DateRange{From: now, To: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestReportService_GetByCompanyIDNormalizes(t *testing.T) {
	t.Parallel()
	svc, repo := newTestReportService(t, time.Now())
	repo.EXPECT().ListByCompanyID(gomock.Any(), "B12345678").Return([]model.DomainSummary{{Domain: "example.test"}}, nil)

	got, err := svc.GetByCompanyID(context.Background(), "B-1234 5678")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.GetByCompanyID(context.Background(), " - ")
	assert.ErrorIs(t, err, ErrQueryRequired)
}
