// Package mocks provides gomock mocks for the enrichment ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockStageClaimStore(ctrl)
//	store.EXPECT().HasInFlight(gomock.Any(), model.StagePrimary, "w1", gomock.Any()).Return(false, nil)
package mocks

// ClaimOne, Complete, CountEligible, GetStageState, HasInFlight, InsertIfAbsent
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=stage_claim_store_mock.go github.com/target/domain-enricher/internal/core StageClaimStore

// Stage, Enrich
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=enricher_mock.go github.com/target/domain-enricher/internal/core Enricher

// SaveStageResult, AppendHistory
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=result_sink_mock.go github.com/target/domain-enricher/internal/core ResultSink

// GetCurrentState, GetHistory, Search, ListByCompanyID, ListWorkerStats, Backlog
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=report_repository_mock.go github.com/target/domain-enricher/internal/core ReportRepository
