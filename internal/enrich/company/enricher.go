// Package company looks up the registered company behind a domain owner.
package company

import (
	"context"
	"errors"
	"log/slog"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

// Searcher returns the raw registry document for a term.
type Searcher interface {
	Search(ctx context.Context, term string) (any, error)
}

// Enricher implements the company stage.
type Enricher struct {
	registry Searcher
	mapper   *Mapper
	logger   *slog.Logger
}

var _ core.Enricher = (*Enricher)(nil)

// New creates an Enricher.
func New(registry Searcher, mapper *Mapper, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{registry: registry, mapper: mapper, logger: logger.With("component", "company_enricher")}
}

func (e *Enricher) Stage() model.Stage { return model.StageCompany }

// Enrich searches by identificacion, falling back to titular. A term the registry
// knows nothing about is recorded in the payload, not as an error.
func (e *Enricher) Enrich(ctx context.Context, unit model.WorkUnit) (model.Payload, []error) {
	term := unit.Owner.SearchTerm()
	payload := &model.CompanyPayload{SearchTerm: term}
	if term == "" {
		payload.Error = model.NoDataMessage(term)
		return payload, []error{errors.New("domain has no owner or identifier to search")}
	}

	doc, err := e.registry.Search(ctx, term)
	if err != nil {
		payload.Error = err.Error()
		return payload, []error{err}
	}
	rec, err := e.mapper.First(doc)
	if err != nil {
		payload.Error = err.Error()
		return payload, []error{err}
	}
	if rec == nil {
		payload.Error = model.NoDataMessage(term)
		return payload, nil
	}
	payload.Company = rec
	e.logger.DebugContext(ctx, "company matched", "domain", unit.Domain, "nif", rec.NIF)
	return payload, nil
}
