package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

// seedHeaderField marks the header row of a seed export.
const seedHeaderField = "NOMBRE_DOMINIO"

// SeedImporterOptions groups dependencies for SeedImporter.
type SeedImporterOptions struct {
	Store  core.StageClaimStore // Required
	Logger *slog.Logger
}

// SeedImporter loads domains into the work store.
type SeedImporter struct {
	store  core.StageClaimStore
	logger *slog.Logger
}

// NewSeedImporter constructs a SeedImporter.
func NewSeedImporter(opts SeedImporterOptions) (*SeedImporter, error) {
	if opts.Store == nil {
		return nil, errors.New("StageClaimStore is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SeedImporter{store: opts.Store, logger: logger.With("component", "seed_importer")}, nil
}

// Import reads `"domain"|"owner"|"identifier"` rows and inserts every domain not yet known.
// Malformed rows are counted as skipped; store errors abort the import.
func (s *SeedImporter) Import(ctx context.Context, r io.Reader) (model.ImportReport, error) {
	var report model.ImportReport

	cr := csv.NewReader(r)
	cr.Comma = '|'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.logger.WarnContext(ctx, "seed row ignored", "line", perr.Line, "error", err)
				report.Skipped++
				continue
			}
			return report, fmt.Errorf("read seed: %w", err)
		}
		if len(fields) > 0 && strings.TrimSpace(fields[0]) == seedHeaderField {
			continue
		}

		rec, ok := ParseSeedFields(fields)
		if !ok {
			line, _ := cr.FieldPos(0)
			s.logger.WarnContext(ctx, "seed row ignored", "line", line, "reason", "missing domain")
			report.Skipped++
			continue
		}
		if !rec.Owner.HasData() {
			report.MissingOwner++
		}

		inserted, err := s.store.InsertIfAbsent(ctx, rec)
		if err != nil {
			return report, fmt.Errorf("insert %s: %w", rec.Domain, err)
		}
		if inserted {
			report.Inserted++
		} else {
			report.Existing++
		}
	}

	s.logger.InfoContext(ctx, "seed import completed",
		"inserted", report.Inserted,
		"existing", report.Existing,
		"missing_owner", report.MissingOwner,
		"skipped", report.Skipped,
	)
	return report, nil
}

// ParseSeedFields normalizes one seed row. It returns false when the domain is empty.
func ParseSeedFields(fields []string) (model.SeedRecord, bool) {
	field := func(i int) string {
		if i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	domain := strings.TrimSuffix(strings.ToLower(field(0)), ".")
	if domain == "" {
		return model.SeedRecord{}, false
	}
	return model.SeedRecord{
		Domain: domain,
		Owner: model.Owner{
			Titular:        field(1),
			Identificacion: strings.Join(strings.FieldsFunc(field(2), isIdentifierSeparator), ""),
		},
	}, true
}

func isIdentifierSeparator(r rune) bool {
	return r == '-' || unicode.IsSpace(r)
}
