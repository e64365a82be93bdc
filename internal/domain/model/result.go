package model

import (
	"errors"
	"time"
)

// StageResult is the outcome of one stage for one domain. Later writes replace earlier ones.
type StageResult struct {
	Domain     string    `json:"domain"`
	Stage      Stage     `json:"stage"`
	Payload    Payload   `json:"payload"`
	Errors     []string  `json:"errors"`
	AnalyzedAt time.Time `json:"analyzed_at"`
	WorkerID   string    `json:"worker_id,omitempty"`
}

// ErrorStrings flattens errors for storage, dropping nils.
func ErrorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

// HasInvocationFailure reports whether any error marks the call as failed outright.
func HasInvocationFailure(errs []error) bool {
	for _, err := range errs {
		if errors.Is(err, ErrInvocationFailed) {
			return true
		}
	}
	return false
}

// HistoryEntry is an append-only snapshot of a completed primary run.
type HistoryEntry struct {
	ID         int64          `json:"id"`
	Domain     string         `json:"domain"`
	RecordedAt time.Time      `json:"recorded_at"`
	Snapshot   PrimaryPayload `json:"snapshot"`
	Errors     []string       `json:"errors"`
}

// TrendPoint condenses one history entry for trend views.
type TrendPoint struct {
	RecordedAt     time.Time `json:"recorded_at"`
	DNSRecordTypes int       `json:"dns_record_types"`
	DNSRecords     int       `json:"dns_records"`
	Subdomains     int       `json:"subdomains"`
	HadErrors      bool      `json:"had_errors"`
}

// DateRange bounds history queries. Zero values are open ends.
type DateRange struct {
	From time.Time
	To   time.Time
}

// CurrentState is the merged read-side projection of a domain.
type CurrentState struct {
	Domain         string               `json:"domain"`
	Titular        string               `json:"titular,omitempty"`
	Identificacion string               `json:"identificacion,omitempty"`
	Stages         map[Stage]StageState `json:"stages"`
	Primary        *PrimaryPayload      `json:"primary,omitempty"`
	Certificates   *CertificatesPayload `json:"certificates,omitempty"`
	Links          *LinksPayload        `json:"links,omitempty"`
	Company        *CompanyPayload      `json:"company,omitempty"`
	Errors         map[Stage][]string   `json:"errors,omitempty"`
	CompanyNIF     string               `json:"company_nif,omitempty"`
	CompanyName    string               `json:"company_name,omitempty"`
	UpdatedAt      *time.Time           `json:"updated_at,omitempty"`
}

// SetPayload attaches a decoded stage payload to the projection.
func (c *CurrentState) SetPayload(p Payload) {
	switch v := p.(type) {
	case *PrimaryPayload:
		c.Primary = v
	case *CertificatesPayload:
		c.Certificates = v
	case *LinksPayload:
		c.Links = v
	case *CompanyPayload:
		c.Company = v
	}
}

// DomainSummary is a search or listing hit.
type DomainSummary struct {
	Domain         string `json:"domain"              db:"domain"`
	Titular        string `json:"titular,omitempty"   db:"titular"`
	Identificacion string `json:"identificacion,omitempty" db:"identificacion"`
	CompanyNIF     string `json:"company_nif,omitempty"  db:"company_nif"`
	CompanyName    string `json:"company_name,omitempty" db:"company_name"`
}
