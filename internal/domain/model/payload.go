package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the stage-specific body of a StageResult.
// Exactly one concrete type exists per stage.
type Payload interface {
	Stage() Stage
}

// RecordType names a DNS record type collected by the primary stage.
type RecordType string

const (
	RecordA   RecordType = "A"
	RecordMX  RecordType = "MX"
	RecordNS  RecordType = "NS"
	RecordTXT RecordType = "TXT"
)

// RecordTypes lists the record types the primary stage queries, in query order.
func RecordTypes() []RecordType {
	return []RecordType{RecordA, RecordMX, RecordNS, RecordTXT}
}

// IPInfo annotates an address with network ownership and location.
type IPInfo struct {
	IP             string `json:"ip"`
	ASN            string `json:"asn,omitempty"`
	ASNCIDR        string `json:"asn_cidr,omitempty"`
	ASNDescription string `json:"asn_description,omitempty"`
	ASNCountry     string `json:"asn_country_code,omitempty"`
	Country        string `json:"country,omitempty"`
	Continent      string `json:"continent,omitempty"`
	Error          string `json:"error,omitempty"`
}

// DNSRecord is one answer. Value holds the address, exchange, name server or text
// depending on the record type.
type DNSRecord struct {
	Value      string   `json:"value"`
	Preference uint16   `json:"preference,omitempty"`
	Annotation *IPInfo  `json:"annotation,omitempty"`
	Addresses  []IPInfo `json:"addresses,omitempty"`
}

// DNSRecords groups answers by type. Types without answers are absent.
type DNSRecords map[RecordType][]DNSRecord

// Count returns the total number of answers.
func (r DNSRecords) Count() int {
	n := 0
	for _, recs := range r {
		n += len(recs)
	}
	return n
}

// SubdomainRecord holds the DNS answers of one discovered subdomain.
type SubdomainRecord struct {
	Name string     `json:"name"`
	DNS  DNSRecords `json:"dns"`
}

// PrimaryPayload is produced by the primary stage.
type PrimaryPayload struct {
	Domain         string            `json:"domain"`
	Titular        string            `json:"titular,omitempty"`
	Identificacion string            `json:"identificacion,omitempty"`
	QueriedAt      time.Time         `json:"queried_at"`
	DNS            DNSRecords        `json:"dns"`
	Subdomains     []SubdomainRecord `json:"subdomains"`
}

func (*PrimaryPayload) Stage() Stage { return StagePrimary }

// CertificateDetail describes a leaf certificate served for one host.
type CertificateDetail struct {
	Host             string   `json:"host"`
	Subject          string   `json:"subject"`
	Issuer           string   `json:"issuer"`
	ValidFrom        string   `json:"valid_from"`
	ValidUntil       string   `json:"valid_until"`
	AlternativeNames []string `json:"alternative_names"`
	KeyAlgorithm     string   `json:"key_algorithm"`
	KeySize          int      `json:"key_size,omitempty"`
	Fingerprint      string   `json:"fingerprint"`
	Version          int      `json:"version"`
	SerialNumber     string   `json:"serial_number"`
}

// CertificatesPayload is produced by the certificates stage.
type CertificatesPayload struct {
	Certificates   []CertificateDetail `json:"certificates"`
	RelatedDomains []string            `json:"related_domains"`
}

func (*CertificatesPayload) Stage() Stage { return StageCertificates }

// LinksPayload is produced by the links stage. Links are stored without scheme.
type LinksPayload struct {
	SourceURL      string   `json:"source_url,omitempty"`
	Links          []string `json:"links"`
	RelatedDomains []string `json:"related_domains"`
}

func (*LinksPayload) Stage() Stage { return StageLinks }

// CompanyAddress is the registered address of a company.
type CompanyAddress struct {
	Street   string `json:"street,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
}

// CompanyRecord is the registry entry matched for a domain owner.
type CompanyRecord struct {
	NIF             string         `json:"nif"`
	Name            string         `json:"name"`
	Status          string         `json:"status,omitempty"`
	Address         CompanyAddress `json:"address"`
	CNAECode        string         `json:"cnae_code,omitempty"`
	CNAEDescription string         `json:"cnae_description,omitempty"`
	LegalForm       string         `json:"legal_form,omitempty"`
	Registry        string         `json:"registry,omitempty"`
	EUID            string         `json:"euid,omitempty"`
}

// CompanyPayload is produced by the company stage.
type CompanyPayload struct {
	SearchTerm string         `json:"search_term"`
	Company    *CompanyRecord `json:"company,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (*CompanyPayload) Stage() Stage { return StageCompany }

// NoDataMessage is recorded when the registry has nothing for a term.
func NoDataMessage(term string) string {
	return fmt.Sprintf("no data for term=%q", term)
}

// EmptyPayload returns the zero payload for a stage.
func EmptyPayload(stage Stage) (Payload, error) {
	switch stage {
	case StagePrimary:
		return &PrimaryPayload{DNS: DNSRecords{}, Subdomains: []SubdomainRecord{}}, nil
	case StageCertificates:
		return &CertificatesPayload{Certificates: []CertificateDetail{}, RelatedDomains: []string{}}, nil
	case StageLinks:
		return &LinksPayload{Links: []string{}, RelatedDomains: []string{}}, nil
	case StageCompany:
		return &CompanyPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, string(stage))
	}
}

// DecodePayload restores the concrete payload type of a stage from JSON.
func DecodePayload(stage Stage, raw []byte) (Payload, error) {
	p, err := EmptyPayload(stage)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", stage, err)
	}
	return p, nil
}
