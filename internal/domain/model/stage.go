// Package model defines the core data types shared by the enrichment collectors, the work store and the read API.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage identifies one of the independent enrichment pipelines.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Stage string

// StageStatus is the per-domain, per-stage progress marker.
type StageStatus string

const (
	// StagePrimary resolves DNS records and enumerates subdomains.
	StagePrimary Stage = "primary"
	// StageCertificates inspects TLS certificates served by the domain.
	StageCertificates Stage = "certificates"
	// StageLinks lists outbound links found on the domain's home page.
	StageLinks Stage = "links"
	// StageCompany looks the domain owner up in the company registry.
	StageCompany Stage = "company"

	// StatusNotStarted means no worker has claimed the stage yet.
	StatusNotStarted StageStatus = "not_started"
	// StatusClaimed means a worker holds the stage.
	StatusClaimed StageStatus = "claimed"
	// StatusDone means the stage result was written; it is never claimed again.
	StatusDone StageStatus = "done"
)

var (
	// ErrNoWorkAvailable is returned by a claim when no unit is eligible.
	ErrNoWorkAvailable = errors.New("no work available")
	// ErrDomainNotFound is returned when a domain has no pending-work record.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrInvalidStage is returned for stage names outside the known set.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrInvocationFailed marks an enrichment call that failed as a whole rather than partially.
	ErrInvocationFailed = errors.New("enrichment invocation failed")
)

// AllStages returns every stage in a stable order.
func AllStages() []Stage {
	return []Stage{StagePrimary, StageCertificates, StageLinks, StageCompany}
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePrimary, StageCertificates, StageLinks, StageCompany:
		return true
	default:
		return false
	}
}

func (s Stage) String() string { return string(s) }

// UnmarshalText implements encoding.TextUnmarshaler so stages can be parsed from env and query strings.
func (s *Stage) UnmarshalText(text []byte) error {
	v := Stage(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, string(text))
	}
	*s = v
	return nil
}

// ParseStage converts a string into a Stage.
func ParseStage(raw string) (Stage, error) {
	var s Stage
	if err := s.UnmarshalText([]byte(raw)); err != nil {
		return "", err
	}
	return s, nil
}

// Valid reports whether s is one of the known statuses.
func (s StageStatus) Valid() bool {
	return s == StatusNotStarted || s == StatusClaimed || s == StatusDone
}

// StageState is the tri-state progress of one stage for one domain:
// NotStarted, Claimed{ClaimedAt, WorkerID} or Done.
type StageState struct {
	Status         StageStatus `json:"status"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty"`
	WorkerID       string      `json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	ReclaimCount   int         `json:"reclaim_count,omitempty"`
}

// NotStarted returns the initial state for a freshly inserted domain.
func NotStarted() StageState {
	return StageState{Status: StatusNotStarted}
}

// IsDone reports whether the stage has completed.
func (s StageState) IsDone() bool { return s.Status == StatusDone }

// IsClaimed reports whether a worker currently holds the stage.
func (s StageState) IsClaimed() bool { return s.Status == StatusClaimed }

// LeaseExpired reports whether a claimed stage has outlived its lease at now.
// Claims without a lease never expire.
func (s StageState) LeaseExpired(now time.Time) bool {
	if s.Status != StatusClaimed || s.LeaseExpiresAt == nil {
		return false
	}
	return s.LeaseExpiresAt.Before(now)
}
