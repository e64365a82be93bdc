package model

import (
	"strings"
	"time"
)

// Owner carries the registrant data imported with a domain.
type Owner struct {
	Titular        string `json:"titular"`
	Identificacion string `json:"identificacion"`
}

// HasData reports whether at least one owner field is present.
func (o Owner) HasData() bool {
	return strings.TrimSpace(o.Titular) != "" || strings.TrimSpace(o.Identificacion) != ""
}

// SearchTerm returns the value used to look the owner up in the company registry.
// The identifier is preferred over the registrant name.
func (o Owner) SearchTerm() string {
	if id := strings.TrimSpace(o.Identificacion); id != "" {
		return id
	}
	return strings.TrimSpace(o.Titular)
}

// SeedRecord is one parsed row of the seed file.
type SeedRecord struct {
	Domain string
	Owner  Owner
}

// PendingWork is the per-domain coordination record.
type PendingWork struct {
	ID        int64                `json:"id"`
	Domain    string               `json:"domain"`
	Owner     Owner                `json:"owner"`
	Stages    map[Stage]StageState `json:"stages"`
	CreatedAt time.Time            `json:"created_at"`
}

// WorkUnit is what a collector receives after a successful claim.
type WorkUnit struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
	Owner  Owner  `json:"owner"`
}

// ClaimFilter narrows which pending units a stage may claim.
type ClaimFilter struct {
	// RequireOwner limits claims to units with a titular or identificacion.
	RequireOwner bool
}

// Matches reports whether the unit passes the filter.
func (f ClaimFilter) Matches(owner Owner) bool {
	if f.RequireOwner && !owner.HasData() {
		return false
	}
	return true
}

// ClaimRequest describes one claim attempt.
type ClaimRequest struct {
	Stage    Stage
	Filter   ClaimFilter
	WorkerID string
	// Lease bounds how long the claim may stay in flight before an explicit reclaim can return it.
	// Zero disables expiry.
	Lease time.Duration
}

// ClaimHandle identifies a unit claimed by a worker for a stage.
type ClaimHandle struct {
	Unit      WorkUnit
	Stage     Stage
	WorkerID  string
	ClaimedAt time.Time
}

// CompletionInfo is recorded alongside the done marker.
type CompletionInfo struct {
	Elapsed time.Duration
}

// ImportReport summarizes a seed import.
type ImportReport struct {
	Inserted     int `json:"inserted"`
	Existing     int `json:"existing"`
	MissingOwner int `json:"missing_owner"`
	Skipped      int `json:"skipped"`
}

// StageBacklog counts units per status for one stage.
type StageBacklog struct {
	Stage      Stage `json:"stage"`
	NotStarted int64 `json:"not_started"`
	Claimed    int64 `json:"claimed"`
	Done       int64 `json:"done"`
}
