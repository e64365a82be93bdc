package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModePrimary runs the adaptive dispatcher for the primary stage.
	ServiceModePrimary ServiceMode = "primary"
	// ServiceModeCertificates runs the certificates collector.
	ServiceModeCertificates ServiceMode = "certificates"
	// ServiceModeLinks runs the links collector.
	ServiceModeLinks ServiceMode = "links"
	// ServiceModeCompany runs the company registry collector.
	ServiceModeCompany ServiceMode = "company"
	// ServiceModeReaper runs the lease reaper.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeAPI runs the read-only HTTP API.
	ServiceModeAPI ServiceMode = "api"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModePrimary,
		ServiceModeCertificates,
		ServiceModeLinks,
		ServiceModeCompany,
		ServiceModeReaper,
		ServiceModeAPI,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModePrimary,
			ServiceModeCertificates,
			ServiceModeLinks,
			ServiceModeCompany,
			ServiceModeReaper,
			ServiceModeAPI:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: primary, certificates, links, company, reaper, api)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig controls the identity recorded in claims and worker stats.
type WorkerConfig struct {
	// ID overrides the generated host:pid:instance identity. Must be unique per process.
	ID string `env:"WORKER_ID"`
}

// DispatcherConfig contains configuration for the primary stage dispatcher.
type DispatcherConfig struct {
	// ClaimedDelay is the delay after a unit was processed.
	ClaimedDelay time.Duration `env:"CLAIMED_DELAY" envDefault:"1s"`
	// BacklogDelay is the delay when nothing was claimable but eligible units remain.
	BacklogDelay time.Duration `env:"BACKLOG_DELAY" envDefault:"3s"`
	// IdleDelay is the delay when no eligible units remain.
	IdleDelay time.Duration `env:"IDLE_DELAY" envDefault:"10s"`
	// BusyDelay is the delay when this worker already holds an in-flight claim.
	BusyDelay time.Duration `env:"BUSY_DELAY" envDefault:"5s"`
	// ErrorDelay is the delay after a store failure.
	ErrorDelay time.Duration `env:"ERROR_DELAY" envDefault:"5s"`

	// MaxRetries bounds re-invocation of the enricher after an invocation failure.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"2"`
	// RetryDelay is the fixed delay between invocation retries.
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"60s"`

	// Timeout bounds a single enrichment attempt.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10m"`
	// ClaimLease is how long a claim stays valid before the reaper may reclaim it. 0 disables expiry.
	ClaimLease time.Duration `env:"CLAIM_LEASE" envDefault:"0s"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	floor := func(v *time.Duration, minimum time.Duration) {
		if *v < minimum {
			*v = minimum
		}
	}
	floor(&d.ClaimedDelay, 100*time.Millisecond)
	floor(&d.BacklogDelay, 100*time.Millisecond)
	floor(&d.IdleDelay, 100*time.Millisecond)
	floor(&d.BusyDelay, 100*time.Millisecond)
	floor(&d.ErrorDelay, 100*time.Millisecond)
	floor(&d.Timeout, time.Second)

	if d.MaxRetries < 0 {
		d.MaxRetries = 0
	}
	if d.RetryDelay < 0 {
		d.RetryDelay = 0
	}
	d.ClaimLease = sanitizeLease(d.ClaimLease, d.Timeout*time.Duration(d.MaxRetries+1)+d.RetryDelay*time.Duration(d.MaxRetries))
}

// CollectorConfig contains configuration for one polling collector stage.
type CollectorConfig struct {
	IdleInterval time.Duration `env:"IDLE_INTERVAL"`
	Timeout      time.Duration `env:"TIMEOUT"`
	StoreBackoff time.Duration `env:"STORE_BACKOFF"`
	// ClaimLease is how long a claim stays valid before the reaper may reclaim it. 0 disables expiry.
	ClaimLease time.Duration `env:"CLAIM_LEASE"`
	// ListenForWork wakes idle collectors on work_added notifications.
	ListenForWork bool `env:"LISTEN_FOR_WORK" envDefault:"true"`
}

type collectorDefaults struct {
	idle    time.Duration
	timeout time.Duration
}

var (
	certificatesDefaults = collectorDefaults{idle: 60 * time.Second, timeout: 2 * time.Minute}
	linksDefaults        = collectorDefaults{idle: 60 * time.Second, timeout: 4 * time.Minute}
	companyDefaults      = collectorDefaults{idle: 30 * time.Second, timeout: 3 * time.Minute}
)

const defaultStoreBackoff = 30 * time.Second

func (c *CollectorConfig) sanitize(def collectorDefaults) {
	if c.IdleInterval <= 0 {
		c.IdleInterval = def.idle
	}
	if c.Timeout <= 0 {
		c.Timeout = def.timeout
	}
	if c.StoreBackoff <= 0 {
		c.StoreBackoff = defaultStoreBackoff
	}
	c.ClaimLease = sanitizeLease(c.ClaimLease, c.Timeout)
}

// sanitizeLease keeps a non-zero lease from expiring while the claim holder can still be working.
func sanitizeLease(lease, minimum time.Duration) time.Duration {
	if lease <= 0 {
		return 0
	}
	if lease < minimum {
		return minimum
	}
	return lease
}

// ReaperConfig contains lease reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// BatchSize is the maximum number of claims to reclaim per stage per tick.
	// Batching prevents long locks on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`

	// WorkerStatsMaxAge is the default --older-than for enricher-admin prune-workers.
	WorkerStatsMaxAge time.Duration `env:"REAPER_WORKER_STATS_MAX_AGE" envDefault:"168h"` // 7 days
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.WorkerStatsMaxAge < 1*time.Hour {
		r.WorkerStatsMaxAge = 1 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
