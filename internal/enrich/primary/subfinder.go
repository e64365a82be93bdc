package primary

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/subfinder/v2/pkg/resolve"
	"github.com/projectdiscovery/subfinder/v2/pkg/runner"
)

// SubfinderOptions configures passive enumeration.
type SubfinderOptions struct {
	Timeout        time.Duration
	Threads        int
	ProviderConfig string
}

// SubfinderSource enumerates subdomains with the subfinder SDK.
type SubfinderSource struct {
	opts SubfinderOptions
}

var _ SubdomainSource = (*SubfinderSource)(nil)

// NewSubfinderSource creates a SubfinderSource.
func NewSubfinderSource(opts SubfinderOptions) *SubfinderSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.Threads < 1 {
		opts.Threads = 10
	}
	return &SubfinderSource{opts: opts}
}

// Enumerate runs one passive enumeration bounded by the configured timeout.
func (s *SubfinderSource) Enumerate(ctx context.Context, domain string) ([]string, error) {
	var (
		mu    sync.Mutex
		hosts []string
	)
	opts := &runner.Options{
		Domain:             goflags.StringSlice{domain},
		Threads:            s.opts.Threads,
		Timeout:            30,
		MaxEnumerationTime: max(1, int(s.opts.Timeout/time.Minute)),
		Silent:             true,
		RemoveWildcard:     true,
		ProviderConfig:     s.opts.ProviderConfig,
		Output:             io.Discard,
		ResultCallback: func(entry *resolve.HostEntry) {
			mu.Lock()
			hosts = append(hosts, strings.ToLower(strings.TrimSpace(entry.Host)))
			mu.Unlock()
		},
	}

	r, err := runner.NewRunner(opts)
	if err != nil {
		return nil, fmt.Errorf("create subfinder runner: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := r.RunEnumerationWithCtx(runCtx); err != nil {
		return nil, fmt.Errorf("subfinder %s: %w", domain, err)
	}
	if runCtx.Err() != nil {
		return nil, fmt.Errorf("subfinder timeout after %s", s.opts.Timeout)
	}

	mu.Lock()
	defer mu.Unlock()
	return hosts, nil
}
