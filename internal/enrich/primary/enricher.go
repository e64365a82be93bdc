// Package primary collects DNS records, IP annotations and subdomains for a domain.
package primary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/enrich/resolver"
)

// IPAnnotator attaches ASN and location data to an address.
type IPAnnotator interface {
	Annotate(ctx context.Context, ip string) model.IPInfo
}

// SubdomainSource enumerates names under a domain.
type SubdomainSource interface {
	Enumerate(ctx context.Context, domain string) ([]string, error)
}

// Options configures an Enricher.
type Options struct {
	Resolver   resolver.Resolver
	Annotator  IPAnnotator
	Subdomains SubdomainSource
	// Concurrency bounds parallel lookups within one unit.
	Concurrency int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Enricher implements the primary stage.
type Enricher struct {
	dns         resolver.Resolver
	annotator   IPAnnotator
	subdomains  SubdomainSource
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

var _ core.Enricher = (*Enricher)(nil)

// New creates an Enricher. Annotator and Subdomains are optional.
func New(opts Options) *Enricher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Enricher{
		dns:         opts.Resolver,
		annotator:   opts.Annotator,
		subdomains:  opts.Subdomains,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		logger:      opts.Logger.With("component", "primary_enricher"),
	}
}

func (e *Enricher) Stage() model.Stage { return model.StagePrimary }

// Enrich resolves the domain and its subdomains. When no resolver can be reached for the
// domain itself the returned errors include model.ErrInvocationFailed.
func (e *Enricher) Enrich(ctx context.Context, unit model.WorkUnit) (model.Payload, []error) {
	domain := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(unit.Domain), "."))
	payload := &model.PrimaryPayload{
		Domain:         domain,
		Titular:        unit.Owner.Titular,
		Identificacion: unit.Owner.Identificacion,
		QueriedAt:      e.now().UTC(),
		Subdomains:     []model.SubdomainRecord{},
	}

	records, errs := e.resolve(ctx, domain)
	payload.DNS = records
	if len(errs) == len(model.RecordTypes()) && allUnreachable(errs) {
		return payload, []error{fmt.Errorf("%w: %w", model.ErrInvocationFailed, errors.Join(errs...))}
	}

	subs, err := e.resolveSubdomains(ctx, domain)
	if err != nil {
		errs = append(errs, err)
	}
	payload.Subdomains = subs
	return payload, errs
}

// resolve queries every record type for name. Types without answers are omitted.
func (e *Enricher) resolve(ctx context.Context, name string) (model.DNSRecords, []error) {
	var (
		mu      sync.Mutex
		records = model.DNSRecords{}
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, rt := range model.RecordTypes() {
		g.Go(func() error {
			recs, err := e.lookup(gctx, name, rt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			if len(recs) > 0 {
				records[rt] = recs
			}
			return nil
		})
	}
	_ = g.Wait()
	return records, errs
}

func (e *Enricher) lookup(ctx context.Context, name string, rt model.RecordType) ([]model.DNSRecord, error) {
	answers, err := e.dns.Lookup(ctx, name, rt)
	if err != nil {
		return nil, fmt.Errorf("dns %s %s: %w", rt, name, err)
	}
	out := make([]model.DNSRecord, 0, len(answers))
	for _, a := range answers {
		rec := model.DNSRecord{Value: a.Value, Preference: a.Preference}
		switch rt {
		case model.RecordA:
			info := e.annotate(ctx, a.Value)
			rec.Annotation = &info
		case model.RecordMX, model.RecordNS:
			rec.Addresses = e.hostAddresses(ctx, a.Value)
		}
		out = append(out, rec)
	}
	return out, nil
}

// hostAddresses resolves an MX or NS host. Failures leave the list empty.
func (e *Enricher) hostAddresses(ctx context.Context, host string) []model.IPInfo {
	answers, err := e.dns.Lookup(ctx, host, model.RecordA)
	if err != nil {
		e.logger.DebugContext(ctx, "host resolution failed", "host", host, "error", err)
		return []model.IPInfo{}
	}
	out := make([]model.IPInfo, 0, len(answers))
	for _, a := range answers {
		out = append(out, e.annotate(ctx, a.Value))
	}
	return out
}

func (e *Enricher) annotate(ctx context.Context, ip string) model.IPInfo {
	if e.annotator == nil {
		return model.IPInfo{IP: ip}
	}
	return e.annotator.Annotate(ctx, ip)
}

// resolveSubdomains keeps names under domain that resolve to at least one record.
func (e *Enricher) resolveSubdomains(ctx context.Context, domain string) ([]model.SubdomainRecord, error) {
	if e.subdomains == nil {
		return []model.SubdomainRecord{}, nil
	}
	found, err := e.subdomains.Enumerate(ctx, domain)
	if err != nil {
		return []model.SubdomainRecord{}, fmt.Errorf("subdomains: %w", err)
	}
	names := FilterSubdomains(domain, found)

	results := make([]model.SubdomainRecord, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, name := range names {
		g.Go(func() error {
			records, _ := e.resolve(gctx, name)
			results[i] = model.SubdomainRecord{Name: name, DNS: records}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.SubdomainRecord, 0, len(results))
	for _, r := range results {
		if len(r.DNS) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// FilterSubdomains normalizes names and keeps strict subdomains of domain, sorted and unique.
func FilterSubdomains(domain string, names []string) []string {
	suffix := "." + domain
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(n), "."))
		if n == domain || !strings.HasSuffix(n, suffix) {
			continue
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func allUnreachable(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, resolver.ErrUnreachable) {
			return false
		}
	}
	return len(errs) > 0
}
