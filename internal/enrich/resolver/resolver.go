// Package resolver performs plain DNS queries against a configured set of recursive resolvers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/target/domain-enricher/internal/domain/model"
)

// ErrUnreachable is returned when no configured resolver answered within the lifetime.
var ErrUnreachable = errors.New("dns resolvers unreachable")

// Answer is a single decoded resource record.
type Answer struct {
	Value      string
	Preference uint16
}

// Resolver looks up one record type for a name. A name without records yields no answers and no error.
type Resolver interface {
	Lookup(ctx context.Context, name string, rt model.RecordType) ([]Answer, error)
}

// Exchanger sends a single DNS message. *dns.Client satisfies it.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

// Options configures a DNSResolver.
type Options struct {
	Servers      []string
	QueryTimeout time.Duration
	Lifetime     time.Duration
	// Exchanger overrides the UDP client, mainly for tests.
	Exchanger Exchanger
}

// DNSResolver queries each server in turn until one answers, bounded by Lifetime.
type DNSResolver struct {
	servers  []string
	client   Exchanger
	timeout  time.Duration
	lifetime time.Duration
}

var _ Resolver = (*DNSResolver)(nil)

// New creates a DNSResolver.
func New(opts Options) *DNSResolver {
	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	lifetime := opts.Lifetime
	if lifetime < timeout {
		lifetime = timeout
	}
	client := opts.Exchanger
	if client == nil {
		client = &dns.Client{Net: "udp", Timeout: timeout}
	}
	servers := opts.Servers
	if len(servers) == 0 {
		servers = []string{"1.1.1.1:53"}
	}
	return &DNSResolver{servers: servers, client: client, timeout: timeout, lifetime: lifetime}
}

var qtypes = map[model.RecordType]uint16{
	model.RecordA:   dns.TypeA,
	model.RecordMX:  dns.TypeMX,
	model.RecordNS:  dns.TypeNS,
	model.RecordTXT: dns.TypeTXT,
}

// Lookup resolves name for rt. NXDOMAIN and empty answers are not errors.
func (r *DNSResolver) Lookup(ctx context.Context, name string, rt model.RecordType) ([]Answer, error) {
	qtype, ok := qtypes[rt]
	if !ok {
		return nil, fmt.Errorf("unsupported record type %q", rt)
	}

	ctx, cancel := context.WithTimeout(ctx, r.lifetime)
	defer cancel()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if ctx.Err() != nil {
			break
		}
		qctx, qcancel := context.WithTimeout(ctx, r.timeout)
		resp, _, err := r.client.ExchangeContext(qctx, msg, server)
		qcancel()
		if err != nil {
			lastErr = err
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
			return decode(resp.Answer, qtype), nil
		case dns.RcodeNameError:
			return nil, nil
		default:
			lastErr = fmt.Errorf("%s %s: %s", rt, name, dns.RcodeToString[resp.Rcode])
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	var netErr net.Error
	if errors.As(lastErr, &netErr) || errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, rt, name, lastErr)
	}
	return nil, lastErr
}

func decode(rrs []dns.RR, qtype uint16) []Answer {
	out := make([]Answer, 0, len(rrs))
	for _, rr := range rrs {
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch v := rr.(type) {
		case *dns.A:
			out = append(out, Answer{Value: v.A.String()})
		case *dns.MX:
			out = append(out, Answer{Value: trimDot(v.Mx), Preference: v.Preference})
		case *dns.NS:
			out = append(out, Answer{Value: trimDot(v.Ns)})
		case *dns.TXT:
			out = append(out, Answer{Value: strings.Join(v.Txt, " ")})
		}
	}
	return out
}

func trimDot(s string) string {
	return strings.TrimSuffix(s, ".")
}
