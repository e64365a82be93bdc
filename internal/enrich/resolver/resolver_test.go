package resolver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/internal/domain/model"
)

type exchangeFunc func(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)

func (f exchangeFunc) ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error) {
	return f(ctx, m, address)
}

func reply(t *testing.T, q *dns.Msg, rcode int, records ...string) *dns.Msg {
	t.Helper()
	resp := new(dns.Msg)
	resp.SetRcode(q, rcode)
	for _, s := range records {
		rr, err := dns.NewRR(s)
		require.NoError(t, err)
		resp.Answer = append(resp.Answer, rr)
	}
	return resp
}

func TestLookupDecodesRecordTypes(t *testing.T) {
	t.Parallel()

	answers := map[uint16][]string{
		dns.TypeA:   {"example.test. 300 IN A 192.0.2.10", "example.test. 300 IN CNAME other.test."},
		dns.TypeMX:  {"example.test. 300 IN MX 10 mail.example.test."},
		dns.TypeNS:  {"example.test. 300 IN NS ns1.example.test."},
		dns.TypeTXT: {`example.test. 300 IN TXT "v=spf1" "-all"`},
	}
	r := New(Options{Servers: []string{"192.0.2.53:53"}, Exchanger: exchangeFunc(
		func(_ context.Context, m *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
			return reply(t, m, dns.RcodeSuccess, answers[m.Question[0].Qtype]...), 0, nil
		})})

	ctx := context.Background()
	a, err := r.Lookup(ctx, "example.test", model.RecordA)
	require.NoError(t, err)
	assert.Equal(t, []Answer{{Value: "192.0.2.10"}}, a)

	mx, err := r.Lookup(ctx, "example.test", model.RecordMX)
	require.NoError(t, err)
	assert.Equal(t, []Answer{{Value: "mail.example.test", Preference: 10}}, mx)

	ns, err := r.Lookup(ctx, "example.test", model.RecordNS)
	require.NoError(t, err)
	assert.Equal(t, []Answer{{Value: "ns1.example.test"}}, ns)

	txt, err := r.Lookup(ctx, "example.test", model.RecordTXT)
	require.NoError(t, err)
	assert.Equal(t, []Answer{{Value: "v=spf1 -all"}}, txt)
}

func TestLookupFallsBackAndTreatsNXDomainAsEmpty(t *testing.T) {
	t.Parallel()

	var tried []string
	r := New(Options{Servers: []string{"bad:53", "good:53"}, Exchanger: exchangeFunc(
		func(_ context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
			tried = append(tried, addr)
			if addr == "bad:53" {
				return nil, 0, &net.OpError{Op: "read", Err: errors.New("i/o timeout")}
			}
			return reply(t, m, dns.RcodeNameError), 0, nil
		})})

	got, err := r.Lookup(context.Background(), "missing.test", model.RecordA)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []string{"bad:53", "good:53"}, tried)
}

func TestLookupUnreachable(t *testing.T) {
	t.Parallel()

	r := New(Options{Servers: []string{"a:53", "b:53"}, Exchanger: exchangeFunc(
		func(context.Context, *dns.Msg, string) (*dns.Msg, time.Duration, error) {
			return nil, 0, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		})})

	_, err := r.Lookup(context.Background(), "example.test", model.RecordNS)
	assert.ErrorIs(t, err, ErrUnreachable)

	_, err = r.Lookup(context.Background(), "example.test", model.RecordType("AAAA"))
	assert.Error(t, err)
}
