package ipinfo

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/enrich/resolver"
)

const geoCSV = `start_ip,end_ip,country,continent
192.0.2.0,192.0.2.255,ES,EU
10.0.0.0,10.255.255.255,ZZ,XX
2001:db8::,2001:db8::ffff,DE,EU
`

func TestGeoTableLookup(t *testing.T) {
	t.Parallel()

	table, err := LoadGeoCSV(strings.NewReader(geoCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	tests := []struct {
		ip      string
		country string
		found   bool
	}{
		{"192.0.2.77", "ES", true},
		{"192.0.2.255", "ES", true},
		{"192.0.3.1", "", false},
		{"10.1.2.3", "ZZ", true},
		{"9.255.255.255", "", false},
		{"::ffff:192.0.2.1", "ES", true},
		{"2001:db8::42", "DE", true},
		{"2001:db9::1", "", false},
	}
	for _, tt := range tests {
		loc, ok := table.Lookup(netip.MustParseAddr(tt.ip))
		assert.Equal(t, tt.found, ok, tt.ip)
		assert.Equal(t, tt.country, loc.Country, tt.ip)
	}
}

func TestLoadGeoCSVRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := LoadGeoCSV(strings.NewReader("start,end\n"))
	assert.Error(t, err)

	_, err = LoadGeoCSV(strings.NewReader("start_ip,end_ip,country,continent\nnot-an-ip,1.1.1.1,US,NA\n"))
	assert.Error(t, err)
}

type txtZone map[string]string

func (z txtZone) Lookup(_ context.Context, name string, rt model.RecordType) ([]resolver.Answer, error) {
	if rt != model.RecordTXT {
		return nil, nil
	}
	v, ok := z[name]
	if !ok {
		return nil, nil
	}
	return []resolver.Answer{{Value: v}}, nil
}

func TestCymruSource(t *testing.T) {
	t.Parallel()

	zone := txtZone{
		"10.2.0.192.origin.asn.cymru.com": "64500 64501 | 192.0.2.0/24 | ES | ripencc | 2010-01-01",
		"AS64500.asn.cymru.com":           "64500 | ES | ripencc | 2001-01-01 | EXAMPLE-NET - Example Networks, ES",
	}
	src := NewCymruSource(zone)

	info, err := src.LookupASN(context.Background(), netip.MustParseAddr("192.0.2.10"))
	require.NoError(t, err)
	assert.Equal(t, ASNInfo{ASN: "64500", CIDR: "192.0.2.0/24", Country: "ES", Description: "EXAMPLE-NET - Example Networks, ES"}, info)

	_, err = src.LookupASN(context.Background(), netip.MustParseAddr("198.51.100.1"))
	assert.Error(t, err)
}

func TestOriginQueryIPv6(t *testing.T) {
	t.Parallel()

	q := originQuery(netip.MustParseAddr("2001:db8::1"))
	assert.True(t, strings.HasPrefix(q, "1.0.0.0."), q)
	assert.True(t, strings.HasSuffix(q, "8.b.d.0.1.0.0.2.origin6.asn.cymru.com"), q)
}

type countingASN struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingASN) LookupASN(_ context.Context, addr netip.Addr) (ASNInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return ASNInfo{}, c.err
	}
	return ASNInfo{ASN: "64500", CIDR: addr.String() + "/32", Country: "ES"}, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mapCache) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func (m *mapCache) Health(context.Context) error { return nil }

func TestAnnotatorCachesAndSharesASN(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	geo, err := LoadGeoCSV(strings.NewReader(geoCSV))
	require.NoError(t, err)
	shared := &mapCache{data: map[string][]byte{}}
	src := &countingASN{}

	a, err := NewAnnotator(AnnotatorOptions{ASN: src, Geo: geo, Shared: shared, SharedTTL: time.Hour})
	require.NoError(t, err)

	first := a.Annotate(ctx, "192.0.2.10")
	second := a.Annotate(ctx, "192.0.2.10")
	assert.Equal(t, first, second)
	assert.Equal(t, "ES", first.Country)
	assert.Equal(t, "EU", first.Continent)
	assert.Equal(t, "64500", first.ASN)
	assert.Equal(t, 1, src.calls)
	assert.Contains(t, shared.data, "asn:192.0.2.10")

	// a fresh process finds the answer in the shared cache
	other, err := NewAnnotator(AnnotatorOptions{ASN: src, Shared: shared})
	require.NoError(t, err)
	assert.Equal(t, "64500", other.Annotate(ctx, "192.0.2.10").ASN)
	assert.Equal(t, 1, src.calls)
}

func TestAnnotatorReportsErrors(t *testing.T) {
	t.Parallel()

	a, err := NewAnnotator(AnnotatorOptions{ASN: &countingASN{err: errors.New("asn lookup 192.0.2.1: no origin announced")}})
	require.NoError(t, err)

	info := a.Annotate(context.Background(), "192.0.2.1")
	assert.Equal(t, "192.0.2.1", info.IP)
	assert.Contains(t, info.Error, "no origin announced")

	bad := a.Annotate(context.Background(), "not-an-ip")
	assert.NotEmpty(t, bad.Error)
}
