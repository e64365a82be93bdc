package certificates

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/internal/domain/model"
)

func TestCandidates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"example.test", "www.example.test"}, Candidates("example.test"))
	assert.Equal(t, []string{"www.example.test", "example.test"}, Candidates("www.example.test"))
}

func TestEnrichInspectsLeafCertificate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	var dialed []string
	e := New(Options{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialed = append(dialed, addr)
			if addr == "www.example.test:443" {
				return nil, errors.New("connection refused")
			}
			return (&net.Dialer{}).DialContext(ctx, network, srv.Listener.Addr().String())
		},
	})
	assert.Equal(t, model.StageCertificates, e.Stage())

	out, errs := e.Enrich(context.Background(), model.WorkUnit{Domain: "example.test"})
	assert.Empty(t, errs)

	p, ok := out.(*model.CertificatesPayload)
	require.True(t, ok)
	require.Len(t, p.Certificates, 1)

	c := p.Certificates[0]
	assert.Equal(t, "example.test", c.Host)
	assert.Equal(t, 3, c.Version)
	assert.Equal(t, "rsaEncryption", c.KeyAlgorithm)
	assert.Positive(t, c.KeySize)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{40}$`), c.Fingerprint)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]+$`), c.SerialNumber)
	assert.Contains(t, c.AlternativeNames, "example.com")
	assert.Equal(t, []string{"example.com"}, p.RelatedDomains)
	assert.Contains(t, dialed, "www.example.test:443")
}

func TestEnrichWithoutCertificates(t *testing.T) {
	t.Parallel()

	e := New(Options{
		DialContext: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("no route to host")
		},
	})

	out, errs := e.Enrich(context.Background(), model.WorkUnit{Domain: "offline.test"})
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "no TLS certificate information for offline.test")
	assert.Empty(t, out.(*model.CertificatesPayload).Certificates)
	assert.NotNil(t, out.(*model.CertificatesPayload).RelatedDomains)
}

func TestEnrichHonoursDeadline(t *testing.T) {
	t.Parallel()

	e := New(Options{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, errs := e.Enrich(ctx, model.WorkUnit{Domain: "slow.test"})
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[1], context.DeadlineExceeded)
}
