package links

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/domain-enricher/internal/domain/model"
)

const page = `<!doctype html><html><body>
<a href="https://partner.example.org/about#team">Partner</a>
<a href="/contact">Contact</a>
<a href="mailto:info@example.test">Mail</a>
<a href="javascript:void(0)">JS</a>
<map><area href="http://maps.example.net/x"></map>
<a href="https://partner.example.org/about">Again</a>
</body></html>`

// hostRouter sends every request to srv and records the requested URLs.
type hostRouter struct {
	srv  *httptest.Server
	down map[string]bool
	seen []string
}

func (h *hostRouter) RoundTrip(req *http.Request) (*http.Response, error) {
	h.seen = append(h.seen, req.URL.String())
	if h.down[req.URL.String()] {
		return nil, errors.New("connection refused")
	}
	target, _ := url.Parse(h.srv.URL)
	out := req.Clone(req.Context())
	out.URL.Scheme = target.Scheme
	out.URL.Host = target.Host
	resp, err := http.DefaultTransport.RoundTrip(out)
	if err == nil {
		resp.Request = req
	}
	return resp, err
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"https://example.test", "http://example.test", "https://www.example.test", "http://www.example.test",
	}, Candidates("example.test"))
	assert.Len(t, Candidates("www.example.test"), 2)
}

func TestEnrichFirstSuccessfulCandidateWins(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	router := &hostRouter{srv: srv, down: map[string]bool{"https://example.test": true}}
	e := New(Options{Client: &http.Client{Transport: router}})
	assert.Equal(t, model.StageLinks, e.Stage())

	out, errs := e.Enrich(context.Background(), model.WorkUnit{Domain: "example.test"})
	assert.Empty(t, errs)

	p, ok := out.(*model.LinksPayload)
	require.True(t, ok)
	assert.Equal(t, "http://example.test", p.SourceURL)
	assert.Equal(t, []string{
		"example.test/contact",
		"maps.example.net/x",
		"partner.example.org/about",
	}, p.Links)
	assert.Equal(t, []string{"example.test", "maps.example.net", "partner.example.org"}, p.RelatedDomains)
	assert.Equal(t, []string{"https://example.test", "http://example.test"}, router.seen)
}

func TestEnrichAllCandidatesFail(t *testing.T) {
	t.Parallel()

	e := New(Options{Client: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("no such host")
	})}})

	out, errs := e.Enrich(context.Background(), model.WorkUnit{Domain: "gone.test"})
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "no reachable URL for gone.test")
	p := out.(*model.LinksPayload)
	assert.Empty(t, p.Links)
	assert.NotNil(t, p.RelatedDomains)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestExtractLinksResolvesRelative(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://example.test/dir/index.html")
	got, err := ExtractLinks([]byte(`<a href="../a">a</a><a href="b?q=1">b</a><a href="//cdn.example.test/c">c</a>`), base)
	require.NoError(t, err)

	var s []string
	for _, u := range got {
		s = append(s, u.String())
	}
	assert.Equal(t, []string{
		"https://example.test/a",
		"https://example.test/dir/b?q=1",
		"https://cdn.example.test/c",
	}, s)
}
