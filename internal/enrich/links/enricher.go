// Package links lists the outbound links of a domain's home page.
package links

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

// Options configures an Enricher.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
	// Client overrides the HTTP client, mainly for tests. Its Timeout is ignored.
	Client *http.Client
	Logger *slog.Logger
}

// Enricher implements the links stage.
type Enricher struct {
	client    *http.Client
	timeout   time.Duration
	maxBody   int64
	userAgent string
	logger    *slog.Logger
}

var _ core.Enricher = (*Enricher)(nil)

// New creates an Enricher.
func New(opts Options) *Enricher {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Enricher{
		client:    opts.Client,
		timeout:   opts.Timeout,
		maxBody:   opts.MaxBodyBytes,
		userAgent: opts.UserAgent,
		logger:    opts.Logger.With("component", "links_enricher"),
	}
}

func (e *Enricher) Stage() model.Stage { return model.StageLinks }

// Candidates returns the URLs tried for domain, in order.
func Candidates(domain string) []string {
	out := []string{"https://" + domain, "http://" + domain}
	if !strings.HasPrefix(domain, "www.") {
		out = append(out, "https://www."+domain, "http://www."+domain)
	}
	return out
}

// Enrich fetches the first reachable candidate and extracts its absolute http(s) links.
func (e *Enricher) Enrich(ctx context.Context, unit model.WorkUnit) (model.Payload, []error) {
	domain := strings.ToLower(strings.TrimSpace(unit.Domain))
	payload := &model.LinksPayload{Links: []string{}, RelatedDomains: []string{}}

	var lastErr error
	for _, candidate := range Candidates(domain) {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		base, body, err := e.fetch(ctx, candidate)
		if err != nil {
			lastErr = err
			e.logger.DebugContext(ctx, "fetch failed", "url", candidate, "error", err)
			continue
		}
		links, err := ExtractLinks(body, base)
		if err != nil {
			return payload, []error{fmt.Errorf("parse %s: %w", candidate, err)}
		}
		payload.SourceURL = candidate
		payload.Links, payload.RelatedDomains = summarize(links)
		return payload, nil
	}

	errs := []error{fmt.Errorf("no reachable URL for %s", domain)}
	if lastErr != nil {
		errs = append(errs, lastErr)
	}
	return payload, errs
}

func (e *Enricher) fetch(ctx context.Context, rawURL string) (*url.URL, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	// relative links resolve against the final URL after redirects
	return resp.Request.URL, body, nil
}

// ExtractLinks returns the absolute http(s) targets of anchors in an HTML document, unique and in document order.
func ExtractLinks(body []byte, base *url.URL) ([]*url.URL, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []*url.URL

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "a" || n.Data == "area") {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				u, err := resolve(base, attr.Val)
				if err == nil && !seen[u.String()] {
					seen[u.String()] = true
					out = append(out, u)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

func resolve(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	u.Fragment = ""
	return u, nil
}

// summarize strips schemes from links and collects their hosts.
func summarize(links []*url.URL) ([]string, []string) {
	stripped := make([]string, 0, len(links))
	hosts := make([]string, 0, len(links))
	for _, u := range links {
		s := strings.TrimPrefix(strings.TrimPrefix(u.String(), "https://"), "http://")
		stripped = append(stripped, s)
		hosts = append(hosts, strings.ToLower(u.Hostname()))
	}
	slices.Sort(stripped)
	slices.Sort(hosts)
	return slices.Compact(stripped), slices.Compact(hosts)
}
