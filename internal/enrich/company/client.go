package company

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

var (
	// ErrRateLimited is returned after the registry answered 429 and the cool-down elapsed.
	ErrRateLimited = errors.New("registry rate limited")
	// ErrUnrecognizedResponse is returned when the search response carries no usable data.
	ErrUnrecognizedResponse = errors.New("unrecognized registry response format")
)

// embeddedPatterns locate result JSON inside HTML responses, tried in order.
var embeddedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)(\{"data":\s*\[.+?\]\})`),
	regexp.MustCompile(`(?s)("data":\s*\[.+?\])`),
	regexp.MustCompile(`(?s)(\[\s*\{.*?"nif":.+?\}\s*\])`),
}

var noResultMarkers = []string{"sin resultados", "no se encontraron"}

// ClientOptions configures a RegistryClient.
type ClientOptions struct {
	BaseURL       string
	HomePath      string
	SearchPath    string
	PortletID     string
	ResourceID    string
	UserAgent     string
	HomeTimeout   time.Duration
	SearchTimeout time.Duration
	MinInterval   time.Duration
	CoolDown      time.Duration

	OAuth *clientcredentials.Config

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// RegistryClient searches the public company registry. Calls are serialized through a rate limiter.
type RegistryClient struct {
	opts    ClientOptions
	client  *http.Client
	limiter *rate.Limiter
	wait    func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
}

// NewRegistryClient creates a client with a registrable-domain cookie jar.
func NewRegistryClient(opts ClientOptions) (*RegistryClient, error) {
	if opts.HomeTimeout <= 0 {
		opts.HomeTimeout = 15 * time.Second
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid registry base url: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	base := &http.Client{Transport: opts.Transport, Jar: jar}
	client := base
	if opts.OAuth != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = opts.OAuth.Client(ctx)
		client.Jar = jar
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &RegistryClient{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		wait:    sleepContext,
		logger:  opts.Logger.With("component", "registry_client"),
	}, nil
}

// Search returns the decoded response document for term. A "no results" page yields {"data": []}.
func (c *RegistryClient) Search(ctx context.Context, term string) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.warmUp(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.SearchTimeout)
	defer cancel()

	params := c.searchParams(term)
	endpoint := c.opts.BaseURL + c.opts.SearchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
	req.Header.Set("Referer", c.opts.BaseURL+c.opts.HomePath)
	req.Header.Set("Origin", c.opts.BaseURL)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cache-Control", "no-cache")
	c.setUserAgent(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.WarnContext(ctx, "registry rate limit hit, cooling down", "cool_down", c.opts.CoolDown)
		if err := c.wait(ctx, c.opts.CoolDown); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: 429 Too Many Requests", ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("registry search: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read registry response: %w", err)
	}
	return DecodeResponse(resp.Header.Get("Content-Type"), body)
}

func (c *RegistryClient) warmUp(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.HomeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+c.opts.HomePath, nil)
	if err != nil {
		return err
	}
	c.setUserAgent(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("registry home: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.Body.Close()
}

func (c *RegistryClient) searchParams(term string) url.Values {
	v := url.Values{}
	v.Set("p_p_id", c.opts.PortletID)
	v.Set("p_p_lifecycle", "2")
	v.Set("p_p_state", "normal")
	v.Set("p_p_mode", "view")
	v.Set("p_p_resource_id", c.opts.ResourceID)
	v.Set("p_p_cacheability", "cacheLevelPage")
	v.Set("_"+c.opts.PortletID+"_term", term)
	return v
}

func (c *RegistryClient) setUserAgent(req *http.Request) {
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
}

// DecodeResponse extracts the result document from a JSON body or JSON embedded in HTML.
func DecodeResponse(contentType string, body []byte) (any, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		var doc any
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode registry json: %w", err)
		}
		return doc, nil
	case strings.Contains(ct, "text/html"):
		text := string(body)
		for _, re := range embeddedPatterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			raw := m[1]
			if !strings.HasPrefix(raw, "{") {
				if strings.HasPrefix(raw, `"data"`) {
					raw = "{" + raw + "}"
				} else {
					raw = `{"data": ` + raw + "}"
				}
			}
			var doc any
			if err := json.Unmarshal([]byte(raw), &doc); err == nil {
				return doc, nil
			}
		}
		lower := strings.ToLower(text)
		for _, marker := range noResultMarkers {
			if strings.Contains(lower, marker) {
				return map[string]any{"data": []any{}}, nil
			}
		}
	}
	return nil, ErrUnrecognizedResponse
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
