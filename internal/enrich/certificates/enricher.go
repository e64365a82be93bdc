// Package certificates inspects the TLS leaf certificates served for a domain.
package certificates

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // fingerprint format, not a security control
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/domain/model"
)

// DialContextFunc dials a network address.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options configures an Enricher.
type Options struct {
	ProbeTimeout     time.Duration
	HandshakeTimeout time.Duration
	// Port defaults to 443.
	Port string
	// DialContext overrides how connections are opened, mainly for tests.
	DialContext DialContextFunc
	Logger      *slog.Logger
}

// Enricher implements the certificates stage.
type Enricher struct {
	probeTimeout     time.Duration
	handshakeTimeout time.Duration
	port             string
	dial             DialContextFunc
	probe            *http.Client
	logger           *slog.Logger
}

var _ core.Enricher = (*Enricher)(nil)

// New creates an Enricher.
func New(opts Options) *Enricher {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 20 * time.Second
	}
	if opts.Port == "" {
		opts.Port = "443"
	}
	if opts.DialContext == nil {
		opts.DialContext = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	transport := &http.Transport{
		DialContext: opts.DialContext,
		// the certificate is inspected, not trusted
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // inspection only
		DisableKeepAlives: true,
	}
	return &Enricher{
		probeTimeout:     opts.ProbeTimeout,
		handshakeTimeout: opts.HandshakeTimeout,
		port:             opts.Port,
		dial:             opts.DialContext,
		probe: &http.Client{
			Transport: transport,
			Timeout:   opts.ProbeTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: opts.Logger.With("component", "certificates_enricher"),
	}
}

func (e *Enricher) Stage() model.Stage { return model.StageCertificates }

// Candidates returns the hosts probed for domain: the domain and its www counterpart.
func Candidates(domain string) []string {
	if rest, ok := strings.CutPrefix(domain, "www."); ok {
		return []string{domain, rest}
	}
	return []string{domain, "www." + domain}
}

// Enrich probes each candidate host and records the leaf certificate of every one that answers.
func (e *Enricher) Enrich(ctx context.Context, unit model.WorkUnit) (model.Payload, []error) {
	domain := strings.ToLower(strings.TrimSpace(unit.Domain))
	payload := &model.CertificatesPayload{Certificates: []model.CertificateDetail{}, RelatedDomains: []string{}}

	related := map[string]struct{}{}
	for _, host := range Candidates(domain) {
		if ctx.Err() != nil {
			break
		}
		if err := e.reachable(ctx, host); err != nil {
			e.logger.DebugContext(ctx, "https probe failed", "host", host, "error", err)
			continue
		}
		cert, err := e.leaf(ctx, host)
		if err != nil {
			e.logger.DebugContext(ctx, "tls handshake failed", "host", host, "error", err)
			continue
		}
		detail := Describe(host, cert)
		payload.Certificates = append(payload.Certificates, detail)
		for _, name := range detail.AlternativeNames {
			name = strings.ToLower(strings.TrimPrefix(name, "*."))
			if name != "" {
				related[name] = struct{}{}
			}
		}
	}

	for name := range related {
		payload.RelatedDomains = append(payload.RelatedDomains, name)
	}
	slices.Sort(payload.RelatedDomains)

	if len(payload.Certificates) == 0 {
		errs := []error{fmt.Errorf("no TLS certificate information for %s", domain)}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
		}
		return payload, errs
	}
	return payload, nil
}

// reachable reports whether host answers HTTPS at all. Any status code counts.
func (e *Enricher) reachable(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+net.JoinHostPort(host, e.port), nil)
	if err != nil {
		return err
	}
	resp, err := e.probe.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (e *Enricher) leaf(ctx context.Context, host string) (*x509.Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.handshakeTimeout)
	defer cancel()

	raw, err := e.dial(ctx, "tcp", net.JoinHostPort(host, e.port))
	if err != nil {
		return nil, err
	}
	conn := tls.Client(raw, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, //nolint:gosec // inspection only
	})
	defer conn.Close()

	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("%s presented no certificate", host)
	}
	return certs[0], nil
}

const opensslTime = "Jan _2 15:04:05 2006 GMT"

// Describe extracts the stored fields of a certificate.
func Describe(host string, cert *x509.Certificate) model.CertificateDetail {
	sum := sha1.Sum(cert.Raw) //nolint:gosec // fingerprint format
	names := slices.Clone(cert.DNSNames)
	if names == nil {
		names = []string{}
	}
	algorithm, size := keyInfo(cert)
	return model.CertificateDetail{
		Host:             host,
		Subject:          cert.Subject.String(),
		Issuer:           cert.Issuer.String(),
		ValidFrom:        cert.NotBefore.UTC().Format(opensslTime),
		ValidUntil:       cert.NotAfter.UTC().Format(opensslTime),
		AlternativeNames: names,
		KeyAlgorithm:     algorithm,
		KeySize:          size,
		Fingerprint:      fmt.Sprintf("%X", sum[:]),
		Version:          cert.Version,
		SerialNumber:     fmt.Sprintf("%X", cert.SerialNumber.Bytes()),
	}
}

func keyInfo(cert *x509.Certificate) (string, int) {
	switch k := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return "rsaEncryption", k.N.BitLen()
	case *ecdsa.PublicKey:
		return "id-ecPublicKey", k.Curve.Params().BitSize
	case ed25519.PublicKey:
		return "ED25519", 256
	default:
		return cert.PublicKeyAlgorithm.String(), 0
	}
}
