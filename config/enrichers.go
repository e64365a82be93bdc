package config

import (
	"strings"
	"time"
)

// EnrichersConfig groups the settings of the external collaborators used by each stage.
type EnrichersConfig struct {
	DNS       DNSConfig        `envPrefix:"DNS_"`
	GeoIP     GeoIPConfig      `envPrefix:"GEOIP_"`
	Subfinder SubfinderConfig  `envPrefix:"SUBFINDER_"`
	TLS       TLSConfig        `envPrefix:"TLS_"`
	Links     LinksFetchConfig `envPrefix:"LINKS_FETCH_"`
	Registry  RegistryConfig   `envPrefix:"REGISTRY_"`
}

// Sanitize applies guardrails to every collaborator.
func (e *EnrichersConfig) Sanitize() {
	e.DNS.Sanitize()
	e.Subfinder.Sanitize()
	e.TLS.Sanitize()
	e.Links.Sanitize()
	e.Registry.Sanitize()
}

// DNSConfig configures record lookups for the primary stage and ASN TXT lookups.
type DNSConfig struct {
	Resolvers    []string      `env:"RESOLVERS"     envDefault:"1.1.1.1:53,8.8.8.8:53"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"2s"`
	Lifetime     time.Duration `env:"LIFETIME"      envDefault:"5s"`
	// Concurrency bounds parallel subdomain resolution within one unit.
	Concurrency int `env:"CONCURRENCY" envDefault:"8"`
}

// Sanitize applies guardrails to DNS configuration values.
func (d *DNSConfig) Sanitize() {
	resolvers := d.Resolvers[:0]
	for _, r := range d.Resolvers {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, ":") {
			r += ":53"
		}
		resolvers = append(resolvers, r)
	}
	if len(resolvers) == 0 {
		resolvers = []string{"1.1.1.1:53"}
	}
	d.Resolvers = resolvers
	if d.QueryTimeout <= 0 {
		d.QueryTimeout = 2 * time.Second
	}
	if d.Lifetime < d.QueryTimeout {
		d.Lifetime = d.QueryTimeout
	}
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
}

// GeoIPConfig points at an IP range CSV (start_ip,end_ip,country,continent). Empty disables GeoIP.
type GeoIPConfig struct {
	CSVPath string `env:"CSV_PATH"`
}

// SubfinderConfig configures passive subdomain enumeration.
type SubfinderConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"300s"`
	Threads int           `env:"THREADS" envDefault:"10"`
	// ProviderConfig is an optional subfinder provider-config.yaml with API keys.
	ProviderConfig string `env:"PROVIDER_CONFIG"`
}

// Sanitize applies guardrails to subfinder configuration values.
func (s *SubfinderConfig) Sanitize() {
	if s.Timeout < 10*time.Second {
		s.Timeout = 10 * time.Second
	}
	if s.Threads < 1 {
		s.Threads = 1
	}
}

// TLSConfig configures the certificates stage.
type TLSConfig struct {
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT"     envDefault:"10s"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"20s"`
}

// Sanitize applies guardrails to TLS configuration values.
func (t *TLSConfig) Sanitize() {
	if t.ProbeTimeout <= 0 {
		t.ProbeTimeout = 10 * time.Second
	}
	if t.HandshakeTimeout <= 0 {
		t.HandshakeTimeout = 20 * time.Second
	}
}

// LinksFetchConfig configures the links stage.
type LinksFetchConfig struct {
	Timeout      time.Duration `env:"TIMEOUT"        envDefault:"45s"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" envDefault:"5242880"`
	UserAgent    string        `env:"USER_AGENT"     envDefault:"Mozilla/5.0 (compatible; domain-enricher/1.0)"`
}

// Sanitize applies guardrails to links configuration values.
func (l *LinksFetchConfig) Sanitize() {
	if l.Timeout <= 0 {
		l.Timeout = 45 * time.Second
	}
	if l.MaxBodyBytes < 64*1024 {
		l.MaxBodyBytes = 64 * 1024
	}
	if strings.TrimSpace(l.UserAgent) == "" {
		l.UserAgent = "domain-enricher/1.0"
	}
}

// RegistryConfig configures the company registry client.
type RegistryConfig struct {
	BaseURL    string `env:"BASE_URL"    envDefault:"https://opendata.registradores.org"`
	HomePath   string `env:"HOME_PATH"   envDefault:"/directorio"`
	SearchPath string `env:"SEARCH_PATH" envDefault:"/directorio"`
	PortletID  string `env:"PORTLET_ID"  envDefault:"org_registradores_opendata_portlet_BuscadorSociedadesPortlet"`
	ResourceID string `env:"RESOURCE_ID" envDefault:"/opendata/sociedades"`
	UserAgent  string `env:"USER_AGENT"  envDefault:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"`

	HomeTimeout   time.Duration `env:"HOME_TIMEOUT"   envDefault:"15s"`
	SearchTimeout time.Duration `env:"SEARCH_TIMEOUT" envDefault:"30s"`
	MinInterval   time.Duration `env:"MIN_INTERVAL"   envDefault:"2s"`
	CoolDown      time.Duration `env:"COOL_DOWN"      envDefault:"60s"`

	// ResultsExpr selects the candidate list from the response document.
	ResultsExpr string `env:"RESULTS_EXPR" envDefault:"data"`
	// Field expressions are evaluated against the first candidate.
	NIFExpr       string `env:"NIF_EXPR"        envDefault:"nif"`
	NameExpr      string `env:"NAME_EXPR"       envDefault:"denominacion"`
	StatusExpr    string `env:"STATUS_EXPR"     envDefault:"estado"`
	StreetExpr    string `env:"STREET_EXPR"     envDefault:"domicilioSocial.direccion"`
	CityExpr      string `env:"CITY_EXPR"       envDefault:"domicilioSocial.poblacion"`
	ProvinceExpr  string `env:"PROVINCE_EXPR"   envDefault:"domicilioSocial.provincia"`
	CNAECodeExpr  string `env:"CNAE_CODE_EXPR"  envDefault:"actividadEconomica.principal.cnae.codigo"`
	CNAEDescExpr  string `env:"CNAE_DESC_EXPR"  envDefault:"actividadEconomica.principal.cnae.descripcion"`
	LegalFormExpr string `env:"LEGAL_FORM_EXPR" envDefault:"formaSocial.nacional.descripcion"`
	RegistryExpr  string `env:"REGISTRY_EXPR"   envDefault:"registro.nombre"`
	EUIDExpr      string `env:"EUID_EXPR"       envDefault:"euid.valor"`

	// OAuth client credentials; all three must be set to enable token authentication.
	OAuthTokenURL     string   `env:"OAUTH_TOKEN_URL"`
	OAuthClientID     string   `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string   `env:"OAUTH_CLIENT_SECRET"`
	OAuthScopes       []string `env:"OAUTH_SCOPES"`
}

// OAuthEnabled reports whether client-credentials authentication is configured.
func (r RegistryConfig) OAuthEnabled() bool {
	return r.OAuthTokenURL != "" && r.OAuthClientID != "" && r.OAuthClientSecret != ""
}

// Sanitize applies guardrails to registry configuration values.
func (r *RegistryConfig) Sanitize() {
	r.BaseURL = strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if r.HomeTimeout <= 0 {
		r.HomeTimeout = 15 * time.Second
	}
	if r.SearchTimeout <= 0 {
		r.SearchTimeout = 30 * time.Second
	}
	if r.MinInterval < 0 {
		r.MinInterval = 0
	}
	if r.CoolDown < 0 {
		r.CoolDown = 0
	}
}
