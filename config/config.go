package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - enrichers.go: Collaborator settings for each stage (DNS, TLS, links, registry)
//   - http.go: Read API configuration
//   - services.go: Service mode, dispatcher, collector and reaper configuration
type AppConfig struct {
	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig `envPrefix:"CACHE_"`

	// HTTP read API configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"primary"`

	// Worker identity override
	Worker WorkerConfig

	// Primary stage dispatcher
	Dispatcher DispatcherConfig `envPrefix:"PRIMARY_"`

	// Polling collectors
	Certificates CollectorConfig `envPrefix:"CERTIFICATES_"`
	Links        CollectorConfig `envPrefix:"LINKS_"`
	Company      CollectorConfig `envPrefix:"COMPANY_"`

	// Lease reaper configuration
	Reaper ReaperConfig

	// Enrichment collaborators
	Enrichers EnrichersConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Cache.Sanitize()

	c.Dispatcher.Sanitize()
	c.Certificates.sanitize(certificatesDefaults)
	c.Links.sanitize(linksDefaults)
	c.Company.sanitize(companyDefaults)
	c.Reaper.Sanitize()

	c.Enrichers.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsServiceEnabled reports whether mode is listed in SERVICES.
func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsAPIEnabled returns true if the read API is enabled.
func (c *AppConfig) IsAPIEnabled() bool { return c.IsServiceEnabled(ServiceModeAPI) }

// IsReaperEnabled returns true if the lease reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.IsServiceEnabled(ServiceModeReaper) }

// NeedsRedis reports whether any enabled service uses the shared annotation cache.
func (c *AppConfig) NeedsRedis() bool {
	return c.Redis.Enabled && c.IsServiceEnabled(ServiceModePrimary)
}
