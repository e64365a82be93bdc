package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"enricher"`
	Password string `env:"PASSWORD"                envDefault:"enricher"`
	Name     string `env:"NAME"                    envDefault:"enricher"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	// MaxOpenConns bounds the pool; each collector loop holds at most one connection at a time.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"10"`
}

// RedisConfig contains Redis configuration. Redis only backs the shared IP annotation cache,
// so it is off unless explicitly enabled.
type RedisConfig struct {
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig sizes the in-process LRU caches and the Redis TTL for IP annotations.
type CacheConfig struct {
	ASNEntries int           `env:"ASN_ENTRIES" envDefault:"4096"`
	GeoEntries int           `env:"GEO_ENTRIES" envDefault:"10000"`
	ASNTTL     time.Duration `env:"ASN_TTL"     envDefault:"24h"`
	KeyPrefix  string        `env:"KEY_PREFIX"  envDefault:"enricher:ipinfo:"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.ASNEntries < 16 {
		c.ASNEntries = 16
	}
	if c.GeoEntries < 16 {
		c.GeoEntries = 16
	}
	if c.ASNTTL < time.Minute {
		c.ASNTTL = time.Minute
	}
}
