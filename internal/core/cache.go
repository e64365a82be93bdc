package core

import (
	"context"
	"time"
)

// CacheRepository is a byte-value cache shared between processes. The primary
// enricher uses it for ASN answers so replicas do not repeat Team Cymru lookups.
type CacheRepository interface {
	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}
