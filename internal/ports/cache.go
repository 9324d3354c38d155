package ports

import (
	"context"
	"time"
)

// Cache is the advisory low-latency store for liveness signals and
// authorization lookups. Implementations: redis, in-memory fallback.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
