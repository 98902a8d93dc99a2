package cache

import (
	"context"
	"time"
)

// Cache is the key-value store used for the analytics artifact. Redis
// backs it when configured, otherwise the in-memory store is used.
type Cache interface {
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}
