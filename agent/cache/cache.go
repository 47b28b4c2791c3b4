// Package cache stores serialized retrieval results keyed by plugin and query.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidKey = errors.New("cache key is empty")

const (
	BackendNone    = "none"
	BackendUpstash = "upstash"
	BackendRedis   = "redis"

	defaultKeyPrefix = "gamesage:retrieval:"
	defaultTTL       = 6 * time.Hour
)

// Cache is a byte store with per-entry expiry. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Config struct {
	Backend   string        `split_words:"true" default:"none"`
	KeyPrefix string        `split_words:"true" default:"gamesage:retrieval:"`
	TTL       time.Duration `envconfig:"TTL" default:"6h"`
}

// Option customizes a cache backend.
type Option func(*options)

type options struct {
	keyPrefix string
	ttl       time.Duration
}

func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

func applyOptions(opts []Option) (options, error) {
	o := options{keyPrefix: defaultKeyPrefix, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.ttl < 0 {
		return o, errors.New("ttl must be >= 0")
	}
	return o, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
