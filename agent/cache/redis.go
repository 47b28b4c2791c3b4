package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr        string        `split_words:"true" default:"localhost:6379"`
	Password    string        `split_words:"true"`
	DB          int           `envconfig:"DB" default:"0"`
	DialTimeout time.Duration `split_words:"true" default:"5s"`
}

// RedisCache stores entries in a regular Redis server.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache dials Redis and verifies the connection with PING.
func NewRedisCache(ctx context.Context, cfg RedisConfig, opts ...Option) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}

	return NewRedisCacheFromClient(client, opts...)
}

func NewRedisCacheFromClient(client redis.UniversalClient, opts ...Option) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: client, keyPrefix: o.keyPrefix, ttl: o.ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrInvalidKey
	}
	val, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
