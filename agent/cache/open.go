package cache

import (
	"context"
	"fmt"
	"strings"

	configx "github.com/yixiaowang2001/game-sage-agent/pkg/config"
)

// Open builds the backend named by cfg.Backend. BackendNone returns a nil Cache.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	opts := []Option{WithKeyPrefix(cfg.KeyPrefix), WithTTL(cfg.TTL)}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendUpstash:
		upstashCfg, err := configx.New[UpstashConfig]("UPSTASH_REDIS_REST")
		if err != nil {
			return nil, fmt.Errorf("load upstash config: %w", err)
		}
		return NewUpstashCache(*upstashCfg, nil, opts...)
	case BackendRedis:
		redisCfg, err := configx.New[RedisConfig]("REDIS")
		if err != nil {
			return nil, fmt.Errorf("load redis config: %w", err)
		}
		return NewRedisCache(ctx, *redisCfg, opts...)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
