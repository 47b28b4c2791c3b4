package plugin

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	cachex "github.com/yixiaowang2001/game-sage-agent/agent/cache"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	metricsx "github.com/yixiaowang2001/game-sage-agent/agent/metrics"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

// CachedPlugin serves repeated sub-queries from a cache. Only ok results are
// stored; cache errors fall through to the wrapped plugin.
type CachedPlugin struct {
	inner  contractx.Plugin
	store  cachex.Cache
	scope  string
	logger zerolog.Logger
}

var _ contractx.Plugin = (*CachedPlugin)(nil)

func NewCachedPlugin(inner contractx.Plugin, store cachex.Cache, scope string) *CachedPlugin {
	return &CachedPlugin{
		inner:  inner,
		store:  store,
		scope:  scope,
		logger: logx.Component("plugin.cache").With().Str("provider", inner.Name()).Logger(),
	}
}

func (c *CachedPlugin) Name() string { return c.inner.Name() }

func (c *CachedPlugin) Retrieve(ctx context.Context, subQuery string) contractx.RetrievalResult {
	started := time.Now()
	key := c.key(subQuery)

	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metricsx.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Msg("cache lookup failed")
	case ok:
		var cached contractx.RetrievalResult
		if err := json.Unmarshal(raw, &cached); err == nil && cached.OK() {
			metricsx.CacheLookups.WithLabelValues("hit").Inc()
			cached.SubQuery = subQuery
			cached.Elapsed = time.Since(started)
			return cached
		}
		metricsx.CacheLookups.WithLabelValues("corrupt").Inc()
	default:
		metricsx.CacheLookups.WithLabelValues("miss").Inc()
	}

	result := c.inner.Retrieve(ctx, subQuery)
	if !result.OK() {
		return result
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return result
	}
	if err := c.store.Set(ctx, key, encoded); err != nil {
		c.logger.Warn().Err(err).Msg("cache store failed")
	}
	return result
}

func (c *CachedPlugin) key(subQuery string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(subQuery), " "))
	return c.inner.Name() + ":" + c.scope + ":" + normalized
}
