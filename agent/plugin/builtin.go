package plugin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	cachex "github.com/yixiaowang2001/game-sage-agent/agent/cache"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	"github.com/yixiaowang2001/game-sage-agent/agent/plugin/bilibili"
	"github.com/yixiaowang2001/game-sage-agent/agent/plugin/websearch"
	configx "github.com/yixiaowang2001/game-sage-agent/pkg/config"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

// BuiltinConfig carries the credentials and limits of every built-in plugin kind.
type BuiltinConfig struct {
	Bilibili   bilibili.Config
	Brave      websearch.BraveConfig
	DuckDuckGo websearch.DuckDuckGoConfig
	Reader     websearch.ReaderConfig
	// SearchTimeout bounds one web search plugin call, page reads included.
	SearchTimeout time.Duration
	MaxResults    int
}

func LoadBuiltinConfig() (BuiltinConfig, error) {
	bili, err := configx.New[bilibili.Config]("BILIBILI")
	if err != nil {
		return BuiltinConfig{}, fmt.Errorf("load bilibili config: %w", err)
	}
	brave, err := configx.New[websearch.BraveConfig]("BRAVE")
	if err != nil {
		return BuiltinConfig{}, fmt.Errorf("load brave config: %w", err)
	}
	ddg, err := configx.New[websearch.DuckDuckGoConfig]("DUCKDUCKGO")
	if err != nil {
		return BuiltinConfig{}, fmt.Errorf("load duckduckgo config: %w", err)
	}
	reader, err := configx.New[websearch.ReaderConfig]("READER")
	if err != nil {
		return BuiltinConfig{}, fmt.Errorf("load reader config: %w", err)
	}
	return BuiltinConfig{
		Bilibili:      *bili,
		Brave:         *brave,
		DuckDuckGo:    *ddg,
		Reader:        *reader,
		SearchTimeout: 30 * time.Second,
		MaxResults:    5,
	}, nil
}

// Factory creates a fresh plugin instance for every binding so that no two
// platforms share a client or its cookies.
type Factory struct {
	cfg    BuiltinConfig
	store  cachex.Cache
	logger zerolog.Logger
}

// NewFactory builds plugins from cfg. store may be nil to disable caching.
func NewFactory(cfg BuiltinConfig, store cachex.Cache) *Factory {
	return &Factory{cfg: cfg, store: store, logger: logx.Component("plugin.registry")}
}

func (f *Factory) Build(spec SourceSpec, cache bool) (contractx.Plugin, error) {
	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	maxResults := spec.MaxResults
	if maxResults <= 0 {
		maxResults = f.cfg.MaxResults
	}

	var p contractx.Plugin
	switch kind {
	case KindBilibili:
		cfg := f.cfg.Bilibili
		if spec.MaxResults > 0 {
			cfg.SearchResults = spec.MaxResults
		}
		bp, err := bilibili.New(cfg)
		if err != nil {
			return nil, err
		}
		p = bp
	case KindBrave:
		if strings.TrimSpace(f.cfg.Brave.APIKey) == "" {
			return nil, websearch.ErrMissingAPIKey
		}
		p = websearch.NewSearchPlugin(websearch.ProviderBrave,
			websearch.NewBraveClient(f.cfg.Brave, nil),
			f.reader(spec),
			websearch.PluginConfig{Site: spec.Site, MaxResults: maxResults, ReadPages: spec.ReadPages, Timeout: f.cfg.SearchTimeout})
	case KindDuckDuckGo:
		p = websearch.NewSearchPlugin(websearch.ProviderDuckDuckGo,
			websearch.NewDuckDuckGo(f.cfg.DuckDuckGo, nil),
			f.reader(spec),
			websearch.PluginConfig{Site: spec.Site, MaxResults: maxResults, ReadPages: spec.ReadPages, Timeout: f.cfg.SearchTimeout})
	default:
		return nil, fmt.Errorf("%w: unknown plugin kind %q", contractx.ErrValidation, spec.Kind)
	}

	if cache && f.store != nil {
		p = NewCachedPlugin(p, f.store, spec.Site)
	}
	return p, nil
}

func (f *Factory) reader(spec SourceSpec) websearch.PageReader {
	if spec.ReadPages <= 0 {
		return nil
	}
	return websearch.NewReader(f.cfg.Reader, nil)
}

// BuildRegistry instantiates every platform of cfg. A platform whose primary
// cannot be built is skipped; a fallback that cannot be built is dropped.
// It fails with ErrEmptyRegistry when nothing is left.
func (f *Factory) BuildRegistry(cfg FileConfig) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(cfg.Platforms))
	for _, pc := range cfg.Platforms {
		logger := f.logger.With().Str("platform", pc.ID).Logger()

		primary, err := f.Build(pc.Primary, pc.Cache)
		if err != nil {
			logger.Warn().Err(err).Str("kind", pc.Primary.Kind).Msg("skip platform, primary plugin unavailable")
			continue
		}

		binding := contractx.Binding{Primary: primary}
		if pc.Fallback != nil {
			fallback, err := f.Build(*pc.Fallback, pc.Cache)
			switch {
			case err != nil:
				logger.Warn().Err(err).Str("kind", pc.Fallback.Kind).Msg("fallback plugin unavailable")
			default:
				binding.Fallback = fallback
			}
		}

		entries = append(entries, Entry{
			Info:    contractx.PlatformInfo{ID: contractx.PlatformID(pc.ID), Description: pc.Description},
			Binding: binding,
		})
	}

	if len(entries) == 0 {
		return nil, contractx.ErrEmptyRegistry
	}
	reg, err := NewRegistry(entries...)
	if err != nil {
		return nil, err
	}
	f.logger.Info().Int("platforms", reg.Len()).Msg("plugin registry ready")
	return reg, nil
}

// IsConfigError reports whether err should abort startup.
func IsConfigError(err error) bool {
	return errors.Is(err, contractx.ErrEmptyRegistry) || errors.Is(err, contractx.ErrValidation)
}
