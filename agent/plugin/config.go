package plugin

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

const (
	KindBilibili   = "bilibili"
	KindBrave      = "brave"
	KindDuckDuckGo = "duckduckgo"
)

// FileConfig is the on-disk registry layout:
//
//	platforms:
//	  - id: nga
//	    description: NGA forum, theorycrafting threads
//	    primary: {kind: brave, site: nga.178.com, read_pages: 2}
//	    fallback: {kind: duckduckgo, site: nga.178.com}
//	    cache: true
type FileConfig struct {
	Platforms []PlatformConfig `yaml:"platforms"`
}

type PlatformConfig struct {
	ID          string      `yaml:"id"`
	Description string      `yaml:"description"`
	Primary     SourceSpec  `yaml:"primary"`
	Fallback    *SourceSpec `yaml:"fallback,omitempty"`
	Cache       bool        `yaml:"cache"`
}

type SourceSpec struct {
	Kind       string `yaml:"kind"`
	Site       string `yaml:"site,omitempty"`
	MaxResults int    `yaml:"max_results,omitempty"`
	ReadPages  int    `yaml:"read_pages,omitempty"`
}

func LoadFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read registry file: %w", err)
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (FileConfig, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("%w: parse registry yaml: %v", contractx.ErrValidation, err)
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func (c FileConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Platforms))
	for i, p := range c.Platforms {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("%w: platforms[%d] has no id", contractx.ErrValidation, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: platform %q declared twice", contractx.ErrValidation, id)
		}
		seen[id] = struct{}{}
		if err := p.Primary.validate(); err != nil {
			return fmt.Errorf("%w: platform %q primary: %v", contractx.ErrValidation, id, err)
		}
		if p.Fallback != nil {
			if err := p.Fallback.validate(); err != nil {
				return fmt.Errorf("%w: platform %q fallback: %v", contractx.ErrValidation, id, err)
			}
		}
	}
	return nil
}

func (s SourceSpec) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case KindBilibili, KindBrave, KindDuckDuckGo:
	case "":
		return fmt.Errorf("kind is empty")
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.MaxResults < 0 || s.ReadPages < 0 {
		return fmt.Errorf("max_results and read_pages must be >= 0")
	}
	return nil
}

// DefaultFileConfig is used when no registry file is configured.
func DefaultFileConfig() FileConfig {
	return FileConfig{Platforms: []PlatformConfig{
		{
			ID:          "bilibili",
			Description: "Bilibili videos: guides, build showcases and player comments, mostly Chinese.",
			Primary:     SourceSpec{Kind: KindBilibili},
			Fallback:    &SourceSpec{Kind: KindBrave, Site: "bilibili.com"},
			Cache:       true,
		},
		{
			ID:          "nga",
			Description: "NGA forum: long-form theorycrafting and patch discussion threads, Chinese.",
			Primary:     SourceSpec{Kind: KindBrave, Site: "nga.178.com", ReadPages: 2},
			Fallback:    &SourceSpec{Kind: KindDuckDuckGo, Site: "nga.178.com"},
			Cache:       true,
		},
		{
			ID:          "tieba",
			Description: "Baidu Tieba: community Q&A and quick tips, Chinese.",
			Primary:     SourceSpec{Kind: KindBrave, Site: "tieba.baidu.com", ReadPages: 1},
			Cache:       true,
		},
		{
			ID:          "web",
			Description: "General web search: wikis, patch notes and English guides.",
			Primary:     SourceSpec{Kind: KindBrave, ReadPages: 2},
			Fallback:    &SourceSpec{Kind: KindDuckDuckGo},
			Cache:       true,
		},
	}}
}
