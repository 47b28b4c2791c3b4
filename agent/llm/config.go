package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	openrouterx "github.com/yixiaowang2001/game-sage-agent/pkg/openrouter"
)

type Config struct {
	Backend            string        `envconfig:"BACKEND" split_words:"true" default:"eino"`
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2048"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	RouterModel           string  `envconfig:"ROUTER_MODEL" split_words:"true"`
	SummarizerModel       string  `envconfig:"SUMMARIZER_MODEL" split_words:"true"`
	FinalModel            string  `envconfig:"FINAL_MODEL" split_words:"true"`
	RouterTemperature     float32 `envconfig:"ROUTER_TEMPERATURE" split_words:"true" default:"0.2"`
	SummarizerTemperature float32 `envconfig:"SUMMARIZER_TEMPERATURE" split_words:"true" default:"-1"`
	FinalTemperature      float32 `envconfig:"FINAL_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch agentType {
	case contractx.AgentTypeRouter:
		override(c.RouterModel, c.RouterTemperature)
	case contractx.AgentTypeSourceSummarizer:
		override(c.SummarizerModel, c.SummarizerTemperature)
	case contractx.AgentTypeFinalSummarizer:
		override(c.FinalModel, c.FinalTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		Backend:            strings.TrimSpace(c.Backend),
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
