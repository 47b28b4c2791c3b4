package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	orchestratorx "github.com/yixiaowang2001/game-sage-agent/agent/agents/orchestrator"
	routerx "github.com/yixiaowang2001/game-sage-agent/agent/agents/router"
	summarizerx "github.com/yixiaowang2001/game-sage-agent/agent/agents/summarizer"
	cachex "github.com/yixiaowang2001/game-sage-agent/agent/cache"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	"github.com/yixiaowang2001/game-sage-agent/agent/dispatch"
	"github.com/yixiaowang2001/game-sage-agent/agent/journal"
	llmx "github.com/yixiaowang2001/game-sage-agent/agent/llm"
	"github.com/yixiaowang2001/game-sage-agent/agent/plugin"
	promptx "github.com/yixiaowang2001/game-sage-agent/agent/prompt"
	configx "github.com/yixiaowang2001/game-sage-agent/pkg/config"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

type AppConfig struct {
	RegistryFile string `split_words:"true"`
}

type app struct {
	orchestrator *orchestratorx.Orchestrator
	registry     *plugin.Registry
	journal      *journal.Journal
	closers      []io.Closer
	logger       zerolog.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
}

// newRegistryApp loads only the plugin registry; it needs no LLM credentials.
func newRegistryApp(ctx context.Context) (*app, error) {
	a := &app{logger: logx.Component("app")}

	appCfg, err := configx.New[AppConfig]("GAMESAGE")
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}

	cacheCfg, err := configx.New[cachex.Config]("GAMESAGE_CACHE")
	if err != nil {
		return nil, fmt.Errorf("load cache config: %w", err)
	}
	store, err := cachex.Open(ctx, *cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("open retrieval cache: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	fileCfg := plugin.DefaultFileConfig()
	if path := strings.TrimSpace(appCfg.RegistryFile); path != "" {
		if fileCfg, err = plugin.LoadFile(path); err != nil {
			a.Close()
			return nil, err
		}
	}

	builtin, err := plugin.LoadBuiltinConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	registry, err := plugin.NewFactory(builtin, store).BuildRegistry(fileCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = registry

	j, err := openJournal(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if j != nil {
		a.journal = j
		a.closers = append(a.closers, j)
	}
	return a, nil
}

// openJournal returns nil when GAMESAGE_JOURNAL_DSN is unset.
func openJournal(ctx context.Context) (*journal.Journal, error) {
	cfg, err := configx.New[journal.Config]("GAMESAGE_JOURNAL")
	if err != nil {
		return nil, fmt.Errorf("load journal config: %w", err)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil
	}
	return journal.Open(ctx, cfg.DSN)
}

func newApp(ctx context.Context) (*app, error) {
	a, err := newRegistryApp(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.wireAgents(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wireAgents(ctx context.Context) error {
	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return fmt.Errorf("load llm config: %w", err)
	}
	if err := llmCfg.Validate(); err != nil {
		return err
	}
	orchCfg, err := configx.New[orchestratorx.Config]("GAMESAGE")
	if err != nil {
		return fmt.Errorf("load orchestrator config: %w", err)
	}
	dispatchCfg, err := configx.New[dispatch.Config]("GAMESAGE_DISPATCH")
	if err != nil {
		return fmt.Errorf("load dispatch config: %w", err)
	}
	routerCfg, err := configx.New[routerx.Config]("GAMESAGE_ROUTER")
	if err != nil {
		return fmt.Errorf("load router config: %w", err)
	}
	summaryCfg, err := configx.New[summarizerx.Config]("GAMESAGE_SUMMARY")
	if err != nil {
		return fmt.Errorf("load summarizer config: %w", err)
	}

	prompts := promptx.LoadPromptSet()

	build := func(role contractx.AgentType) (einomodel.BaseChatModel, error) {
		cfg := llmCfg.OpenRouterFor(role)
		m, err := cfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("build %s model: %w", role, err)
		}
		return m, nil
	}

	routerModel, err := build(contractx.AgentTypeRouter)
	if err != nil {
		return err
	}
	sourceModel, err := build(contractx.AgentTypeSourceSummarizer)
	if err != nil {
		return err
	}
	finalModel, err := build(contractx.AgentTypeFinalSummarizer)
	if err != nil {
		return err
	}

	router, err := routerx.New(ctx, routerModel, prompts.Router, *routerCfg)
	if err != nil {
		return err
	}
	source, err := summarizerx.NewSource(ctx, sourceModel, prompts.SourceSummary, *summaryCfg)
	if err != nil {
		return err
	}
	final, err := summarizerx.NewFinal(ctx, finalModel, prompts.FinalSummary)
	if err != nil {
		return err
	}

	components := orchestratorx.Components{
		Registry:   a.registry,
		Router:     router,
		Dispatcher: dispatch.New(a.registry, *dispatchCfg),
		Source:     source,
		Final:      final,
	}
	if a.journal != nil {
		components.Recorder = a.journal
	}

	o, err := orchestratorx.New(components, *orchCfg)
	if err != nil {
		return err
	}
	a.orchestrator = o
	return nil
}
