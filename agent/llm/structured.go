package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	metricsx "github.com/yixiaowang2001/game-sage-agent/agent/metrics"
)

// Structured runs a prompt->model graph and decodes the reply as JSON into T.
// Transport failures and unparseable replies are reported separately.
type Structured[T any] struct {
	name   string
	runner compose.Runnable[map[string]any, *schema.Message]
	parser schema.MessageParser[T]
}

func NewStructured[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (*Structured[T], error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: graph=%s", contractx.ErrPromptMissing, graphName)
	}

	runner, err := compileModelGraph(ctx, chatModel, systemPrompt, graphName)
	if err != nil {
		return nil, err
	}

	return &Structured[T]{
		name:   graphName,
		runner: runner,
		parser: schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
			ParseFrom: schema.MessageParseFromContent,
		}),
	}, nil
}

// Invoke marshals payload into the {input} slot of the prompt.
func (s *Structured[T]) Invoke(ctx context.Context, payload any) (T, error) {
	var zero T

	inputBytes, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("%w: marshal %s payload: %v", contractx.ErrValidation, s.name, err)
	}

	msg, err := s.runner.Invoke(ctx, map[string]any{
		"input": string(inputBytes),
	})
	if err != nil {
		metricsx.LLMCalls.WithLabelValues(s.name, "unavailable").Inc()
		return zero, fmt.Errorf("%w: %s invoke: %v", contractx.ErrLLMUnavailable, s.name, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		metricsx.LLMCalls.WithLabelValues(s.name, "malformed").Inc()
		return zero, fmt.Errorf("%w: %s returned empty content", contractx.ErrLLMMalformedResponse, s.name)
	}

	cleaned := &schema.Message{Role: msg.Role, Content: StripCodeFence(msg.Content)}
	out, err := s.parser.Parse(ctx, cleaned)
	if err != nil {
		metricsx.LLMCalls.WithLabelValues(s.name, "malformed").Inc()
		return zero, fmt.Errorf("%w: %s parse: %v", contractx.ErrLLMMalformedResponse, s.name, err)
	}

	metricsx.LLMCalls.WithLabelValues(s.name, "ok").Inc()
	return out, nil
}

// StripCodeFence removes a surrounding ```json fence that models often add.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func compileModelGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add %s prompt node: %w", graphName, err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add %s model node: %w", graphName, err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add %s edge start->prompt: %w", graphName, err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add %s edge prompt->model: %w", graphName, err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add %s edge model->end: %w", graphName, err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile %s graph: %w", graphName, err)
	}
	return runner, nil
}
