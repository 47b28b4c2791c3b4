package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"
)

var ErrEmptyCompletion = errors.New("openrouter: completion has no choices")

// SDKChatModel adapts the OpenAI SDK client to eino's BaseChatModel so the
// same compiled graphs run on either backend.
type SDKChatModel struct {
	client      *openaisdk.Client
	model       string
	temperature float32
	maxTokens   int
}

var _ model.BaseChatModel = (*SDKChatModel)(nil)

func NewSDKChatModel(client *openaisdk.Client, cfg Config) *SDKChatModel {
	maxTokens := 0
	if cfg.MaxCompletionToken != nil {
		maxTokens = *cfg.MaxCompletionToken
	}
	return &SDKChatModel{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

func (m *SDKChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	temperature := m.temperature
	maxTokens := m.maxTokens
	modelName := m.model
	common := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}, opts...)

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(derefString(common.Model, m.model)),
		Messages: toSDKMessages(input),
	}
	if common.Temperature != nil {
		params.Temperature = openaisdk.Float(float64(*common.Temperature))
	}
	if common.MaxTokens != nil && *common.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(*common.MaxTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openrouter: chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

func (m *SDKChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toSDKMessages(input []*schema.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case schema.Assistant:
			out = append(out, openaisdk.AssistantMessage(msg.Content))
		default:
			out = append(out, openaisdk.UserMessage(msg.Content))
		}
	}
	return out
}

func derefString(v *string, def string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return def
	}
	return *v
}
