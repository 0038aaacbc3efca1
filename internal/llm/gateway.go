package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// gatewayGenerator talks to an OpenAI-compatible chat completions gateway.
type gatewayGenerator struct {
	model llms.Model
}

func NewGatewayGenerator(endpoint, apiKey, model string) (Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithBaseURL(strings.TrimRight(endpoint, "/")),
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	return &gatewayGenerator{model: client}, nil
}

func (g *gatewayGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return fmt.Errorf("gateway completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return errors.New("gateway returned no choices")
	}

	choice := resp.Choices[0]
	return consumer(Chunk{
		Content:          choice.Content,
		Partial:          false,
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		Latency:          time.Since(start),
		TraceID:          req.TraceID,
	})
}

func intInfo(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
