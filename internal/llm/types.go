package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/synapse-audio/internal/config"
)

// ErrMissingCredential is returned when a hosted provider has no API key.
var ErrMissingCredential = errors.New("llm credential not configured")

// Request describes a language model prompt.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	TraceID     string
}

// Chunk represents streamed model output.
type Chunk struct {
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	TraceID          string
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// OptionsFromConfig builds request defaults from config.
func OptionsFromConfig(cfg config.LLMConfig) Request {
	return Request{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}

// Complete drains a generator and returns the concatenated content. A final
// chunk that repeats the accumulated text replaces it rather than doubling it.
func Complete(ctx context.Context, gen Generator, req Request) (string, error) {
	var b strings.Builder
	var final string
	err := gen.Generate(ctx, req, func(chunk Chunk) error {
		if chunk.Partial {
			b.WriteString(chunk.Content)
			return nil
		}
		final = chunk.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	streamed := b.String()
	switch {
	case final == "":
		return streamed, nil
	case streamed == "" || final == streamed:
		return final, nil
	default:
		return streamed + final, nil
	}
}

// FromConfig builds the generator selected by cfg.Mode.
func FromConfig(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "gateway":
		return NewGatewayGenerator(cfg.Endpoint, cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "mock":
		return NewMockGenerator(""), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}
