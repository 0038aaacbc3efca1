package llm

import (
	"context"
	"time"
)

const mockDialogue = `AURA: What is the single most important idea in this material?
NEO: The core idea is that the summary connects a handful of claims into one argument.
AURA: Which of those claims carries the most weight?
NEO: The one backed by data. The rest build on it.
AURA: And what should a listener take away?
NEO: Read the sources, test the argument, and keep asking questions.`

type mockGenerator struct {
	script string
}

// NewMockGenerator returns a generator that always answers with script, or a
// short built-in dialogue when script is empty.
func NewMockGenerator(script string) Generator {
	if script == "" {
		script = mockDialogue
	}
	return &mockGenerator{script: script}
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return consumer(Chunk{
		Content: m.script,
		Partial: false,
		Latency: 20 * time.Millisecond,
		TraceID: req.TraceID,
	})
}
