package tts

import (
	"context"
	"time"
)

// mockSynth returns a fixed header followed by the request text, which is
// enough for tests and for exercising the pipeline without a provider.
type mockSynth struct{}

func NewMockSynth() Synthesizer {
	return &mockSynth{}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(10 * time.Millisecond):
		}
		audio := append([]byte("ID3|"+req.Voice+"|"), req.Text...)
		chunks <- SynthChunk{Sequence: 0, Audio: audio, Final: true}
	}()
	return chunks, errs
}
