package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/synapse-audio/internal/config"
)

// ErrUnavailable marks failures that affect every request to a provider,
// such as a missing or rejected credential.
var ErrUnavailable = errors.New("tts provider unavailable")

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	Text  string
	Voice string
}

// SynthChunk carries a slice of encoded audio.
type SynthChunk struct {
	Sequence int
	Audio    []byte
	Final    bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// ProviderError describes a non-2xx answer from a speech provider.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, msg)
}

// Collect drains a synthesis stream into a single audio buffer.
func Collect(ctx context.Context, s Synthesizer, req SynthRequest) ([]byte, error) {
	chunks, errs := s.Synthesize(ctx, req)
	var buf bytes.Buffer
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			buf.Write(chunk.Audio)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if buf.Len() == 0 {
		return nil, errors.New("tts provider returned no audio")
	}
	return buf.Bytes(), nil
}

// FromConfig builds the synthesizer selected by cfg.Mode, wrapped in a rate
// limiter when one is configured.
func FromConfig(cfg config.TTSConfig) (Synthesizer, error) {
	var (
		synth Synthesizer
		err   error
	)
	switch cfg.Mode {
	case "elevenlabs":
		synth, err = NewElevenLabs(ElevenLabsOptions{
			Endpoint:        cfg.Endpoint,
			APIKey:          cfg.APIKey,
			ModelID:         cfg.ModelID,
			OutputFormat:    cfg.OutputFormat,
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
		})
	case "exec":
		synth, err = NewExecSynth(cfg.Command)
	case "mock":
		synth = NewMockSynth()
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond > 0 {
		synth = NewRateLimited(synth, cfg.RequestsPerSecond, cfg.Burst)
	}
	return synth, nil
}
