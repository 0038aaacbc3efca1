package overview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/synapse-audio/internal/llm"
	"github.com/loqalabs/synapse-audio/internal/tts"
)

func testCast() Cast {
	return Cast{
		Labels: [2]string{"AURA", "NEO"},
		Voices: VoiceTable{SpeakerA: "voice-a", SpeakerB: "voice-b"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fakeGenerator struct {
	text    string
	err     error
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	prompts []llm.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req llm.Request, consumer func(llm.Chunk) error) error {
	g.mu.Lock()
	g.prompts = append(g.prompts, req)
	g.mu.Unlock()

	if g.started != nil {
		select {
		case g.started <- struct{}{}:
		default:
		}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if g.err != nil {
		return g.err
	}
	return consumer(llm.Chunk{Content: g.text})
}

// fakeSynth returns "audio:<voice>:<text>" unless fail reports an error for
// the text.
type fakeSynth struct {
	mu    sync.Mutex
	fail  func(text string) error
	calls []tts.SynthRequest
}

func (s *fakeSynth) Synthesize(ctx context.Context, req tts.SynthRequest) (<-chan tts.SynthChunk, <-chan error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	fail := s.fail
	s.mu.Unlock()

	chunks := make(chan tts.SynthChunk, 2)
	errs := make(chan error, 1)
	if fail != nil {
		if err := fail(req.Text); err != nil {
			errs <- err
			close(chunks)
			close(errs)
			return chunks, errs
		}
	}
	chunks <- tts.SynthChunk{Sequence: 0, Audio: []byte("audio:" + req.Voice + ":")}
	chunks <- tts.SynthChunk{Sequence: 1, Audio: []byte(req.Text), Final: true}
	close(chunks)
	close(errs)
	return chunks, errs
}

func (s *fakeSynth) setFail(fn func(text string) error) {
	s.mu.Lock()
	s.fail = fn
	s.mu.Unlock()
}

func (s *fakeSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type published struct {
	subject string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) PublishJSON(subject string, v any) error {
	p.mu.Lock()
	p.events = append(p.events, published{subject: subject, payload: v})
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.subject)
	}
	return out
}

type memRecorder struct {
	mu        sync.Mutex
	overviews map[string]*Overview
}

func newMemRecorder() *memRecorder {
	return &memRecorder{overviews: make(map[string]*Overview)}
}

func (r *memRecorder) SaveOverview(ctx context.Context, ov *Overview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ov
	cp.Segments = append([]Segment(nil), ov.Segments...)
	r.overviews[ov.ID] = &cp
	return nil
}

func (r *memRecorder) ReplaceSegment(ctx context.Context, overviewID string, index int, seg Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ov, ok := r.overviews[overviewID]
	if !ok {
		return ErrNotFound
	}
	return ov.Replace(index, seg)
}

func (r *memRecorder) LoadOverview(ctx context.Context, id string) (*Overview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ov, ok := r.overviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ov
	cp.Segments = append([]Segment(nil), ov.Segments...)
	return &cp, nil
}

func newTestPipeline(gen llm.Generator, synth tts.Synthesizer, pub Publisher) *Pipeline {
	return NewPipeline(Options{
		Generator:   gen,
		Synthesizer: synth,
		Cast:        testCast(),
		Publisher:   pub,
		Logger:      discardLogger(),
		Clock:       func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID:       func() string { return "ov-1" },
	})
}

var errBoom = errors.New("boom")
