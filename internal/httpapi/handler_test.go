package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/synapse-audio/internal/llm"
	"github.com/loqalabs/synapse-audio/internal/overview"
	"github.com/loqalabs/synapse-audio/internal/tts"
)

const dialogue = "AURA: First question?\nNEO: First answer.\nAURA: Second question?"

type stubGenerator struct {
	err error
}

func (g stubGenerator) Generate(ctx context.Context, req llm.Request, consumer func(llm.Chunk) error) error {
	if g.err != nil {
		return g.err
	}
	return consumer(llm.Chunk{Content: dialogue})
}

type memRecorder struct {
	saved map[string]*overview.Overview
}

func (m *memRecorder) SaveOverview(ctx context.Context, ov *overview.Overview) error {
	cp := *ov
	cp.Segments = append([]overview.Segment(nil), ov.Segments...)
	m.saved[ov.ID] = &cp
	return nil
}

func (m *memRecorder) ReplaceSegment(ctx context.Context, id string, index int, seg overview.Segment) error {
	ov, ok := m.saved[id]
	if !ok {
		return overview.ErrNotFound
	}
	return ov.Replace(index, seg)
}

func (m *memRecorder) LoadOverview(ctx context.Context, id string) (*overview.Overview, error) {
	ov, ok := m.saved[id]
	if !ok {
		return nil, overview.ErrNotFound
	}
	return ov, nil
}

func newServer(t *testing.T, gen llm.Generator, synth tts.Synthesizer) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cast := overview.Cast{
		Labels: [2]string{"AURA", "NEO"},
		Voices: overview.VoiceTable{overview.SpeakerA: "voice-a", overview.SpeakerB: "voice-b"},
	}
	pipeline := overview.NewPipeline(overview.Options{
		Generator:   gen,
		Synthesizer: synth,
		Cast:        cast,
		Logger:      logger,
	})
	studio := overview.NewStudio(pipeline, &memRecorder{saved: map[string]*overview.Overview{}}, nil, logger)

	mux := http.NewServeMux()
	New(studio, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGenerateOverview(t *testing.T) {
	srv := newServer(t, stubGenerator{}, tts.NewMockSynth())

	resp := post(t, srv.URL+"/v1/audio-overviews", `{"summary":"solar power","notebook_id":"nb-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}

	var body overview.OverviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Transcript != dialogue || body.Dialogue != dialogue {
		t.Fatalf("transcript not returned: %+v", body)
	}
	if body.Succeeded != 3 || body.Failed != 0 || len(body.Segments) != 3 {
		t.Fatalf("unexpected counts: %+v", body)
	}
	want := []byte("ID3|voice-b|First answer.")
	if !bytes.Equal(body.Segments[1].Audio, want) {
		t.Fatalf("audio = %q, want %q", body.Segments[1].Audio, want)
	}

	get, err := http.Get(srv.URL + "/v1/audio-overviews/" + body.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer get.Body.Close()
	if get.StatusCode != http.StatusOK {
		t.Fatalf("stored overview status %d", get.StatusCode)
	}
}

func TestGenerateWithoutSynthesizer(t *testing.T) {
	srv := newServer(t, stubGenerator{}, nil)

	resp := post(t, srv.URL+"/v1/audio-overviews", `{"summary":"solar power"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var body overview.OverviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.ProviderUnavailable || len(body.Segments) != 0 || body.Transcript == "" {
		t.Fatalf("expected transcript-only response: %+v", body)
	}
}

func TestErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		gen    llm.Generator
		path   string
		body   string
		status int
	}{
		{"missing summary", stubGenerator{}, "/v1/audio-overviews", `{"summary":""}`, http.StatusBadRequest},
		{"malformed body", stubGenerator{}, "/v1/audio-overviews", `{"summary":`, http.StatusBadRequest},
		{"no generator", nil, "/v1/audio-overviews", `{"summary":"x"}`, http.StatusInternalServerError},
		{"upstream failure", stubGenerator{err: errors.New("gateway 429")}, "/v1/audio-overviews", `{"summary":"x"}`, http.StatusBadGateway},
		{"retry without text", stubGenerator{}, "/v1/audio-overviews/segments/retry", `{"speaker":"AURA","text":""}`, http.StatusBadRequest},
		{"retry unknown speaker", stubGenerator{}, "/v1/audio-overviews/segments/retry", `{"speaker":"HOST","text":"hi"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.gen, tts.NewMockSynth())
			resp := post(t, srv.URL+tc.path, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == "" {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestRetrySegment(t *testing.T) {
	srv := newServer(t, stubGenerator{}, tts.NewMockSynth())

	resp := post(t, srv.URL+"/v1/audio-overviews/segments/retry", `{"speaker":"NEO","text":"Once more."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var body overview.RetryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != overview.StatusSuccess || string(body.Audio) != "ID3|voice-b|Once more." {
		t.Fatalf("unexpected retry response: %+v", body)
	}
}

func TestGetMissingOverview(t *testing.T) {
	srv := newServer(t, stubGenerator{}, tts.NewMockSynth())
	resp, err := http.Get(srv.URL + "/v1/audio-overviews/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPreflight(t *testing.T) {
	srv := newServer(t, stubGenerator{}, tts.NewMockSynth())
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/v1/audio-overviews", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("unexpected preflight response: %d %v", resp.StatusCode, resp.Header)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{overview.ErrGenerationInFlight, http.StatusConflict},
		{overview.ErrNotFound, http.StatusNotFound},
		{overview.ErrSegmentIndex, http.StatusBadRequest},
		{&overview.ConfigurationError{Setting: "llm.api_key"}, http.StatusInternalServerError},
		{&overview.UpstreamGenerationError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
