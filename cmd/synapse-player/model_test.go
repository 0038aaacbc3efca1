package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/loqalabs/synapse-audio/internal/overview"
	"github.com/loqalabs/synapse-audio/internal/playback"
)

type nopElement struct {
	playing bool
}

func (e *nopElement) Load([]byte) error        { e.playing = false; return nil }
func (e *nopElement) Play() error              { e.playing = true; return nil }
func (e *nopElement) Pause() error             { e.playing = false; return nil }
func (e *nopElement) Seek(time.Duration) error { return nil }
func (e *nopElement) SetVolume(int) error      { return nil }
func (e *nopElement) Duration() time.Duration  { return time.Second }
func (e *nopElement) Position() time.Duration  { return 0 }

type stubAPI struct {
	retried []int
}

func (s *stubAPI) Generate(ctx context.Context, notebookID, summary string) (*overview.Overview, error) {
	return nil, errors.New("not used")
}

func (s *stubAPI) Retry(ctx context.Context, overviewID string, index int, seg overview.Segment) (overview.Segment, error) {
	s.retried = append(s.retried, index)
	return overview.Succeeded(seg.Speaker, seg.Label, seg.Text, []byte("retried")), nil
}

func sampleOverview() *overview.Overview {
	return &overview.Overview{
		ID:       "ov-1",
		Dialogue: "AURA: one\nNEO: two\nAURA: three",
		Segments: []overview.Segment{
			overview.Succeeded(overview.SpeakerA, "AURA", "one", []byte("a1")),
			overview.Failed(overview.SpeakerB, "NEO", "two", "quota exceeded"),
			overview.Succeeded(overview.SpeakerA, "AURA", "three", []byte("a3")),
		},
	}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelPlaysAndRetries(t *testing.T) {
	el := &nopElement{}
	api := &stubAPI{}
	m := newModel(api, playback.NewController(el), nil, "", "summary")

	m, _ = update(t, m, overviewMsg{sampleOverview()})
	if m.loading || m.snap.State != playback.Ready || m.snap.Playlist != 2 {
		t.Fatalf("unexpected state after load: %+v", m.snap)
	}
	if !strings.Contains(m.notice, "1 of 3 segments failed") {
		t.Fatalf("expected partial failure notice, got %q", m.notice)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if m.snap.State != playback.Playing || !el.playing {
		t.Fatalf("space should start playback, got %+v", m.snap)
	}

	m, _ = update(t, m, runes("n"))
	if m.snap.CurrentIndex != 1 || m.snap.State != playback.Ready {
		t.Fatalf("next should move to the second playable segment, got %+v", m.snap)
	}

	m, cmd := update(t, m, runes("r"))
	if !m.loading || cmd == nil {
		t.Fatal("retry should start a command")
	}
	msg := m.retryCmd(1)()
	m, _ = update(t, m, msg)
	if len(api.retried) == 0 || api.retried[0] != 1 {
		t.Fatalf("expected retry of index 1, got %v", api.retried)
	}
	if m.snap.Playlist != 3 || m.ctrl.OverviewIndex() != 2 {
		t.Fatalf("playlist should include the recovered segment and keep the current one: %+v", m.snap)
	}
	if m.notice != "" {
		t.Fatalf("notice should clear once nothing is failing, got %q", m.notice)
	}
	if !strings.Contains(m.View(), "two") {
		t.Fatal("view should list the recovered segment")
	}
}

func TestModelTranscriptOnly(t *testing.T) {
	m := newModel(&stubAPI{}, playback.NewController(&nopElement{}), nil, "", "summary")
	ov := &overview.Overview{ID: "ov-2", Dialogue: "AURA: hello\nNEO: hi", Segments: []overview.Segment{}, ProviderUnavailable: true}

	m, _ = update(t, m, overviewMsg{ov})
	if m.snap.State != playback.Idle {
		t.Fatalf("expected idle without audio, got %+v", m.snap)
	}
	view := m.View()
	if !strings.Contains(view, "transcript only") || !strings.Contains(view, "NEO: hi") {
		t.Fatalf("expected transcript fallback, got %q", view)
	}
}

func TestModelShowsErrors(t *testing.T) {
	m := newModel(&stubAPI{}, playback.NewController(&nopElement{}), nil, "", "summary")
	m, _ = update(t, m, errorMsg{errors.New("server returned status 409")})
	if m.loading || !strings.Contains(m.View(), "409") {
		t.Fatalf("error should be rendered, got %q", m.View())
	}
}

func TestModelRetriesSelectedSegment(t *testing.T) {
	api := &stubAPI{}
	m := newModel(api, playback.NewController(&nopElement{}), nil, "", "summary")
	ov := &overview.Overview{
		ID:       "ov-3",
		Dialogue: "AURA: one\nNEO: two\nAURA: three",
		Segments: []overview.Segment{
			overview.Failed(overview.SpeakerA, "AURA", "one", "quota exceeded"),
			overview.Succeeded(overview.SpeakerB, "NEO", "two", []byte("a2")),
			overview.Failed(overview.SpeakerA, "AURA", "three", "quota exceeded"),
		},
	}

	m, _ = update(t, m, overviewMsg{ov})
	if m.cursor != 0 {
		t.Fatalf("cursor should start on the first failed segment, got %d", m.cursor)
	}

	m, _ = update(t, m, runes("j"))
	m, cmd := update(t, m, runes("r"))
	if cmd != nil || m.loading || !strings.Contains(m.errorMsg, "Segment 2") {
		t.Fatalf("retry on a segment with audio should be refused, got loading=%v err=%q", m.loading, m.errorMsg)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 2 {
		t.Fatalf("cursor should stop at the last segment, got %d", m.cursor)
	}
	m, cmd = update(t, m, runes("r"))
	if cmd == nil || !m.loading || !strings.Contains(m.loadingMsg, "segment 3") {
		t.Fatalf("retry should start for the selected segment, got %q", m.loadingMsg)
	}
	if m.errorMsg != "" {
		t.Fatalf("starting a retry should clear the previous error, got %q", m.errorMsg)
	}

	m, _ = update(t, m, m.retryCmd(m.cursor)())
	if len(api.retried) != 1 || api.retried[0] != 2 {
		t.Fatalf("expected retry of index 2, got %v", api.retried)
	}
	if m.cursor != 0 {
		t.Fatalf("cursor should wrap to the remaining failed segment, got %d", m.cursor)
	}
	if ov.Segments[0].Status != overview.StatusFailed || ov.Segments[2].Status != overview.StatusSuccess {
		t.Fatalf("only the selected segment should recover: %+v", ov.Segments)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.cursor != 0 {
		t.Fatalf("cursor should not move above the first segment, got %d", m.cursor)
	}
}
