package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/loqalabs/synapse-audio/internal/overview"
	"github.com/loqalabs/synapse-audio/internal/playback"
)

const (
	tickInterval = 250 * time.Millisecond
	scrubStep    = 5.0
	volumeStep   = 10
)

type overviewAPI interface {
	Generate(ctx context.Context, notebookID, summary string) (*overview.Overview, error)
	Retry(ctx context.Context, overviewID string, index int, seg overview.Segment) (overview.Segment, error)
}

type overviewMsg struct {
	overview *overview.Overview
}

type retryMsg struct {
	index   int
	segment overview.Segment
}

type errorMsg struct {
	err error
}

type tickMsg time.Time

type endedMsg struct{}

type model struct {
	api        overviewAPI
	ctrl       *playback.Controller
	ended      <-chan struct{}
	timeout    time.Duration
	notebookID string
	summary    string

	overview   *overview.Overview
	cursor     int
	snap       playback.Snapshot
	spinner    spinner.Model
	progress   progress.Model
	loading    bool
	loadingMsg string
	statuses   []string
	errorMsg   string
	notice     string
	quitting   bool
}

func newModel(api overviewAPI, ctrl *playback.Controller, ended <-chan struct{}, notebookID, summary string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return model{
		api:        api,
		ctrl:       ctrl,
		ended:      ended,
		timeout:    3 * time.Minute,
		notebookID: notebookID,
		summary:    summary,
		snap:       ctrl.Snapshot(),
		spinner:    s,
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		loading:    true,
		loadingMsg: "Generating audio overview...",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.generateCmd(), waitEnded(m.ended), tick())
}

func (m model) generateCmd() tea.Cmd {
	api, timeout, notebookID, summary := m.api, m.timeout, m.notebookID, m.summary
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ov, err := api.Generate(ctx, notebookID, summary)
		if err != nil {
			return errorMsg{err}
		}
		return overviewMsg{ov}
	}
}

func (m model) retryCmd(index int) tea.Cmd {
	api, timeout := m.api, m.timeout
	overviewID, seg := m.overview.ID, m.overview.Segments[index]
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out, err := api.Retry(ctx, overviewID, index, seg)
		if err != nil {
			return errorMsg{err}
		}
		return retryMsg{index: index, segment: out}
	}
}

func waitEnded(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return endedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case overviewMsg:
		m.loading = false
		m.errorMsg = ""
		m.overview = msg.overview
		succeeded, failed := m.overview.Counts()
		switch {
		case m.overview.ProviderUnavailable:
			m.notice = "Text-to-speech is unavailable; showing the transcript only."
		case failed > 0:
			m.notice = fmt.Sprintf("%d of %d segments failed. Select one with ↑/↓ and press r to retry.", failed, succeeded+failed)
		default:
			m.notice = ""
		}
		m.statuses = append(m.statuses, fmt.Sprintf("Generated %d segments.", succeeded+failed))
		m.cursor = max(m.nextFailed(0), 0)
		m.apply(m.ctrl.Load(m.overview.Segments))
		return m, nil

	case retryMsg:
		m.loading = false
		if err := m.overview.Replace(msg.index, msg.segment); err != nil {
			m.errorMsg = err.Error()
			return m, nil
		}
		if msg.segment.Status == overview.StatusSuccess {
			m.statuses = append(m.statuses, fmt.Sprintf("Segment %d recovered.", msg.index+1))
			m.apply(m.ctrl.Refresh(m.overview.Segments))
			if next := m.nextFailed(msg.index); next >= 0 {
				m.cursor = next
			}
		} else {
			m.statuses = append(m.statuses, fmt.Sprintf("Segment %d failed again: %s", msg.index+1, msg.segment.Error))
		}
		if _, failed := m.overview.Counts(); failed == 0 {
			m.notice = ""
		}
		return m, nil

	case errorMsg:
		m.loading = false
		m.errorMsg = msg.err.Error()
		return m, nil

	case endedMsg:
		m.apply(m.ctrl.AudioEnded())
		return m, waitEnded(m.ended)

	case tickMsg:
		if m.snap.State == playback.Playing {
			m.apply(m.ctrl.TimeUpdate())
		}
		return m, tick()

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}
	if m.loading {
		return m, nil
	}

	switch msg.String() {
	case " ":
		m.apply(m.ctrl.TogglePlay())
	case "n":
		m.apply(m.ctrl.Next())
	case "p":
		m.apply(m.ctrl.Previous())
	case "right":
		m.apply(m.ctrl.Scrub(m.snap.ProgressPercent + scrubStep))
	case "left":
		m.apply(m.ctrl.Scrub(m.snap.ProgressPercent - scrubStep))
	case "+", "=":
		m.apply(m.ctrl.SetVolume(m.snap.VolumePercent + volumeStep))
	case "-":
		m.apply(m.ctrl.SetVolume(m.snap.VolumePercent - volumeStep))
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.overview != nil && m.cursor < len(m.overview.Segments)-1 {
			m.cursor++
		}
	case "r":
		if m.overview == nil || m.cursor >= len(m.overview.Segments) {
			return m, nil
		}
		if m.overview.Segments[m.cursor].Status != overview.StatusFailed {
			m.errorMsg = fmt.Sprintf("Segment %d already has audio.", m.cursor+1)
			return m, nil
		}
		m.errorMsg = ""
		m.loading = true
		m.loadingMsg = fmt.Sprintf("Retrying segment %d...", m.cursor+1)
		return m, tea.Batch(m.spinner.Tick, m.retryCmd(m.cursor))
	case "g":
		m.loading = true
		m.loadingMsg = "Regenerating audio overview..."
		m.statuses = nil
		return m, tea.Batch(m.spinner.Tick, m.generateCmd())
	}
	return m, nil
}

func (m *model) apply(snap playback.Snapshot, err error) {
	m.snap = snap
	if err != nil {
		m.errorMsg = err.Error()
	}
}

// nextFailed returns the first failed segment at or after from, wrapping
// around, or -1 when none failed.
func (m model) nextFailed(from int) int {
	if m.overview == nil {
		return -1
	}
	n := len(m.overview.Segments)
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if m.overview.Segments[idx].Status == overview.StatusFailed {
			return idx
		}
	}
	return -1
}

func (m model) View() string {
	if m.quitting {
		return styleOutput(m.statuses)
	}

	var b strings.Builder
	b.WriteString(styleOutput(m.statuses))
	if m.errorMsg != "" {
		b.WriteString(BulletStyle.Render("├") + ErrorStyle.Render(m.errorMsg) + "\n")
	}
	if m.loading {
		b.WriteString(m.spinner.View() + m.loadingMsg + "\n")
		return b.String()
	}
	if m.overview == nil {
		b.WriteString("Press 'g' to retry or 'q' to quit\n")
		return b.String()
	}
	if m.notice != "" {
		b.WriteString(BulletStyle.Render("├") + NoticeStyle.Render(m.notice) + "\n")
	}

	current := -1
	if m.snap.CurrentIndex >= 0 {
		current = m.ctrl.OverviewIndex()
	}
	if len(m.overview.Segments) == 0 {
		for _, line := range strings.Split(strings.TrimSpace(m.overview.Dialogue), "\n") {
			b.WriteString("  " + TextStyle.Render(line) + "\n")
		}
	}
	for i, seg := range m.overview.Segments {
		b.WriteString(renderSegment(seg, i == current, i == m.cursor) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(m.snap.ProgressPercent/100) + "\n")
	b.WriteString(DimTextStyle.Render(fmt.Sprintf("%s  segment %d/%d  volume %d%%",
		m.snap.State, m.snap.CurrentIndex+1, m.snap.Playlist, m.snap.VolumePercent)) + "\n")
	b.WriteString(DimTextStyle.Render("space play/pause • n/p next/prev • ←/→ seek • +/- volume • ↑/↓ select • r retry • g regenerate • q quit") + "\n")
	return b.String()
}

func renderSegment(seg overview.Segment, current, selected bool) string {
	label := seg.Label
	if label == "" {
		label = seg.Speaker.String()
	}
	style := SpeakerAStyle
	if seg.Speaker == overview.SpeakerB {
		style = SpeakerBStyle
	}

	cursor := " "
	if selected {
		cursor = CurrentStyle.Render("›")
	}
	marker := "  "
	if current {
		marker = CurrentStyle.Render("▶ ")
	}
	marker = cursor + marker
	line := marker + style.Render(label+":") + " " + TextStyle.Render(truncate(seg.Text, 72))
	if seg.Status == overview.StatusFailed {
		line += " " + ErrorStyle.Render("✗ "+seg.Error)
	}
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func styleOutput(statuses []string) string {
	var b strings.Builder
	for _, status := range statuses {
		b.WriteString(BulletStyle.Render("├") + SuccessStyle.Render(status) + "\n")
	}
	return b.String()
}
