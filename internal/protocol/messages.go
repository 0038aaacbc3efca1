package protocol

import "time"

// GenerateRequest asks the runtime to build an audio overview from a summary.
type GenerateRequest struct {
	NotebookID string `json:"notebook_id,omitempty"`
	Summary    string `json:"summary"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RetryRequest re-synthesizes a single segment. OverviewID and Index are
// optional and only used to persist the splice server-side.
type RetryRequest struct {
	Speaker    string `json:"speaker"`
	Text       string `json:"text"`
	OverviewID string `json:"overview_id,omitempty"`
	Index      *int   `json:"index,omitempty"`
}

// SegmentEvent is broadcast after each segment synthesis attempt.
type SegmentEvent struct {
	OverviewID string    `json:"overview_id"`
	NotebookID string    `json:"notebook_id,omitempty"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Speaker    string    `json:"speaker"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Retry      bool      `json:"retry,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// OverviewDone is broadcast once a generation request finishes.
type OverviewDone struct {
	OverviewID          string    `json:"overview_id"`
	NotebookID          string    `json:"notebook_id,omitempty"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	ProviderUnavailable bool      `json:"provider_unavailable,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// ErrorReply is returned on request/reply subjects when a request fails.
type ErrorReply struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const (
	SubjectOverviewGenerate = "overview.generate"
	SubjectSegmentRetry     = "overview.segment.retry"
	SubjectSegmentResult    = "overview.segment.result"
	SubjectOverviewDone     = "overview.done"
)
