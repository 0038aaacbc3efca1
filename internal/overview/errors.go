package overview

import (
	"errors"
	"fmt"
)

var (
	ErrSummaryRequired     = errors.New("summary is required")
	ErrTextRequired        = errors.New("segment text is required")
	ErrUnknownSpeaker      = errors.New("unknown speaker")
	ErrSegmentIndex        = errors.New("segment index out of range")
	ErrProviderUnavailable = errors.New("text-to-speech provider unavailable")
	ErrGenerationInFlight  = errors.New("audio overview generation already in progress")
	ErrNotFound            = errors.New("audio overview not found")
)

// ConfigurationError reports a required provider credential or setting that
// is missing. No work is attempted when it is returned.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s is not configured: %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("%s is not configured", e.Setting)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamGenerationError reports a failed dialogue request.
type UpstreamGenerationError struct {
	Err error
}

func (e *UpstreamGenerationError) Error() string {
	return fmt.Sprintf("failed to generate dialogue: %v", e.Err)
}

func (e *UpstreamGenerationError) Unwrap() error { return e.Err }

// SegmentSynthesisError is the failure of a single segment. It is recorded on
// the segment and never aborts the batch.
type SegmentSynthesisError struct {
	Speaker Speaker
	Err     error
}

func (e *SegmentSynthesisError) Error() string {
	return e.Err.Error()
}

func (e *SegmentSynthesisError) Unwrap() error { return e.Err }
