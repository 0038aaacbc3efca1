package overview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Speaker identifies one of the two dialogue voices.
type Speaker int

const (
	SpeakerA Speaker = iota
	SpeakerB
)

func (s Speaker) String() string {
	switch s {
	case SpeakerA:
		return "A"
	case SpeakerB:
		return "B"
	default:
		return fmt.Sprintf("Speaker(%d)", int(s))
	}
}

func (s Speaker) Valid() bool { return s == SpeakerA || s == SpeakerB }

func (s Speaker) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSpeaker, int(s))
	}
	return json.Marshal(s.String())
}

func (s *Speaker) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSpeaker(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSpeaker accepts the canonical "A"/"B" form.
func ParseSpeaker(raw string) (Speaker, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "A":
		return SpeakerA, nil
	case "B":
		return SpeakerB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSpeaker, raw)
}

// Status is the synthesis outcome of a segment.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Segment is one speaker turn plus its synthesis outcome. Audio is set only
// on success and Error only on failure.
type Segment struct {
	Speaker Speaker `json:"speaker"`
	Label   string  `json:"label,omitempty"`
	Text    string  `json:"text"`
	Status  Status  `json:"status"`
	Audio   []byte  `json:"audio,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func Pending(speaker Speaker, label, text string) Segment {
	return Segment{Speaker: speaker, Label: label, Text: text, Status: StatusPending}
}

// Succeeded takes ownership of audio.
func Succeeded(speaker Speaker, label, text string, audio []byte) Segment {
	return Segment{Speaker: speaker, Label: label, Text: text, Status: StatusSuccess, Audio: audio}
}

func Failed(speaker Speaker, label, text, reason string) Segment {
	if reason == "" {
		reason = "synthesis failed"
	}
	return Segment{Speaker: speaker, Label: label, Text: text, Status: StatusFailed, Error: reason}
}

// Validate checks the status/audio/error invariant.
func (s Segment) Validate() error {
	if !s.Speaker.Valid() {
		return ErrUnknownSpeaker
	}
	switch s.Status {
	case StatusSuccess:
		if len(s.Audio) == 0 || s.Error != "" {
			return errors.New("successful segment must carry audio and no error")
		}
	case StatusFailed:
		if len(s.Audio) != 0 || s.Error == "" {
			return errors.New("failed segment must carry an error and no audio")
		}
	case StatusPending:
		if len(s.Audio) != 0 || s.Error != "" {
			return errors.New("pending segment must not carry audio or error")
		}
	default:
		return fmt.Errorf("unknown segment status %q", s.Status)
	}
	return nil
}

func (s Segment) Playable() bool {
	return s.Status == StatusSuccess && len(s.Audio) > 0
}

// Overview is the result of one generation request.
type Overview struct {
	ID                  string    `json:"id"`
	NotebookID          string    `json:"notebook_id,omitempty"`
	Dialogue            string    `json:"dialogue"`
	Segments            []Segment `json:"segments"`
	ProviderUnavailable bool      `json:"provider_unavailable,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Replace swaps the segment at index for seg, leaving siblings untouched.
func (o *Overview) Replace(index int, seg Segment) error {
	if index < 0 || index >= len(o.Segments) {
		return fmt.Errorf("%w: %d of %d", ErrSegmentIndex, index, len(o.Segments))
	}
	if err := seg.Validate(); err != nil {
		return err
	}
	o.Segments[index] = seg
	return nil
}

// Counts returns the number of successful and failed segments.
func (o *Overview) Counts() (succeeded, failed int) {
	for _, seg := range o.Segments {
		switch seg.Status {
		case StatusSuccess:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	return succeeded, failed
}
