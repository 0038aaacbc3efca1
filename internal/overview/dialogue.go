package overview

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/loqalabs/synapse-audio/internal/config"
)

// Cast maps each speaker to its dialogue label and synthesis voice.
type Cast struct {
	Labels [2]string
	Voices VoiceTable
}

// VoiceTable maps speakers to provider voice identifiers.
type VoiceTable map[Speaker]string

func (v VoiceTable) VoiceFor(s Speaker) (string, error) {
	voice, ok := v[s]
	if !ok || voice == "" {
		return "", fmt.Errorf("%w: no voice for speaker %s", ErrUnknownSpeaker, s)
	}
	return voice, nil
}

func CastFromConfig(cfg config.OverviewConfig) Cast {
	return Cast{
		Labels: [2]string{cfg.SpeakerA.Label, cfg.SpeakerB.Label},
		Voices: VoiceTable{
			SpeakerA: cfg.SpeakerA.VoiceID,
			SpeakerB: cfg.SpeakerB.VoiceID,
		},
	}
}

func (c Cast) Label(s Speaker) string {
	if !s.Valid() {
		return ""
	}
	return c.Labels[s]
}

// ResolveSpeaker accepts either the canonical "A"/"B" form or a configured
// label such as "NEO".
func (c Cast) ResolveSpeaker(raw string) (Speaker, error) {
	raw = strings.TrimSpace(raw)
	for _, s := range []Speaker{SpeakerA, SpeakerB} {
		if strings.EqualFold(raw, c.Labels[s]) {
			return s, nil
		}
	}
	return ParseSpeaker(raw)
}

// Line is a recognized dialogue turn before synthesis.
type Line struct {
	Speaker Speaker
	Text    string
}

const systemPromptTemplate = `You are Synapse Audio Engine. Generate a podcast-style conversation between two AIs.

PARTICIPANTS:
- %[1]s (Curious Host) asks deep, engaging questions
- %[2]s (Expert Analyst) answers using insights and data

REQUIREMENTS:
1. Create 10-12 dialogue exchanges
2. %[1]s asks thoughtful questions about the topic
3. %[2]s provides expert analysis with real insights from the content
4. Keep the tone conversational yet intelligent
5. Use statistics or references naturally when relevant
6. End with a reflective or motivational conclusion
7. Format EXACTLY as "%[1]s: [question]" on one line and "%[2]s: [answer]" on the next line
8. Do not include emojis, markdown or any other decorative symbols
9. Each speaker's line must be on a separate line`

// SystemPrompt renders the dialogue instructions for the cast.
func (c Cast) SystemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, c.Labels[SpeakerA], c.Labels[SpeakerB])
}

func userPrompt(summary string) string {
	return "Create a podcast dialogue about:\n\n" + summary
}

// ParseDialogue splits dialogue text into recognized speaker turns, in order.
// Lines that carry neither label, or carry a label with nothing to say, are
// dropped.
func ParseDialogue(text string, cast Cast) []Line {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		speaker, spoken, ok := classify(line, cast)
		if !ok {
			continue
		}
		lines = append(lines, Line{Speaker: speaker, Text: spoken})
	}
	return lines
}

func classify(line string, cast Cast) (Speaker, string, bool) {
	body := stripMarker(line)
	// Longest label first so one label being a prefix of the other is safe.
	order := []Speaker{SpeakerA, SpeakerB}
	if len(cast.Labels[SpeakerB]) > len(cast.Labels[SpeakerA]) {
		order = []Speaker{SpeakerB, SpeakerA}
	}
	for _, s := range order {
		rest, ok := cutLabel(body, cast.Labels[s])
		if !ok {
			continue
		}
		spoken := cleanSpoken(rest)
		if spoken == "" {
			return 0, "", false
		}
		return s, spoken, true
	}
	return 0, "", false
}

// stripMarker removes leading emoji, bullets, emphasis and list numbering.
func stripMarker(s string) string {
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(s) || (s[i] != '.' && s[i] != ')') {
			return s
		}
		s = s[i+1:]
	}
}

// cutLabel matches label case-insensitively at the start of s, allowing
// emphasis markers around it, and returns the text after the colon.
func cutLabel(s, label string) (string, bool) {
	if label == "" {
		return "", false
	}
	n, ok := prefixFold(s, label)
	if !ok {
		return "", false
	}
	rest := strings.TrimLeft(s[n:], "*_ ")
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return rest[1:], true
}

// prefixFold reports whether s starts with prefix under Unicode case folding
// and how many bytes of s the match consumed.
func prefixFold(s, prefix string) (int, bool) {
	n := 0
	for _, want := range prefix {
		got, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !strings.EqualFold(string(got), string(want)) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func cleanSpoken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_")
	return strings.TrimSpace(s)
}
