package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const streamChunkSize = 32 * 1024

// ElevenLabsOptions configures the ElevenLabs text-to-speech client.
type ElevenLabsOptions struct {
	Endpoint        string
	APIKey          string
	ModelID         string
	OutputFormat    string
	Stability       float64
	SimilarityBoost float64
	HTTPClient      *http.Client
}

type elevenLabs struct {
	opts   ElevenLabsOptions
	client *http.Client
}

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id,omitempty"`
	VoiceSettings elevenVoiceSetting `json:"voice_settings"`
}

type elevenVoiceSetting struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// NewElevenLabs returns a Synthesizer backed by the ElevenLabs REST API. A
// missing API key yields ErrUnavailable.
func NewElevenLabs(opts ElevenLabsOptions) (Synthesizer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs api key not configured: %w", ErrUnavailable)
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	return &elevenLabs{opts: opts, client: client}, nil
}

func (e *elevenLabs) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := e.do(ctx, req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		buf := make([]byte, streamChunkSize)
		sequence := 0
		for {
			n, readErr := io.ReadFull(resp.Body, buf)
			final := readErr == io.EOF || readErr == io.ErrUnexpectedEOF
			if readErr != nil && !final {
				errs <- fmt.Errorf("read elevenlabs audio: %w", readErr)
				return
			}
			if n > 0 || final {
				chunk := SynthChunk{Sequence: sequence, Audio: append([]byte(nil), buf[:n]...), Final: final}
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
				sequence++
			}
			if final {
				return
			}
		}
	}()
	return chunks, errs
}

func (e *elevenLabs) do(ctx context.Context, req SynthRequest) (*http.Response, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("empty text")
	}
	body, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: e.opts.ModelID,
		VoiceSettings: elevenVoiceSetting{
			Stability:       e.opts.Stability,
			SimilarityBoost: e.opts.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", e.opts.Endpoint, url.PathEscape(req.Voice))
	if e.opts.OutputFormat != "" {
		endpoint += "?output_format=" + url.QueryEscape(e.opts.OutputFormat)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("xi-api-key", e.opts.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		perr := &ProviderError{Provider: "elevenlabs", Status: resp.StatusCode, Message: string(msg)}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, perr)
		}
		return nil, perr
	}
	return resp, nil
}
