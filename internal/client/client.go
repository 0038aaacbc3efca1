package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loqalabs/synapse-audio/internal/overview"
)

// Client talks to a synapsed HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		// Generation runs one synthesis call per line.
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Generate requests a new audio overview for summary.
func (c *Client) Generate(ctx context.Context, notebookID, summary string) (*overview.Overview, error) {
	var resp overview.OverviewResponse
	body := map[string]string{"summary": summary}
	if notebookID != "" {
		body["notebook_id"] = notebookID
	}
	if err := c.do(ctx, http.MethodPost, "/v1/audio-overviews", body, &resp); err != nil {
		return nil, err
	}
	return resp.Overview(), nil
}

// Retry re-synthesizes seg. When overviewID is set the server also updates its
// stored copy at index.
func (c *Client) Retry(ctx context.Context, overviewID string, index int, seg overview.Segment) (overview.Segment, error) {
	body := map[string]any{
		"speaker": seg.Speaker.String(),
		"text":    seg.Text,
	}
	if overviewID != "" {
		body["overview_id"] = overviewID
		body["index"] = index
	}
	var resp overview.RetryResponse
	if err := c.do(ctx, http.MethodPost, "/v1/audio-overviews/segments/retry", body, &resp); err != nil {
		return overview.Segment{}, err
	}
	return retried(seg, resp)
}

// retried applies a retry answer to the segment it was requested for.
func retried(seg overview.Segment, resp overview.RetryResponse) (overview.Segment, error) {
	out := overview.Segment{
		Speaker: seg.Speaker,
		Label:   seg.Label,
		Text:    seg.Text,
		Status:  resp.Status,
		Audio:   resp.Audio,
		Error:   resp.Error,
	}
	if err := out.Validate(); err != nil {
		return overview.Segment{}, fmt.Errorf("invalid retry response: %w", err)
	}
	return out, nil
}

// Get fetches a stored overview.
func (c *Client) Get(ctx context.Context, id string) (*overview.Overview, error) {
	var resp overview.OverviewResponse
	if err := c.do(ctx, http.MethodGet, "/v1/audio-overviews/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Overview(), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
