package client

import (
	"context"
	"fmt"

	"github.com/loqalabs/synapse-audio/internal/bus"
	"github.com/loqalabs/synapse-audio/internal/overview"
	"github.com/loqalabs/synapse-audio/internal/protocol"
)

// BusClient talks to the overview service over NATS request/reply.
type BusClient struct {
	bus *bus.Client
}

// ServiceError is an error reply from the overview service.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("overview service %s: %s", e.Code, e.Message)
}

func NewBus(busClient *bus.Client) *BusClient {
	return &BusClient{bus: busClient}
}

// Replies on a subject are either the success payload or a
// protocol.ErrorReply. Error replies always carry a code.
type generateReply struct {
	overview.OverviewResponse
	Error string `json:"error"`
	Code  string `json:"code"`
}

type retryReply struct {
	overview.RetryResponse
	Code string `json:"code"`
}

func (c *BusClient) Generate(ctx context.Context, notebookID, summary string) (*overview.Overview, error) {
	var reply generateReply
	req := protocol.GenerateRequest{NotebookID: notebookID, Summary: summary}
	if err := c.bus.RequestJSON(ctx, protocol.SubjectOverviewGenerate, req, &reply); err != nil {
		return nil, err
	}
	if reply.Code != "" {
		return nil, &ServiceError{Code: reply.Code, Message: reply.Error}
	}
	return reply.OverviewResponse.Overview(), nil
}

func (c *BusClient) Retry(ctx context.Context, overviewID string, index int, seg overview.Segment) (overview.Segment, error) {
	req := protocol.RetryRequest{Speaker: seg.Speaker.String(), Text: seg.Text}
	if overviewID != "" {
		req.OverviewID = overviewID
		req.Index = &index
	}
	var reply retryReply
	if err := c.bus.RequestJSON(ctx, protocol.SubjectSegmentRetry, req, &reply); err != nil {
		return overview.Segment{}, err
	}
	if reply.Code != "" {
		return overview.Segment{}, &ServiceError{Code: reply.Code, Message: reply.RetryResponse.Error}
	}
	return retried(seg, reply.RetryResponse)
}
