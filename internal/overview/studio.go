package overview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/synapse-audio/internal/protocol"
)

// Recorder persists generated overviews. It is optional: the pipeline works
// without one and callers then own the only copy of the result.
type Recorder interface {
	SaveOverview(ctx context.Context, ov *Overview) error
	ReplaceSegment(ctx context.Context, overviewID string, index int, seg Segment) error
	LoadOverview(ctx context.Context, id string) (*Overview, error)
}

// SpliceRequest is a retry that may also patch a stored overview.
type SpliceRequest struct {
	RetryRequest
	OverviewID string
	Index      *int
}

// Studio fronts the pipeline for the HTTP and bus surfaces. It rejects a
// second generation for a notebook that already has one running and records
// results when a Recorder is configured.
type Studio struct {
	pipeline  *Pipeline
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewStudio(pipeline *Pipeline, recorder Recorder, publisher Publisher, logger *slog.Logger) *Studio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Studio{
		pipeline:  pipeline,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "overview-studio")),
		inflight:  make(map[string]struct{}),
	}
}

func (s *Studio) Cast() Cast { return s.pipeline.Cast() }

// Generate builds a new overview. Requests without a notebook id are never
// considered duplicates.
func (s *Studio) Generate(ctx context.Context, req Request) (*Overview, error) {
	if req.NotebookID != "" {
		if !s.acquire(req.NotebookID) {
			return nil, ErrGenerationInFlight
		}
		defer s.release(req.NotebookID)
	}

	ov, err := s.pipeline.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		if err := s.recorder.SaveOverview(ctx, ov); err != nil {
			s.logger.Warn("failed to persist audio overview",
				slog.String("overview_id", ov.ID), slogError(err))
		}
	}
	return ov, nil
}

// Retry re-synthesizes one segment and, when the request names a stored
// overview and index, writes the new segment back to the store.
func (s *Studio) Retry(ctx context.Context, req SpliceRequest) (Segment, error) {
	seg, err := s.pipeline.Retry(ctx, req.RetryRequest)
	if err != nil {
		return Segment{}, err
	}

	if s.recorder != nil && req.OverviewID != "" && req.Index != nil {
		if err := s.recorder.ReplaceSegment(ctx, req.OverviewID, *req.Index, seg); err != nil {
			s.logger.Warn("failed to persist retried segment",
				slog.String("overview_id", req.OverviewID),
				slog.Int("index", *req.Index),
				slogError(err))
		}
	}

	if s.publisher != nil {
		evt := protocol.SegmentEvent{
			OverviewID: req.OverviewID,
			Index:      -1,
			Speaker:    seg.Speaker.String(),
			Status:     string(seg.Status),
			Error:      seg.Error,
			Retry:      true,
			Timestamp:  time.Now().UTC(),
		}
		if req.Index != nil {
			evt.Index = *req.Index
		}
		if err := s.publisher.PublishJSON(protocol.SubjectSegmentResult, evt); err != nil {
			s.logger.Warn("failed to publish retry event", slogError(err))
		}
	}
	return seg, nil
}

// Overview loads a stored overview.
func (s *Studio) Overview(ctx context.Context, id string) (*Overview, error) {
	if s.recorder == nil {
		return nil, ErrNotFound
	}
	ov, err := s.recorder.LoadOverview(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ov, nil
}

func (s *Studio) acquire(notebookID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[notebookID]; busy {
		return false
	}
	s.inflight[notebookID] = struct{}{}
	return true
}

func (s *Studio) release(notebookID string) {
	s.mu.Lock()
	delete(s.inflight, notebookID)
	s.mu.Unlock()
}
