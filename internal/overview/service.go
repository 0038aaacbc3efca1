package overview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/synapse-audio/internal/bus"
	"github.com/loqalabs/synapse-audio/internal/protocol"
	"github.com/nats-io/nats.go"
)

const queueGroup = "synapse-overview"

// Service exposes the studio over NATS request/reply subjects.
type Service struct {
	studio  *Studio
	bus     *bus.Client
	timeout time.Duration
	subs    []*nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// errServiceClosed is replied to requests delivered after Close started.
var errServiceClosed = errors.New("overview service is shutting down")

func NewService(parent context.Context, studio *Studio, busClient *bus.Client, timeout time.Duration, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	if timeout <= 0 {
		timeout = 150 * time.Second
	}
	return &Service{
		studio:  studio,
		bus:     busClient,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(slog.String("component", "overview-service")),
	}
}

func (s *Service) Start() error {
	generateSub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectOverviewGenerate, queueGroup, s.handleGenerate)
	if err != nil {
		return fmt.Errorf("subscribe overview generate: %w", err)
	}
	s.subs = append(s.subs, generateSub)

	retrySub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectSegmentRetry, queueGroup, s.handleRetry)
	if err != nil {
		_ = generateSub.Drain()
		return fmt.Errorf("subscribe segment retry: %w", err)
	}
	s.subs = append(s.subs, retrySub)
	return nil
}

// Close stops accepting requests, cancels the ones in flight and waits for
// their handlers to return. It is safe to call more than once.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

// track registers a request handler unless the service is closing.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	return !closed && len(s.subs) == 2 && s.bus.Healthy()
}

func (s *Service) handleGenerate(msg *nats.Msg) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		s.reply(msg, protocol.ErrorReply{Error: "invalid request payload", Code: ErrorCode(err)})
		return
	}
	if !s.track() {
		s.reply(msg, protocol.ErrorReply{Error: errServiceClosed.Error(), Code: ErrorCode(errServiceClosed)})
		return
	}

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		ov, err := s.studio.Generate(ctx, Request{NotebookID: req.NotebookID, Summary: req.Summary, TraceID: req.TraceID})
		if err != nil {
			s.logger.Warn("overview generation failed", slogError(err))
			s.reply(msg, protocol.ErrorReply{Error: err.Error(), Code: ErrorCode(err)})
			return
		}
		s.reply(msg, NewOverviewResponse(ov))
	}()
}

func (s *Service) handleRetry(msg *nats.Msg) {
	var req protocol.RetryRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode retry request", slogError(err))
		s.reply(msg, protocol.ErrorReply{Error: "invalid request payload", Code: ErrorCode(err)})
		return
	}
	if !s.track() {
		s.reply(msg, protocol.ErrorReply{Error: errServiceClosed.Error(), Code: ErrorCode(errServiceClosed)})
		return
	}

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		splice, err := s.studio.SpliceFromProtocol(req)
		if err != nil {
			s.reply(msg, protocol.ErrorReply{Error: err.Error(), Code: ErrorCode(err)})
			return
		}
		seg, err := s.studio.Retry(ctx, splice)
		if err != nil {
			s.reply(msg, protocol.ErrorReply{Error: err.Error(), Code: ErrorCode(err)})
			return
		}
		s.reply(msg, NewRetryResponse(seg))
	}()
}

func (s *Service) reply(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slogError(err))
	}
}

// SpliceFromProtocol resolves the wire form of a retry request against the
// studio's cast.
func (s *Studio) SpliceFromProtocol(req protocol.RetryRequest) (SpliceRequest, error) {
	speaker, err := s.Cast().ResolveSpeaker(req.Speaker)
	if err != nil {
		return SpliceRequest{}, err
	}
	return SpliceRequest{
		RetryRequest: RetryRequest{Speaker: speaker, Text: req.Text},
		OverviewID:   req.OverviewID,
		Index:        req.Index,
	}, nil
}

// ErrorCode classifies an error for wire replies.
func ErrorCode(err error) string {
	var cfgErr *ConfigurationError
	var upErr *UpstreamGenerationError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &upErr):
		return "upstream_generation"
	case errors.Is(err, ErrGenerationInFlight):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, errServiceClosed):
		return "unavailable"
	case errors.Is(err, ErrSummaryRequired), errors.Is(err, ErrTextRequired),
		errors.Is(err, ErrUnknownSpeaker), errors.Is(err, ErrSegmentIndex),
		errors.As(err, &syntaxErr):
		return "invalid_request"
	default:
		return "internal"
	}
}
