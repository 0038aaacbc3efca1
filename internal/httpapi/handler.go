package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/loqalabs/synapse-audio/internal/overview"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

// Studio is the part of overview.Studio the handlers need.
type Studio interface {
	Cast() overview.Cast
	Generate(ctx context.Context, req overview.Request) (*overview.Overview, error)
	Retry(ctx context.Context, req overview.SpliceRequest) (overview.Segment, error)
	Overview(ctx context.Context, id string) (*overview.Overview, error)
}

type generateBody struct {
	Summary    string `json:"summary"`
	NotebookID string `json:"notebook_id,omitempty"`
}

type retryBody struct {
	Speaker    string `json:"speaker"`
	Text       string `json:"text"`
	OverviewID string `json:"overview_id,omitempty"`
	Index      *int   `json:"index,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves the audio overview HTTP API.
type Handler struct {
	studio Studio
	logger *slog.Logger
	tracer trace.Tracer
}

func New(studio Studio, logger *slog.Logger) *Handler {
	return &Handler{
		studio: studio,
		logger: logger.With(slog.String("component", "httpapi")),
		tracer: otel.Tracer("github.com/loqalabs/synapse-audio/httpapi"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /v1/audio-overviews", cors(http.HandlerFunc(h.handleGenerate)))
	mux.Handle("POST /v1/audio-overviews/segments/retry", cors(http.HandlerFunc(h.handleRetry)))
	mux.Handle("GET /v1/audio-overviews/{id}", cors(http.HandlerFunc(h.handleGet)))
	mux.Handle("OPTIONS /v1/", cors(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "http.generate_overview")
	defer span.End()

	var body generateBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.String("notebook.id", body.NotebookID))

	ov, err := h.studio.Generate(ctx, overview.Request{
		NotebookID: body.NotebookID,
		Summary:    body.Summary,
		TraceID:    span.SpanContext().TraceID().String(),
	})
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, overview.NewOverviewResponse(ov))
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "http.retry_segment")
	defer span.End()

	var body retryBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, span, err)
		return
	}
	speaker, err := h.studio.Cast().ResolveSpeaker(body.Speaker)
	if err != nil {
		h.writeError(w, span, err)
		return
	}

	seg, err := h.studio.Retry(ctx, overview.SpliceRequest{
		RetryRequest: overview.RetryRequest{Speaker: speaker, Text: body.Text},
		OverviewID:   body.OverviewID,
		Index:        body.Index,
	})
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, overview.NewRetryResponse(seg))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "http.get_overview")
	defer span.End()

	id := r.PathValue("id")
	span.SetAttributes(attribute.String("overview.id", id))
	ov, err := h.studio.Overview(ctx, id)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, overview.NewOverviewResponse(ov))
}

var errInvalidBody = errors.New("invalid request body")

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var cfgErr *overview.ConfigurationError
	var upErr *overview.UpstreamGenerationError
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, overview.ErrSummaryRequired),
		errors.Is(err, overview.ErrTextRequired),
		errors.Is(err, overview.ErrUnknownSpeaker),
		errors.Is(err, overview.ErrSegmentIndex):
		return http.StatusBadRequest
	case errors.Is(err, overview.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, overview.ErrGenerationInFlight):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, span trace.Span, err error) {
	status := StatusFor(err)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= http.StatusInternalServerError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	} else {
		h.logger.Info("request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, content-type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		next.ServeHTTP(w, r)
	})
}
