package overview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/synapse-audio/internal/llm"
	"github.com/loqalabs/synapse-audio/internal/protocol"
	"github.com/loqalabs/synapse-audio/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/synapse-audio/overview"

// Publisher broadcasts progress events. *bus.Client satisfies it.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Options configures a Pipeline. A nil Generator makes every generation fail
// with a ConfigurationError; a nil Synthesizer degrades every generation to
// a transcript-only overview.
type Options struct {
	Generator      llm.Generator
	GeneratorErr   error
	Synthesizer    tts.Synthesizer
	SynthesizerErr error
	Cast           Cast
	Defaults       llm.Request
	// Per-call limits; zero means no limit beyond the caller's context.
	DialogueTimeout  time.Duration
	SynthesisTimeout time.Duration
	Publisher        Publisher
	Logger           *slog.Logger
	Clock            func() time.Time
	NewID            func() string
}

// Request is the input to Generate.
type Request struct {
	NotebookID string
	Summary    string
	TraceID    string
}

// RetryRequest identifies one previously failed segment.
type RetryRequest struct {
	Speaker Speaker
	Text    string
}

// Pipeline turns a summary into an ordered list of synthesized dialogue
// segments. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	generator     llm.Generator
	generatorErr  error
	synth         tts.Synthesizer
	synthErr      error
	cast          Cast
	defaults      llm.Request
	dialogueLimit time.Duration
	synthLimit    time.Duration
	publisher     Publisher
	logger        *slog.Logger
	clock         func() time.Time
	newID         func() string
	tracer        trace.Tracer
	segmentCount  metric.Int64Counter
	requestCount  metric.Int64Counter
	synthesisTime metric.Float64Histogram
}

func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		generator:     opts.Generator,
		generatorErr:  opts.GeneratorErr,
		synth:         opts.Synthesizer,
		synthErr:      opts.SynthesizerErr,
		cast:          opts.Cast,
		defaults:      opts.Defaults,
		dialogueLimit: opts.DialogueTimeout,
		synthLimit:    opts.SynthesisTimeout,
		publisher:     opts.Publisher,
		logger:        logger.With(slog.String("component", "overview-pipeline")),
		clock:         opts.Clock,
		newID:         opts.NewID,
		tracer:        otel.Tracer(instrumentationName),
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if err := p.initMetrics(); err != nil {
		p.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return p
}

func (p *Pipeline) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	var err error
	p.segmentCount, err = meter.Int64Counter("synapse.overview.segments",
		metric.WithDescription("Segments synthesized, by status"))
	if err != nil {
		return err
	}
	p.requestCount, err = meter.Int64Counter("synapse.overview.requests",
		metric.WithDescription("Audio overview requests, by outcome"))
	if err != nil {
		return err
	}
	p.synthesisTime, err = meter.Float64Histogram("synapse.overview.synthesis.duration",
		metric.WithDescription("Per-segment synthesis latency"),
		metric.WithUnit("s"))
	return err
}

// Cast returns the speaker configuration used by the pipeline.
func (p *Pipeline) Cast() Cast { return p.cast }

// Generate runs the dialogue request and then synthesizes every recognized
// line in order. Segment failures are recorded on the segment and never
// returned as errors.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Overview, error) {
	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		return nil, ErrSummaryRequired
	}
	if p.generator == nil {
		p.countRequest(ctx, "configuration_error")
		return nil, &ConfigurationError{Setting: "llm.api_key", Err: p.generatorErr}
	}

	ctx, span := p.tracer.Start(ctx, "overview.generate",
		trace.WithAttributes(attribute.String("notebook.id", req.NotebookID)))
	defer span.End()

	dialogue, err := p.requestDialogue(ctx, summary, req.TraceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dialogue generation failed")
		p.countRequest(ctx, "upstream_error")
		p.logger.Warn("dialogue generation failed", slogError(err))
		return nil, &UpstreamGenerationError{Err: err}
	}

	ov := &Overview{
		ID:         p.newID(),
		NotebookID: req.NotebookID,
		Dialogue:   dialogue,
		Segments:   []Segment{},
		CreatedAt:  p.clock().UTC(),
	}
	lines := ParseDialogue(dialogue, p.cast)
	span.SetAttributes(attribute.String("overview.id", ov.ID), attribute.Int("overview.lines", len(lines)))

	if p.synth == nil {
		p.logger.Warn("tts provider not configured, returning transcript only",
			slog.String("overview_id", ov.ID), slogErrorOrNil(p.synthErr))
		ov.ProviderUnavailable = true
		p.finish(ctx, ov)
		return ov, nil
	}

	for i, line := range lines {
		seg, err := p.synthesizeLine(ctx, line)
		if errors.Is(err, tts.ErrUnavailable) {
			p.logger.Warn("tts provider unavailable, returning transcript only",
				slog.String("overview_id", ov.ID), slogError(err))
			ov.ProviderUnavailable = true
			ov.Segments = []Segment{}
			break
		}
		ov.Segments = append(ov.Segments, seg)
		p.publishSegment(ov, i, len(lines), seg)
	}

	p.finish(ctx, ov)
	return ov, nil
}

// Retry re-synthesizes a single segment. It returns an error only for
// invalid input; provider failures come back as a failed Segment.
func (p *Pipeline) Retry(ctx context.Context, req RetryRequest) (Segment, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Segment{}, ErrTextRequired
	}
	if !req.Speaker.Valid() {
		return Segment{}, ErrUnknownSpeaker
	}

	ctx, span := p.tracer.Start(ctx, "overview.retry",
		trace.WithAttributes(attribute.String("speaker", req.Speaker.String())))
	defer span.End()

	line := Line{Speaker: req.Speaker, Text: text}
	if p.synth == nil {
		return Failed(line.Speaker, p.cast.Label(line.Speaker), line.Text, ErrProviderUnavailable.Error()), nil
	}
	seg, err := p.synthesizeLine(ctx, line)
	if err != nil {
		return Failed(line.Speaker, p.cast.Label(line.Speaker), line.Text, err.Error()), nil
	}
	return seg, nil
}

func (p *Pipeline) requestDialogue(ctx context.Context, summary, traceID string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "overview.dialogue")
	defer span.End()
	if p.dialogueLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialogueLimit)
		defer cancel()
	}

	req := p.defaults
	req.System = p.cast.SystemPrompt()
	req.Prompt = userPrompt(summary)
	req.TraceID = traceID

	start := p.clock()
	text, err := llm.Complete(ctx, p.generator, req)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	p.logger.Info("dialogue generated",
		slog.Int("chars", len(text)),
		slog.Duration("latency", p.clock().Sub(start)))
	return text, nil
}

// synthesizeLine always returns a valid segment. The error is non-nil only
// when the provider reported itself unavailable for every request.
func (p *Pipeline) synthesizeLine(ctx context.Context, line Line) (Segment, error) {
	label := p.cast.Label(line.Speaker)
	voice, err := p.cast.Voices.VoiceFor(line.Speaker)
	if err != nil {
		p.countSegment(ctx, StatusFailed)
		return Failed(line.Speaker, label, line.Text, err.Error()), nil
	}

	ctx, span := p.tracer.Start(ctx, "overview.synthesize",
		trace.WithAttributes(attribute.String("speaker", line.Speaker.String()), attribute.String("voice", voice)))
	defer span.End()

	if p.synthLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.synthLimit)
		defer cancel()
	}

	start := p.clock()
	audio, err := tts.Collect(ctx, p.synth, tts.SynthRequest{Text: line.Text, Voice: voice})
	if p.synthesisTime != nil {
		p.synthesisTime.Record(ctx, p.clock().Sub(start).Seconds())
	}
	if err != nil {
		serr := &SegmentSynthesisError{Speaker: line.Speaker, Err: err}
		span.RecordError(serr)
		span.SetStatus(codes.Error, "synthesis failed")
		p.countSegment(ctx, StatusFailed)
		p.logger.Warn("segment synthesis failed",
			slog.String("speaker", label), slogError(serr))
		if errors.Is(err, tts.ErrUnavailable) {
			return Failed(line.Speaker, label, line.Text, serr.Error()), err
		}
		return Failed(line.Speaker, label, line.Text, serr.Error()), nil
	}
	p.countSegment(ctx, StatusSuccess)
	return Succeeded(line.Speaker, label, line.Text, audio), nil
}

func (p *Pipeline) finish(ctx context.Context, ov *Overview) {
	succeeded, failed := ov.Counts()
	outcome := "success"
	switch {
	case ov.ProviderUnavailable:
		outcome = "provider_unavailable"
	case failed > 0:
		outcome = "partial"
	}
	p.countRequest(ctx, outcome)
	p.logger.Info("audio overview generated",
		slog.String("overview_id", ov.ID),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Bool("provider_unavailable", ov.ProviderUnavailable))
	if p.publisher == nil {
		return
	}
	done := protocol.OverviewDone{
		OverviewID:          ov.ID,
		NotebookID:          ov.NotebookID,
		Succeeded:           succeeded,
		Failed:              failed,
		ProviderUnavailable: ov.ProviderUnavailable,
		Timestamp:           p.clock().UTC(),
	}
	if err := p.publisher.PublishJSON(protocol.SubjectOverviewDone, done); err != nil {
		p.logger.Warn("failed to publish overview completion", slogError(err))
	}
}

func (p *Pipeline) publishSegment(ov *Overview, index, total int, seg Segment) {
	if p.publisher == nil {
		return
	}
	evt := protocol.SegmentEvent{
		OverviewID: ov.ID,
		NotebookID: ov.NotebookID,
		Index:      index,
		Total:      total,
		Speaker:    seg.Speaker.String(),
		Status:     string(seg.Status),
		Error:      seg.Error,
		Timestamp:  p.clock().UTC(),
	}
	if err := p.publisher.PublishJSON(protocol.SubjectSegmentResult, evt); err != nil {
		p.logger.Warn("failed to publish segment event", slogError(err))
	}
}

func (p *Pipeline) countSegment(ctx context.Context, status Status) {
	if p.segmentCount != nil {
		p.segmentCount.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

func (p *Pipeline) countRequest(ctx context.Context, outcome string) {
	if p.requestCount != nil {
		p.requestCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

func slogErrorOrNil(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slogError(err)
}
