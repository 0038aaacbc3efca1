package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/synapse-audio/internal/bus"
	"github.com/loqalabs/synapse-audio/internal/config"
	"github.com/loqalabs/synapse-audio/internal/httpapi"
	"github.com/loqalabs/synapse-audio/internal/llm"
	"github.com/loqalabs/synapse-audio/internal/natsserver"
	"github.com/loqalabs/synapse-audio/internal/overview"
	"github.com/loqalabs/synapse-audio/internal/store"
	"github.com/loqalabs/synapse-audio/internal/tts"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	embedded    *natsserver.EmbeddedServer
	bus         *bus.Client
	store       *store.Store
	service     *overview.Service
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// NewLogger builds the process logger at the configured level.
func NewLogger(cfg config.TelemetryConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startBus(ctx); err != nil {
		r.shutdown()
		return err
	}

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		r.shutdown()
		return fmt.Errorf("failed to open store: %w", err)
	}
	r.store = st

	var publisher overview.Publisher
	if r.bus != nil {
		publisher = r.bus
	}
	studio := BuildStudio(r.cfg, st, publisher, r.logger)

	if r.bus != nil {
		r.service = overview.NewService(ctx, studio, r.bus, r.requestTimeout(), r.logger)
		if err := r.service.Start(); err != nil {
			r.shutdown()
			return fmt.Errorf("failed to start overview service: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(studio, metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	r.shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.embedded = embedded

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(busCfg.ConnectTimeout)*time.Millisecond)
	defer cancel()
	client, err := bus.Connect(connectCtx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.bus = client
	return nil
}

func (r *Runtime) shutdown() {
	if r.service != nil {
		r.service.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("store close error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) requestTimeout() time.Duration {
	return time.Duration(r.cfg.HTTP.RequestTimeout) * time.Millisecond
}

func (r *Runtime) routes(studio *overview.Studio, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metrics != nil {
		mux.Handle(r.cfg.Telemetry.MetricsPath, metrics)
	}
	httpapi.New(studio, r.logger).Register(mux)

	if timeout := r.requestTimeout(); timeout > 0 {
		return http.TimeoutHandler(mux, timeout, `{"error":"request timed out"}`)
	}
	return mux
}

// BuildStudio wires providers from config. A provider that cannot be built is
// logged and left nil so the pipeline reports it per request.
func BuildStudio(cfg config.Config, recorder overview.Recorder, publisher overview.Publisher, logger *slog.Logger) *overview.Studio {
	generator, genErr := llm.FromConfig(cfg.LLM)
	if genErr != nil {
		logger.Warn("dialogue generator unavailable", slog.String("mode", cfg.LLM.Mode), slog.String("error", genErr.Error()))
		generator = nil
	}
	synth, synthErr := tts.FromConfig(cfg.TTS)
	if synthErr != nil {
		logger.Warn("speech synthesizer unavailable", slog.String("mode", cfg.TTS.Mode), slog.String("error", synthErr.Error()))
		synth = nil
	}

	pipeline := overview.NewPipeline(overview.Options{
		Generator:        generator,
		GeneratorErr:     genErr,
		Synthesizer:      synth,
		SynthesizerErr:   synthErr,
		Cast:             overview.CastFromConfig(cfg.Overview),
		Defaults:         llm.OptionsFromConfig(cfg.LLM),
		DialogueTimeout:  time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
		SynthesisTimeout: time.Duration(cfg.TTS.TimeoutMS) * time.Millisecond,
		Publisher:        publisher,
		Logger:           logger,
	})
	return overview.NewStudio(pipeline, recorder, publisher, logger)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, req *http.Request) {
	ready := r.ready.Load()
	if ready && r.store != nil {
		ready = r.store.Healthy(req.Context())
	}
	if ready && r.service != nil {
		ready = r.service.Healthy()
	}
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
