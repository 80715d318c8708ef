// Command voicewire runs the multi-tenant voice gateway server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/engine"
	"github.com/voicewire/voicewire/internal/gateway"
	"github.com/voicewire/voicewire/internal/health"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/resilience"
	"github.com/voicewire/voicewire/internal/tenant"
	"github.com/voicewire/voicewire/pkg/memory"
	"github.com/voicewire/voicewire/pkg/memory/postgres"
	"github.com/voicewire/voicewire/pkg/provider/llm"
	"github.com/voicewire/voicewire/pkg/provider/llm/anyllm"
	oaillm "github.com/voicewire/voicewire/pkg/provider/llm/openai"
	"github.com/voicewire/voicewire/pkg/provider/stt"
	"github.com/voicewire/voicewire/pkg/provider/stt/whisperapi"
	"github.com/voicewire/voicewire/pkg/provider/stt/whispercpp"
	"github.com/voicewire/voicewire/pkg/provider/tts"
	"github.com/voicewire/voicewire/pkg/provider/tts/elevenlabs"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicewire: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicewire starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicewire",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Tenants ───────────────────────────────────────────────────────────────
	registry, err := tenant.Load(cfg.Tenants.Dir)
	if err != nil {
		slog.Error("failed to load tenant profiles", "dir", cfg.Tenants.Dir, "err", err)
		return 1
	}
	slog.Info("tenant profiles loaded", "count", len(registry.IDs()), "dir", cfg.Tenants.Dir)

	// ── Conversation memory ───────────────────────────────────────────────────
	store, err := newStore(ctx, cfg.Memory)
	if err != nil {
		slog.Error("failed to open memory store", "err", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("memory store close error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	sttP, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	llmP, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	ttsP, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	slog.Info("providers created",
		"stt", cfg.Providers.STT.Name,
		"llm", cfg.Providers.LLM.Name,
		"tts", cfg.Providers.TTS.Name,
	)

	// Every provider sits behind a circuit breaker even without fallbacks
	// configured, so a flapping backend is shed instead of hammered.
	chainCfg := resilience.ChainConfig{}
	sttR := resilience.NewSTTFallback(sttP, cfg.Providers.STT.Name, chainCfg)
	llmR := resilience.NewLLMFallback(llmP, cfg.Providers.LLM.Name, chainCfg)
	ttsR := resilience.NewTTSFallback(ttsP, cfg.Providers.TTS.Name, chainCfg)

	// ── Engine and gateway ────────────────────────────────────────────────────
	engOpts := []engine.Option{engine.WithMetrics(metrics)}
	if cfg.Audio.SampleRate > 0 {
		engOpts = append(engOpts, engine.WithSampleRate(cfg.Audio.SampleRate))
	}
	if cfg.Engine.HistoryTurns > 0 {
		engOpts = append(engOpts, engine.WithHistoryTurns(cfg.Engine.HistoryTurns))
	}
	if cfg.Engine.Temperature != 0 {
		engOpts = append(engOpts, engine.WithTemperature(cfg.Engine.Temperature))
	}
	if cfg.Engine.MaxTokens > 0 {
		engOpts = append(engOpts, engine.WithMaxTokens(cfg.Engine.MaxTokens))
	}
	eng := engine.New(sttR, llmR, ttsR, store, engOpts...)

	gw := gateway.New(eng, registry,
		gateway.WithMetrics(metrics),
		gateway.WithVAD(gateway.VADConfig{
			VoiceRMS:          cfg.VAD.VoiceRMS,
			SilenceRMS:        cfg.VAD.SilenceRMS,
			SilenceLimit:      time.Duration(cfg.VAD.SilenceLimitMs) * time.Millisecond,
			MinUtteranceBytes: cfg.VAD.MinUtteranceBytes,
		}),
	)

	// ── HTTP routes ───────────────────────────────────────────────────────────
	// The websocket route is mounted without middleware: the session upgrade
	// needs the raw http.ResponseWriter to hijack the connection.
	mux := http.NewServeMux()
	gw.Register(mux)

	ops := http.NewServeMux()
	checks := health.New(
		health.Checker{Name: "memory", Check: func(ctx context.Context) error {
			_, err := store.RecentTurns(ctx, "_health", "_health", 1)
			return err
		}},
		health.Checker{Name: "tenants", Check: func(context.Context) error {
			if len(registry.IDs()) == 0 {
				return errors.New("no tenant profiles loaded")
			}
			return nil
		}},
	)
	checks.Register(ops)
	ops.Handle("GET /metrics", promhttp.Handler())

	wrapped := observe.Middleware(metrics)(ops)
	mux.Handle("/healthz", wrapped)
	mux.Handle("/readyz", wrapped)
	mux.Handle("/metrics", wrapped)

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Session contexts derive from the signal context so live websockets
		// unwind on SIGINT/SIGTERM; Shutdown alone does not cancel them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()
	slog.Info("server ready", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildSTT instantiates the configured speech-to-text provider.
func buildSTT(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "whisperapi":
		var opts []whisperapi.Option
		if entry.BaseURL != "" {
			opts = append(opts, whisperapi.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, whisperapi.WithModel(entry.Model))
		}
		return whisperapi.New(entry.APIKey, opts...)
	case "groq":
		base := entry.BaseURL
		if base == "" {
			base = oaillm.GroqBaseURL
		}
		opts := []whisperapi.Option{whisperapi.WithBaseURL(base)}
		if entry.Model != "" {
			opts = append(opts, whisperapi.WithModel(entry.Model))
		}
		return whisperapi.New(entry.APIKey, opts...)
	case "whispercpp":
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whispercpp.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whispercpp.WithLanguage(lang))
		}
		return whispercpp.New(modelPath, opts...)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

// buildLLM instantiates the configured language-model provider. OpenAI and
// Groq go through the native client; the remaining backends ride any-llm-go.
func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	case "groq":
		return oaillm.NewGroq(entry.APIKey, entry.Model)
	case "anthropic", "gemini", "deepseek", "mistral", "llamacpp":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	case "ollama":
		// Local server; BaseURL is the address, no API key.
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", entry.Name)
	}
}

// buildTTS instantiates the configured text-to-speech provider.
func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}

// newStore opens the conversation memory backend. A configured Postgres DSN
// gets the durable store with an in-process shadow behind it, so a database
// outage degrades to session-local memory instead of failing turns.
func newStore(ctx context.Context, cfg config.MemoryConfig) (memory.Store, error) {
	if cfg.PostgresDSN == "" {
		slog.Info("memory store: in-process")
		return memory.NewMemstore(), nil
	}
	pg, err := postgres.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	slog.Info("memory store: postgres")
	return memory.NewFallback(pg), nil
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString reads a key from a provider Options map, tolerating a nil map.
func optString(opts map[string]string, key string) string {
	if opts == nil {
		return ""
	}
	return opts[key]
}
