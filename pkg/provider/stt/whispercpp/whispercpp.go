// Package whispercpp provides an stt.Provider backed by the whisper.cpp CGO
// bindings, running inference locally with no network round trip. The
// whisper.cpp static library (libwhisper.a) and headers must be available at
// link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

const (
	defaultLanguage = "en"

	// modelSampleRate is the only rate whisper.cpp accepts; other capture
	// rates are resampled before inference.
	modelSampleRate = 16000
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using a local whisper.cpp model. The
// model is loaded once and shared; each Transcribe call creates its own
// whisper context, so calls may run concurrently.
type Provider struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the default transcription language (e.g. "en", "de").
// A per-request stt.Config.Language overrides it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New loads the whisper.cpp model from the given file path. The caller must
// call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}

	p := &Provider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}

	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = modelSampleRate
	}
	pcm, channels = normalizeFormat(pcm, rate, channels)
	samples := pcmToFloat32Mono(pcm, channels)

	// Each whisper context is single-use and not thread-safe; the model
	// itself is shared safely across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whispercpp: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whispercpp: language not accepted, using model default",
			"language", lang, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whispercpp: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
