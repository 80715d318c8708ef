package resilience

import (
	"context"

	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends, each behind its own circuit breaker.
//
// Failover covers stream setup only. The text channel is consumed by the
// backend that accepted it, so once synthesis has started a mid-stream
// failure cannot be replayed against another backend.
type TTSFallback struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg ChainConfig) *TTSFallback {
	return &TTSFallback{chain: NewChain(primary, primaryName, cfg)}
}

// AddFallback registers an additional synthesis backend. Fallbacks should
// produce the same sample rate as the primary, otherwise playback speed is
// wrong after a failover.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.chain.Add(name, provider)
}

// SynthesizeStream opens a synthesis stream against the first healthy
// backend.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voiceID string) (<-chan []byte, error) {
	return TryResult(f.chain, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voiceID)
	})
}

// SampleRate returns the primary backend's output sample rate.
func (f *TTSFallback) SampleRate() int {
	return f.chain.entries[0].value.SampleRate()
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return TryResult(f.chain, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}
