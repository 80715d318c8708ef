package resilience

import (
	"context"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple transcription backends, each behind its own circuit breaker.
type STTFallback struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg ChainConfig) *STTFallback {
	return &STTFallback{chain: NewChain(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcription backend.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.chain.Add(name, provider)
}

// Transcribe sends the utterance to the first healthy backend. Transcription
// is a single request per utterance, so every backend in the chain gets a
// chance before the call fails.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (string, error) {
	return TryResult(f.chain, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, pcm, cfg)
	})
}
