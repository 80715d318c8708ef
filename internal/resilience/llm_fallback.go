package resilience

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voicewire/voicewire/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple language-model backends, each behind its own circuit breaker.
//
// Failover covers stream establishment only. Once chunks are flowing they
// have already been spoken downstream, so a mid-stream failure cannot be
// retried against another backend. It still counts against the originating
// backend's breaker: a stream that ends with a chunk whose FinishReason is
// "error" is recorded as a failure, which steers subsequent turns away from
// the flaky backend.
type LLMFallback struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg ChainConfig) *LLMFallback {
	return &LLMFallback{chain: NewChain(primary, primaryName, cfg)}
}

// AddFallback registers an additional language-model backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.chain.Add(name, provider)
}

// StreamCompletion opens a completion stream against the first healthy
// backend and relays its chunks. The breaker outcome is recorded when the
// relayed stream ends, not when it is established.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	var lastErr error
	for i := range f.chain.entries {
		entry := &f.chain.entries[i]
		if !entry.breaker.Allow() {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
			lastErr = ErrCircuitOpen
			continue
		}

		inner, err := entry.value.StreamCompletion(ctx, req)
		if err != nil {
			entry.breaker.Record(err)
			lastErr = err
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
			continue
		}

		out := make(chan llm.Chunk)
		go relayChunks(entry.name, entry.breaker, inner, out)
		return out, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// relayChunks forwards chunks from inner to out and records the stream's
// final outcome against the breaker.
func relayChunks(name string, breaker *CircuitBreaker, inner <-chan llm.Chunk, out chan<- llm.Chunk) {
	defer close(out)

	var streamErr error
	for chunk := range inner {
		if chunk.FinishReason == "error" {
			streamErr = fmt.Errorf("stream from %s ended with error", name)
		}
		out <- chunk
	}
	breaker.Record(streamErr)
}
