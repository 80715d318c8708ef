// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcripts without a live
// transcription backend and to verify the audio the caller submits.
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/stt"
)

// Call records a single Transcribe invocation.
type Call struct {
	// PCM is a copy of the audio buffer passed to Transcribe.
	PCM []byte
	// Cfg is the configuration passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider. Zero values make
// Transcribe return "" and a nil error.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe. If Texts is non-empty it takes
	// precedence, returning successive elements per call (the last element
	// repeats once exhausted).
	Text  string
	Texts []string

	// Err, if non-nil, is returned by Transcribe instead of a transcript.
	Err error

	// Calls records every Transcribe invocation in order.
	Calls []Call
}

// Transcribe records the call and returns the configured transcript.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	n := len(p.Calls)
	p.Calls = append(p.Calls, Call{PCM: buf, Cfg: cfg})

	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) > 0 {
		if n >= len(p.Texts) {
			n = len(p.Texts) - 1
		}
		return p.Texts[n], nil
	}
	return p.Text, nil
}

// CallCount returns the number of recorded Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ stt.Provider = (*Provider)(nil)
