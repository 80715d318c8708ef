// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to verify the text fragments the response
// engine sends to synthesis and to emit controlled PCM without a live
// backend.
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider. By default each text
// fragment produces one PCM chunk derived from the fragment's bytes; set
// ChunksPerText to emit fixed audio instead.
type Provider struct {
	mu sync.Mutex

	// ChunksPerText, when non-nil, is emitted once per consumed text
	// fragment instead of the fragment-derived default.
	ChunksPerText [][]byte

	// Err, if non-nil, is returned from SynthesizeStream.
	Err error

	// Rate is reported by SampleRate. Zero means 16000.
	Rate int

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// Texts records every text fragment consumed, across all streams.
	Texts []string

	// VoiceIDs records the voiceID of each SynthesizeStream call.
	VoiceIDs []string
}

// SynthesizeStream implements tts.Provider. It consumes the text channel
// until closed and emits audio per fragment.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voiceID string) (<-chan []byte, error) {
	p.mu.Lock()
	if p.Err != nil {
		err := p.Err
		p.mu.Unlock()
		return nil, err
	}
	p.VoiceIDs = append(p.VoiceIDs, voiceID)
	p.mu.Unlock()

	audioCh := make(chan []byte, 64)
	go func() {
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					return
				}
				p.mu.Lock()
				p.Texts = append(p.Texts, fragment)
				chunks := p.ChunksPerText
				p.mu.Unlock()

				if chunks == nil {
					chunks = [][]byte{[]byte(fragment)}
				}
				for _, c := range chunks {
					select {
					case audioCh <- c:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int {
	if p.Rate > 0 {
		return p.Rate
	}
	return 16000
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Voice, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// Spoken returns a snapshot of the consumed text fragments in order.
func (p *Provider) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out
}

var _ tts.Provider = (*Provider)(nil)
