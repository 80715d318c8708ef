// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The primary entry point is SynthesizeStream, which accepts a channel of
// text fragments and returns a channel of raw PCM audio as it becomes
// available. The response engine feeds it sentence-sized chunks cut from the
// LLM stream, so the first audio reaches the client before the reply text is
// complete.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice describes one synthesis voice offered by a provider.
type Voice struct {
	// ID is the provider-assigned voice identifier.
	ID string
	// Name is the human-readable voice name.
	Name string
	// Metadata carries provider-specific labels (accent, category, ...).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel emitting raw 16-bit little-endian PCM as it is
	// synthesised. The audio channel is closed when all text has been
	// rendered or ctx is cancelled; the caller must drain it.
	//
	// voiceID selects the voice. A non-nil error means the stream could not
	// be started; errors during synthesis close the audio channel early,
	// and callers check ctx.Err() to distinguish cancellation.
	SynthesizeStream(ctx context.Context, text <-chan string, voiceID string) (<-chan []byte, error)

	// SampleRate reports the PCM sample rate of the emitted audio in Hz.
	SampleRate() int

	// ListVoices returns the provider's current voice catalogue.
	ListVoices(ctx context.Context) ([]Voice, error)
}
