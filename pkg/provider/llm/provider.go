// Package llm defines the Provider interface for chat completion backends.
//
// The response engine streams assistant replies token by token so synthesis
// can start on the first complete sentence, which is why StreamCompletion is
// the primary entry point. Implementations wrap an OpenAI-compatible API
// (including Groq) or the any-llm multi-provider library.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Chat roles as sent on the wire. Providers translate them to their
// backend's native representation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string
	// Content is the message text.
	Content string
}

// Request describes one completion request.
type Request struct {
	// SystemPrompt, when non-empty, is prepended as a system message.
	SystemPrompt string

	// Messages is the conversation history, oldest first, ending with the
	// user turn being answered.
	Messages []Message

	// Temperature is the sampling temperature. Zero means the backend
	// default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means no explicit cap.
	MaxTokens int
}

// Chunk is one streamed fragment of a completion.
type Chunk struct {
	// Text is the token text of this fragment; may be empty on chunks that
	// only carry a finish signal.
	Text string

	// FinishReason is non-empty on the final chunk ("stop", "length",
	// "error", ...).
	FinishReason string
}

// Provider is the abstraction over any chat completion backend.
type Provider interface {
	// StreamCompletion starts a streaming completion. The returned channel
	// emits chunks as the backend produces them and is closed when the
	// completion ends or ctx is cancelled. The caller must drain the
	// channel.
	//
	// A non-nil error means the stream could not be started. Mid-stream
	// failures surface as a final chunk with FinishReason "error" whose
	// Text carries the message.
	StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Collect runs a streaming completion to the end and returns the
// concatenated text. A chunk with FinishReason "error" becomes the returned
// error.
func Collect(ctx context.Context, p Provider, req Request) (string, error) {
	ch, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			return b.String(), errors.New(chunk.Text)
		}
		b.WriteString(chunk.Text)
	}
	return b.String(), ctx.Err()
}
