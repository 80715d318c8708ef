// Package engine runs the response pipeline for a single user utterance:
// transcription, keyword correction, streamed LLM completion, and
// sentence-chunked speech synthesis.
//
// The pipeline is cascaded for latency: LLM token deltas are forwarded to the
// caller as they arrive, and every completed sentence is handed to synthesis
// immediately instead of waiting for the full completion. Audio for the first
// sentence is typically playing while the model is still generating the rest.
//
// The engine is transport-agnostic. It knows nothing about websockets or
// control frames; the gateway maps [Turn] channels onto the wire protocol.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/tenant"
	"github.com/voicewire/voicewire/internal/transcript"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/memory"
	"github.com/voicewire/voicewire/pkg/provider/llm"
	"github.com/voicewire/voicewire/pkg/provider/stt"
	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// ErrNoSpeech is returned by [Engine.Process] when transcription hears
// nothing in the utterance. The session should return to listening without
// producing a response.
var ErrNoSpeech = errors.New("engine: no speech in utterance")

const (
	// defaultHistoryTurns is the rolling conversation window fed back into
	// the prompt.
	defaultHistoryTurns = 6

	// defaultSampleRate is the capture sample rate of utterance audio.
	defaultSampleRate = 16000

	// textBuf is the buffer depth of the delta channel exposed to the
	// caller.
	textBuf = 64

	// sentenceBuf is the buffer depth of the sentence channel feeding
	// synthesis. Sized to absorb several sentences without stalling the
	// forwarding goroutine.
	sentenceBuf = 16

	// persistTimeout bounds the memory writes that finish a turn.
	persistTimeout = 5 * time.Second
)

// Request is one utterance to process.
type Request struct {
	// Tenant is the resolved tenant profile for the session.
	Tenant *tenant.Profile

	// UserID identifies the user within the tenant.
	UserID string

	// PCM is the utterance audio, 16-bit little-endian mono at the engine's
	// configured sample rate.
	PCM []byte
}

// Turn is one in-flight assistant response. Text and Audio stream while the
// pipeline runs; both channels close when the response is complete or the
// turn context is cancelled. Call [Turn.Err] after the channels close to
// distinguish clean completion from a mid-stream failure.
type Turn struct {
	// UserText is the corrected transcript of the user's utterance.
	UserText string

	// Text streams the assistant's reply as token deltas.
	Text <-chan string

	// Audio streams encoded synthesis output.
	Audio <-chan []byte

	done      chan struct{}
	streamErr atomic.Pointer[error]
}

// Err returns the error that ended the response stream early, or nil when it
// completed cleanly. Valid once Text has closed.
func (t *Turn) Err() error {
	if p := t.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Wait blocks until the turn's background work, including memory
// persistence, has finished. Mainly useful in tests.
func (t *Turn) Wait() {
	<-t.done
}

func (t *Turn) setErr(err error) {
	t.streamErr.Store(&err)
}

// Engine wires the provider boundaries into the utterance pipeline. Create
// one per gateway process; it is safe for concurrent use and each
// [Engine.Process] call runs independently.
type Engine struct {
	sttP  stt.Provider
	llmP  llm.Provider
	ttsP  tts.Provider
	store memory.Store

	corrector    *transcript.Corrector
	metrics      *observe.Metrics
	sampleRate   int
	historyTurns int
	temperature  float64
	maxTokens    int
}

// Option configures an Engine during construction.
type Option func(*Engine)

// WithSampleRate sets the utterance sample rate passed to transcription.
// Default 16000.
func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

// WithHistoryTurns sets how many recent conversation turns are replayed into
// the prompt. Default 6.
func WithHistoryTurns(n int) Option {
	return func(e *Engine) { e.historyTurns = n }
}

// WithTemperature sets the LLM sampling temperature. Zero leaves the
// provider default.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens caps the LLM completion length. Zero leaves the provider
// default.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithMetrics overrides the metrics instance, for tests that need an
// isolated meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCorrector overrides the transcript corrector.
func WithCorrector(c *transcript.Corrector) Option {
	return func(e *Engine) { e.corrector = c }
}

// New creates an Engine over the given providers and memory store.
func New(sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, store memory.Store, opts ...Option) *Engine {
	e := &Engine{
		sttP:         sttP,
		llmP:         llmP,
		ttsP:         ttsP,
		store:        store,
		corrector:    transcript.New(),
		sampleRate:   defaultSampleRate,
		historyTurns: defaultHistoryTurns,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Process runs the full pipeline for one utterance. It blocks through
// transcription and stream setup, then returns a [Turn] whose channels
// stream the response. Cancelling ctx aborts the in-flight stages and closes
// the channels.
//
// Returns [ErrNoSpeech] when the utterance transcribes to nothing.
func (e *Engine) Process(ctx context.Context, req Request) (*Turn, error) {
	if req.Tenant == nil {
		return nil, errors.New("engine: request without tenant profile")
	}
	log := observe.Logger(ctx).With(
		"tenant_id", req.Tenant.ID, "user_id", req.UserID)

	// Stage 1: transcription.
	sttStart := time.Now()
	raw, err := e.sttP.Transcribe(ctx, req.PCM, stt.Config{
		SampleRate: e.sampleRate,
		Channels:   1,
		Language:   req.Tenant.Language,
		Keywords:   req.Tenant.Keywords,
	})
	e.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, "stt", "stt")
		return nil, fmt.Errorf("engine: transcribe: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoSpeech
	}

	userText, corrections := e.corrector.Correct(raw, req.Tenant.Keywords)
	if len(corrections) > 0 {
		log.Debug("transcript corrected", "raw", raw, "corrected", userText)
	}
	e.metrics.RecordUtterance(ctx, req.Tenant.ID)

	// Stage 2: prompt assembly from tenant persona and user memory.
	lreq, err := e.buildRequest(ctx, req.Tenant, req.UserID, userText)
	if err != nil {
		return nil, err
	}

	llmStart := time.Now()
	chunks, err := e.llmP.StreamCompletion(ctx, lreq)
	if err != nil {
		e.metrics.RecordProviderError(ctx, "llm", "llm")
		return nil, fmt.Errorf("engine: completion: %w", err)
	}

	// Stage 3: synthesis stream fed sentence by sentence.
	sentences := make(chan string, sentenceBuf)
	audioCh, err := e.ttsP.SynthesizeStream(ctx, sentences, req.Tenant.VoiceID)
	if err != nil {
		close(sentences)
		go audio.Drain(chunks)
		e.metrics.RecordProviderError(ctx, "tts", "tts")
		return nil, fmt.Errorf("engine: synthesis: %w", err)
	}

	text := make(chan string, textBuf)
	turn := &Turn{
		UserText: userText,
		Text:     text,
		Audio:    audioCh,
		done:     make(chan struct{}),
	}
	go e.forward(ctx, req, turn, llmStart, chunks, text, sentences)
	return turn, nil
}

// Speak synthesizes a fixed text, bypassing transcription and the LLM. Used
// for the tenant greeting when a session opens.
func (e *Engine) Speak(ctx context.Context, tn *tenant.Profile, text string) (*Turn, error) {
	sentences := make(chan string, 1)
	sentences <- text
	close(sentences)

	audioCh, err := e.ttsP.SynthesizeStream(ctx, sentences, tn.VoiceID)
	if err != nil {
		e.metrics.RecordProviderError(ctx, "tts", "tts")
		return nil, fmt.Errorf("engine: synthesis: %w", err)
	}

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	turn := &Turn{Text: textCh, Audio: audioCh, done: make(chan struct{})}
	close(turn.done)
	return turn, nil
}

// buildRequest composes the LLM request: tenant persona enriched with the
// user's remembered identity, the rolling history window, and the new
// utterance.
func (e *Engine) buildRequest(ctx context.Context, tn *tenant.Profile, userID, userText string) (llm.Request, error) {
	profile, err := e.store.GetProfile(ctx, tn.ID, userID)
	if err != nil {
		// A memory outage degrades the prompt, it does not fail the turn.
		observe.Logger(ctx).Warn("memory profile unavailable",
			"tenant_id", tn.ID, "user_id", userID, "err", err)
		profile = memory.Profile{TenantID: tn.ID, UserID: userID}
	}

	history, err := e.store.RecentTurns(ctx, tn.ID, userID, e.historyTurns)
	if err != nil {
		observe.Logger(ctx).Warn("conversation history unavailable",
			"tenant_id", tn.ID, "user_id", userID, "err", err)
		history = nil
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, h := range history {
		role := llm.RoleUser
		if h.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userText})

	return llm.Request{
		SystemPrompt: tn.SystemPrompt(profile.FirstName, profile.LongTermMemory),
		Messages:     msgs,
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	}, nil
}

// forward relays LLM deltas to the caller and complete sentences to
// synthesis, then persists the exchange. On cancellation (barge-in) the
// partial exchange is still persisted.
func (e *Engine) forward(ctx context.Context, req Request, turn *Turn, llmStart time.Time, chunks <-chan llm.Chunk, text chan<- string, sentences chan<- string) {
	defer close(turn.done)

	var full, pending strings.Builder
	cancelled := false

loop:
	for !cancelled {
		select {
		case <-ctx.Done():
			turn.setErr(ctx.Err())
			cancelled = true
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			if chunk.FinishReason == "error" {
				e.metrics.RecordProviderError(ctx, "llm", "llm")
				turn.setErr(errors.New("engine: completion stream failed"))
				continue
			}
			if chunk.Text == "" {
				continue
			}
			full.WriteString(chunk.Text)
			pending.WriteString(chunk.Text)

			select {
			case text <- chunk.Text:
			case <-ctx.Done():
				turn.setErr(ctx.Err())
				cancelled = true
				continue
			}
			if !e.flushSentences(ctx, &pending, sentences) {
				turn.setErr(ctx.Err())
				cancelled = true
			}
		}
	}

	// Flush the trailing partial sentence and end synthesis input.
	if !cancelled {
		if rest := strings.TrimSpace(pending.String()); rest != "" {
			select {
			case sentences <- rest:
			case <-ctx.Done():
				turn.setErr(ctx.Err())
			}
		}
	}
	close(sentences)
	close(text)

	e.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	e.persist(ctx, req, turn.UserText, full.String())
}

// flushSentences moves every complete sentence out of pending into the
// synthesis channel. Returns false when ctx was cancelled.
func (e *Engine) flushSentences(ctx context.Context, pending *strings.Builder, sentences chan<- string) bool {
	for {
		s := pending.String()
		idx := sentenceBoundary(s)
		if idx < 0 {
			return true
		}
		sentence := s[:idx+1]
		rest := strings.TrimLeft(s[idx+1:], " \t\n\r")
		pending.Reset()
		pending.WriteString(rest)

		select {
		case sentences <- sentence:
		case <-ctx.Done():
			return false
		}
	}
}

// persist records the exchange in conversation memory. The write survives
// turn cancellation so an interrupted answer still leaves the user's words
// in history.
func (e *Engine) persist(ctx context.Context, req Request, userText, assistantText string) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	turns := []memory.Turn{{Role: memory.RoleUser, Content: userText, At: time.Now()}}
	if assistantText != "" {
		turns = append(turns, memory.Turn{Role: memory.RoleAssistant, Content: assistantText, At: time.Now()})
	}
	if err := e.store.AppendTurns(pctx, req.Tenant.ID, req.UserID, turns...); err != nil {
		observe.Logger(ctx).Warn("failed to persist conversation turns",
			"tenant_id", req.Tenant.ID, "user_id", req.UserID, "err", err)
	}
}

// sentenceBoundary returns the index of the first '.', '!' or '?' followed
// by whitespace, or -1. Trailing punctuation without whitespace is left for
// the end-of-stream flush, so abbreviations mid-token do not split early.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
