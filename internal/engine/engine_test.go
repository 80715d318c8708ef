package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voicewire/voicewire/internal/tenant"
	"github.com/voicewire/voicewire/pkg/memory"
	"github.com/voicewire/voicewire/pkg/provider/llm"
	llmmock "github.com/voicewire/voicewire/pkg/provider/llm/mock"
	sttmock "github.com/voicewire/voicewire/pkg/provider/stt/mock"
	ttsmock "github.com/voicewire/voicewire/pkg/provider/tts/mock"
)

func testTenant() *tenant.Profile {
	return &tenant.Profile{
		ID:       "acme",
		Name:     "Acme",
		Persona:  "You are the Acme support assistant.",
		VoiceID:  "voice-1",
		Language: "en",
	}
}

func drainText(ch <-chan string) string {
	var b strings.Builder
	for s := range ch {
		b.WriteString(s)
	}
	return b.String()
}

func drainAudio(ch <-chan []byte) []byte {
	var out []byte
	for c := range ch {
		out = append(out, c...)
	}
	return out
}

func TestProcessFullTurn(t *testing.T) {
	sttP := &sttmock.Provider{Text: "what are your hours"}
	llmP := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "We are open. "},
		{Text: "Nine to five."},
		{FinishReason: "stop"},
	}}
	ttsP := &ttsmock.Provider{}
	store := memory.NewMemstore()

	e := New(sttP, llmP, ttsP, store)
	turn, err := e.Process(context.Background(), Request{
		Tenant: testTenant(), UserID: "u1", PCM: []byte{1, 2, 3, 4},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if turn.UserText != "what are your hours" {
		t.Errorf("UserText = %q", turn.UserText)
	}
	if got := drainText(turn.Text); got != "We are open. Nine to five." {
		t.Errorf("text = %q", got)
	}
	if got := string(drainAudio(turn.Audio)); got != "We are open.Nine to five." {
		t.Errorf("audio = %q", got)
	}
	if err := turn.Err(); err != nil {
		t.Errorf("turn error: %v", err)
	}

	// Sentence chunking: the first sentence is handed to synthesis before
	// the stream ends, the trailing fragment at end of stream.
	spoken := ttsP.Spoken()
	if len(spoken) != 2 || spoken[0] != "We are open." || spoken[1] != "Nine to five." {
		t.Errorf("spoken fragments = %v", spoken)
	}
	if len(ttsP.VoiceIDs) != 1 || ttsP.VoiceIDs[0] != "voice-1" {
		t.Errorf("voice IDs = %v", ttsP.VoiceIDs)
	}

	// Both sides of the exchange are persisted.
	turn.Wait()
	hist, err := store.RecentTurns(context.Background(), "acme", "u1", 0)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Role != memory.RoleUser || hist[0].Content != "what are your hours" {
		t.Errorf("history[0] = %+v", hist[0])
	}
	if hist[1].Role != memory.RoleAssistant || hist[1].Content != "We are open. Nine to five." {
		t.Errorf("history[1] = %+v", hist[1])
	}
}

func TestProcessNoSpeech(t *testing.T) {
	e := New(&sttmock.Provider{Text: "  "}, &llmmock.Provider{}, &ttsmock.Provider{}, memory.NewMemstore())

	_, err := e.Process(context.Background(), Request{Tenant: testTenant(), UserID: "u1"})
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("got %v, want ErrNoSpeech", err)
	}
}

func TestProcessSTTError(t *testing.T) {
	boom := errors.New("stt down")
	e := New(&sttmock.Provider{Err: boom}, &llmmock.Provider{}, &ttsmock.Provider{}, memory.NewMemstore())

	_, err := e.Process(context.Background(), Request{Tenant: testTenant(), UserID: "u1"})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped stt error", err)
	}
}

func TestProcessSynthesisError(t *testing.T) {
	boom := errors.New("tts down")
	llmP := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "An answer nobody will hear."},
		{FinishReason: "stop"},
	}}
	e := New(&sttmock.Provider{Text: "hi"}, llmP, &ttsmock.Provider{Err: boom}, memory.NewMemstore())

	_, err := e.Process(context.Background(), Request{Tenant: testTenant(), UserID: "u1"})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped tts error", err)
	}
}

func TestProcessHistoryWindow(t *testing.T) {
	store := memory.NewMemstore()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		err := store.AppendTurns(ctx, "acme", "u1",
			memory.Turn{Role: memory.RoleUser, Content: "q", At: time.Now()},
			memory.Turn{Role: memory.RoleAssistant, Content: "a", At: time.Now()},
		)
		if err != nil {
			t.Fatalf("AppendTurns: %v", err)
		}
	}
	if err := store.SaveProfile(ctx, memory.Profile{
		TenantID: "acme", UserID: "u1", FirstName: "Dana",
	}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	llmP := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "ok"}, {FinishReason: "stop"}}}
	e := New(&sttmock.Provider{Text: "next question"}, llmP, &ttsmock.Provider{}, store,
		WithHistoryTurns(4))

	turn, err := e.Process(ctx, Request{Tenant: testTenant(), UserID: "u1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	drainText(turn.Text)
	drainAudio(turn.Audio)
	turn.Wait()

	reqs := llmP.Requests()
	if len(reqs) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 5 {
		t.Fatalf("prompt messages = %d, want 4 history + 1 new", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Role != llm.RoleUser || last.Content != "next question" {
		t.Errorf("last message = %+v", last)
	}
	if !strings.Contains(reqs[0].SystemPrompt, "Acme support assistant") {
		t.Errorf("system prompt missing persona: %q", reqs[0].SystemPrompt)
	}
	if !strings.Contains(reqs[0].SystemPrompt, "Dana") {
		t.Errorf("system prompt missing remembered name: %q", reqs[0].SystemPrompt)
	}
}

func TestProcessMidStreamError(t *testing.T) {
	llmP := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Partial answer"},
		{FinishReason: "error"},
	}}
	e := New(&sttmock.Provider{Text: "hi"}, llmP, &ttsmock.Provider{}, memory.NewMemstore())

	turn, err := e.Process(context.Background(), Request{Tenant: testTenant(), UserID: "u1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := drainText(turn.Text); got != "Partial answer" {
		t.Errorf("text = %q", got)
	}
	drainAudio(turn.Audio)
	turn.Wait()
	if turn.Err() == nil {
		t.Error("turn.Err() = nil, want mid-stream failure")
	}
}

func TestProcessKeywordCorrection(t *testing.T) {
	tn := testTenant()
	tn.Keywords = []string{"Tiryaq"}

	llmP := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "noted"}, {FinishReason: "stop"}}}
	e := New(&sttmock.Provider{Text: "tell me about tiriac"}, llmP, &ttsmock.Provider{}, memory.NewMemstore())

	turn, err := e.Process(context.Background(), Request{Tenant: tn, UserID: "u1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if turn.UserText != "tell me about Tiryaq" {
		t.Errorf("UserText = %q, want corrected keyword", turn.UserText)
	}
	drainText(turn.Text)
	drainAudio(turn.Audio)
	turn.Wait()
}

func TestSpeakGreeting(t *testing.T) {
	ttsP := &ttsmock.Provider{}
	e := New(&sttmock.Provider{}, &llmmock.Provider{}, ttsP, memory.NewMemstore())

	turn, err := e.Speak(context.Background(), testTenant(), "Welcome to Acme.")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := drainText(turn.Text); got != "Welcome to Acme." {
		t.Errorf("text = %q", got)
	}
	if got := string(drainAudio(turn.Audio)); got != "Welcome to Acme." {
		t.Errorf("audio = %q", got)
	}
	if turn.UserText != "" {
		t.Errorf("UserText = %q, want empty", turn.UserText)
	}
}

func TestProcessTenantRequired(t *testing.T) {
	e := New(&sttmock.Provider{}, &llmmock.Provider{}, &ttsmock.Provider{}, memory.NewMemstore())
	if _, err := e.Process(context.Background(), Request{UserID: "u1"}); err == nil {
		t.Fatal("Process without tenant: got nil error")
	}
}
