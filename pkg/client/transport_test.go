package client_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voicewire/voicewire/internal/protocol"
	"github.com/voicewire/voicewire/pkg/client"
)

// recordingHandler collects everything the transport dispatches.
type recordingHandler struct {
	mu   sync.Mutex
	msgs []protocol.Message
	segs [][]byte
}

func (h *recordingHandler) HandleControl(msg protocol.Message) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
}

func (h *recordingHandler) HandleSegment(seg []byte) {
	h.mu.Lock()
	h.segs = append(h.segs, seg)
	h.mu.Unlock()
}

func (h *recordingHandler) HandleClosed(error) {}

func (h *recordingHandler) messages() []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func TestTransportSkipsUnknownControlTypes(t *testing.T) {
	g := newFakeGateway(t)
	h := &recordingHandler{}

	tr, err := client.DialTransport(context.Background(), client.TransportConfig{
		BaseURL:  g.srv.URL,
		TenantID: "t1",
		UserID:   "u1",
	}, h)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	// The websocket preserves order: once the state message lands, the
	// unknown-type message before it has already been processed.
	g.send(t, protocol.Message{Type: "caption_style", Content: "bold"})
	g.send(t, protocol.StateMessage(protocol.StateThinking))

	deadline := time.After(2 * time.Second)
	for {
		if msgs := h.messages(); len(msgs) > 0 {
			if len(msgs) != 1 || msgs[0].Type != protocol.TypeState {
				t.Fatalf("dispatched = %+v, want only the state message", msgs)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("state message never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
