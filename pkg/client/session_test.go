package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voicewire/voicewire/internal/protocol"
	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/client"
	"github.com/voicewire/voicewire/pkg/client/mock"
)

// fakeGateway is an in-process websocket peer standing in for the Voicewire
// gateway. It records everything the client sends and lets tests push
// control messages and segments back.
type fakeGateway struct {
	srv *httptest.Server

	mu     sync.Mutex
	conn   *websocket.Conn
	frames [][]byte
	msgs   []protocol.Message
	ready  chan struct{}
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{ready: make(chan struct{})}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/session/t1/u1" {
			t.Errorf("unexpected session path %q", r.URL.Path)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conn = conn
		g.mu.Unlock()
		close(g.ready)
		for {
			typ, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			g.mu.Lock()
			switch typ {
			case websocket.MessageBinary:
				g.frames = append(g.frames, data)
			case websocket.MessageText:
				if msg, err := protocol.Unmarshal(data); err == nil {
					g.msgs = append(g.msgs, msg)
				}
			}
			g.mu.Unlock()
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	<-g.ready
	data, err := protocol.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := g.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("gateway write: %v", err)
	}
}

func (g *fakeGateway) sendSegment(t *testing.T, seg []byte) {
	t.Helper()
	<-g.ready
	if err := g.conn.Write(context.Background(), websocket.MessageBinary, seg); err != nil {
		t.Fatalf("gateway write segment: %v", err)
	}
}

func (g *fakeGateway) frameCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.frames)
}

func (g *fakeGateway) messages() []protocol.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]protocol.Message, len(g.msgs))
	copy(out, g.msgs)
	return out
}

func startSession(t *testing.T, g *fakeGateway, source *mock.Source, sink *mock.Sink) *client.Session {
	t.Helper()
	sess, err := client.NewSession(client.SessionConfig{
		Transport: client.TransportConfig{
			BaseURL:  g.srv.URL,
			TenantID: "t1",
			UserID:   "u1",
		},
		OpenSource: func(context.Context) (client.Source, error) { return source, nil },
		OpenSink:   func(context.Context) (client.Sink, error) { return sink, nil },
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = sess.Stop() })
	return sess
}

func TestSession_TransmitsOnlyWhileListening(t *testing.T) {
	g := newFakeGateway(t)
	source := mock.NewSource(16)
	sess := startSession(t, g, source, &mock.Sink{})
	<-g.ready

	if sess.State() != client.StateListening {
		t.Fatalf("initial state: got %v, want listening", sess.State())
	}

	// Scenario from the wire contract: an all-zero 4096-sample block encodes
	// to 4096 zero int16 samples sent as one binary frame.
	source.Push(make([]float32, audio.DefaultFrameSamples))
	waitFor(t, time.Second, func() bool { return g.frameCount() == 1 })
	g.mu.Lock()
	frame := g.frames[0]
	g.mu.Unlock()
	if len(frame) != audio.DefaultFrameSamples*2 {
		t.Fatalf("frame size: got %d, want %d", len(frame), audio.DefaultFrameSamples*2)
	}
	for i, b := range frame {
		if b != 0 {
			t.Fatalf("byte %d: got %#x, want 0", i, b)
		}
	}

	// In thinking, capture blocks are discarded, not buffered: no frame may
	// arrive now or after listening resumes.
	g.send(t, protocol.StateMessage(protocol.StateThinking))
	waitFor(t, time.Second, func() bool { return sess.State() == client.StateThinking })
	for range 3 {
		source.Push(make([]float32, audio.DefaultFrameSamples))
	}
	time.Sleep(50 * time.Millisecond)
	if got := g.frameCount(); got != 1 {
		t.Fatalf("frames sent while thinking: got %d, want 1", got)
	}

	g.send(t, protocol.StateMessage(protocol.StateListening))
	waitFor(t, time.Second, func() bool { return sess.State() == client.StateListening })
	time.Sleep(20 * time.Millisecond)
	if got := g.frameCount(); got != 1 {
		t.Errorf("suppressed audio replayed after resume: %d frames", got)
	}
}

func TestSession_PlaybackAndDone(t *testing.T) {
	g := newFakeGateway(t)
	sink := &mock.Sink{PlayTime: 5 * time.Millisecond}
	startSession(t, g, mock.NewSource(4), sink)
	<-g.ready

	g.send(t, protocol.StateMessage(protocol.StateSpeaking))
	g.send(t, protocol.Message{Type: protocol.TypeAudioStart})
	g.sendSegment(t, segment(1, 16))
	g.sendSegment(t, segment(2, 16))
	g.send(t, protocol.Message{Type: protocol.TypeAudioEnd})

	waitFor(t, time.Second, func() bool {
		for _, m := range g.messages() {
			if m.Type == protocol.TypePlaybackDone {
				return true
			}
		}
		return false
	})
	h := sink.History()
	if len(h) != 2 {
		t.Fatalf("played %d segments, want 2", len(h))
	}
	if audio.BytesToInt16s(h[0].PCM)[0] != 1 || audio.BytesToInt16s(h[1].PCM)[0] != 2 {
		t.Error("segments played out of order")
	}
}

func TestSession_LocalBargeIn(t *testing.T) {
	g := newFakeGateway(t)
	gate := make(chan struct{})
	defer close(gate)
	sink := &mock.Sink{Gate: gate}
	source := mock.NewSource(4)
	sess := startSession(t, g, source, sink)
	<-g.ready

	g.send(t, protocol.StateMessage(protocol.StateSpeaking))
	waitFor(t, time.Second, func() bool { return sess.State() == client.StateSpeaking })
	g.sendSegment(t, segment(1, 16))
	g.sendSegment(t, segment(2, 16))
	waitFor(t, time.Second, func() bool { return sink.Active() })

	// Loud input while speaking: flush immediately, hand the floor back.
	loud := make([]float32, 512)
	for i := range loud {
		loud[i] = 0.5
	}
	source.Push(loud)

	waitFor(t, time.Second, func() bool {
		for _, m := range g.messages() {
			if m.Type == protocol.TypePlaybackDone {
				return true
			}
		}
		return false
	})
	h := sink.History()
	if len(h) != 1 || !h[0].Interrupted {
		t.Fatalf("want one interrupted segment, got %+v", h)
	}
}

func TestSession_PartialSetupReleasesSink(t *testing.T) {
	sink := &mock.Sink{}
	sess, err := client.NewSession(client.SessionConfig{
		Transport: client.TransportConfig{BaseURL: "http://127.0.0.1:0", TenantID: "t1", UserID: "u1"},
		OpenSink:  func(context.Context) (client.Sink, error) { return sink, nil },
		OpenSource: func(context.Context) (client.Source, error) {
			return nil, errors.New("microphone permission denied")
		},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.Start(context.Background()); err == nil {
		t.Fatal("start should fail when the microphone cannot be acquired")
	}
	if !sink.Closed() {
		t.Error("sink leaked after failed microphone acquisition")
	}
}

func TestSession_TransportDropEndsSession(t *testing.T) {
	g := newFakeGateway(t)
	sink := &mock.Sink{}
	source := mock.NewSource(4)
	sess := startSession(t, g, source, sink)
	<-g.ready

	g.srv.CloseClientConnections()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after transport drop")
	}
	if sess.Err() == nil {
		t.Error("dropped transport should surface an error")
	}
	if !sink.Closed() {
		t.Error("audio resources not released after drop")
	}
}
