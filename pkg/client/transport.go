package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/voicewire/voicewire/internal/protocol"
)

const (
	// defaultFrameBuffer bounds the outbound frame queue. At 256 ms per frame
	// this absorbs roughly 8 seconds of transient network stall.
	defaultFrameBuffer = 32

	// dropWarnEvery controls how often sustained backpressure is logged.
	dropWarnEvery = 50
)

// ErrTransportClosed is returned by send methods after the transport has
// shut down.
var ErrTransportClosed = errors.New("client: transport closed")

// TransportHandler receives inbound traffic from a [Transport]. Callbacks
// run sequentially on the transport's read goroutine and must not block.
type TransportHandler interface {
	// HandleControl is invoked for each decoded control message whose type
	// this build knows; unknown types are skipped by the transport.
	HandleControl(msg protocol.Message)

	// HandleSegment is invoked for each inbound binary audio segment. The
	// handler takes ownership of the buffer.
	HandleSegment(segment []byte)

	// HandleClosed is invoked exactly once when the connection ends, with
	// nil for an orderly local close and the read error otherwise. No
	// reconnection is attempted; that decision belongs to the caller.
	HandleClosed(err error)
}

// Transport is one full-duplex websocket session with the gateway, keyed by
// tenant and user in the URL path. Outbound binary messages each carry one
// capture frame; outbound text messages carry control JSON. Messages are
// delivered in send order per direction (websocket stream semantics).
//
// Frame sends are fire-and-forget through a bounded queue: when the network
// cannot drain fast enough the oldest queued frame is dropped and a warning
// is logged, so capture never blocks behind the socket.
type Transport struct {
	conn *websocket.Conn

	frames  chan []byte
	control chan []byte

	closeOnce sync.Once
	closedCh  chan struct{}

	mu      sync.Mutex
	dropped uint64
}

// TransportConfig configures [DialTransport].
type TransportConfig struct {
	// BaseURL is the gateway root, e.g. "wss://voice.example.com".
	BaseURL string

	// TenantID and UserID identify the session; both are required and are
	// embedded in the connection path.
	TenantID string
	UserID   string

	// FrameBuffer overrides the outbound frame queue depth. Zero means the
	// default of 32 frames.
	FrameBuffer int
}

// DialTransport opens the session websocket at
// {BaseURL}/ws/session/{tenant}/{user} and starts the read and write loops.
// The handler receives everything inbound until the connection ends.
//
// The supplied ctx governs the dial only; the established session lives
// until [Transport.Close] or a connection failure.
func DialTransport(ctx context.Context, cfg TransportConfig, handler TransportHandler) (*Transport, error) {
	if cfg.TenantID == "" || cfg.UserID == "" {
		return nil, errors.New("client: tenant and user IDs are required")
	}
	wsURL, err := url.JoinPath(cfg.BaseURL, "ws", "session", cfg.TenantID, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("client: build session URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", wsURL, err)
	}
	// Synthesis segments can be large; don't let the library's default cap
	// sever the session mid-response.
	conn.SetReadLimit(1 << 22)

	buf := cfg.FrameBuffer
	if buf <= 0 {
		buf = defaultFrameBuffer
	}
	t := &Transport{
		conn:     conn,
		frames:   make(chan []byte, buf),
		control:  make(chan []byte, 8),
		closedCh: make(chan struct{}),
	}
	go t.writeLoop()
	go t.readLoop(handler)
	return t, nil
}

// SendFrame queues one capture frame for transmission. It never blocks: if
// the queue is full the oldest frame is discarded (stale audio is worthless
// in a live conversation). Returns [ErrTransportClosed] after Close.
func (t *Transport) SendFrame(frame []byte) error {
	select {
	case <-t.closedCh:
		return ErrTransportClosed
	default:
	}
	for {
		select {
		case t.frames <- frame:
			return nil
		default:
		}
		select {
		case <-t.frames:
			t.noteDrop()
		default:
		}
	}
}

// SendControl queues one control message for transmission. Blocks until
// queued or ctx is done.
func (t *Transport) SendControl(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case t.control <- data:
		return nil
	case <-t.closedCh:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of outbound frames discarded under
// backpressure since the session started.
func (t *Transport) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close tears the session down. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closedCh)
		_ = t.conn.Close(websocket.StatusNormalClosure, "session ended")
	})
	return nil
}

func (t *Transport) noteDrop() {
	t.mu.Lock()
	t.dropped++
	n := t.dropped
	t.mu.Unlock()
	if n%dropWarnEvery == 1 {
		slog.Warn("outbound frame queue full, dropping oldest", "total_dropped", n)
	}
}

// writeLoop is the single writer on the websocket. Control messages take
// priority over queued frames so state changes are never delayed behind
// audio.
func (t *Transport) writeLoop() {
	ctx := context.Background()
	for {
		select {
		case <-t.closedCh:
			return
		case data := <-t.control:
			if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
				t.Close()
				return
			}
		case frame := <-t.frames:
			// Drain any pending control first.
			select {
			case data := <-t.control:
				if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
					t.Close()
					return
				}
			default:
			}
			if err := t.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				t.Close()
				return
			}
		}
	}
}

// readLoop dispatches inbound messages until the connection ends.
func (t *Transport) readLoop(handler TransportHandler) {
	ctx := context.Background()
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			select {
			case <-t.closedCh:
				err = nil // local close, not a transport failure
			default:
				t.Close()
			}
			handler.HandleClosed(err)
			return
		}
		switch typ {
		case websocket.MessageBinary:
			handler.HandleSegment(data)
		case websocket.MessageText:
			msg, err := protocol.Unmarshal(data)
			if err != nil {
				slog.Warn("undecodable control message", "err", err)
				continue
			}
			if !protocol.Known(msg.Type) {
				// A newer gateway may emit types this build predates.
				slog.Debug("ignoring unknown control message", "type", msg.Type)
				continue
			}
			handler.HandleControl(msg)
		}
	}
}
