// Package client implements the Voicewire client pipeline: microphone
// capture and encoding, the turn state machine, the websocket transport
// session, and the queued playback engine with barge-in.
//
// A [Session] owns one live transport, one turn-state value and one playback
// queue. Sessions are created per (tenant, user) conversation and are not
// reusable after [Session.Stop]; nothing is persisted client-side.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/voicewire/voicewire/internal/protocol"
	"github.com/voicewire/voicewire/pkg/audio"
)

// defaultBargeInRMS is the local voice-activity threshold used to detect the
// user talking over the assistant. Matches the gateway's voice threshold.
const defaultBargeInRMS = 300

// SessionConfig assembles the dependencies and tuning for a [Session].
type SessionConfig struct {
	// Transport configures the websocket session (gateway URL, tenant, user).
	Transport TransportConfig

	// OpenSource acquires the microphone. Called during Start; the source is
	// closed on every exit path.
	OpenSource func(ctx context.Context) (Source, error)

	// OpenSink acquires the audio output. Called during Start before the
	// source, released on every exit path — including when a later
	// acquisition step fails.
	OpenSink func(ctx context.Context) (Sink, error)

	// Decoder decodes inbound segments. Nil means PCM16 at 16 kHz, the
	// reference gateway's synthesis format.
	Decoder Decoder

	// Gain is the capture gain multiplier. Zero means [audio.DefaultGain].
	Gain float32

	// BargeInRMS is the RMS level above which capture input during playback
	// counts as the user speaking, triggering flush-and-stop. Zero means the
	// default; negative disables local barge-in detection.
	BargeInRMS int

	// OnUserText, OnAssistantText and OnError receive display text. May be
	// nil. Called from the transport read goroutine; must not block.
	OnUserText      func(string)
	OnAssistantText func(string)
	OnError         func(string)

	// OnStateChange observes turn transitions. May be nil.
	OnStateChange func(TurnState)
}

// Session is the client-side conversation session. It owns setup and orderly
// teardown of the capture source, playback sink and transport as one scoped
// unit: everything acquired by Start is released on every exit path, even
// when setup fails partway.
//
// There is no automatic reconnection: when the transport drops, the session
// ends and the caller decides whether to start a new one.
type Session struct {
	cfg   cfgResolved
	state StateCell

	mu       sync.Mutex
	started  bool
	stopped  bool
	source   Source
	sink     Sink
	player   *Player
	tr       *Transport
	cancel   context.CancelFunc
	closers  []func() error
	done     chan struct{}
	doneOnce sync.Once
	endErr   error
}

// cfgResolved is SessionConfig with defaults applied.
type cfgResolved struct {
	SessionConfig
	gain       float32
	bargeInRMS int
}

// NewSession creates a Session. Nothing is acquired until [Session.Start].
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.OpenSource == nil || cfg.OpenSink == nil {
		return nil, errors.New("client: OpenSource and OpenSink are required")
	}
	r := cfgResolved{SessionConfig: cfg, gain: cfg.Gain, bargeInRMS: cfg.BargeInRMS}
	if r.gain == 0 {
		r.gain = audio.DefaultGain
	}
	if r.bargeInRMS == 0 {
		r.bargeInRMS = defaultBargeInRMS
	}
	if r.Decoder == nil {
		r.Decoder = &PCM16Decoder{}
	}
	return &Session{cfg: r, done: make(chan struct{})}, nil
}

// Start acquires the playback sink, the capture source and the transport (in
// that order), then moves the turn state to listening — the only transition
// the client ever makes on its own — and begins streaming capture frames.
//
// On any acquisition failure, resources already acquired are released in
// reverse order before the error is returned; a failed microphone never
// leaves an output device open.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("client: session already started")
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	sink, err := s.cfg.OpenSink(ctx)
	if err != nil {
		return fmt.Errorf("client: open audio output: %w", err)
	}
	closers = append(closers, sink.Close)

	source, err := s.cfg.OpenSource(ctx)
	if err != nil {
		return fmt.Errorf("client: open microphone: %w", err)
	}
	closers = append(closers, source.Close)

	player := NewPlayer(sink, s.cfg.Decoder)
	closers = append(closers, player.Close)

	// Wire the player and resources before dialing: the transport's read
	// loop starts inside DialTransport and may deliver messages immediately.
	s.sink = sink
	s.source = source
	s.player = player
	player.OnDrained(s.playbackDrained)

	tr, err := DialTransport(ctx, s.cfg.Transport, (*sessionHandler)(s))
	if err != nil {
		s.sink, s.source, s.player = nil, nil, nil
		return fmt.Errorf("client: open session: %w", err)
	}
	closers = append(closers, tr.Close)

	captureCtx, cancel := context.WithCancel(context.Background())

	s.started = true
	s.tr = tr
	s.cancel = cancel
	s.closers = closers

	s.setState(StateListening)

	go s.captureLoop(captureCtx)

	slog.Info("session started",
		"tenant_id", s.cfg.Transport.TenantID,
		"user_id", s.cfg.Transport.UserID,
	)
	return nil
}

// Stop tears the session down: transport first, then playback, microphone
// and output, in reverse acquisition order. Safe to call more than once and
// regardless of how far Start got.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	closers := s.closers
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.setState(StateIdle)
	s.finish(nil)
	return errors.Join(errs...)
}

// Done is closed when the session has ended, either by [Session.Stop] or by
// the transport dropping. After Done, [Session.Err] reports the cause.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the transport error that ended the session, or nil for an
// orderly stop. Valid after [Session.Done] is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// State returns the current turn state.
func (s *Session) State() TurnState { return s.state.Get() }

// ─── capture path ─────────────────────────────────────────────────────────────

// captureLoop reads capture blocks, encodes them and transmits while the
// state is listening. Blocks captured in any other state are discarded, not
// buffered, so resuming listening never replays stale audio. During
// speaking, block energy feeds local barge-in detection instead.
func (s *Session) captureLoop(ctx context.Context) {
	for {
		block, err := s.source.ReadBlock(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				slog.Warn("capture source failed", "err", err)
			}
			return
		}
		if len(block) == 0 {
			continue
		}

		switch s.state.Get() {
		case StateListening:
			frame := audio.EncodeBlockBytes(block, s.cfg.gain)
			if err := s.tr.SendFrame(frame); err != nil {
				return
			}
		case StateSpeaking:
			if s.cfg.bargeInRMS > 0 {
				pcm := audio.EncodeBlockBytes(block, s.cfg.gain)
				if audio.RMS(pcm) >= s.cfg.bargeInRMS {
					s.bargeIn("local voice activity")
				}
			}
		default:
			// idle / thinking: discard.
		}
	}
}

// bargeIn flushes playback immediately and tells the gateway the floor is
// free. Fired by local voice activity during speaking or by an explicit
// interrupt control message — whichever arrives first wins; the second is a
// no-op because the player is already idle.
func (s *Session) bargeIn(reason string) {
	slog.Info("barge-in", "reason", reason)
	if p := s.playerRef(); p != nil {
		p.FlushAndStop()
	}
	if tr := s.transport(); tr != nil {
		_ = tr.SendControl(context.Background(), protocol.Message{Type: protocol.TypePlaybackDone})
	}
}

// playbackDrained runs when the queue empties after audio_end: the client
// has finished speaking the response and hands the turn back.
func (s *Session) playbackDrained() {
	if tr := s.transport(); tr != nil {
		_ = tr.SendControl(context.Background(), protocol.Message{Type: protocol.TypePlaybackDone})
	}
}

// transport and playerRef read the shared references under the session
// mutex; transport callbacks run concurrently with Start and Stop.
func (s *Session) transport() *Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr
}

func (s *Session) playerRef() *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Session) setState(next TurnState) {
	prev := s.state.Set(next)
	if prev != next && s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(next)
	}
}

func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.endErr = err
		s.mu.Unlock()
		close(s.done)
	})
}

// ─── transport handler ────────────────────────────────────────────────────────

// sessionHandler adapts Session to TransportHandler without exporting the
// callback methods on Session itself.
type sessionHandler Session

func (h *sessionHandler) HandleControl(msg protocol.Message) {
	s := (*Session)(h)
	switch msg.Type {
	case protocol.TypeState:
		next, ok := ParseTurnState(msg.State)
		if !ok {
			slog.Warn("unrecognised turn state", "state", msg.State)
			return
		}
		s.setState(next)
	case protocol.TypeAudioStart:
		// Informational; segments follow on the binary channel.
	case protocol.TypeAudioEnd:
		if p := s.playerRef(); p != nil {
			p.EndOfResponse()
		}
	case protocol.TypeInterrupt:
		s.bargeIn("gateway interrupt")
	case protocol.TypeText:
		if s.cfg.OnAssistantText != nil {
			s.cfg.OnAssistantText(msg.Content)
		}
	case protocol.TypeUserText:
		if s.cfg.OnUserText != nil {
			s.cfg.OnUserText(msg.Content)
		}
	case protocol.TypeError:
		if s.cfg.OnError != nil {
			s.cfg.OnError(msg.Content)
		}
		// The gateway resets the turn after an error; stay interruptible
		// rather than freezing in thinking.
		s.setState(StateListening)
	case protocol.TypePong:
		// Keepalive answer; nothing to do.
	default:
		// Unknown control types are ignored for forward compatibility.
		slog.Debug("ignoring control message", "type", msg.Type)
	}
}

func (h *sessionHandler) HandleSegment(segment []byte) {
	if p := (*Session)(h).playerRef(); p != nil {
		p.Enqueue(segment)
	}
}

func (h *sessionHandler) HandleClosed(err error) {
	s := (*Session)(h)
	if err != nil {
		slog.Warn("session transport dropped", "err", err)
		s.finish(err)
		_ = s.Stop()
		return
	}
	s.finish(nil)
}
