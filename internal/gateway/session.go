package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/voicewire/voicewire/internal/engine"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/protocol"
	"github.com/voicewire/voicewire/internal/tenant"
)

// outBuffer bounds the session's outbound queue. A single queue keeps
// control messages and audio segments in emission order, which the protocol
// relies on (audio_start before segments before audio_end).
const outBuffer = 256

// outbound is one queued websocket message.
type outbound struct {
	binary bool
	data   []byte
}

// session is one live voice conversation over a websocket. A single reader
// goroutine consumes the connection and a single writer goroutine drains the
// outbound queue; turn processing runs on its own goroutine per utterance,
// at most one at a time.
type session struct {
	id     string
	tenant *tenant.Profile
	userID string
	conn   *websocket.Conn

	eng     *engine.Engine
	metrics *observe.Metrics
	log     *slog.Logger
	seg     *segmenter
	out     chan outbound

	mu         sync.Mutex
	state      string
	turnLive   bool
	turnCancel context.CancelFunc

	// turnWG tracks the in-flight turn goroutine so run can wait for it
	// before tearing the session down.
	turnWG sync.WaitGroup
}

// run drives the session until the connection ends or ctx is cancelled.
func (s *session) run(ctx context.Context) error {
	s.setState(protocol.StateListening)
	s.enqueueMsg(ctx, protocol.StateMessage(protocol.StateListening))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writeLoop(ctx) })
	g.Go(func() error { return s.readLoop(ctx) })
	if s.tenant.Greeting != "" {
		g.Go(func() error {
			s.speakGreeting(ctx)
			return nil
		})
	}

	err := g.Wait()
	s.interruptTurn(ctx, false)
	s.turnWG.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ─── read path ────────────────────────────────────────────────────────────────

func (s *session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return context.Canceled
			}
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			s.handleFrame(ctx, data)
		case websocket.MessageText:
			msg, err := protocol.Unmarshal(data)
			if err != nil {
				s.log.Warn("undecodable control message", "err", err)
				continue
			}
			s.handleControl(ctx, msg)
		}
	}
}

// handleFrame feeds a capture frame into voice activity segmentation. Audio
// arriving outside the listening state is stale by definition and dropped.
func (s *session) handleFrame(ctx context.Context, frame []byte) {
	s.metrics.FramesIn.Add(ctx, 1)
	if s.currentState() != protocol.StateListening {
		return
	}
	utt, ok := s.seg.feed(frame)
	if !ok {
		return
	}
	s.startTurn(ctx, utt)
}

func (s *session) handleControl(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypePing:
		s.enqueueMsg(ctx, protocol.Message{Type: protocol.TypePong})
	case protocol.TypePlaybackDone:
		s.interruptTurn(ctx, true)
	case protocol.TypeInterrupt:
		s.interruptTurn(ctx, true)
	default:
		// Unknown or unexpected control types are ignored for forward
		// compatibility.
		s.log.Debug("ignoring control message", "type", msg.Type)
	}
}

// interruptTurn cancels the in-flight turn if any and hands the floor back
// to the user. Covers both the clean end of playback and a barge-in; they
// are distinguished by whether a turn was still live.
func (s *session) interruptTurn(ctx context.Context, toListening bool) {
	s.mu.Lock()
	cancel := s.turnCancel
	wasLive := s.turnLive
	s.turnCancel = nil
	s.turnLive = false
	changed := false
	if toListening && s.state != protocol.StateListening {
		s.state = protocol.StateListening
		changed = true
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if toListening && wasLive && cancel != nil {
		s.metrics.Interruptions.Add(ctx, 1)
		s.log.Info("turn interrupted")
	}
	if changed {
		s.seg.reset()
		s.enqueueMsg(ctx, protocol.StateMessage(protocol.StateListening))
	}
}

// ─── turn processing ──────────────────────────────────────────────────────────

// startTurn moves the session to thinking and processes the utterance on a
// fresh goroutine. A turn already in flight wins; the new utterance is
// dropped.
func (s *session) startTurn(ctx context.Context, utt []byte) {
	s.mu.Lock()
	if s.state != protocol.StateListening || s.turnLive {
		s.mu.Unlock()
		return
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.state = protocol.StateThinking
	s.turnLive = true
	s.turnCancel = cancel
	s.mu.Unlock()

	s.enqueueMsg(ctx, protocol.StateMessage(protocol.StateThinking))
	endOfSpeech := time.Now()

	s.turnWG.Add(1)
	go func() {
		defer s.turnWG.Done()
		defer cancel()
		s.runTurn(turnCtx, utt, endOfSpeech)
	}()
}

func (s *session) runTurn(ctx context.Context, utt []byte, endOfSpeech time.Time) {
	turn, err := s.eng.Process(ctx, engine.Request{
		Tenant: s.tenant,
		UserID: s.userID,
		PCM:    utt,
	})
	if err != nil {
		if !errors.Is(err, engine.ErrNoSpeech) && !errors.Is(err, context.Canceled) {
			s.log.Error("turn failed", "err", err)
			s.enqueueMsg(ctx, protocol.ErrorMessage("Sorry, something went wrong. Please try again."))
		}
		s.finishTurn(ctx)
		return
	}

	s.enqueueMsg(ctx, protocol.UserTextMessage(turn.UserText))
	spoke := s.streamTurn(ctx, turn, endOfSpeech, true, protocol.StateThinking)

	if ctx.Err() != nil {
		// Barge-in already reset the session state.
		s.clearTurn()
		return
	}
	if err := turn.Err(); err != nil {
		s.log.Error("turn stream failed", "err", err)
		s.enqueueMsg(ctx, protocol.ErrorMessage("Sorry, I lost my train of thought. Please try again."))
		s.finishTurn(ctx)
		return
	}
	if !spoke {
		// Nothing to play, so no playback_done will ever arrive.
		s.finishTurn(ctx)
		return
	}
	// Stay in speaking; listening resumes on the client's playback_done.
	s.clearTurn()
}

// streamTurn relays the turn's text deltas and audio segments onto the wire.
// The first audio segment flips the session from the given prior state to
// speaking and is the TTFB reference point. Reports whether any audio was
// sent.
func (s *session) streamTurn(ctx context.Context, turn *engine.Turn, endOfSpeech time.Time, recordTTFB bool, from string) bool {
	text, audioCh := turn.Text, turn.Audio
	var ttsStart time.Time
	spoke := false

	for text != nil || audioCh != nil {
		select {
		case delta, ok := <-text:
			if !ok {
				text = nil
				continue
			}
			s.enqueueMsg(ctx, protocol.TextMessage(delta))
		case chunk, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			if !spoke {
				spoke = true
				ttsStart = time.Now()
				if recordTTFB {
					s.metrics.TurnTTFB.Record(ctx, time.Since(endOfSpeech).Seconds())
				}
				s.transitionState(ctx, from, protocol.StateSpeaking)
				s.enqueueMsg(ctx, protocol.Message{Type: protocol.TypeAudioStart})
			}
			s.enqueueSegment(ctx, chunk)
			s.metrics.SegmentsOut.Add(ctx, 1)
		}
	}

	if spoke {
		s.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
		if ctx.Err() == nil {
			s.enqueueMsg(ctx, protocol.Message{Type: protocol.TypeAudioEnd})
		}
	}
	return spoke
}

// speakGreeting streams the tenant greeting when the session opens, using
// the same speaking/playback_done turn discipline as a response.
func (s *session) speakGreeting(ctx context.Context) {
	s.mu.Lock()
	if s.state != protocol.StateListening || s.turnLive {
		s.mu.Unlock()
		return
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.turnLive = true
	s.turnCancel = cancel
	s.mu.Unlock()

	turn, err := s.eng.Speak(turnCtx, s.tenant, s.tenant.Greeting)
	if err != nil {
		s.log.Warn("greeting synthesis failed", "err", err)
		s.clearTurn()
		cancel()
		return
	}
	// The first greeting segment moves listening directly to speaking, so
	// the client stops transmitting and arms barge-in while the greeting
	// plays; echo of the greeting can never start a turn.
	spoke := s.streamTurn(turnCtx, turn, time.Time{}, false, protocol.StateListening)
	if turnCtx.Err() != nil || !spoke {
		s.finishTurn(ctx)
	} else {
		s.clearTurn()
	}
	cancel()
}

// finishTurn ends the turn and returns the session to listening.
func (s *session) finishTurn(ctx context.Context) {
	s.mu.Lock()
	s.turnLive = false
	s.turnCancel = nil
	changed := s.state != protocol.StateListening
	s.state = protocol.StateListening
	s.mu.Unlock()
	if changed && ctx.Err() == nil {
		s.enqueueMsg(ctx, protocol.StateMessage(protocol.StateListening))
	}
}

// clearTurn drops the turn bookkeeping without touching the session state.
func (s *session) clearTurn() {
	s.mu.Lock()
	s.turnLive = false
	s.turnCancel = nil
	s.mu.Unlock()
}

// ─── state and write path ─────────────────────────────────────────────────────

func (s *session) currentState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// transitionState moves from want to next and announces it; a session no
// longer in want (barge-in raced ahead) is left alone.
func (s *session) transitionState(ctx context.Context, want, next string) {
	s.mu.Lock()
	if s.state != want {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	s.enqueueMsg(ctx, protocol.StateMessage(next))
}

func (s *session) enqueueMsg(ctx context.Context, msg protocol.Message) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		s.log.Error("marshal control message", "type", msg.Type, "err", err)
		return
	}
	s.enqueue(ctx, outbound{data: data})
}

func (s *session) enqueueSegment(ctx context.Context, segment []byte) {
	s.enqueue(ctx, outbound{binary: true, data: segment})
}

func (s *session) enqueue(ctx context.Context, o outbound) {
	select {
	case s.out <- o:
	case <-ctx.Done():
	}
}

// writeLoop is the single writer on the websocket.
func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case o := <-s.out:
			typ := websocket.MessageText
			if o.binary {
				typ = websocket.MessageBinary
			}
			if err := s.conn.Write(ctx, typ, o.data); err != nil {
				return err
			}
		}
	}
}
