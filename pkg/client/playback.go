package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Sink is the audio output device abstraction. Play blocks until the PCM has
// been rendered or ctx is cancelled; the player relies on that blocking to
// chain segments back-to-back with no gap.
//
// Implementations must return promptly on ctx cancellation — that is the
// mechanism behind mid-segment barge-in.
type Sink interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
	Close() error
}

// Player serialises playback of inbound audio segments. Segments are queued
// in arrival order and played strictly FIFO by a single dispatch goroutine;
// a new segment starts the instant the previous one completes. Queue and
// cursor state live behind one mutex shared by the two producers (segment
// arrival, flush) and the dispatch consumer, so there is no lost-update or
// double-advance window.
//
// All exported methods are safe for concurrent use.
type Player struct {
	sink Sink
	dec  Decoder

	mu            sync.Mutex
	queue         [][]byte
	playing       bool
	cancelPlaying context.CancelFunc
	pendingDone   bool // end-of-response seen; fire onDrained when queue empties
	closed        bool

	// onDrained is invoked (on the dispatch goroutine) when the queue empties
	// after EndOfResponse. The session uses it to send playback_done.
	onDrained func()

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewPlayer creates a Player that decodes segments with dec and renders them
// through sink. The dispatch goroutine starts immediately; call
// [Player.Close] to stop it.
func NewPlayer(sink Sink, dec Decoder) *Player {
	p := &Player{
		sink:   sink,
		dec:    dec,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.dispatch()
	return p
}

// OnDrained registers cb to be invoked when playback of a complete response
// finishes (queue empty after [Player.EndOfResponse]). Only one callback may
// be registered; later calls replace it. The callback runs on the dispatch
// goroutine and must not block.
func (p *Player) OnDrained(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDrained = cb
}

// Enqueue appends one segment to the playback queue. If nothing is playing,
// playback begins immediately. The player takes ownership of the buffer
// until the segment has been played or flushed.
func (p *Player) Enqueue(segment []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue = append(p.queue, segment)
	p.wake()
}

// EndOfResponse marks the current response as complete on the gateway side.
// Once every queued segment has played, the drained callback fires. If the
// queue is already empty and idle, it fires from the dispatch goroutine
// right away.
func (p *Player) EndOfResponse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.pendingDone = true
	p.wake()
}

// FlushAndStop halts any in-progress segment, discards every queued segment
// and resets the player to idle. Callable at any time, including mid-segment;
// because it holds the queue mutex, no segment enqueued afterwards can
// interleave with flushed audio. Idempotent.
func (p *Player) FlushAndStop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	p.pendingDone = false
	if p.cancelPlaying != nil {
		p.cancelPlaying()
	}
}

// Busy reports whether a segment is currently playing or queued.
func (p *Player) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing || len(p.queue) > 0
}

// Close stops the dispatch goroutine, interrupting any in-progress segment,
// and waits for it to exit. Idempotent; always returns nil.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.queue = nil
	if p.cancelPlaying != nil {
		p.cancelPlaying()
	}
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	return nil
}

// wake nudges the dispatch goroutine. Must be called with p.mu held.
func (p *Player) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// dispatch is the single consumer goroutine owning the playback cursor.
func (p *Player) dispatch() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.notify:
		}

		for {
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return
			}
			if len(p.queue) == 0 {
				cb := p.onDrained
				fire := p.pendingDone
				p.pendingDone = false
				p.mu.Unlock()
				if fire && cb != nil {
					cb()
				}
				break
			}
			segment := p.queue[0]
			p.queue = p.queue[1:]

			ctx, cancel := context.WithCancel(context.Background())
			p.playing = true
			p.cancelPlaying = cancel
			p.mu.Unlock()

			p.playSegment(ctx, segment)

			cancel()
			p.mu.Lock()
			p.playing = false
			p.cancelPlaying = nil
			p.mu.Unlock()
		}
	}
}

// playSegment decodes and renders one segment. Decode failures are skipped
// with a log so the queue never stalls on bad data.
func (p *Player) playSegment(ctx context.Context, segment []byte) {
	pcm, err := p.dec.Decode(segment)
	if err != nil {
		slog.Warn("dropping undecodable segment", "bytes", len(segment), "err", err)
		return
	}
	if err := p.sink.Play(ctx, pcm, p.dec.SampleRate()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("segment playback failed", "err", err)
	}
}
