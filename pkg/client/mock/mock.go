// Package mock provides in-memory Source and Sink implementations for
// testing the client pipeline without real audio devices.
package mock

import (
	"context"
	"io"
	"sync"
	"time"
)

// Source is a test double for client.Source fed from a block channel.
type Source struct {
	Blocks chan []float32
	Rate   int

	mu     sync.Mutex
	closed bool
}

// NewSource creates a Source with the given channel buffer depth at 16 kHz.
func NewSource(buffer int) *Source {
	return &Source{Blocks: make(chan []float32, buffer), Rate: 16000}
}

// Push feeds one capture block to the source.
func (s *Source) Push(block []float32) {
	s.Blocks <- block
}

// ReadBlock returns the next pushed block, or io.EOF once the source is
// closed and drained.
func (s *Source) ReadBlock(ctx context.Context) ([]float32, error) {
	select {
	case block, ok := <-s.Blocks:
		if !ok {
			return nil, io.EOF
		}
		return block, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) SampleRate() int { return s.Rate }

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Blocks)
	}
	return nil
}

// Played records one Sink.Play call.
type Played struct {
	PCM        []byte
	SampleRate int

	// Interrupted is true when Play returned because its context was
	// cancelled mid-segment.
	Interrupted bool
}

// Sink is a test double for client.Sink. Each Play call blocks for PlayTime
// (or until cancelled) and is recorded.
type Sink struct {
	// PlayTime is how long each segment "takes" to render. Zero returns
	// immediately.
	PlayTime time.Duration

	// Gate, when non-nil, makes Play block until the gate channel is closed
	// (or the context cancelled). Overrides PlayTime.
	Gate chan struct{}

	mu      sync.Mutex
	history []Played
	active  int
	closed  bool
}

func (s *Sink) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()
	rec := Played{PCM: pcm, SampleRate: sampleRate}

	var wait <-chan time.Time
	if s.Gate == nil {
		timer := time.NewTimer(s.PlayTime)
		defer timer.Stop()
		wait = timer.C
	}

	var err error
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			rec.Interrupted = true
			err = ctx.Err()
		}
	} else {
		select {
		case <-wait:
		case <-ctx.Done():
			rec.Interrupted = true
			err = ctx.Err()
		}
	}

	s.mu.Lock()
	s.history = append(s.history, rec)
	s.mu.Unlock()
	return err
}

// History returns a snapshot of recorded Play calls in order.
func (s *Sink) History() []Played {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Played, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Active reports whether a Play call is currently in progress.
func (s *Sink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active > 0
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
