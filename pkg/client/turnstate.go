package client

import (
	"log/slog"
	"sync/atomic"
)

// TurnState is the single shared state value that gates the capture path and
// steers interpretation of inbound messages. Exactly one value holds at any
// instant.
type TurnState int32

const (
	// StateIdle: no mic active, no playback, awaiting user start.
	StateIdle TurnState = iota

	// StateListening: mic active, capture frames are transmitted.
	StateListening

	// StateThinking: gateway is processing; capture frames are discarded.
	StateThinking

	// StateSpeaking: response audio is playing; capture frames are discarded.
	StateSpeaking
)

// String returns the wire name of the state.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// ParseTurnState maps a wire state name to a TurnState. The second return
// value is false for unrecognised names.
func ParseTurnState(name string) (TurnState, bool) {
	switch name {
	case "idle":
		return StateIdle, true
	case "listening":
		return StateListening, true
	case "thinking":
		return StateThinking, true
	case "speaking":
		return StateSpeaking, true
	}
	return StateIdle, false
}

// turnTable lists the transitions the gateway's turn discipline is expected
// to drive. Used for logging only — see [StateCell.Set].
var turnTable = map[TurnState][]TurnState{
	StateIdle:      {StateListening},
	StateListening: {StateThinking, StateSpeaking},
	StateThinking:  {StateSpeaking, StateListening},
	StateSpeaking:  {StateListening, StateIdle},
}

// StateCell holds the current TurnState. Reads are lock-free atomic loads so
// the capture callback never blocks; writes come from the control-message
// handler goroutine.
//
// The cell is permissive: any state the gateway sends is accepted verbatim.
// A transition outside the expected table is logged at warn level rather
// than rejected — the gateway is the authority on turn progression, and
// rejecting a legitimate future transition would be worse than accepting a
// buggy one (which the log surfaces).
type StateCell struct {
	v atomic.Int32
}

// Get returns the current state. Safe to call from the capture callback.
func (c *StateCell) Get() TurnState {
	return TurnState(c.v.Load())
}

// Set stores the new state unconditionally and returns the previous state.
// Unexpected transitions are logged, not rejected.
func (c *StateCell) Set(next TurnState) TurnState {
	prev := TurnState(c.v.Swap(int32(next)))
	if prev == next {
		return prev
	}
	expected := false
	for _, allowed := range turnTable[prev] {
		if allowed == next {
			expected = true
			break
		}
	}
	if !expected {
		slog.Warn("unexpected turn transition", "from", prev, "to", next)
	}
	return prev
}
