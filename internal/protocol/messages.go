// Package protocol defines the control messages exchanged as websocket text
// frames between the Voicewire client and gateway.
//
// Audio travels as binary frames and never passes through this package:
// outbound (client→gateway) binary is raw PCM16LE capture frames, inbound
// (gateway→client) binary is encoded synthesis segments. Everything else is
// a JSON object with a "type" discriminator, decoded here. Unknown types
// decode without error so the protocol stays forward-compatible; receivers
// use [Known] to skip types their build predates.
package protocol

// MessageType discriminates control messages on the text channel.
type MessageType string

// Gateway → client message types.
const (
	// TypeState carries a turn-state transition ("idle", "listening",
	// "thinking", "speaking").
	TypeState MessageType = "state"

	// TypeAudioStart announces that synthesis segments follow. Informational.
	TypeAudioStart MessageType = "audio_start"

	// TypeAudioEnd announces that the current response's segments are
	// complete. Informational.
	TypeAudioEnd MessageType = "audio_end"

	// TypeText carries a fragment of the assistant's response text.
	TypeText MessageType = "text"

	// TypeUserText carries the transcription of the user's last utterance.
	TypeUserText MessageType = "user_text"

	// TypeInterrupt instructs the client to flush playback immediately.
	TypeInterrupt MessageType = "interrupt"

	// TypeError carries a user-displayable error from the gateway pipeline.
	TypeError MessageType = "error"

	// TypePong answers a client ping.
	TypePong MessageType = "pong"
)

// Client → gateway message types.
const (
	// TypePlaybackDone tells the gateway the client finished playing the
	// response, so the turn can return to listening.
	TypePlaybackDone MessageType = "playback_done"

	// TypePing is a client keepalive probe.
	TypePing MessageType = "ping"
)

// Turn state names carried by TypeState messages.
const (
	StateIdle      = "idle"
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSpeaking  = "speaking"
)

// Message is the wire shape of every control message. Payload fields not
// used by a given type are omitted from the encoding.
type Message struct {
	Type MessageType `json:"type"`

	// State is the target turn state for TypeState messages.
	State string `json:"state,omitempty"`

	// Content is the text payload for TypeText, TypeUserText and TypeError.
	Content string `json:"content,omitempty"`
}

// StateMessage builds a TypeState message for the given turn state name.
func StateMessage(state string) Message {
	return Message{Type: TypeState, State: state}
}

// TextMessage builds a TypeText message with the given content fragment.
func TextMessage(content string) Message {
	return Message{Type: TypeText, Content: content}
}

// UserTextMessage builds a TypeUserText message with the given transcript.
func UserTextMessage(content string) Message {
	return Message{Type: TypeUserText, Content: content}
}

// ErrorMessage builds a TypeError message with a user-displayable text.
func ErrorMessage(content string) Message {
	return Message{Type: TypeError, Content: content}
}
