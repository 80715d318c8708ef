package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Marshal encodes a control message as JSON for a websocket text frame.
func Marshal(msg Message) ([]byte, error) {
	b, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %q: %w", msg.Type, err)
	}
	return b, nil
}

// Unmarshal decodes a websocket text frame into a control message.
// A syntactically valid message with an unrecognised type is NOT an error;
// callers dispatch on msg.Type and skip what they don't know.
func Unmarshal(data []byte) (Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("protocol: unmarshal control message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("protocol: control message missing type field")
	}
	return msg, nil
}

// Known reports whether t is a message type this protocol version handles.
func Known(t MessageType) bool {
	switch t {
	case TypeState, TypeAudioStart, TypeAudioEnd, TypeText, TypeUserText,
		TypeInterrupt, TypeError, TypePong, TypePlaybackDone, TypePing:
		return true
	}
	return false
}
