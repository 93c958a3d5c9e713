package livestate

import (
	"encoding/json"
)

// Push-channel message types.
const (
	TypeState    = "state"
	TypeChat     = "chat"
	TypeSetState = "set_state"
	TypeEcho     = "echo"
)

// Inbound is a message received from an observer: *ChatMessage,
// *SetStateMessage or *UnknownMessage.
type Inbound interface {
	inbound()
}

// ChatMessage asks the chat responder a question.
type ChatMessage struct {
	Text string
}

// SetStateMessage carries a partial state update.
type SetStateMessage struct {
	Payload map[string]json.RawMessage
}

// UnknownMessage is anything else. Text is the frame's text field when it
// has one, otherwise the raw frame.
type UnknownMessage struct {
	Raw  []byte
	Text string
}

func (*ChatMessage) inbound()     {}
func (*SetStateMessage) inbound() {}
func (*UnknownMessage) inbound()  {}

// ParseInbound classifies a raw frame. It never fails.
func ParseInbound(frame []byte) Inbound {
	var env struct {
		Type    string          `json:"type"`
		Text    json.RawMessage `json:"text"`
		Payload json.RawMessage `json:"payload"`
	}
	unknown := &UnknownMessage{Raw: frame, Text: string(frame)}
	if err := json.Unmarshal(frame, &env); err != nil {
		return unknown
	}

	var text string
	hasText := len(env.Text) > 0 && json.Unmarshal(env.Text, &text) == nil
	if hasText {
		unknown.Text = text
	}

	switch env.Type {
	case TypeChat:
		if hasText {
			return &ChatMessage{Text: text}
		}
	case TypeSetState:
		var payload map[string]json.RawMessage
		if len(env.Payload) > 0 && json.Unmarshal(env.Payload, &payload) == nil && payload != nil {
			return &SetStateMessage{Payload: payload}
		}
	}
	return unknown
}

type stateMessage struct {
	Type  string      `json:"type"`
	State DeviceState `json:"state"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EncodeState renders a full state push.
func EncodeState(s DeviceState) ([]byte, error) {
	return json.Marshal(stateMessage{Type: TypeState, State: s})
}

// EncodeChat renders a private chat reply.
func EncodeChat(text string) ([]byte, error) {
	return json.Marshal(textMessage{Type: TypeChat, Text: text})
}

// EncodeEcho renders the reply to an unrecognized message.
func EncodeEcho(m *UnknownMessage) ([]byte, error) {
	return json.Marshal(textMessage{Type: TypeEcho, Text: m.Text})
}
