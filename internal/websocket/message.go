package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeNoteSaved   MessageType = "note_saved"
	TypeNoteDeleted MessageType = "note_deleted"
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NoteChangePayload tells the user's other devices that a note document
// moved forward; they are expected to pull.
type NoteChangePayload struct {
	NoteID    int64  `json:"note_id"`
	UpdatedAt int64  `json:"updated_at"`
	DeviceID  string `json:"device_id"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
