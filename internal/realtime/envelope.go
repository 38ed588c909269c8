package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message 实时通道的统一消息信封
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage marshals payload into an envelope. When the payload carries a
// session_id field it is copied onto the envelope so servers can route by room.
func NewMessage(eventType string, payload interface{}) (Message, error) {
	msg := Message{Type: eventType, Timestamp: time.Now()}
	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	msg.Data = data

	var probe struct {
		SessionID string `json:"session_id"`
	}
	if json.Unmarshal(data, &probe) == nil {
		msg.SessionID = probe.SessionID
	}
	return msg, nil
}

// Decode 将 data 解析到 v
func (m Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
