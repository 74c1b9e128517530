package events

import (
	"encoding/json"
	"errors"
	"time"

	"ledger/internal/ledger"
)

var ErrMissingOp = errors.New("change message has no op")

// ChangeMessage is the wire form of a ledger mutation. It carries the
// touched record (absent for "cleared") and the ledger aggregate right after
// the mutation, so consumers never need to read the store.
type ChangeMessage struct {
	Op        string    `json:"op"`
	ID        int64     `json:"id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Item      string    `json:"item,omitempty"`
	Count     int       `json:"count"`
	Total     string    `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage converts a ledger change to its wire form.
func NewChangeMessage(c ledger.Change) *ChangeMessage {
	msg := &ChangeMessage{
		Op:        string(c.Op),
		Count:     c.Count,
		Total:     c.Total.String(),
		Timestamp: c.At,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if c.Op != ledger.OpCleared {
		msg.ID = c.Record.ID
		msg.Amount = c.Record.Amount.String()
		msg.Item = c.Record.Description
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON parses a message and rejects ones without an op.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Op == "" {
		return nil, ErrMissingOp
	}
	return &msg, nil
}
