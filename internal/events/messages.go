package events

import (
	"encoding/json"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/models"
)

// ActivityMessage is published for every audit log entry.
type ActivityMessage struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewActivityMessage builds the message for a stored entry.
func NewActivityMessage(entry models.ActivityEntry) *ActivityMessage {
	return &ActivityMessage{
		ID:        entry.ID,
		UserID:    entry.UserID,
		Action:    entry.Action,
		Details:   entry.Details,
		Timestamp: entry.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON creates a message from JSON bytes
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
