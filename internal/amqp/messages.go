package amqp

import (
	"encoding/json"
	"time"
)

// ChangeMessage tells other processes that the value at Path changed.
// Receivers re-read the path themselves; the value is not carried.
type ChangeMessage struct {
	Instance  string    `json:"instance"`
	Path      string    `json:"path"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(instance, path string, version int64) *ChangeMessage {
	return &ChangeMessage{
		Instance:  instance,
		Path:      path,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
