package models

import "time"

// EventType names an engine notification
type EventType string

const (
	EventScoreChanged   EventType = "score.changed"
	EventUnitCompleted  EventType = "unit.completed"
	EventLevelGenerated EventType = "level.generated"
)

// Event is a best-effort notification for the real-time transport
type Event struct {
	Type       EventType `json:"type"`
	CategoryID string    `json:"category_id"`
	Level      string    `json:"level,omitempty"`
	UnitID     string    `json:"unit_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	At         time.Time `json:"at"`
}
