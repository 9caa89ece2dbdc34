package domain

import "time"

// EventKind labels a post-commit lifecycle transition of interest to
// side-channel observers (chat notifications, dashboards).
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventReserved  EventKind = "reserved"
	EventCompleted EventKind = "completed"
	EventUnlocked  EventKind = "unlocked"
	EventReclaimed EventKind = "reclaimed"
)

// Event is emitted after a lifecycle mutation commits. Delivery is
// best-effort: the engine never blocks on or fails because of an observer.
type Event struct {
	Kind    EventKind `json:"kind"`
	Task    Task      `json:"task"`
	AgentID string    `json:"agent_id,omitempty"`
	At      time.Time `json:"at"`
}

// Observer receives post-commit events.
type Observer func(Event)
