package workspace

import "time"

// EventType names a change observers can react to.
type EventType string

const (
	// EventStateChanged fires on every navigator state transition.
	EventStateChanged EventType = "state-change"
	// EventFeedbackChanged fires after a like, dislike, or comment is stored.
	EventFeedbackChanged EventType = "feedback-change"
	// EventSessionChanged fires after login, signup, or logout.
	EventSessionChanged EventType = "session-change"
	// EventUnauthorized fires after the backend rejected the session.
	EventUnauthorized EventType = "unauthorized"
)

// Event describes one change to the workspace.
type Event struct {
	Type      EventType `json:"type"`
	State     State     `json:"state"`
	ProjectID string    `json:"project_id,omitempty"`
	VersionID string    `json:"version_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives workspace events. It is called without workspace locks held.
type Observer func(Event)
