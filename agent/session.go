package agent

import (
	"errors"
	"time"
)

// Session statuses. Deleting a session abandons it rather than removing the
// record, mirroring the soft delete on workflows.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionAbandoned = "abandoned"
)

// ErrSessionNotFound is returned when a session id does not resolve.
var ErrSessionNotFound = errors.New("conversation session not found")

// Message is one chat turn stored on a session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a stored conversation. WorkflowDraft holds the draft as the
// model produced it, including drafts that failed to parse into a graph.
type Session struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
	Status        string         `json:"status"`
	Messages      []Message      `json:"messages"`
	WorkflowDraft map[string]any `json:"workflow_draft"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
