package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventStartFailed EventType = "start_failed"
	EventStop        EventType = "stop"
	EventStopFailed  EventType = "stop_failed"
)

// DefaultTable is the table every SQL sink writes to.
const DefaultTable = "node_history"

// Event represents a lifecycle event to be exported to external systems.
// It is an audit trail only; nothing reads it back to rebuild state.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// NullableError maps an empty error message to SQL NULL.
func (e Event) NullableError() any {
	if e.Error == "" {
		return nil
	}
	return e.Error
}
