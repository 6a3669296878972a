package audit

import "time"

// ActionKind classifies what the actor did to the resource.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionRead   ActionKind = "read"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Severity orders events by operational interest. Critical events bypass
// batching and flush immediately.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is an immutable record of a security-relevant action. Detail is
// masked before the event enters the buffer; once persisted the event is
// never mutated and is removed only by the retention sweep.
type Event struct {
	ID            string
	Timestamp     time.Time
	ActorID       int64
	ActorUsername string
	ActorRole     string
	Action        ActionKind
	ResourceKind  string
	ResourceID    string
	TeamID        int64
	Severity      Severity
	Detail        map[string]any
	OriginIP      string
	UserAgent     string
}
