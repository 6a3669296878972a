package audit

import (
	"context"
	"time"
)

// Filter narrows audit queries. Zero values mean "any".
type Filter struct {
	From         *time.Time
	To           *time.Time
	ActorID      int64
	Action       ActionKind
	ResourceKind string
	ResourceID   string
	TeamID       int64
	Severity     Severity
}

// Page bounds a query result. Desc sorts newest-first.
type Page struct {
	Limit  int
	Offset int
	Desc   bool
}

// Store is the durable backing for audit events.
type Store interface {
	// Append persists one batch atomically, preserving slice order.
	Append(ctx context.Context, events []Event) error

	// Query returns matching events sorted by timestamp, paginated.
	Query(ctx context.Context, filter Filter, page Page) ([]Event, error)

	// Export streams every matching event to fn without the page cap,
	// stopping on the first error fn returns.
	Export(ctx context.Context, filter Filter, fn func(Event) error) error

	// DeleteBefore removes events older than the horizon and reports how
	// many were removed.
	DeleteBefore(ctx context.Context, horizon time.Time) (int, error)
}
