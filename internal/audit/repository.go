package audit

import "context"

// Repository persists audit entries beyond the life of the process.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	// List returns entries oldest first.
	List(ctx context.Context, f Filter) ([]*Entry, error)
}
