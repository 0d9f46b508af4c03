package orderindex

import (
	"context"
	"time"
)

// Entry is one row of a scope as seen by the key space.
type Entry struct {
	ID        string
	Key       Key
	CreatedAt time.Time
}

// Assignment is a key the caller must persist for an item.
type Assignment struct {
	ID  string
	Key Key
}

// WindowQuery selects an ordered slice of a scope.
//
// Bounds are inclusive and nil means unbounded. Ascending order is key
// ascending with ties broken by CreatedAt descending, then ID ascending.
// Descending is the exact reverse. Limit <= 0 means no limit.
type WindowQuery struct {
	Lower     *Key
	Upper     *Key
	Limit     int
	Direction Direction
}

// Store is the storage collaborator. Implementations must be safe for
// concurrent use across scopes.
type Store interface {
	// MaxKey returns the largest key of the scope; ok is false for an empty scope.
	MaxKey(ctx context.Context, scope string) (key Key, ok bool, err error)
	// MinKey returns the smallest key of the scope; ok is false for an empty scope.
	MinKey(ctx context.Context, scope string) (key Key, ok bool, err error)
	// Window returns the rows selected by q.
	Window(ctx context.Context, scope string, q WindowQuery) ([]Entry, error)
	// UpdateKey sets the key of one item.
	UpdateKey(ctx context.Context, scope, id string, key Key) error
}

// BatchWriter is implemented by stores that can write several keys in one
// request, atomically where the backend allows it.
type BatchWriter interface {
	UpdateKeys(ctx context.Context, scope string, assignments []Assignment) error
}

// KeyPtr returns a pointer to k, for WindowQuery bounds.
func KeyPtr(k Key) *Key {
	return &k
}

// Less reports whether a sorts before b in ascending window order.
func Less(a, b Entry) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// ApplyAssignments persists a plan through s, as one batch when supported.
func ApplyAssignments(ctx context.Context, s Store, scope string, plan []Assignment) error {
	if len(plan) == 0 {
		return nil
	}
	if bw, ok := s.(BatchWriter); ok {
		if err := bw.UpdateKeys(ctx, scope, plan); err != nil {
			return storageErr("apply plan", scope, err)
		}
		return nil
	}
	for _, a := range plan {
		if err := s.UpdateKey(ctx, scope, a.ID, a.Key); err != nil {
			return storageErr("apply plan", scope, err)
		}
	}
	return nil
}
