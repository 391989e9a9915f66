package bus

import (
	"context"
	"encoding/json"

	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/store"
)

// maxSnapshotBytes bounds what a surface may stash.
const maxSnapshotBytes = 256 << 10

// SnapshotStore keeps the opaque UI snapshot a surface renders from before
// its first dashboard payload arrives.
type SnapshotStore struct {
	scope store.Scope
}

// NewSnapshotStore creates a SnapshotStore on the local scope.
func NewSnapshotStore(scope store.Scope) *SnapshotStore {
	return &SnapshotStore{scope: scope}
}

// Get returns the stored snapshot, or nil when none was saved.
func (s *SnapshotStore) Get(ctx context.Context) (json.RawMessage, error) {
	snap, _, err := store.Load[json.RawMessage](ctx, s.scope, store.KeyUISnapshot)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Set replaces the snapshot. A null snapshot removes it.
func (s *SnapshotStore) Set(ctx context.Context, snap json.RawMessage) error {
	if len(snap) == 0 || string(snap) == "null" {
		return s.scope.Remove(ctx, store.KeyUISnapshot)
	}
	if len(snap) > maxSnapshotBytes {
		return domainerrors.Capacityf("UI snapshot is %d bytes; at most %d are kept", len(snap), maxSnapshotBytes)
	}
	if !json.Valid(snap) {
		return domainerrors.Validation("UI snapshot is not valid JSON")
	}
	return s.scope.Set(ctx, store.KeyUISnapshot, snap)
}
