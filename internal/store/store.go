// Package store provides the two persistent key-value scopes the daemon runs on:
// a device-local scope backed by Badger and a small, mirrored sync scope backed
// by SQLite (see the sqlite subpackage). Both publish every write to a Hub so
// other components can react to changes made elsewhere.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Area names a storage scope.
type Area string

// Storage areas.
const (
	AreaLocal Area = "local"
	AreaSync  Area = "sync"
)

// Sentinel errors.
var (
	ErrNotFound      = errors.New("key not found")
	ErrQuotaExceeded = errors.New("sync storage quota exceeded")
	ErrClosed        = errors.New("store closed")
)

// Scope is a whole-value key-value store. Values are JSON encoded.
type Scope interface {
	Area() Area
	// Get decodes the value at key into dest. Returns ErrNotFound when absent.
	Get(ctx context.Context, key string, dest any) error
	// Set replaces the value at key.
	Set(ctx context.Context, key string, value any) error
	// Remove deletes keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	// Clear deletes every key in the scope.
	Clear(ctx context.Context) error
	// BytesInUse sums key and value sizes for keys, or for the whole scope when none are given.
	BytesInUse(ctx context.Context, keys ...string) (int64, error)
}

// Change describes one write to a scope. Old and New are nil for absent values.
type Change struct {
	Area     Area            `json:"area"`
	Key      string          `json:"key"`
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.NewValue == nil
}

// Load reads key into a fresh T. The bool is false when the key is absent.
func Load[T any](ctx context.Context, s Scope, key string) (T, bool, error) {
	var v T
	err := s.Get(ctx, key, &v)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("load %s/%s: %w", s.Area(), key, err)
	}
	return v, true, nil
}

// Encode marshals a value the way every scope stores it.
func Encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}
