// Package auditlog keeps a capped record of live-check runs in the local scope.
package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/id"
	"github.com/starwatchapp/starwatch/internal/store"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 100

// Log is a ring buffer of update log entries, oldest first.
type Log struct {
	scope    store.Scope
	capacity int
	logger   *slog.Logger

	mu sync.Mutex
}

// New creates a log over scope.
func New(scope store.Scope, capacity int, logger *slog.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{scope: scope, capacity: capacity, logger: logger}
}

// Append records entry, evicting the oldest entries past capacity.
// Failures are logged and swallowed.
func (l *Log) Append(ctx context.Context, entry domain.UpdateLogEntry) {
	if entry.ID == "" {
		entry.ID = id.Sortable()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.list(ctx)
	if err != nil {
		l.logger.Warn("failed to read update log", slog.String("error", err.Error()))
		entries = nil
	}

	entries = append(entries, entry)
	if over := len(entries) - l.capacity; over > 0 {
		entries = entries[over:]
	}

	if err := l.scope.Set(ctx, store.KeyUpdateLog, entries); err != nil {
		l.logger.Warn("failed to write update log", slog.String("error", err.Error()))
	}
}

// List returns entries oldest first.
func (l *Log) List(ctx context.Context) ([]domain.UpdateLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list(ctx)
}

func (l *Log) list(ctx context.Context) ([]domain.UpdateLogEntry, error) {
	entries, _, err := store.Load[[]domain.UpdateLogEntry](ctx, l.scope, store.KeyUpdateLog)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.UpdateLogEntry{}
	}
	return entries, nil
}

// Clear drops every entry.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.scope.Remove(ctx, store.KeyUpdateLog); err != nil {
		return fmt.Errorf("clear update log: %w", err)
	}
	return nil
}
