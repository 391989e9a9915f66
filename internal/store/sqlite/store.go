// Package sqlite implements the sync storage scope on a single SQLite file.
// The file is what gets mirrored between devices; Reconcile picks up rows that
// changed underneath the process.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starwatchapp/starwatch/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// FileName is the database file inside the sync directory.
const FileName = "sync.db"

type row struct {
	value     []byte
	updatedAt string
}

// Store is the sync scope.
type Store struct {
	db     *sql.DB
	path   string
	quota  int64
	hub    *store.Hub
	logger *slog.Logger

	// Last known state of every row, used by Reconcile to detect foreign writes.
	mu       sync.Mutex
	snapshot map[string]row
}

// Open creates or opens the sync database inside dir.
func Open(dir string, quota int64, hub *store.Hub, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create sync dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	if hub == nil {
		hub = store.NewHub(logger)
	}

	s := &Store{
		db:       db,
		path:     path,
		quota:    quota,
		hub:      hub,
		logger:   logger,
		snapshot: make(map[string]row),
	}

	rows, err := s.readAll(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.snapshot = rows

	if logger != nil {
		logger.Info("Sync storage opened", "path", path, "keys", len(rows), "quota_bytes", quota)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Quota returns the configured capacity in bytes.
func (s *Store) Quota() int64 { return s.quota }

// Area implements store.Scope.
func (s *Store) Area() store.Area { return store.AreaSync }

// Get implements store.Scope.
func (s *Store) Get(ctx context.Context, key string, dest any) error {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return json.Unmarshal(value, dest)
}

// Set implements store.Scope.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	data, err := store.Encode(value)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var old []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, now)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}

	s.snapshot[key] = row{value: data, updatedAt: now}
	s.hub.Publish(store.Change{Area: store.AreaSync, Key: key, OldValue: old, NewValue: data})
	return nil
}

// Remove implements store.Scope.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var changes []store.Change
	for _, key := range keys {
		var old []byte
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		changes = append(changes, store.Change{Area: store.AreaSync, Key: key, OldValue: old})
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, c := range changes {
		delete(s.snapshot, c.Key)
		s.hub.Publish(c)
	}
	return nil
}

// Clear implements store.Scope.
func (s *Store) Clear(ctx context.Context) error {
	rows, err := s.readAll(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	return s.Remove(ctx, keys...)
}

// BytesInUse implements store.Scope.
func (s *Store) BytesInUse(ctx context.Context, keys ...string) (int64, error) {
	query := `SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv`
	args := make([]any, 0, len(keys))
	if len(keys) > 0 {
		query += ` WHERE key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("bytes in use: %w", err)
	}
	return total, nil
}

// Reconcile re-reads the table and publishes a change for every row that differs
// from what this process last wrote or saw. Returns the number of changes.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	current, err := s.readAll(ctx)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	var changes []store.Change
	for key, r := range current {
		prev, ok := s.snapshot[key]
		if ok && prev.updatedAt == r.updatedAt && bytes.Equal(prev.value, r.value) {
			continue
		}
		c := store.Change{Area: store.AreaSync, Key: key, NewValue: r.value}
		if ok {
			c.OldValue = prev.value
		}
		changes = append(changes, c)
	}
	for key, prev := range s.snapshot {
		if _, ok := current[key]; !ok {
			changes = append(changes, store.Change{Area: store.AreaSync, Key: key, OldValue: prev.value})
		}
	}
	s.snapshot = current
	s.mu.Unlock()

	for _, c := range changes {
		s.hub.Publish(c)
	}
	if len(changes) > 0 && s.logger != nil {
		s.logger.Info("Sync storage changed externally", "changes", len(changes))
	}
	return len(changes), nil
}

func (s *Store) readAll(ctx context.Context) (map[string]row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("scan kv: %w", err)
	}
	defer rows.Close()

	out := make(map[string]row)
	for rows.Next() {
		var key string
		var r row
		if err := rows.Scan(&key, &r.value, &r.updatedAt); err != nil {
			return nil, fmt.Errorf("scan kv row: %w", err)
		}
		out[key] = r
	}
	return out, rows.Err()
}

var _ store.Scope = (*Store)(nil)
