package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// LocalScope is the device-local scope on Badger: credentials, the follow
// cache, live state, the audit log and UI snapshots.
type LocalScope struct {
	db     *badger.DB
	hub    *Hub
	logger *slog.Logger
}

// OpenLocal opens (or creates) the Badger directory at path.
func OpenLocal(path string, hub *Hub, logger *slog.Logger) (*LocalScope, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	return openLocal(opts, hub, logger)
}

// OpenLocalInMemory opens a throwaway scope. Used by tests.
func OpenLocalInMemory(hub *Hub, logger *slog.Logger) (*LocalScope, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openLocal(opts, hub, logger)
}

func openLocal(opts badger.Options, hub *Hub, logger *slog.Logger) (*LocalScope, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if hub == nil {
		hub = NewHub(logger)
	}

	if logger != nil {
		logger.Info("Local storage opened", "path", opts.Dir, "in_memory", opts.InMemory)
	}

	return &LocalScope{db: db, hub: hub, logger: logger}, nil
}

// Close closes the database.
func (s *LocalScope) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing local storage")
	}
	return s.db.Close()
}

// Area implements Scope.
func (s *LocalScope) Area() Area { return AreaLocal }

// Get implements Scope.
func (s *LocalScope) Get(_ context.Context, key string, dest any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// Set implements Scope.
func (s *LocalScope) Set(_ context.Context, key string, value any) error {
	data, err := Encode(value)
	if err != nil {
		return err
	}

	var old []byte
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err = valueCopy(txn, key)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	s.hub.Publish(Change{Area: AreaLocal, Key: key, OldValue: old, NewValue: data})
	return nil
}

// Remove implements Scope.
func (s *LocalScope) Remove(_ context.Context, keys ...string) error {
	var changes []Change
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			old, err := valueCopy(txn, key)
			if err != nil {
				return err
			}
			if old == nil {
				continue
			}
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
			changes = append(changes, Change{Area: AreaLocal, Key: key, OldValue: old})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	for _, c := range changes {
		s.hub.Publish(c)
	}
	return nil
}

// Clear implements Scope.
func (s *LocalScope) Clear(ctx context.Context) error {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	return s.Remove(ctx, keys...)
}

// BytesInUse implements Scope.
func (s *LocalScope) BytesInUse(_ context.Context, keys ...string) (int64, error) {
	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		if len(keys) > 0 {
			for _, key := range keys {
				item, err := txn.Get([]byte(key))
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				total += int64(len(key)) + item.ValueSize()
			}
			return nil
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			total += int64(len(item.Key())) + item.ValueSize()
		}
		return nil
	})
	return total, err
}

// valueCopy returns the current value at key, or nil when absent.
func valueCopy(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
var _ Scope = (*LocalScope)(nil)
