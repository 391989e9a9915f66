package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSync(t *testing.T) (*Store, *store.Hub, string) {
	t.Helper()
	dir := t.TempDir()
	hub := store.NewHub(nil)
	s, err := Open(dir, 102400, hub, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, hub, dir
}

func next(t *testing.T, ch <-chan store.Change) store.Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return store.Change{}
	}
}

func TestStore_SetGetRemove(t *testing.T) {
	s, _, _ := setupSync(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, store.KeyPreferences, map[string]bool{"badgeEnabled": true}))

	var got map[string]bool
	require.NoError(t, s.Get(ctx, store.KeyPreferences, &got))
	assert.True(t, got["badgeEnabled"])

	require.NoError(t, s.Remove(ctx, store.KeyPreferences))
	assert.ErrorIs(t, s.Get(ctx, store.KeyPreferences, &got), store.ErrNotFound)
	assert.Equal(t, store.AreaSync, s.Area())
	assert.Equal(t, int64(102400), s.Quota())
}

func TestStore_BytesInUse(t *testing.T) {
	s, _, _ := setupSync(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "xyz"))
	require.NoError(t, s.Set(ctx, "bb", 12))

	one, err := s.BytesInUse(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1+5), one)

	both, err := s.BytesInUse(ctx, "a", "bb")
	require.NoError(t, err)
	assert.Equal(t, int64(6+4), both)

	all, err := s.BytesInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, both, all)

	require.NoError(t, s.Clear(ctx))
	all, err = s.BytesInUse(ctx)
	require.NoError(t, err)
	assert.Zero(t, all)
}

func TestStore_ReconcileDetectsForeignWrites(t *testing.T) {
	s, hub, dir := setupSync(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "keep", 1))
	require.NoError(t, s.Set(ctx, "gone", 1))

	changes, cancel := hub.Subscribe(8)
	defer cancel()

	// Nothing changed behind our back yet.
	n, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Another device's mirror rewrites the file.
	other, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Exec(`UPDATE kv SET value = '2', updated_at = 'later' WHERE key = 'keep'`)
	require.NoError(t, err)
	_, err = other.Exec(`DELETE FROM kv WHERE key = 'gone'`)
	require.NoError(t, err)
	_, err = other.Exec(`INSERT INTO kv (key, value, updated_at) VALUES ('new', '3', 'later')`)
	require.NoError(t, err)

	n, err = s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	seen := map[string]store.Change{}
	for range 3 {
		c := next(t, changes)
		seen[c.Key] = c
	}
	assert.JSONEq(t, "2", string(seen["keep"].NewValue))
	assert.JSONEq(t, "1", string(seen["keep"].OldValue))
	assert.True(t, seen["gone"].Removed())
	assert.Nil(t, seen["new"].OldValue)

	n, err = s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_SetPublishes(t *testing.T) {
	s, hub, _ := setupSync(t)
	changes, cancel := hub.Subscribe(4)
	defer cancel()

	require.NoError(t, s.Set(context.Background(), store.KeyTagDocument, map[string]int{"nextId": 1}))

	c := next(t, changes)
	assert.Equal(t, store.AreaSync, c.Area)
	assert.Equal(t, store.KeyTagDocument, c.Key)
	assert.Nil(t, c.OldValue)
}

type fakeSource chan watcher.Event

func (f fakeSource) Events() <-chan watcher.Event { return f }

func TestStore_FollowMirror(t *testing.T) {
	s, hub, dir := setupSync(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Set(ctx, "k", 1))
	changes, unsubscribe := hub.Subscribe(4)
	defer unsubscribe()

	other, err := sql.Open("sqlite", filepath.Join(dir, FileName))
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Exec(`UPDATE kv SET value = '5', updated_at = 'x' WHERE key = 'k'`)
	require.NoError(t, err)

	src := make(fakeSource, 2)
	done := make(chan struct{})
	go func() {
		s.FollowMirror(ctx, src)
		close(done)
	}()

	src <- watcher.Event{Type: watcher.EventRemoved}
	src <- watcher.Event{Type: watcher.EventModified, Path: s.Path()}

	c := next(t, changes)
	assert.Equal(t, "k", c.Key)
	assert.JSONEq(t, "5", string(c.NewValue))

	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FollowMirror did not return after source closed")
	}
}
