package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupLocal(t *testing.T) (*LocalScope, *Hub) {
	t.Helper()
	hub := NewHub(nil)
	s, err := OpenLocal(t.TempDir(), hub, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, hub
}

func TestLocalScope_SetGet(t *testing.T) {
	s, _ := setupLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", sample{Name: "x", Count: 2}))

	var got sample
	require.NoError(t, s.Get(ctx, "a", &got))
	assert.Equal(t, sample{Name: "x", Count: 2}, got)
	assert.Equal(t, AreaLocal, s.Area())
}

func TestLocalScope_GetMissing(t *testing.T) {
	s, _ := setupLocal(t)

	var got sample
	assert.ErrorIs(t, s.Get(context.Background(), "nope", &got), ErrNotFound)

	v, ok, err := Load[sample](context.Background(), s, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestLocalScope_PublishesChanges(t *testing.T) {
	s, hub := setupLocal(t)
	ctx := context.Background()
	changes, cancel := hub.Subscribe(8)
	defer cancel()

	require.NoError(t, s.Set(ctx, "k", 1))
	require.NoError(t, s.Set(ctx, "k", 2))
	require.NoError(t, s.Remove(ctx, "k", "missing"))

	first := recv(t, changes)
	assert.Equal(t, "k", first.Key)
	assert.Nil(t, first.OldValue)
	assert.JSONEq(t, "1", string(first.NewValue))

	second := recv(t, changes)
	assert.JSONEq(t, "1", string(second.OldValue))
	assert.JSONEq(t, "2", string(second.NewValue))

	third := recv(t, changes)
	assert.True(t, third.Removed())
	assert.JSONEq(t, "2", string(third.OldValue))

	select {
	case c := <-changes:
		t.Fatalf("unexpected change for missing key: %+v", c)
	default:
	}
}

func TestLocalScope_ClearAndBytes(t *testing.T) {
	s, _ := setupLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "one", "abc"))
	require.NoError(t, s.Set(ctx, "two", strings.Repeat("z", 10)))

	one, err := s.BytesInUse(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, int64(len("one")+len(`"abc"`)), one)

	all, err := s.BytesInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, one+int64(len("two")+12), all)

	require.NoError(t, s.Clear(ctx))
	all, err = s.BytesInUse(ctx)
	require.NoError(t, err)
	assert.Zero(t, all)
}

func TestOpenLocalInMemory(t *testing.T) {
	s, err := OpenLocalInMemory(nil, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "k", true))
	var v bool
	require.NoError(t, s.Get(context.Background(), "k", &v))
	assert.True(t, v)
}

func recv(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}
