package auditlog

import (
	"context"
	"testing"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T, capacity int) *Log {
	t.Helper()
	local, err := store.OpenLocalInMemory(store.NewHub(logger.Discard()), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return New(local, capacity, logger.Discard())
}

func TestLog_AppendAssignsSortableIDs(t *testing.T) {
	log := newTestLog(t, 10)
	ctx := context.Background()

	log.Append(ctx, domain.UpdateLogEntry{Trigger: domain.TriggerAlarm, Success: true})
	log.Append(ctx, domain.UpdateLogEntry{Trigger: domain.TriggerManual, Success: true})

	entries, err := log.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
	assert.Less(t, entries[0].ID, entries[1].ID)
	assert.Equal(t, domain.TriggerManual, entries[1].Trigger)
}

func TestLog_EvictsOldestPastCapacity(t *testing.T) {
	log := newTestLog(t, 3)
	ctx := context.Background()

	for i := range 5 {
		log.Append(ctx, domain.UpdateLogEntry{LiveCount: i})
	}

	entries, err := log.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[0].LiveCount)
	assert.Equal(t, 4, entries[2].LiveCount)
}

func TestLog_Clear(t *testing.T) {
	log := newTestLog(t, 0)
	ctx := context.Background()
	assert.Equal(t, DefaultCapacity, log.capacity)

	log.Append(ctx, domain.UpdateLogEntry{Skipped: domain.SkipNoAuth})
	require.NoError(t, log.Clear(ctx))

	entries, err := log.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
