package prefs

import (
	"context"
	"testing"

	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ types []sse.EventType }

func (r *recorder) Broadcast(t sse.EventType, _ any) { r.types = append(r.types, t) }

func newTestService(t *testing.T, quota int64) (*Service, *recorder) {
	t.Helper()
	scope, err := store.OpenLocalInMemory(store.NewHub(logger.Discard()), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close() })

	guard := store.NewQuotaGuard(scope, quota, 0.8, 0.95, logger.Discard())
	events := &recorder{}
	return NewService(scope, guard, validation.New(), events, logger.Discard()), events
}

func ptr[T any](v T) *T { return &v }

func TestService_GetDefaults(t *testing.T) {
	svc, _ := newTestService(t, 102400)

	p, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPreferences(), p)
}

func TestService_UpdateClampsAndBroadcasts(t *testing.T) {
	svc, events := newTestService(t, 102400)
	ctx := context.Background()

	p, err := svc.Update(ctx, Patch{NotificationMaxAgeMinutes: ptr(1), BadgeEnabled: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, domain.MinNotificationMaxAge, p.NotificationMaxAgeMinutes)
	assert.False(t, p.BadgeEnabled)
	assert.True(t, p.NotificationsEnabled)
	assert.Equal(t, []sse.EventType{sse.EventPreferencesUpdated}, events.types)

	p, err = svc.Update(ctx, Patch{NotificationMaxAgeMinutes: ptr(5000)})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxNotificationMaxAge, p.NotificationMaxAgeMinutes)
	assert.False(t, p.BadgeEnabled, "earlier patch persisted")

	stored, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, p, stored)
}

func TestService_UpdateRejectsInvalid(t *testing.T) {
	svc, events := newTestService(t, 102400)

	_, err := svc.Update(context.Background(), Patch{SortMode: ptr("random")})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	_, err = svc.Update(context.Background(), Patch{NotificationMaxAgeMinutes: ptr(-3)})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	assert.Empty(t, events.types)
}

func TestService_UpdateBlockedByQuota(t *testing.T) {
	svc, _ := newTestService(t, 64)

	_, err := svc.Update(context.Background(), Patch{SortMode: ptr(domain.SortByName)})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrCapacity))

	p, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SortByLive, p.SortMode)
}
