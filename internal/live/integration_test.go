package live

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/follows"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/tagdoc"
	"github.com/starwatchapp/starwatch/internal/twitch"
	"github.com/starwatchapp/starwatch/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHelix struct {
	mu        sync.Mutex
	follows   []twitch.Follow
	users     map[string]twitch.User
	streams   map[string]twitch.Stream
	followHit int
}

func (h *stubHelix) GetFollowedChannels(context.Context, string, string) ([]twitch.Follow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.followHit++
	return slices.Clone(h.follows), nil
}

func (h *stubHelix) GetFollowedChannel(_ context.Context, _, _, broadcasterID string) (*twitch.Follow, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.follows {
		if f.BroadcasterID == broadcasterID {
			return &f, nil
		}
	}
	return nil, nil
}

func (h *stubHelix) GetUsersByID(_ context.Context, _ string, ids []string) ([]twitch.User, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []twitch.User
	for _, id := range ids {
		if u, ok := h.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (h *stubHelix) GetUsersByLogin(_ context.Context, _ string, logins []string) ([]twitch.User, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []twitch.User
	for _, u := range h.users {
		if slices.Contains(logins, u.Login) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (h *stubHelix) GetStreams(_ context.Context, _ string, ids []string) ([]twitch.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []twitch.Stream
	for _, id := range ids {
		if st, ok := h.streams[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

type signedInAccount struct{}

func (signedInAccount) AccessToken(context.Context) (string, *domain.AuthStatus, error) {
	return "token", &domain.AuthStatus{UserID: "42", Login: "me"}, nil
}

func (signedInAccount) SignOut(context.Context) error { return nil }

type discardEvents struct{}

func (discardEvents) Broadcast(sse.EventType, any) {}

type wired struct {
	tracker  *Tracker
	scope    store.Scope
	helix    *stubHelix
	tags     *tagdoc.Service
	follows  *follows.Service
	notifier *sentNotifications
	badge    *fakeBadge
}

func newWired(t *testing.T) *wired {
	t.Helper()
	scope, err := store.OpenLocalInMemory(store.NewHub(logger.Discard()), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close() })

	helix := &stubHelix{
		follows: []twitch.Follow{
			{BroadcasterID: "123", BroadcasterLogin: "alpha"},
			{BroadcasterID: "456", BroadcasterLogin: "beta"},
		},
		users: map[string]twitch.User{
			"123": {ID: "123", Login: "alpha", DisplayName: "Alpha"},
			"456": {ID: "456", Login: "beta", DisplayName: "Beta"},
		},
		streams: map[string]twitch.Stream{},
	}

	guard := store.NewQuotaGuard(scope, 102400, 0.8, 0.95, logger.Discard())
	tags := tagdoc.NewService(scope, guard, validation.New(), discardEvents{}, tagdoc.Options{}, logger.Discard())
	t.Cleanup(func() { _ = tags.Shutdown() })

	followService := follows.NewService(scope, helix, signedInAccount{}, 5*time.Minute, nil, logger.Discard())

	w := &wired{
		scope:    scope,
		helix:    helix,
		tags:     tags,
		follows:  followService,
		notifier: &sentNotifications{},
		badge:    &fakeBadge{},
	}
	w.tracker = NewTracker(Deps{
		Scope:    scope,
		Session:  &fakeSession{signedIn: true},
		Follows:  followService,
		Tags:     tags,
		Prefs:    &fakePrefs{prefs: domain.DefaultPreferences()},
		Notifier: w.notifier,
		Badge:    w.badge,
		Log:      &fakeLog{},
	}, 0, logger.Discard())
	return w
}

// Scheduled runs pick up a broadcast that started after the stored snapshot
// was taken, with no surface open to refresh the cache.
func TestTracker_ScheduledRunRefreshesFromHelix(t *testing.T) {
	w := newWired(t)
	ctx := context.Background()

	_, err := w.tags.UpdateAssignment(ctx, "123", domain.StarredTagID, true)
	require.NoError(t, err)

	stale := &domain.FollowCache{
		FetchedAt: time.Now().Add(-6 * time.Minute),
		Items: []domain.FollowEntry{
			{ID: "123", Login: "alpha", DisplayName: "Alpha"},
			{ID: "456", Login: "beta", DisplayName: "Beta"},
		},
	}
	require.NoError(t, w.scope.Set(ctx, store.KeyFollowCache, stale))

	w.helix.mu.Lock()
	w.helix.streams["123"] = twitch.Stream{UserID: "123", Title: "Back on", StartedAt: time.Now().Add(-2 * time.Minute)}
	w.helix.mu.Unlock()

	entry := w.tracker.RunLiveCheck(ctx, domain.TriggerAlarm)

	assert.True(t, entry.Success)
	assert.Equal(t, 1, w.helix.followHit)
	assert.Equal(t, 1, entry.Notified)
	assert.Equal(t, 1, entry.LiveCount)
	assert.Equal(t, "1", w.badge.last())

	// Within the TTL the next run serves the new snapshot without Helix.
	entry = w.tracker.RunLiveCheck(ctx, domain.TriggerAlarm)
	assert.Equal(t, 1, w.helix.followHit)
	assert.Equal(t, 0, entry.Notified)
}

// Change hooks from concurrent mutations can run out of order. A late hook
// from starring must not resurrect a channel that was unstarred since.
func TestTracker_LateStarHookDoesNotResurrectUnstarred(t *testing.T) {
	w := newWired(t)
	ctx := context.Background()

	w.helix.mu.Lock()
	w.helix.streams["123"] = twitch.Stream{UserID: "123", StartedAt: time.Now().Add(-time.Minute)}
	w.helix.mu.Unlock()
	_, err := w.follows.Refresh(ctx, true)
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	w.tags.OnChange(func(_ context.Context, doc *domain.TagDocument, entityID string) {
		if entityID == "123" && doc.IsStarred("123") {
			once.Do(func() {
				close(held)
				<-release
			})
		}
	})
	w.tags.OnChange(w.tracker.SyncLiveAssignments)

	starred := make(chan error, 1)
	go func() {
		_, err := w.tags.UpdateAssignment(ctx, "123", domain.StarredTagID, true)
		starred <- err
	}()
	<-held

	_, err = w.tags.UpdateAssignment(ctx, "123", domain.StarredTagID, false)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-starred)

	state, err := w.tracker.State(ctx)
	require.NoError(t, err)
	assert.NotContains(t, state, "123")
	assert.NotEqual(t, "1", w.badge.last())
}
