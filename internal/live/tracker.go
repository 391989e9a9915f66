package live

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/metrics"
	"github.com/starwatchapp/starwatch/internal/notify"
	"github.com/starwatchapp/starwatch/internal/store"
)

// DefaultNotificationSpacing keeps OS notification centers from collapsing
// several alerts into one.
const DefaultNotificationSpacing = 500 * time.Millisecond

// Session reports whether an account is signed in.
type Session interface {
	IsAuthenticated(ctx context.Context) bool
}

// FollowSource is the follow cache as the tracker reads it.
type FollowSource interface {
	Refresh(ctx context.Context, force bool) (*domain.FollowCache, error)
	GetStored(ctx context.Context) (*domain.FollowCache, error)
	PatchEntity(ctx context.Context, entityID string) (bool, error)
}

// TagSource loads the normalized tag document.
type TagSource interface {
	Get(ctx context.Context) (*domain.TagDocument, error)
}

// PreferenceSource loads the effective preferences.
type PreferenceSource interface {
	Get(ctx context.Context) (domain.Preferences, error)
}

// BadgeSetter shows the live-starred count.
type BadgeSetter interface {
	Set(ctx context.Context, count int)
}

// AuditLog records each run.
type AuditLog interface {
	Append(ctx context.Context, entry domain.UpdateLogEntry)
}

// Deps are the collaborators of a Tracker.
type Deps struct {
	Scope    store.Scope
	Session  Session
	Follows  FollowSource
	Tags     TagSource
	Prefs    PreferenceSource
	Notifier notify.Notifier
	Badge    BadgeSetter
	Log      AuditLog
	Metrics  *metrics.Recorder
}

// Tracker owns the persisted live state. It is the only writer of that
// state; runs and reconciliations are serialized on one mutex.
type Tracker struct {
	Deps
	spacing time.Duration
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

// NewTracker creates a Tracker.
func NewTracker(deps Deps, spacing time.Duration, logger *slog.Logger) *Tracker {
	if spacing < 0 {
		spacing = DefaultNotificationSpacing
	}
	return &Tracker{
		Deps:    deps,
		spacing: spacing,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the persisted live state.
func (t *Tracker) State(ctx context.Context) (domain.LiveState, error) {
	state, _, err := store.Load[domain.LiveState](ctx, t.Scope, store.KeyLiveState)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = domain.LiveState{}
	}
	return state, nil
}

// RunLiveCheck reads the follow cache through its TTL, compares the starred
// channels in it with their previous state, notifies about new broadcasts and refreshes the
// badge. Every run ends with one audit entry; a failed run is recorded, never
// raised.
func (t *Tracker) RunLiveCheck(ctx context.Context, trigger domain.Trigger) domain.UpdateLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.now()
	entry := domain.UpdateLogEntry{Timestamp: start, Trigger: trigger}

	err := t.check(ctx, &entry)
	entry.DurationMs = t.now().Sub(start).Milliseconds()

	outcome := "success"
	switch {
	case err != nil:
		entry.Success = false
		entry.Error = err.Error()
		outcome = "error"
		t.logger.Error("live check failed",
			slog.String("trigger", string(trigger)),
			slog.String("error", err.Error()))
	case entry.Skipped != "":
		entry.Success = true
		outcome = string(entry.Skipped)
	default:
		entry.Success = true
		t.logger.Info("live check complete",
			slog.String("trigger", string(trigger)),
			slog.Int("live", entry.LiveCount),
			slog.Int("starred", entry.StarredCount),
			slog.Int("notified", entry.Notified))
	}

	t.Metrics.Count(ctx, metrics.LiveChecks, 1,
		attribute.String("trigger", string(trigger)),
		attribute.String("outcome", outcome))
	t.Metrics.Duration(ctx, metrics.LiveCheckDuration, time.Duration(entry.DurationMs)*time.Millisecond)

	t.Log.Append(ctx, entry)
	return entry
}

func (t *Tracker) check(ctx context.Context, entry *domain.UpdateLogEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("live check panicked: %v", r)
		}
	}()

	if !t.Session.IsAuthenticated(ctx) {
		return t.skipSignedOut(ctx, entry)
	}

	cache, err := t.readCache(ctx)
	if domainerrors.CodeOf(err) == domainerrors.CodeUnauthorized {
		return t.skipSignedOut(ctx, entry)
	}
	if err != nil {
		return fmt.Errorf("read follow cache: %w", err)
	}
	if cache == nil || len(cache.Items) == 0 {
		entry.Skipped = domain.SkipNoCache
		return nil
	}
	age := cache.Age(entry.Timestamp).Milliseconds()
	entry.CacheAgeMs = &age

	doc, err := t.Tags.Get(ctx)
	if err != nil {
		return fmt.Errorf("load tag document: %w", err)
	}
	prefs, err := t.Prefs.Get(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	state, err := t.State(ctx)
	if err != nil {
		return err
	}

	starred := doc.StarredIDs()
	maxAge := time.Duration(prefs.NotificationMaxAgeMinutes) * time.Minute
	now := t.now()

	var pending []notify.Notification
	observed := make(map[string]struct{}, len(cache.Items))
	for _, item := range cache.Items {
		if _, ok := starred[item.ID]; !ok {
			continue
		}
		observed[item.ID] = struct{}{}
		var prev *domain.LiveRecord
		if rec, ok := state[item.ID]; ok {
			prev = &rec
		}
		next, fresh := Transition(prev, Observe(item))
		if next == nil {
			delete(state, item.ID)
			continue
		}
		state[item.ID] = *next

		if fresh && prefs.NotificationsEnabled && withinMaxAge(item.StartedAt, now, maxAge) {
			pending = append(pending, notify.ForLive(item))
		}
	}
	// A starred channel no longer in the follow list is not broadcasting as
	// far as this account can see.
	for id, rec := range state {
		if _, ok := observed[id]; ok {
			continue
		}
		if next, _ := Transition(&rec, Observation{}); next != nil {
			state[id] = *next
		}
	}
	prune(state, starred)

	if err := t.Scope.Set(ctx, store.KeyLiveState, state); err != nil {
		return fmt.Errorf("save live state: %w", err)
	}

	entry.Notified = t.dispatch(ctx, pending)
	entry.LiveCount = state.LiveCount()
	entry.StarredCount = len(starred)
	t.setBadge(ctx, prefs, entry.LiveCount)
	return nil
}

// readCache refreshes the follow cache when it is older than its TTL. A
// transient refresh failure falls back to the stored snapshot; an auth
// failure is returned as is.
func (t *Tracker) readCache(ctx context.Context) (*domain.FollowCache, error) {
	cache, err := t.Follows.Refresh(ctx, false)
	if err == nil {
		return cache, nil
	}
	if domainerrors.CodeOf(err) == domainerrors.CodeUnauthorized {
		return nil, err
	}
	t.logger.Warn("follow refresh failed, using stored cache", slog.String("error", err.Error()))
	return t.Follows.GetStored(ctx)
}

func (t *Tracker) skipSignedOut(ctx context.Context, entry *domain.UpdateLogEntry) error {
	if err := t.Scope.Remove(ctx, store.KeyLiveState); err != nil {
		return fmt.Errorf("clear live state: %w", err)
	}
	t.Badge.Set(ctx, 0)
	entry.Skipped = domain.SkipNoAuth
	return nil
}

// dispatch sends notifications one at a time with spacing between them and
// returns how many were delivered.
func (t *Tracker) dispatch(ctx context.Context, pending []notify.Notification) int {
	sent := 0
	for i, n := range pending {
		if i > 0 {
			if err := t.sleep(ctx, t.spacing); err != nil {
				break
			}
		}
		if err := t.Notifier.Notify(ctx, n); err != nil {
			t.logger.Warn("live notification failed", slog.String("entity_id", n.EntityID), slog.String("error", err.Error()))
			continue
		}
		sent++
	}
	t.Metrics.Count(ctx, metrics.LiveNotifications, int64(sent))
	return sent
}

func (t *Tracker) setBadge(ctx context.Context, prefs domain.Preferences, count int) {
	if !prefs.BadgeEnabled {
		count = 0
	}
	t.Badge.Set(ctx, count)
}

// prune drops records for channels that are no longer starred.
func prune(state domain.LiveState, starred map[string]struct{}) bool {
	changed := false
	for id := range state {
		if _, ok := starred[id]; !ok {
			delete(state, id)
			changed = true
		}
	}
	return changed
}

// SyncLiveAssignments reconciles live state with the starred set without
// waiting for the next run. When entityID was just starred but the follow
// cache has no entry for it, that one channel is fetched first.
// It has the shape of a tag document change hook. Hooks from concurrent
// mutations may arrive out of order, so the document is reloaded under the
// tracker lock and the one passed in only signals that something changed.
func (t *Tracker) SyncLiveAssignments(ctx context.Context, _ *domain.TagDocument, entityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.sync(ctx, entityID); err != nil {
		t.logger.Warn("live state reconciliation failed",
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()))
	}
}

func (t *Tracker) sync(ctx context.Context, entityID string) error {
	doc, err := t.Tags.Get(ctx)
	if err != nil {
		return fmt.Errorf("load tag document: %w", err)
	}
	starred := doc.StarredIDs()

	cache, err := t.Follows.GetStored(ctx)
	if err != nil {
		return fmt.Errorf("read follow cache: %w", err)
	}
	if _, isStarred := starred[entityID]; isStarred && cache != nil {
		if _, ok := cache.Find(entityID); !ok {
			if _, err := t.Follows.PatchEntity(ctx, entityID); err != nil {
				t.logger.Debug("could not fill cache gap", slog.String("entity_id", entityID), slog.String("error", err.Error()))
			} else if cache, err = t.Follows.GetStored(ctx); err != nil {
				return fmt.Errorf("read follow cache: %w", err)
			}
		}
	}

	state, err := t.State(ctx)
	if err != nil {
		return err
	}
	changed := prune(state, starred)

	if cache != nil {
		for _, item := range cache.Items {
			if _, ok := starred[item.ID]; !ok || !item.IsLive {
				continue
			}
			if _, tracked := state[item.ID]; tracked {
				continue
			}
			state[item.ID] = domain.LiveRecord{IsLive: true, StartedAt: item.StartedAt}
			changed = true
		}
	}

	if !changed {
		return nil
	}
	if err := t.Scope.Set(ctx, store.KeyLiveState, state); err != nil {
		return fmt.Errorf("save live state: %w", err)
	}

	prefs, err := t.Prefs.Get(ctx)
	if err != nil {
		prefs = domain.DefaultPreferences()
	}
	t.setBadge(ctx, prefs, state.LiveCount())
	t.logger.Debug("live state reconciled",
		slog.String("entity_id", entityID),
		slog.Any("tracked", slices.Sorted(maps.Keys(state))))
	return nil
}

// Clear drops all live state and zeroes the badge. Used on sign-out.
func (t *Tracker) Clear(ctx context.Context) {
	if err := t.Scope.Remove(ctx, store.KeyLiveState); err != nil {
		t.logger.Warn("failed to clear live state", slog.String("error", err.Error()))
	}
	t.Badge.Set(ctx, 0)
}
