// Package follows maintains the follow cache: who the user follows, who is
// live, and with what metadata, refreshed from Helix at most once per TTL.
package follows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/metrics"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/twitch"
)

// DefaultTTL is how long a snapshot is served without refetching.
const DefaultTTL = 5 * time.Minute

const thumbnailSize = "440x248"

// Helix is the subset of the Helix API the cache is built from.
type Helix interface {
	GetFollowedChannels(ctx context.Context, token, userID string) ([]twitch.Follow, error)
	GetFollowedChannel(ctx context.Context, token, userID, broadcasterID string) (*twitch.Follow, error)
	GetUsersByID(ctx context.Context, token string, ids []string) ([]twitch.User, error)
	GetUsersByLogin(ctx context.Context, token string, logins []string) ([]twitch.User, error)
	GetStreams(ctx context.Context, token string, userIDs []string) ([]twitch.Stream, error)
}

// Authenticator hands out access tokens and signs out on rejection.
type Authenticator interface {
	AccessToken(ctx context.Context) (string, *domain.AuthStatus, error)
	SignOut(ctx context.Context) error
}

// UpdateHook runs after a new snapshot is persisted.
type UpdateHook func(ctx context.Context, cache *domain.FollowCache)

// Service owns the follow cache and the last-seen-live map in the local scope.
type Service struct {
	scope   store.Scope
	helix   Helix
	auth    Authenticator
	metrics *metrics.Recorder
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	// mu serializes every write to the cache, so concurrent refreshes collapse
	// into one fetch and patches never interleave with a rebuild.
	mu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []UpdateHook
}

// NewService creates the follow cache service.
func NewService(scope store.Scope, helix Helix, auth Authenticator, ttl time.Duration, recorder *metrics.Recorder, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		scope:   scope,
		helix:   helix,
		auth:    auth,
		metrics: recorder,
		logger:  logger,
		ttl:     ttl,
		now:     time.Now,
	}
}

// OnUpdate registers a hook run after each persisted snapshot.
func (s *Service) OnUpdate(hook UpdateHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// TTL returns the freshness bound.
func (s *Service) TTL() time.Duration { return s.ttl }

// GetStored returns the last persisted snapshot however stale, or nil.
// It never touches the network.
func (s *Service) GetStored(ctx context.Context) (*domain.FollowCache, error) {
	cache, _, err := store.Load[*domain.FollowCache](ctx, s.scope, store.KeyFollowCache)
	return cache, err
}

// Refresh returns the cached snapshot while it is younger than the TTL unless
// force is set; otherwise it rebuilds the snapshot from Helix.
//
// A nil cache with a nil error means there is no signed-in account. When Helix
// rejects the token the account is signed out, the cache cleared and an
// UNAUTHORIZED error returned.
func (s *Service) Refresh(ctx context.Context, force bool) (*domain.FollowCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force {
		cached, err := s.GetStored(ctx)
		if err != nil {
			s.logger.Warn("failed to read follow cache", slog.String("error", err.Error()))
		} else if cached.IsFresh(s.now(), s.ttl) {
			s.count(ctx, "fresh")
			return cached, nil
		}
	}

	token, status, err := s.auth.AccessToken(ctx)
	if errors.Is(err, domainerrors.ErrUnauthorized) {
		s.count(ctx, "no_auth")
		return nil, nil
	}
	if err != nil {
		s.count(ctx, "error")
		return nil, err
	}

	start := s.now()
	cache, lastSeen, err := s.build(ctx, token, status.UserID)
	if err != nil {
		if twitch.IsAuthError(err) {
			s.count(ctx, "unauthorized")
			s.handleAuthFailure(ctx, err)
			return nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "authentication required")
		}
		s.count(ctx, "error")
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "Could not reach Twitch")
	}

	if err := s.persist(ctx, cache, lastSeen); err != nil {
		s.count(ctx, "error")
		return nil, err
	}

	s.count(ctx, "fetched")
	s.metrics.Count(ctx, metrics.FollowFetchedItems, int64(len(cache.Items)))
	s.logger.Info("follow cache refreshed",
		slog.Int("follows", len(cache.Items)),
		slog.Bool("forced", force),
		slog.Duration("took", s.now().Sub(start)))

	s.notify(ctx, cache)
	return cache, nil
}

func (s *Service) count(ctx context.Context, outcome string) {
	s.metrics.Count(ctx, metrics.FollowRefreshes, 1, attribute.String("outcome", outcome))
}

// build joins the follow list, profiles and live streams into a new snapshot.
func (s *Service) build(ctx context.Context, token, userID string) (*domain.FollowCache, domain.LastSeen, error) {
	follows, err := s.helix.GetFollowedChannels(ctx, token, userID)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, len(follows))
	for i, f := range follows {
		ids[i] = f.BroadcasterID
	}

	var (
		users   []twitch.User
		streams []twitch.Stream
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.helix.GetUsersByID(gctx, token, ids)
		return err
	})
	g.Go(func() error {
		var err error
		streams, err = s.helix.GetStreams(gctx, token, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	lastSeen := s.loadLastSeen(ctx)
	now := s.now()

	usersByID := make(map[string]twitch.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}
	streamsByID := make(map[string]twitch.Stream, len(streams))
	for _, st := range streams {
		streamsByID[st.UserID] = st
	}

	followed := make(map[string]struct{}, len(follows))
	items := make([]domain.FollowEntry, 0, len(follows))
	for _, f := range follows {
		followed[f.BroadcasterID] = struct{}{}
		entry := domain.FollowEntry{
			ID:          f.BroadcasterID,
			Login:       f.BroadcasterLogin,
			DisplayName: f.BroadcasterName,
			FollowDate:  f.FollowedAt,
			LastUpdated: now,
		}
		if u, ok := usersByID[f.BroadcasterID]; ok {
			applyUser(&entry, u)
		}
		if st, ok := streamsByID[f.BroadcasterID]; ok {
			applyStream(&entry, st)
			lastSeen[entry.ID] = now
		}
		if seen, ok := lastSeen[entry.ID]; ok {
			entry.LastSeenLive = &seen
		}
		items = append(items, entry)
	}

	for id := range lastSeen {
		if _, ok := followed[id]; !ok {
			delete(lastSeen, id)
		}
	}

	return &domain.FollowCache{FetchedAt: now, Items: items}, lastSeen, nil
}

func applyUser(e *domain.FollowEntry, u twitch.User) {
	if u.Login != "" {
		e.Login = u.Login
	}
	if u.DisplayName != "" {
		e.DisplayName = u.DisplayName
	}
	e.AvatarURL = u.ProfileImageURL
}

func applyStream(e *domain.FollowEntry, st twitch.Stream) {
	e.IsLive = true
	e.Title = st.Title
	e.GameName = st.GameName
	viewers := st.ViewerCount
	e.ViewerCount = &viewers
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		e.StartedAt = &started
	}
	e.ThumbnailURL = strings.NewReplacer("{width}x{height}", thumbnailSize).Replace(st.ThumbnailURL)
}

func clearStream(e *domain.FollowEntry) {
	e.IsLive = false
	e.Title = ""
	e.GameName = ""
	e.ViewerCount = nil
	e.StartedAt = nil
	e.ThumbnailURL = ""
}

func (s *Service) loadLastSeen(ctx context.Context) domain.LastSeen {
	lastSeen, _, err := store.Load[domain.LastSeen](ctx, s.scope, store.KeyLastSeen)
	if err != nil {
		// Last-seen bookkeeping is best effort.
		s.logger.Warn("failed to read last seen", slog.String("error", err.Error()))
	}
	if lastSeen == nil {
		lastSeen = domain.LastSeen{}
	}
	return lastSeen
}

func (s *Service) persist(ctx context.Context, cache *domain.FollowCache, lastSeen domain.LastSeen) error {
	if err := s.scope.Set(ctx, store.KeyFollowCache, cache); err != nil {
		return fmt.Errorf("save follow cache: %w", err)
	}
	if lastSeen != nil {
		if err := s.scope.Set(ctx, store.KeyLastSeen, lastSeen); err != nil {
			s.logger.Warn("failed to save last seen", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, cache *domain.FollowCache) {
	s.hooksMu.RLock()
	hooks := slices.Clone(s.hooks)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, cache)
	}
}

func (s *Service) handleAuthFailure(ctx context.Context, cause error) {
	s.logger.Warn("Twitch rejected the access token, signing out", slog.String("error", cause.Error()))
	if err := s.auth.SignOut(ctx); err != nil {
		s.logger.Error("sign-out after auth failure failed", slog.String("error", err.Error()))
	}
	s.Clear(ctx)
}

// Clear drops the cache and last-seen map. Used on sign-out.
func (s *Service) Clear(ctx context.Context) {
	if err := s.scope.Remove(ctx, store.KeyFollowCache, store.KeyLastSeen); err != nil {
		s.logger.Warn("failed to clear follow cache", slog.String("error", err.Error()))
	}
}

// AddEntity fetches one channel by login and upserts it into the stored
// cache. Failures are logged and swallowed; the next refresh corrects them.
func (s *Service) AddEntity(ctx context.Context, login string) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return
	}
	err := s.patch(ctx, false, func(token string) ([]twitch.User, error) {
		return s.helix.GetUsersByLogin(ctx, token, []string{login})
	})
	if err != nil {
		s.logger.Warn("failed to add followed channel", slog.String("login", login), slog.String("error", err.Error()))
	}
}

// PatchEntity refetches one channel by id and upserts it, returning whether
// the stored cache now holds it. It is how a just-starred channel missing
// from the snapshot gets picked up before the next refresh. A channel the
// account does not follow is never added.
func (s *Service) PatchEntity(ctx context.Context, entityID string) (bool, error) {
	err := s.patch(ctx, true, func(token string) ([]twitch.User, error) {
		return s.helix.GetUsersByID(ctx, token, []string{entityID})
	})
	if err != nil {
		return false, err
	}
	cache, err := s.GetStored(ctx)
	if err != nil {
		return false, err
	}
	_, ok := cache.Find(entityID)
	return ok, nil
}

// RemoveEntity drops a channel by login from the stored cache and its
// last-seen record. Failures are logged and swallowed.
func (s *Service) RemoveEntity(ctx context.Context, login string) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.GetStored(ctx)
	if err != nil || cache == nil {
		return
	}
	entry, ok := cache.FindByLogin(login)
	if !ok {
		return
	}
	cache.Items = slices.DeleteFunc(cache.Items, func(e domain.FollowEntry) bool { return e.ID == entry.ID })

	lastSeen := s.loadLastSeen(ctx)
	delete(lastSeen, entry.ID)

	if err := s.persist(ctx, cache, lastSeen); err != nil {
		s.logger.Warn("failed to remove followed channel", slog.String("login", login), slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("followed channel removed", slog.String("entity_id", entry.ID))
	s.notify(ctx, cache)
}

// patch looks up a single user, fetches its stream and upserts the entry.
// Without a stored cache there is nothing to patch; a full refresh builds it.
// With followedOnly, a channel missing from the cache is added only when Helix
// confirms the follow, and carries the real follow date.
func (s *Service) patch(ctx context.Context, followedOnly bool, lookup func(token string) ([]twitch.User, error)) error {
	token, status, err := s.auth.AccessToken(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.GetStored(ctx)
	if err != nil {
		return err
	}
	if cache == nil {
		return nil
	}

	users, err := lookup(token)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return domainerrors.NotFound("channel not found")
	}
	user := users[0]

	now := s.now()
	idx := slices.IndexFunc(cache.Items, func(e domain.FollowEntry) bool { return e.ID == user.ID })
	followDate := now
	if idx < 0 && followedOnly {
		follow, err := s.helix.GetFollowedChannel(ctx, token, status.UserID, user.ID)
		if err != nil {
			return err
		}
		if follow == nil {
			s.logger.Debug("channel not followed, leaving cache as is", slog.String("entity_id", user.ID))
			return nil
		}
		followDate = follow.FollowedAt
	}

	streams, err := s.helix.GetStreams(ctx, token, []string{user.ID})
	if err != nil {
		return err
	}

	lastSeen := s.loadLastSeen(ctx)

	if idx < 0 {
		cache.Items = append(cache.Items, domain.FollowEntry{ID: user.ID, FollowDate: followDate})
		idx = len(cache.Items) - 1
	}
	entry := &cache.Items[idx]
	applyUser(entry, user)
	clearStream(entry)
	for _, st := range streams {
		if st.UserID == user.ID {
			applyStream(entry, st)
			lastSeen[user.ID] = now
		}
	}
	if seen, ok := lastSeen[user.ID]; ok {
		entry.LastSeenLive = &seen
	}
	entry.LastUpdated = now

	if err := s.persist(ctx, cache, lastSeen); err != nil {
		return err
	}
	s.logger.Debug("followed channel patched", slog.String("entity_id", user.ID), slog.Bool("live", entry.IsLive))
	s.notify(ctx, cache)
	return nil
}
