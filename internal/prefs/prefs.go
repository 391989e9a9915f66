// Package prefs stores user preferences in the sync scope.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/validation"
)

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	NotificationsEnabled      *bool   `json:"notificationsEnabled,omitempty"`
	NotificationMaxAgeMinutes *int    `json:"notificationMaxAgeMinutes,omitempty" validate:"omitnil,gte=0"`
	BadgeEnabled              *bool   `json:"badgeEnabled,omitempty"`
	ShowOfflineStarred        *bool   `json:"showOfflineStarred,omitempty"`
	SortMode                  *string `json:"sortMode,omitempty" validate:"omitnil,oneof=name live followed"`
}

// Broadcaster pushes events to open surfaces.
type Broadcaster interface {
	Broadcast(eventType sse.EventType, data any)
}

// Service reads and writes preferences.
type Service struct {
	scope     store.Scope
	guard     *store.QuotaGuard
	validator *validation.Validator
	events    Broadcaster
	logger    *slog.Logger

	mu sync.Mutex
}

// NewService creates a preferences service.
func NewService(scope store.Scope, guard *store.QuotaGuard, validator *validation.Validator, events Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		scope:     scope,
		guard:     guard,
		validator: validator,
		events:    events,
		logger:    logger,
	}
}

// Get returns stored preferences over the defaults, clamped into bounds.
func (s *Service) Get(ctx context.Context) (domain.Preferences, error) {
	p := domain.DefaultPreferences()
	if err := s.scope.Get(ctx, store.KeyPreferences, &p); err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.DefaultPreferences(), fmt.Errorf("load preferences: %w", err)
	}
	return p.Clamped(), nil
}

// Update applies patch, persists the result and broadcasts preferences:updated.
func (s *Service) Update(ctx context.Context, patch Patch) (domain.Preferences, error) {
	if err := s.validator.Validate(patch); err != nil {
		return domain.Preferences{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}

	if patch.NotificationsEnabled != nil {
		p.NotificationsEnabled = *patch.NotificationsEnabled
	}
	if patch.NotificationMaxAgeMinutes != nil {
		p.NotificationMaxAgeMinutes = *patch.NotificationMaxAgeMinutes
	}
	if patch.BadgeEnabled != nil {
		p.BadgeEnabled = *patch.BadgeEnabled
	}
	if patch.ShowOfflineStarred != nil {
		p.ShowOfflineStarred = *patch.ShowOfflineStarred
	}
	if patch.SortMode != nil {
		p.SortMode = *patch.SortMode
	}
	p = p.Clamped()

	if err := s.guard.Check(ctx, store.KeyPreferences, p); err != nil {
		return domain.Preferences{}, err
	}
	if err := s.scope.Set(ctx, store.KeyPreferences, p); err != nil {
		return domain.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}

	s.logger.Debug("preferences updated",
		slog.Bool("notifications", p.NotificationsEnabled),
		slog.Int("max_age_minutes", p.NotificationMaxAgeMinutes))
	s.events.Broadcast(sse.EventPreferencesUpdated, p)
	return p, nil
}
