// Package dashboard assembles the single snapshot UI surfaces render from.
package dashboard

import (
	"context"
	"log/slog"

	"github.com/starwatchapp/starwatch/internal/domain"
)

// Session reports the signed-in account, nil when signed out.
type Session interface {
	Status(ctx context.Context) *domain.AuthStatus
}

// FollowCache is the follow cache as the dashboard reads it.
type FollowCache interface {
	Refresh(ctx context.Context, force bool) (*domain.FollowCache, error)
	GetStored(ctx context.Context) (*domain.FollowCache, error)
}

// TagSource loads the normalized tag document.
type TagSource interface {
	Get(ctx context.Context) (*domain.TagDocument, error)
}

// PreferenceSource loads the effective preferences.
type PreferenceSource interface {
	Get(ctx context.Context) (domain.Preferences, error)
}

// Assembler builds dashboard payloads.
type Assembler struct {
	session Session
	follows FollowCache
	tags    TagSource
	prefs   PreferenceSource
	logger  *slog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(session Session, follows FollowCache, tags TagSource, prefs PreferenceSource, logger *slog.Logger) *Assembler {
	return &Assembler{session: session, follows: follows, tags: tags, prefs: prefs, logger: logger}
}

// GetPayload returns a best-effort snapshot; it never fails. Auth may be nil
// and follows empty, but every field is present. When a refresh fails the
// last stored cache is served, and auth is read again because the failure
// may have signed the account out.
func (a *Assembler) GetPayload(ctx context.Context, forceRefresh bool) *domain.DashboardPayload {
	payload := &domain.DashboardPayload{
		Follows:     []domain.FollowEntry{},
		Preferences: domain.DefaultPreferences(),
	}

	doc, err := a.tags.Get(ctx)
	if err != nil {
		a.logger.Warn("dashboard: failed to load tags", slog.String("error", err.Error()))
	} else {
		payload.TagState = doc
	}

	prefs, err := a.prefs.Get(ctx)
	if err != nil {
		a.logger.Warn("dashboard: failed to load preferences", slog.String("error", err.Error()))
	} else {
		payload.Preferences = prefs
	}

	payload.Auth = a.session.Status(ctx)
	if payload.Auth == nil {
		return payload
	}

	cache, err := a.follows.Refresh(ctx, forceRefresh)
	if err != nil {
		a.logger.Warn("dashboard: refresh failed, serving stored follows", slog.String("error", err.Error()))
		cache, err = a.follows.GetStored(ctx)
		if err != nil {
			a.logger.Warn("dashboard: failed to read stored follows", slog.String("error", err.Error()))
		}
		payload.Auth = a.session.Status(ctx)
	}

	if cache != nil {
		payload.Follows = cache.Items
		if payload.Follows == nil {
			payload.Follows = []domain.FollowEntry{}
		}
		fetchedAt := cache.FetchedAt
		payload.FetchedAt = &fetchedAt
	}
	return payload
}
