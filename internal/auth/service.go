package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/twitch"
)

const (
	// Tokens this close to expiry are renewed before use.
	refreshSkew = 5 * time.Minute
	// Twitch asks apps to validate tokens at least hourly.
	validateEvery = time.Hour
	// slow_down adds this much to the device poll interval.
	slowDownStep = 5 * time.Second
)

// OAuthProvider is the subset of the Twitch OAuth API the service needs.
type OAuthProvider interface {
	Validate(ctx context.Context, token string) (*twitch.TokenInfo, error)
	Refresh(ctx context.Context, refreshToken string) (*twitch.Token, error)
	Revoke(ctx context.Context, token string) error
	StartDevice(ctx context.Context, scopes []string) (*twitch.DeviceCode, error)
	PollDevice(ctx context.Context, deviceCode string, scopes []string) (*twitch.Token, error)
}

// ProfileLookup resolves the account behind a fresh token.
type ProfileLookup interface {
	GetCurrentUser(ctx context.Context, token string) (*twitch.User, error)
}

// Broadcaster pushes events to open surfaces.
type Broadcaster interface {
	Broadcast(eventType sse.EventType, data any)
}

// SignInFlow is what a surface shows the user to finish signing in.
type SignInFlow struct {
	UserCode        string    `json:"userCode"`
	VerificationURI string    `json:"verificationUri"`
	ExpiresAt       time.Time `json:"expiresAt"`
	Interval        int       `json:"interval"`
}

// Service owns the signed-in Twitch account.
type Service struct {
	local    store.Scope
	sealer   *Sealer
	oauth    OAuthProvider
	profiles ProfileLookup
	events   Broadcaster
	scopes   []string
	logger   *slog.Logger
	now      func() time.Time

	// pollFloor is the shortest device poll interval honored.
	pollFloor time.Duration

	// mu serializes every read-modify-write of the stored credentials.
	mu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []func(context.Context)

	flowMu     sync.Mutex
	flowCancel context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the auth service.
func NewService(
	local store.Scope,
	sealer *Sealer,
	oauth OAuthProvider,
	profiles ProfileLookup,
	events Broadcaster,
	scopes []string,
	logger *slog.Logger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		local:     local,
		sealer:    sealer,
		oauth:     oauth,
		profiles:  profiles,
		events:    events,
		scopes:    scopes,
		logger:    logger,
		now:       time.Now,
		pollFloor: time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnSignOut registers fn to run after credentials are cleared.
// Hooks must not call back into the Service.
func (s *Service) OnSignOut(fn func(context.Context)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Status returns the signed-in account, or nil when signed out.
func (s *Service) Status(ctx context.Context) *domain.AuthStatus {
	creds, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("failed to read credentials", slog.String("error", err.Error()))
		return nil
	}
	return statusOf(creds)
}

// IsAuthenticated reports whether credentials are stored.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	return s.Status(ctx) != nil
}

// AccessToken returns a usable access token, renewing it silently when it is
// about to expire or has been rejected by validation.
func (s *Service) AccessToken(ctx context.Context) (string, *domain.AuthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load(ctx)
	if err != nil {
		return "", nil, err
	}
	if creds == nil {
		return "", nil, domainerrors.ErrUnauthorized
	}

	now := s.now()
	switch {
	case now.Add(refreshSkew).After(creds.ExpiresAt):
		if creds, err = s.refreshLocked(ctx, creds); err != nil {
			return "", nil, err
		}

	case now.Sub(creds.ValidatedAt) > validateEvery:
		_, err := s.oauth.Validate(ctx, creds.AccessToken)
		switch {
		case twitch.IsAuthError(err):
			if creds, err = s.refreshLocked(ctx, creds); err != nil {
				return "", nil, err
			}
		case err != nil:
			// Validation is advisory; a transient failure should not block the caller.
			s.logger.Debug("token validation failed", slog.String("error", err.Error()))
		default:
			creds.ValidatedAt = now
			if err := s.save(ctx, creds); err != nil {
				s.logger.Warn("failed to record token validation", slog.String("error", err.Error()))
			}
		}
	}

	return creds.AccessToken, statusOf(creds), nil
}

func (s *Service) refreshLocked(ctx context.Context, creds *Credentials) (*Credentials, error) {
	if creds.RefreshToken == "" {
		s.signOutLocked(ctx, false)
		return nil, domainerrors.ErrUnauthorized
	}

	tok, err := s.oauth.Refresh(ctx, creds.RefreshToken)
	if twitch.IsAuthError(err) {
		s.logger.Info("refresh token rejected, signing out")
		s.signOutLocked(ctx, false)
		return nil, domainerrors.ErrUnauthorized
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "Twitch is unreachable")
	}

	next := *creds
	next.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.ExpiresAt = tok.ExpiresAt()
	next.ValidatedAt = s.now()
	if len(tok.Scopes) > 0 {
		next.Scopes = tok.Scopes
	}

	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	s.logger.Debug("access token refreshed", slog.Time("expires_at", next.ExpiresAt))
	return &next, nil
}

// SignOut revokes the token (best effort), clears credentials, runs sign-out
// hooks and broadcasts the new status.
func (s *Service) SignOut(ctx context.Context) error {
	s.cancelFlow()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signOutLocked(ctx, true)
}

func (s *Service) signOutLocked(ctx context.Context, revoke bool) error {
	if revoke {
		if creds, err := s.load(ctx); err == nil && creds != nil {
			if err := s.oauth.Revoke(ctx, creds.AccessToken); err != nil {
				s.logger.Warn("token revocation failed", slog.String("error", err.Error()))
			}
		}
	}

	if err := s.local.Remove(ctx, store.KeyCredentials); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}

	s.hooksMu.RLock()
	hooks := append([]func(context.Context){}, s.hooks...)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx)
	}

	s.events.Broadcast(sse.EventOAuthStatus, (*domain.AuthStatus)(nil))
	s.logger.Info("signed out")
	return nil
}

// StartSignIn begins a device authorization grant. The returned code is shown
// to the user; a background poll completes the sign-in and broadcasts
// oauth:status. Starting again abandons any flow already in progress.
func (s *Service) StartSignIn(ctx context.Context) (*SignInFlow, error) {
	dc, err := s.oauth.StartDevice(ctx, s.scopes)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnavailable, "Could not start Twitch sign-in")
	}

	expiresAt := s.now().Add(time.Duration(dc.ExpiresIn) * time.Second)
	flowCtx, cancel := context.WithDeadline(s.ctx, expiresAt)

	s.flowMu.Lock()
	if s.flowCancel != nil {
		s.flowCancel()
	}
	s.flowCancel = cancel
	s.flowMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.pollDevice(flowCtx, dc)
	}()

	s.logger.Info("device sign-in started", slog.String("user_code", dc.UserCode))
	return &SignInFlow{
		UserCode:        dc.UserCode,
		VerificationURI: dc.VerificationURI,
		ExpiresAt:       expiresAt,
		Interval:        dc.Interval,
	}, nil
}

func (s *Service) cancelFlow() {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	if s.flowCancel != nil {
		s.flowCancel()
		s.flowCancel = nil
	}
}

func (s *Service) pollDevice(ctx context.Context, dc *twitch.DeviceCode) {
	interval := max(time.Duration(dc.Interval)*time.Second, s.pollFloor)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.logger.Info("device sign-in expired")
				s.events.Broadcast(sse.EventOAuthStatus, (*domain.AuthStatus)(nil))
			}
			return
		case <-timer.C:
		}

		tok, err := s.oauth.PollDevice(ctx, dc.DeviceCode, s.scopes)
		switch {
		case err == nil:
			if err := s.completeSignIn(ctx, tok); err != nil {
				s.logger.Error("failed to complete sign-in", slog.String("error", err.Error()))
				s.events.Broadcast(sse.EventOAuthStatus, (*domain.AuthStatus)(nil))
			}
			return
		case errors.Is(err, twitch.ErrAuthorizationPending):
		case errors.Is(err, twitch.ErrSlowDown):
			interval += slowDownStep
		case errors.Is(err, twitch.ErrDeviceExpired):
			s.logger.Info("device code expired before authorization")
			s.events.Broadcast(sse.EventOAuthStatus, (*domain.AuthStatus)(nil))
			return
		default:
			if ctx.Err() != nil {
				continue
			}
			s.logger.Warn("device poll failed", slog.String("error", err.Error()))
		}
		timer.Reset(interval)
	}
}

func (s *Service) completeSignIn(ctx context.Context, tok *twitch.Token) error {
	user, err := s.profiles.GetCurrentUser(ctx, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}

	creds := &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		UserID:       user.ID,
		Login:        user.Login,
		DisplayName:  user.DisplayName,
		ExpiresAt:    tok.ExpiresAt(),
		ValidatedAt:  s.now(),
		Scopes:       tok.Scopes,
	}
	if len(creds.Scopes) == 0 {
		creds.Scopes = s.scopes
	}

	s.mu.Lock()
	err = s.save(ctx, creds)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("signed in", slog.String("login", creds.Login))
	s.events.Broadcast(sse.EventOAuthStatus, statusOf(creds))
	return nil
}

// Shutdown abandons any pending sign-in.
func (s *Service) Shutdown() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Service) load(ctx context.Context) (*Credentials, error) {
	sealed, ok, err := store.Load[string](ctx, s.local, store.KeyCredentials)
	if err != nil || !ok {
		return nil, err
	}
	creds, err := s.sealer.Open(sealed)
	if err != nil {
		// A rotated key makes old credentials unreadable; treat as signed out.
		s.logger.Warn("discarding unreadable credentials", slog.String("error", err.Error()))
		if rmErr := s.local.Remove(ctx, store.KeyCredentials); rmErr != nil {
			s.logger.Warn("failed to remove credentials", slog.String("error", rmErr.Error()))
		}
		return nil, nil
	}
	return creds, nil
}

func (s *Service) save(ctx context.Context, creds *Credentials) error {
	sealed, err := s.sealer.Seal(creds)
	if err != nil {
		return err
	}
	if err := s.local.Set(ctx, store.KeyCredentials, sealed); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

func statusOf(creds *Credentials) *domain.AuthStatus {
	if creds == nil {
		return nil
	}
	return &domain.AuthStatus{
		UserID:      creds.UserID,
		Login:       creds.Login,
		DisplayName: creds.DisplayName,
		ExpiresAt:   creds.ExpiresAt,
		Scopes:      creds.Scopes,
	}
}
