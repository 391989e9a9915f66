package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/twitch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOAuth struct {
	mu         sync.Mutex
	refreshErr error
	refreshed  int
	revoked    []string
	validErr   error
	polls      []error
}

func (f *fakeOAuth) Validate(context.Context, string) (*twitch.TokenInfo, error) {
	return &twitch.TokenInfo{}, f.validErr
}

func (f *fakeOAuth) Refresh(_ context.Context, refreshToken string) (*twitch.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	f.refreshed++
	return &twitch.Token{AccessToken: "fresh", RefreshToken: refreshToken + "+", ExpiresIn: 3600, ObtainedAt: time.Now()}, nil
}

func (f *fakeOAuth) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeOAuth) StartDevice(context.Context, []string) (*twitch.DeviceCode, error) {
	return &twitch.DeviceCode{DeviceCode: "dc", UserCode: "ABCD", VerificationURI: "https://www.twitch.tv/activate", ExpiresIn: 60}, nil
}

func (f *fakeOAuth) PollDevice(context.Context, string, []string) (*twitch.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.polls) > 0 {
		err := f.polls[0]
		f.polls = f.polls[1:]
		return nil, err
	}
	return &twitch.Token{AccessToken: "device", RefreshToken: "r", ExpiresIn: 3600, ObtainedAt: time.Now()}, nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetCurrentUser(context.Context, string) (*twitch.User, error) {
	return &twitch.User{ID: "42", Login: "me", DisplayName: "Me"}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recorder) Broadcast(t sse.EventType, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sse.Event{Type: t, Data: data})
}

func (r *recorder) last() (sse.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return sse.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

func newTestService(t *testing.T) (*Service, *fakeOAuth, *recorder) {
	t.Helper()
	local, err := store.OpenLocalInMemory(store.NewHub(logger.Discard()), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	oauth := &fakeOAuth{}
	events := &recorder{}
	svc := NewService(local, sealer, oauth, fakeProfiles{}, events, []string{"user:read:follows"}, logger.Discard())
	svc.pollFloor = 5 * time.Millisecond
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc, oauth, events
}

func seed(t *testing.T, svc *Service, creds *Credentials) {
	t.Helper()
	require.NoError(t, svc.save(context.Background(), creds))
}

func TestService_SignedOut(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.Nil(t, svc.Status(ctx))
	_, _, err := svc.AccessToken(ctx)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthorized))
}

func TestService_AccessToken_FreshTokenUnchanged(t *testing.T) {
	svc, oauth, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, &Credentials{AccessToken: "a", RefreshToken: "r", UserID: "42", ExpiresAt: time.Now().Add(time.Hour), ValidatedAt: time.Now()})

	token, status, err := svc.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", token)
	assert.Equal(t, "42", status.UserID)
	assert.Zero(t, oauth.refreshed)
}

func TestService_AccessToken_RefreshesNearExpiry(t *testing.T) {
	svc, oauth, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, &Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Minute)})

	token, _, err := svc.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, 1, oauth.refreshed)

	stored, err := svc.load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r+", stored.RefreshToken)
}

func TestService_AccessToken_ValidationFailureRefreshes(t *testing.T) {
	svc, oauth, _ := newTestService(t)
	oauth.validErr = twitch.ErrUnauthorized
	seed(t, svc, &Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour), ValidatedAt: time.Now().Add(-2 * time.Hour)})

	token, _, err := svc.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

func TestService_AccessToken_RejectedRefreshSignsOut(t *testing.T) {
	svc, oauth, events := newTestService(t)
	ctx := context.Background()
	oauth.refreshErr = twitch.ErrUnauthorized

	var hooked bool
	svc.OnSignOut(func(context.Context) { hooked = true })
	seed(t, svc, &Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Minute)})

	_, _, err := svc.AccessToken(ctx)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthorized))
	assert.Equal(t, "authentication required", err.Error())
	assert.True(t, hooked)
	assert.Nil(t, svc.Status(ctx))

	last, ok := events.last()
	require.True(t, ok)
	assert.Equal(t, sse.EventOAuthStatus, last.Type)
	assert.Nil(t, last.Data.(*domain.AuthStatus))
}

func TestService_AccessToken_TransientRefreshKeepsCredentials(t *testing.T) {
	svc, oauth, _ := newTestService(t)
	ctx := context.Background()
	oauth.refreshErr = errors.New("connection reset")
	seed(t, svc, &Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Minute)})

	_, _, err := svc.AccessToken(ctx)
	assert.Equal(t, domainerrors.CodeUnavailable, domainerrors.CodeOf(err))
	assert.NotNil(t, svc.Status(ctx))
}

func TestService_SignOut_Revokes(t *testing.T) {
	svc, oauth, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, &Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)})

	require.NoError(t, svc.SignOut(ctx))
	assert.Equal(t, []string{"a"}, oauth.revoked)
	assert.False(t, svc.IsAuthenticated(ctx))
}

func TestService_StartSignIn_CompletesInBackground(t *testing.T) {
	svc, oauth, events := newTestService(t)
	ctx := context.Background()
	oauth.polls = []error{twitch.ErrAuthorizationPending, twitch.ErrAuthorizationPending}

	flow, err := svc.StartSignIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", flow.UserCode)

	require.Eventually(t, func() bool { return svc.IsAuthenticated(ctx) }, 2*time.Second, 5*time.Millisecond)

	status := svc.Status(ctx)
	assert.Equal(t, "me", status.Login)
	assert.Equal(t, "Me", status.DisplayName)

	last, ok := events.last()
	require.True(t, ok)
	assert.Equal(t, "42", last.Data.(*domain.AuthStatus).UserID)
}

func TestService_StartSignIn_ExpiredCode(t *testing.T) {
	svc, oauth, events := newTestService(t)
	oauth.polls = []error{twitch.ErrDeviceExpired}

	_, err := svc.StartSignIn(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		e, ok := events.last()
		return ok && e.Type == sse.EventOAuthStatus
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, svc.IsAuthenticated(context.Background()))
}

func TestService_UnreadableCredentialsTreatedAsSignedOut(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.local.Set(ctx, store.KeyCredentials, "v4.local.garbage"))

	assert.Nil(t, svc.Status(ctx))
	_, ok, err := store.Load[string](ctx, svc.local, store.KeyCredentials)
	require.NoError(t, err)
	assert.False(t, ok)
}
