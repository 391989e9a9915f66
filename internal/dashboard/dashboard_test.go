package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	status      *domain.AuthStatus
	signOutOnce bool
}

func (f *fakeSession) Status(context.Context) *domain.AuthStatus { return f.status }

type fakeFollows struct {
	session    *fakeSession
	refreshErr error
	stored     *domain.FollowCache
	fresh      *domain.FollowCache
	forced     []bool
}

func (f *fakeFollows) Refresh(_ context.Context, force bool) (*domain.FollowCache, error) {
	f.forced = append(f.forced, force)
	if f.refreshErr != nil {
		if f.session.signOutOnce {
			f.session.status = nil
		}
		return nil, f.refreshErr
	}
	return f.fresh, nil
}

func (f *fakeFollows) GetStored(context.Context) (*domain.FollowCache, error) { return f.stored, nil }

type fakeTags struct{ err error }

func (f fakeTags) Get(context.Context) (*domain.TagDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewTagDocument(time.Now()), nil
}

type fakePrefs struct{}

func (fakePrefs) Get(context.Context) (domain.Preferences, error) {
	p := domain.DefaultPreferences()
	p.SortMode = domain.SortByName
	return p, nil
}

var fetched = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newAssembler(session *fakeSession, follows *fakeFollows, tags fakeTags) *Assembler {
	follows.session = session
	return NewAssembler(session, follows, tags, fakePrefs{}, logger.Discard())
}

func TestGetPayload_SignedIn(t *testing.T) {
	session := &fakeSession{status: &domain.AuthStatus{UserID: "42"}}
	follows := &fakeFollows{fresh: &domain.FollowCache{FetchedAt: fetched, Items: []domain.FollowEntry{{ID: "1"}}}}
	a := newAssembler(session, follows, fakeTags{})

	p := a.GetPayload(context.Background(), true)
	require.NotNil(t, p.Auth)
	assert.Len(t, p.Follows, 1)
	require.NotNil(t, p.FetchedAt)
	assert.Equal(t, fetched, *p.FetchedAt)
	assert.NotNil(t, p.TagState)
	assert.Equal(t, domain.SortByName, p.Preferences.SortMode)
	assert.Equal(t, []bool{true}, follows.forced)
}

func TestGetPayload_SignedOutSkipsRefresh(t *testing.T) {
	follows := &fakeFollows{}
	a := newAssembler(&fakeSession{}, follows, fakeTags{})

	p := a.GetPayload(context.Background(), false)
	assert.Nil(t, p.Auth)
	assert.NotNil(t, p.Follows)
	assert.Empty(t, p.Follows)
	assert.Nil(t, p.FetchedAt)
	assert.Empty(t, follows.forced)
}

func TestGetPayload_FallsBackToStored(t *testing.T) {
	session := &fakeSession{status: &domain.AuthStatus{UserID: "42"}}
	follows := &fakeFollows{
		refreshErr: errors.New("twitch down"),
		stored:     &domain.FollowCache{FetchedAt: fetched, Items: []domain.FollowEntry{{ID: "1"}, {ID: "2"}}},
	}
	a := newAssembler(session, follows, fakeTags{})

	p := a.GetPayload(context.Background(), false)
	require.NotNil(t, p.Auth)
	assert.Len(t, p.Follows, 2)
	assert.Equal(t, fetched, *p.FetchedAt)
}

func TestGetPayload_RereadsAuthAfterFailure(t *testing.T) {
	session := &fakeSession{status: &domain.AuthStatus{UserID: "42"}, signOutOnce: true}
	follows := &fakeFollows{refreshErr: errors.New("authentication required")}
	a := newAssembler(session, follows, fakeTags{})

	p := a.GetPayload(context.Background(), false)
	assert.Nil(t, p.Auth)
	assert.Empty(t, p.Follows)
}

func TestGetPayload_NeverFails(t *testing.T) {
	a := newAssembler(&fakeSession{}, &fakeFollows{}, fakeTags{err: errors.New("corrupt")})

	p := a.GetPayload(context.Background(), false)
	require.NotNil(t, p)
	assert.Nil(t, p.TagState)
	assert.Equal(t, domain.SortByName, p.Preferences.SortMode)
}
