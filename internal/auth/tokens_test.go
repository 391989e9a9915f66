package auth

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, keyLength)
}

func TestSurfaceTokens_IssueAndVerify(t *testing.T) {
	tokens, err := NewSurfaceTokens(testKey(), time.Hour)
	require.NoError(t, err)

	token, issued, err := tokens.Issue(SurfaceDashboard)
	require.NoError(t, err)
	assert.Contains(t, token, "v4.local.")

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, issued.SurfaceID, claims.SurfaceID)
	assert.Equal(t, SurfaceDashboard, claims.Kind)
	assert.Equal(t, SurfaceAudience, claims.Audience)
}

func TestSurfaceTokens_UnknownKind(t *testing.T) {
	tokens, err := NewSurfaceTokens(testKey(), time.Hour)
	require.NoError(t, err)

	_, _, err = tokens.Issue("sidebar")
	assert.Error(t, err)
}

func TestSurfaceTokens_Expired(t *testing.T) {
	tokens, err := NewSurfaceTokens(testKey(), time.Minute)
	require.NoError(t, err)

	token, _, err := tokens.Issue(SurfacePopup)
	require.NoError(t, err)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tokens.Verify(token)
	assert.Error(t, err)
}

func TestSurfaceTokens_WrongKey(t *testing.T) {
	issuer, err := NewSurfaceTokens(testKey(), time.Hour)
	require.NoError(t, err)
	other, err := NewSurfaceTokens(bytes.Repeat([]byte{9}, keyLength), time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.Issue(SurfaceContent)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestNewSurfaceTokens_BadKey(t *testing.T) {
	_, err := NewSurfaceTokens([]byte("short"), time.Hour)
	assert.Error(t, err)
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	creds := &Credentials{
		AccessToken:  "a",
		RefreshToken: "r",
		UserID:       "42",
		Login:        "me",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Scopes:       []string{"user:read:follows"},
	}

	sealed, err := sealer.Seal(creds)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "refresh")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, creds.RefreshToken, opened.RefreshToken)
	assert.True(t, creds.ExpiresAt.Equal(opened.ExpiresAt))
}

func TestSealer_SurfaceTokenIsNotCredentials(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)
	tokens, err := NewSurfaceTokens(testKey(), time.Hour)
	require.NoError(t, err)

	token, _, err := tokens.Issue(SurfacePopup)
	require.NoError(t, err)

	_, err = sealer.Open(token)
	assert.Error(t, err)
}
