package auth

import (
	"slices"
	"time"
)

// SurfaceKind identifies which part of the extension UI is talking to the daemon.
type SurfaceKind string

// Known surface kinds.
const (
	SurfacePopup     SurfaceKind = "popup"
	SurfaceDashboard SurfaceKind = "dashboard"
	SurfaceContent   SurfaceKind = "content"
	SurfaceOptions   SurfaceKind = "options"
)

var surfaceKinds = []SurfaceKind{SurfacePopup, SurfaceDashboard, SurfaceContent, SurfaceOptions}

// Valid reports whether k is a known surface kind.
func (k SurfaceKind) Valid() bool {
	return slices.Contains(surfaceKinds, k)
}

// SurfaceClaims are the claims carried by a surface token.
// These are encrypted in v4.local tokens, so they're not readable without the key.
type SurfaceClaims struct {
	SurfaceID string      `json:"surface_id"`
	Kind      SurfaceKind `json:"kind"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Credentials is the signed-in Twitch account as sealed into the local scope.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Login        string    `json:"login"`
	DisplayName  string    `json:"displayName"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ValidatedAt  time.Time `json:"validatedAt"`
	Scopes       []string  `json:"scopes"`
}
