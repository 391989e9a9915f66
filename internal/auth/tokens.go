package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/starwatchapp/starwatch/internal/id"
)

const (
	tokenIssuer = "starwatch"
	// SurfaceAudience is the audience every surface token is minted for.
	SurfaceAudience = "starwatch-surface"
)

// SurfaceTokens issues and verifies the bearer tokens surfaces present on the bus.
type SurfaceTokens struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	now          func() time.Time
}

// NewSurfaceTokens creates a token service from the raw 32-byte key.
func NewSurfaceTokens(key []byte, ttl time.Duration) (*SurfaceTokens, error) {
	symmetricKey, err := symmetricKeyFrom(key)
	if err != nil {
		return nil, err
	}
	return &SurfaceTokens{
		symmetricKey: symmetricKey,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

func symmetricKeyFrom(key []byte) (paseto.V4SymmetricKey, error) {
	if len(key) != keyLength {
		return paseto.V4SymmetricKey{}, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}
	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return paseto.V4SymmetricKey{}, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}
	return symmetricKey, nil
}

// Issue registers a new surface and returns its token.
func (s *SurfaceTokens) Issue(kind SurfaceKind) (string, *SurfaceClaims, error) {
	if !kind.Valid() {
		return "", nil, fmt.Errorf("unknown surface kind %q", kind)
	}

	surfaceID, err := id.Generate(id.PrefixSurface)
	if err != nil {
		return "", nil, fmt.Errorf("generate surface ID: %w", err)
	}
	tokenID, err := id.Generate("tok")
	if err != nil {
		return "", nil, fmt.Errorf("generate token ID: %w", err)
	}

	now := s.now()
	claims := &SurfaceClaims{
		SurfaceID:  surfaceID,
		Kind:       kind,
		Issuer:     tokenIssuer,
		Subject:    surfaceID,
		Audience:   SurfaceAudience,
		Expiration: now.Add(s.ttl),
		NotBefore:  now,
		IssuedAt:   now,
		TokenID:    tokenID,
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(surfaceID)
	token.SetAudience(SurfaceAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(claims.Expiration)
	token.SetJti(tokenID)

	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("surface_id", surfaceID)
	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("kind", string(kind))

	return token.V4Encrypt(s.symmetricKey, nil), claims, nil
}

// Verify decrypts and checks a surface token.
func (s *SurfaceTokens) Verify(tokenString string) (*SurfaceClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(SurfaceAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims SurfaceClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if !claims.Kind.Valid() {
		return nil, fmt.Errorf("invalid token: unknown surface kind %q", claims.Kind)
	}

	return &claims, nil
}
