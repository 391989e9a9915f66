package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starwatchapp/starwatch/internal/auth"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// surfaceKey is the context key for the verified surface claims.
const surfaceKey ctxKey = "surface"

// GetSurface returns the verified surface from context.
// Returns 401 error if the request carried no valid surface token.
func GetSurface(ctx context.Context) (*auth.SurfaceClaims, error) {
	claims, ok := ctx.Value(surfaceKey).(*auth.SurfaceClaims)
	if !ok || claims == nil {
		return nil, huma.Error401Unauthorized("Surface token required")
	}
	return claims, nil
}

// setSurface stores the surface claims in context.
func setSurface(ctx context.Context, claims *auth.SurfaceClaims) context.Context {
	return context.WithValue(ctx, surfaceKey, claims)
}

// surfaceFromRequest adapts the context claims to sse.SurfaceResolver.
func surfaceFromRequest(r *http.Request) (surfaceID, kind string, ok bool) {
	claims, err := GetSurface(r.Context())
	if err != nil {
		return "", "", false
	}
	return claims.SurfaceID, string(claims.Kind), true
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// authenticateSurface validates the Authorization header and returns the surface.
func (s *Server) authenticateSurface(authHeader string) (*auth.SurfaceClaims, error) {
	if authHeader == "" {
		return nil, huma.Error401Unauthorized("Missing authorization header")
	}

	token, ok := bearerToken(authHeader)
	if !ok {
		return nil, huma.Error401Unauthorized("Invalid authorization header format")
	}

	claims, err := s.deps.Tokens.Verify(token)
	if err != nil {
		return nil, huma.Error401Unauthorized("Invalid or expired surface token")
	}
	return claims, nil
}
