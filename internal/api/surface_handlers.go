package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starwatchapp/starwatch/internal/auth"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
)

func (s *Server) registerSurfaceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "registerSurface",
		Method:        http.MethodPost,
		Path:          "/api/v1/surfaces",
		Summary:       "Register surface",
		Description:   "Issues a token a popup, dashboard, content script or options page uses for the message bus and event stream",
		Tags:          []string{"Surfaces"},
		DefaultStatus: http.StatusCreated,
	}, s.handleRegisterSurface)
}

// === DTOs ===

// RegisterSurfaceRequest is the request body for registering a surface.
type RegisterSurfaceRequest struct {
	Kind string `json:"kind" enum:"popup,dashboard,content,options" doc:"Which part of the extension is connecting"`
}

// RegisterSurfaceInput wraps the register request for Huma.
type RegisterSurfaceInput struct {
	Body RegisterSurfaceRequest

	remoteAddr string
}

// Resolve captures the peer address for rate limiting.
func (i *RegisterSurfaceInput) Resolve(ctx huma.Context) []error {
	i.remoteAddr = ctx.RemoteAddr()
	return nil
}

// SurfaceResponse contains the issued token.
type SurfaceResponse struct {
	SurfaceID string    `json:"surfaceId" doc:"Surface ID"`
	Kind      string    `json:"kind" doc:"Surface kind"`
	Token     string    `json:"token" doc:"Bearer token for the bus and event stream"`
	ExpiresAt time.Time `json:"expiresAt" doc:"Token expiry; register again afterwards"`
}

// SurfaceOutput wraps the surface response for Huma.
type SurfaceOutput struct {
	Body SurfaceResponse
}

// === Handlers ===

func (s *Server) handleRegisterSurface(_ context.Context, input *RegisterSurfaceInput) (*SurfaceOutput, error) {
	if err := s.allowAddress(input.remoteAddr); err != nil {
		return nil, err
	}

	kind := auth.SurfaceKind(input.Body.Kind)
	if !kind.Valid() {
		return nil, domainerrors.Validationf("Unknown surface kind %q", input.Body.Kind)
	}

	token, claims, err := s.deps.Tokens.Issue(kind)
	if err != nil {
		s.logger.Error("Failed to issue surface token", "kind", kind, "error", err)
		return nil, domainerrors.Internal("Failed to register surface")
	}

	s.logger.Info("Surface registered", "surface_id", claims.SurfaceID, "kind", kind)
	return &SurfaceOutput{Body: SurfaceResponse{
		SurfaceID: claims.SurfaceID,
		Kind:      string(claims.Kind),
		Token:     token,
		ExpiresAt: claims.Expiration,
	}}, nil
}
