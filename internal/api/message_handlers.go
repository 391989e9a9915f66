package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starwatchapp/starwatch/internal/bus"
)

func (s *Server) registerMessageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "sendMessage",
		Method:      http.MethodPost,
		Path:        "/api/v1/messages",
		Summary:     "Send message",
		Description: "Routes one bus message by type. Failures are reported in the envelope, not the HTTP status",
		Tags:        []string{"Messages"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleMessage)
}

// MessageInput wraps a bus request for Huma.
type MessageInput struct {
	Authorization string `header:"Authorization"`
	Body          bus.Request
}

// MessageOutput wraps the bus envelope for Huma.
type MessageOutput struct {
	Body bus.Response
}

func (s *Server) handleMessage(ctx context.Context, input *MessageInput) (*MessageOutput, error) {
	claims, err := s.authenticateSurface(input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.allowSurface(claims.SurfaceID); err != nil {
		return nil, err
	}

	ctx = setSurface(ctx, claims)
	resp := s.deps.Bus.Dispatch(ctx, input.Body)

	s.logger.Debug("message handled",
		slog.String("surface_id", claims.SurfaceID),
		slog.String("kind", string(claims.Kind)),
		slog.String("type", input.Body.Type),
		slog.Bool("ok", resp.OK))
	return &MessageOutput{Body: resp}, nil
}
