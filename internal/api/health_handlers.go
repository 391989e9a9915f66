package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starwatchapp/starwatch/internal/store"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns daemon health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"local":  s.checkScope(ctx, s.deps.Local),
		"sync":   s.checkScope(ctx, s.deps.Sync),
		"search": s.checkSearchIndex(),
		"sse":    s.checkSSEManager(),
		"alarm":  s.checkAlarm(),
	}

	overall := statusHealthy
	for _, c := range components {
		switch {
		case c.Status == statusUnhealthy:
			overall = statusUnhealthy
		case c.Status == statusDegraded && overall == statusHealthy:
			overall = statusDegraded
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkScope verifies a storage scope answers a usage query.
func (s *Server) checkScope(ctx context.Context, scope store.Scope) ComponentHealth {
	if scope == nil {
		return ComponentHealth{Status: statusDegraded, Message: "store not configured"}
	}

	start := time.Now()
	used, err := scope.BytesInUse(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  statusUnhealthy,
			Latency: latency.String(),
			Message: "store read failed",
		}
	}

	return ComponentHealth{
		Status:  statusHealthy,
		Latency: latency.String(),
		Message: strconv.FormatInt(used, 10) + " bytes in use",
	}
}

// checkSearchIndex verifies the follow index is accessible. An empty index
// is normal before the first refresh.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.deps.Search == nil {
		return ComponentHealth{Status: statusDegraded, Message: "search index not configured"}
	}

	start := time.Now()
	count, err := s.deps.Search.DocumentCount()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  statusUnhealthy,
			Latency: latency.String(),
			Message: "search index unreachable",
		}
	}

	return ComponentHealth{
		Status:  statusHealthy,
		Latency: latency.String(),
		Message: strconv.FormatUint(count, 10) + " channels indexed",
	}
}

// checkSSEManager reports connected surfaces.
func (s *Server) checkSSEManager() ComponentHealth {
	if s.deps.Events == nil {
		return ComponentHealth{Status: statusDegraded, Message: "SSE manager not configured"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: formatSSEStatus(s.deps.Events.ClientCount()),
	}
}

// checkAlarm degrades when the durable alarm could not be persisted.
func (s *Server) checkAlarm() ComponentHealth {
	if s.deps.Alarm == nil {
		return ComponentHealth{Status: statusDegraded, Message: "scheduler not configured"}
	}
	if s.deps.Alarm.UsingFallback() {
		return ComponentHealth{Status: statusDegraded, Message: "using in-process fallback timer"}
	}
	return ComponentHealth{Status: statusHealthy}
}

func formatSSEStatus(count int) string {
	switch count {
	case 0:
		return "no connected surfaces"
	case 1:
		return "1 connected surface"
	default:
		return strconv.Itoa(count) + " connected surfaces"
	}
}
