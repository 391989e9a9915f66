package api

import (
	"net"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/starwatchapp/starwatch/internal/ratelimit"
)

// RateLimiter wraps KeyedRateLimiter for API use.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a new rate limiter.
// rate: number of requests allowed per interval
// interval: time period for rate (e.g., time.Minute)
// burst: maximum burst size
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// allowSurface applies the per-surface message limit.
func (s *Server) allowSurface(surfaceID string) error {
	if s.messageLimiter.Allow(surfaceID) {
		return nil
	}
	s.logger.Warn("Rate limit exceeded", "surface_id", surfaceID)
	return huma.Error429TooManyRequests("Too many messages. Please slow down.")
}

// allowAddress applies the per-address registration limit.
func (s *Server) allowAddress(remoteAddr string) error {
	key := clientIP(remoteAddr)
	if s.registerLimiter.Allow(key) {
		return nil
	}
	s.logger.Warn("Rate limit exceeded", "ip", key, "path", "/api/v1/surfaces")
	return huma.Error429TooManyRequests("Too many requests. Please try again later.")
}

// clientIP strips the port from a RemoteAddr. middleware.RealIP has already
// applied X-Forwarded-For and X-Real-IP.
func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(remoteAddr)
}
