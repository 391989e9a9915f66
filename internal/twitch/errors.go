package twitch

import (
	"errors"
	"fmt"
)

// Sentinel errors for Helix and OAuth operations.
var (
	ErrUnauthorized = errors.New("twitch: token rejected")
	ErrRateLimited  = errors.New("twitch: rate limited by server")
	ErrBadRequest   = errors.New("twitch: bad request")
	ErrNotFound     = errors.New("twitch: not found")
	ErrServer       = errors.New("twitch: server error")

	// Device flow states.
	ErrAuthorizationPending = errors.New("twitch: authorization pending")
	ErrSlowDown             = errors.New("twitch: polling too fast")
	ErrDeviceExpired        = errors.New("twitch: device code expired")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op     string // "getFollowed", "getStreams", "refresh", ...
	Status int    // HTTP status, 0 for transport errors
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("twitch %s [%d]: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("twitch %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, status int, err error) error {
	return &Error{Op: op, Status: status, Err: err}
}

// IsAuthError reports whether err means the token is no longer usable.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
