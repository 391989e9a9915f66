// Package bus routes typed request/response messages from UI surfaces to the
// core services. Every message gets an envelope back: {ok: true, data} on
// success, {ok: false, error, code} on failure.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/validation"
)

// Request is one message from a surface.
type Request struct {
	Type    string          `json:"type" doc:"Message type, e.g. tag:assign"`
	Payload json.RawMessage `json:"payload,omitempty" doc:"Type-specific payload"`
}

// Response is the envelope every message gets back.
type Response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// MarshalJSON keeps data present (possibly null) on success and absent on failure.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(struct {
			OK   bool `json:"ok"`
			Data any  `json:"data"`
		}{true, r.Data})
	}
	return json.Marshal(struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}{false, r.Error, r.Code})
}

// Success wraps data.
func Success(data any) Response {
	return Response{OK: true, Data: data}
}

// Failure maps err to an error envelope.
func Failure(err error) Response {
	return Response{
		OK:    false,
		Error: domainerrors.MessageOf(err),
		Code:  string(domainerrors.CodeOf(err)),
	}
}

// HandlerFunc handles one message type. payload may be empty.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Router dispatches messages by type.
type Router struct {
	validator *validation.Validator
	logger    *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty Router.
func NewRouter(validator *validation.Validator, logger *slog.Logger) *Router {
	return &Router{
		validator: validator,
		logger:    logger,
		handlers:  make(map[string]HandlerFunc),
	}
}

// HandleFunc registers fn for msgType, replacing any earlier handler.
func (r *Router) HandleFunc(msgType string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = fn
}

// Handle registers a handler whose payload decodes into P and is validated
// before fn runs. A missing payload decodes as the zero P.
func Handle[P any](r *Router, msgType string, fn func(ctx context.Context, p P) (any, error)) {
	r.HandleFunc(msgType, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, domainerrors.Validationf("Invalid %s payload: %v", msgType, err)
			}
		}
		if err := r.validator.Validate(&p); err != nil {
			return nil, err
		}
		return fn(ctx, p)
	})
}

// Types lists the registered message types in order.
func (r *Router) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Dispatch runs the handler for req and wraps the outcome. It never panics.
func (r *Router) Dispatch(ctx context.Context, req Request) (resp Response) {
	r.mu.RLock()
	fn, ok := r.handlers[req.Type]
	r.mu.RUnlock()
	if !ok {
		return Failure(domainerrors.Validationf("Unknown message type %q", req.Type))
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("bus handler panicked",
				slog.String("type", req.Type),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			resp = Failure(domainerrors.Internal(fmt.Sprintf("%s failed unexpectedly", req.Type)))
		}
	}()

	data, err := fn(ctx, req.Payload)
	if err != nil {
		level := slog.LevelDebug
		if domainerrors.CodeOf(err) == domainerrors.CodeInternal {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "bus request failed",
			slog.String("type", req.Type),
			slog.String("code", string(domainerrors.CodeOf(err))),
			slog.String("error", err.Error()))
		return Failure(err)
	}

	r.logger.Debug("bus request handled",
		slog.String("type", req.Type),
		slog.Duration("took", time.Since(start)))
	return Success(data)
}
