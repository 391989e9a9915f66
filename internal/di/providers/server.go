package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/starwatchapp/starwatch/internal/api"
	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/bus"
	"github.com/starwatchapp/starwatch/internal/config"
	"github.com/starwatchapp/starwatch/internal/live"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/search"
)

// ProvideAPIServer provides the HTTP handler surfaces talk to.
func ProvideAPIServer(i do.Injector) (*api.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("api")
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	local := do.MustInvoke[*LocalScopeHandle](i)
	sync := do.MustInvoke[*SyncStoreHandle](i)

	return api.NewServer(api.Deps{
		Tokens:         do.MustInvoke[*auth.SurfaceTokens](i),
		Bus:            do.MustInvoke[*bus.Router](i),
		Events:         sseHandle.Manager,
		Local:          local.LocalScope,
		Sync:           sync.Store,
		Search:         do.MustInvoke[*search.FollowIndex](i),
		Alarm:          do.MustInvoke[*live.Scheduler](i),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, api.DefaultOptions(), log.Logger), nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	handler := do.MustInvoke[*api.Server](i)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
