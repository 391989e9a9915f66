package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/starwatchapp/starwatch/internal/config"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/store/sqlite"
)

// HubHandle wraps the change hub with shutdown capability.
type HubHandle struct {
	*store.Hub
}

// Shutdown implements do.Shutdownable.
func (h *HubHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideHub provides the storage change hub shared by both scopes.
func ProvideHub(i do.Injector) (*HubHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return &HubHandle{Hub: store.NewHub(log.Logger)}, nil
}

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager and forwards
// storage changes to connected surfaces.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	hub := do.MustInvoke[*HubHandle](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	changes, unsubscribe := hub.Subscribe(64)
	go func() {
		defer unsubscribe()
		manager.ForwardChanges(ctx, changes)
	}()

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// LocalScopeHandle wraps the device-local scope with shutdown capability.
type LocalScopeHandle struct {
	*store.LocalScope
}

// Shutdown implements do.Shutdownable.
func (h *LocalScopeHandle) Shutdown() error {
	return h.Close()
}

// ProvideLocalScope provides the Badger-backed device-local scope.
func ProvideLocalScope(i do.Injector) (*LocalScopeHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	hub := do.MustInvoke[*HubHandle](i)

	path := cfg.Data.LocalPath()
	scope, err := store.OpenLocal(path, hub.Hub, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Local storage initialized", "path", path)
	return &LocalScopeHandle{LocalScope: scope}, nil
}

// SyncStoreHandle wraps the mirrored sync scope with shutdown capability.
type SyncStoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *SyncStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideSyncStore provides the SQLite-backed sync scope.
func ProvideSyncStore(i do.Injector) (*SyncStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	hub := do.MustInvoke[*HubHandle](i)

	db, err := sqlite.Open(cfg.Data.SyncPath(), cfg.Sync.QuotaBytes, hub.Hub, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Sync storage initialized", "path", db.Path(), "quota_bytes", db.Quota())
	return &SyncStoreHandle{Store: db}, nil
}

// ProvideQuotaGuard provides the write guard for the sync scope.
func ProvideQuotaGuard(i do.Injector) (*store.QuotaGuard, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sync := do.MustInvoke[*SyncStoreHandle](i)

	return store.NewQuotaGuard(sync.Store, cfg.Sync.QuotaBytes, cfg.Sync.WarnRatio, cfg.Sync.BlockRatio, log.Logger), nil
}
