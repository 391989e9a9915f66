// Package di provides dependency injection configuration for the starwatch daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/starwatchapp/starwatch/internal/api"
	"github.com/starwatchapp/starwatch/internal/auditlog"
	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/backup"
	"github.com/starwatchapp/starwatch/internal/bus"
	"github.com/starwatchapp/starwatch/internal/config"
	"github.com/starwatchapp/starwatch/internal/dashboard"
	"github.com/starwatchapp/starwatch/internal/di/providers"
	"github.com/starwatchapp/starwatch/internal/follows"
	"github.com/starwatchapp/starwatch/internal/live"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/notify"
	"github.com/starwatchapp/starwatch/internal/prefs"
	"github.com/starwatchapp/starwatch/internal/search"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/tagdoc"
	"github.com/starwatchapp/starwatch/internal/twitch"
	"github.com/starwatchapp/starwatch/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage layer
	do.Provide(injector, providers.ProvideHub)
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideLocalScope)
	do.Provide(injector, providers.ProvideSyncStore)
	do.Provide(injector, providers.ProvideQuotaGuard)

	// Twitch and auth
	do.Provide(injector, providers.ProvideTwitchClient)
	do.Provide(injector, providers.ProvideTwitchOAuth)
	do.Provide(injector, providers.ProvideSurfaceTokens)
	do.Provide(injector, providers.ProvideAuthService)

	// Business services
	do.Provide(injector, providers.ProvidePreferences)
	do.Provide(injector, providers.ProvideTagDocument)
	do.Provide(injector, providers.ProvideFollows)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideAuditLog)
	do.Provide(injector, providers.ProvideBackup)
	do.Provide(injector, providers.ProvideDashboard)

	// Live tracking
	do.Provide(injector, providers.ProvideNotifier)
	do.Provide(injector, providers.ProvideBadge)
	do.Provide(injector, providers.ProvideLiveTracker)
	do.Provide(injector, providers.ProvideLiveScheduler)

	// Workers
	do.Provide(injector, providers.ProvideSyncMirror)

	// Server
	do.Provide(injector, providers.ProvideMessageBus)
	do.Provide(injector, providers.ProvideAPIServer)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once the HTTP server is
// listening in the background. Hooks between services are registered by their
// providers, so every service is invoked before the scheduler's first run.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.HubHandle](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.LocalScopeHandle](injector)
	_ = do.MustInvoke[*providers.SyncStoreHandle](injector)
	_ = do.MustInvoke[*store.QuotaGuard](injector)
	_ = do.MustInvoke[*twitch.Client](injector)
	_ = do.MustInvoke[*twitch.OAuth](injector)
	_ = do.MustInvoke[*auth.SurfaceTokens](injector)
	_ = do.MustInvoke[*auth.Service](injector)

	// Business services
	_ = do.MustInvoke[*prefs.Service](injector)
	_ = do.MustInvoke[*tagdoc.Service](injector)
	_ = do.MustInvoke[*follows.Service](injector)
	_ = do.MustInvoke[*search.FollowIndex](injector)
	_ = do.MustInvoke[*auditlog.Log](injector)
	_ = do.MustInvoke[*backup.Service](injector)
	_ = do.MustInvoke[*dashboard.Assembler](injector)

	// Live tracking
	_ = do.MustInvoke[*providers.NotifierHandle](injector)
	_ = do.MustInvoke[*notify.Badge](injector)
	_ = do.MustInvoke[*live.Tracker](injector)
	_ = do.MustInvoke[*live.Scheduler](injector)

	// Workers
	_ = do.MustInvoke[*providers.SyncMirrorHandle](injector)

	// Server
	_ = do.MustInvoke[*bus.Router](injector)
	_ = do.MustInvoke[*api.Server](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
