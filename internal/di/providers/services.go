package providers

import (
	"context"
	"sync"

	"github.com/samber/do/v2"

	"github.com/starwatchapp/starwatch/internal/auditlog"
	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/backup"
	"github.com/starwatchapp/starwatch/internal/bus"
	"github.com/starwatchapp/starwatch/internal/config"
	"github.com/starwatchapp/starwatch/internal/dashboard"
	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/follows"
	"github.com/starwatchapp/starwatch/internal/live"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/metrics"
	"github.com/starwatchapp/starwatch/internal/prefs"
	"github.com/starwatchapp/starwatch/internal/search"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/tagdoc"
	"github.com/starwatchapp/starwatch/internal/twitch"
	"github.com/starwatchapp/starwatch/internal/validation"
)

// ProvidePreferences provides the preferences service.
func ProvidePreferences(i do.Injector) (*prefs.Service, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("prefs")
	sync := do.MustInvoke[*SyncStoreHandle](i)
	guard := do.MustInvoke[*store.QuotaGuard](i)
	validator := do.MustInvoke[*validation.Validator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return prefs.NewService(sync.Store, guard, validator, sseHandle.Manager, log.Logger), nil
}

// ProvideTagDocument provides the tag document service. Its queue is drained
// on shutdown.
func ProvideTagDocument(i do.Injector) (*tagdoc.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("tagdoc")
	sync := do.MustInvoke[*SyncStoreHandle](i)
	guard := do.MustInvoke[*store.QuotaGuard](i)
	validator := do.MustInvoke[*validation.Validator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return tagdoc.NewService(sync.Store, guard, validator, sseHandle.Manager, tagdoc.Options{
		QueueCapacity: cfg.Tags.QueueCapacity,
		NameMaxLength: cfg.Tags.NameMaxLength,
	}, log.Logger), nil
}

// ProvideFollows provides the follow cache. Signing out drops the cache.
func ProvideFollows(i do.Injector) (*follows.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("follows")
	local := do.MustInvoke[*LocalScopeHandle](i)
	helix := do.MustInvoke[*twitch.Client](i)
	authService := do.MustInvoke[*auth.Service](i)

	svc := follows.NewService(local.LocalScope, helix, authService, cfg.Cache.TTL,
		metrics.NewGlobal("starwatch/follows", log.Logger), log.Logger)

	authService.OnSignOut(svc.Clear)

	return svc, nil
}

// ProvideSearchIndex provides the in-memory follow index and keeps it in step
// with the follow cache and tag document.
func ProvideSearchIndex(i do.Injector) (*search.FollowIndex, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("search")
	followService := do.MustInvoke[*follows.Service](i)
	tagService := do.MustInvoke[*tagdoc.Service](i)
	authService := do.MustInvoke[*auth.Service](i)

	index, err := search.NewFollowIndex(log.Logger)
	if err != nil {
		return nil, err
	}

	// Hooks from concurrent writers can arrive out of order, so every rebuild
	// reads both documents fresh under one lock.
	var mu sync.Mutex
	rebuild := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()

		var entries []domain.FollowEntry
		cache, err := followService.GetStored(ctx)
		if err != nil {
			log.Warn("Follow index: failed to load follows", "error", err)
		} else if cache != nil {
			entries = cache.Items
		}
		doc, err := tagService.Get(ctx)
		if err != nil {
			log.Warn("Follow index: failed to load tags", "error", err)
		}
		if err := index.Rebuild(entries, doc); err != nil {
			log.Warn("Failed to rebuild follow index", "error", err)
		}
	}

	followService.OnUpdate(func(ctx context.Context, _ *domain.FollowCache) { rebuild(ctx) })
	tagService.OnChange(func(ctx context.Context, _ *domain.TagDocument, _ string) { rebuild(ctx) })
	authService.OnSignOut(rebuild)

	// Seed from whatever was persisted by the previous run.
	rebuild(context.Background())

	count, _ := index.DocumentCount()
	log.Info("Follow index ready", "channels", count)

	return index, nil
}

// ProvideAuditLog provides the live-check history.
func ProvideAuditLog(i do.Injector) (*auditlog.Log, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("auditlog")
	local := do.MustInvoke[*LocalScopeHandle](i)

	return auditlog.New(local.LocalScope, cfg.Live.LogCapacity, log.Logger), nil
}

// ProvideBackup provides tag export and import.
func ProvideBackup(i do.Injector) (*backup.Service, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("backup")
	tagService := do.MustInvoke[*tagdoc.Service](i)
	validator := do.MustInvoke[*validation.Validator](i)

	return backup.NewService(tagService, validator, backup.DefaultLimits(), log.Logger), nil
}

// ProvideDashboard provides the dashboard assembler.
func ProvideDashboard(i do.Injector) (*dashboard.Assembler, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("dashboard")
	authService := do.MustInvoke[*auth.Service](i)
	followService := do.MustInvoke[*follows.Service](i)
	tagService := do.MustInvoke[*tagdoc.Service](i)
	prefService := do.MustInvoke[*prefs.Service](i)

	return dashboard.NewAssembler(authService, followService, tagService, prefService, log.Logger), nil
}

// ProvideMessageBus provides the message router with every handler registered.
func ProvideMessageBus(i do.Injector) (*bus.Router, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("bus")
	validator := do.MustInvoke[*validation.Validator](i)
	local := do.MustInvoke[*LocalScopeHandle](i)

	router := bus.NewRouter(validator, log.Logger)
	bus.Register(router, bus.Services{
		Dashboard: do.MustInvoke[*dashboard.Assembler](i),
		Tags:      do.MustInvoke[*tagdoc.Service](i),
		Backup:    do.MustInvoke[*backup.Service](i),
		Follows:   do.MustInvoke[*follows.Service](i),
		Search:    do.MustInvoke[*search.FollowIndex](i),
		Session:   do.MustInvoke[*auth.Service](i),
		Prefs:     do.MustInvoke[*prefs.Service](i),
		Live:      do.MustInvoke[*live.Tracker](i),
		Log:       do.MustInvoke[*auditlog.Log](i),
		Snapshots: bus.NewSnapshotStore(local.LocalScope),
	})

	log.Info("Message bus ready", "types", len(router.Types()))
	return router, nil
}
