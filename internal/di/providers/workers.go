package providers

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/starwatchapp/starwatch/internal/auditlog"
	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/config"
	"github.com/starwatchapp/starwatch/internal/follows"
	"github.com/starwatchapp/starwatch/internal/live"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/metrics"
	"github.com/starwatchapp/starwatch/internal/notify"
	"github.com/starwatchapp/starwatch/internal/prefs"
	"github.com/starwatchapp/starwatch/internal/store/sqlite"
	"github.com/starwatchapp/starwatch/internal/tagdoc"
	"github.com/starwatchapp/starwatch/internal/watcher"
)

// NotifierHandle wraps the notification fan-out and the sinks that hold
// connections.
type NotifierHandle struct {
	*notify.Fanout
	closers []func() error
}

// Shutdown implements do.Shutdownable.
func (h *NotifierHandle) Shutdown() error {
	var errs []error
	for _, c := range h.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// ProvideNotifier provides the fan-out over every configured sink. Surfaces
// always get the broadcast; desktop and Discord are optional.
func ProvideNotifier(i do.Injector) (*NotifierHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("notify")
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	sinks := []notify.Notifier{notify.NewBroadcast(sseHandle.Manager)}
	var closers []func() error

	if cfg.Notify.Desktop {
		desktop := notify.NewDesktop(log.Logger)
		sinks = append(sinks, desktop)
		closers = append(closers, desktop.Shutdown)
	}

	discord, err := notify.NewDiscord(cfg.Notify.DiscordWebhookURL, log.Logger)
	if err != nil {
		return nil, err
	}
	if discord != nil {
		sinks = append(sinks, discord)
		closers = append(closers, discord.Shutdown)
	}

	log.Info("Notification sinks configured", "count", len(sinks))

	return &NotifierHandle{
		Fanout:  notify.NewFanout(log.Logger, sinks...),
		closers: closers,
	}, nil
}

// ProvideBadge provides the live-starred badge.
func ProvideBadge(i do.Injector) (*notify.Badge, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("badge")
	local := do.MustInvoke[*LocalScopeHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	return notify.NewBadge(local.LocalScope, sseHandle.Manager, log.Logger), nil
}

// ProvideLiveTracker provides the live tracker. Tag edits reconcile the
// persisted live state and signing out clears it.
func ProvideLiveTracker(i do.Injector) (*live.Tracker, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("live")
	local := do.MustInvoke[*LocalScopeHandle](i)
	authService := do.MustInvoke[*auth.Service](i)
	tagService := do.MustInvoke[*tagdoc.Service](i)

	tracker := live.NewTracker(live.Deps{
		Scope:    local.LocalScope,
		Session:  authService,
		Follows:  do.MustInvoke[*follows.Service](i),
		Tags:     tagService,
		Prefs:    do.MustInvoke[*prefs.Service](i),
		Notifier: do.MustInvoke[*NotifierHandle](i),
		Badge:    do.MustInvoke[*notify.Badge](i),
		Log:      do.MustInvoke[*auditlog.Log](i),
		Metrics:  metrics.NewGlobal("starwatch/live", log.Logger),
	}, cfg.Live.NotificationSpacing, log.Logger)

	tagService.OnChange(tracker.SyncLiveAssignments)
	authService.OnSignOut(tracker.Clear)

	return tracker, nil
}

// ProvideLiveScheduler provides and starts the periodic live check.
func ProvideLiveScheduler(i do.Injector) (*live.Scheduler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("scheduler")
	local := do.MustInvoke[*LocalScopeHandle](i)
	tracker := do.MustInvoke[*live.Tracker](i)

	scheduler := live.NewScheduler(local.LocalScope, tracker.RunLiveCheck, cfg.Live.Period, cfg.Live.Debounce, log.Logger)
	scheduler.Start(context.Background())

	log.Info("Live scheduler started", "period", cfg.Live.Period)

	return scheduler, nil
}

// SyncMirrorHandle wraps the file watcher that follows the sync database.
type SyncMirrorHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SyncMirrorHandle) Shutdown() error {
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideSyncMirror watches the sync directory and reconciles the sync scope
// when another process writes to it.
func ProvideSyncMirror(i do.Injector) (*SyncMirrorHandle, error) {
	log := do.MustInvoke[*logger.Logger](i).WithComponent("mirror")
	sync := do.MustInvoke[*SyncStoreHandle](i)

	w, err := watcher.New(log.Logger, watcher.Options{Include: sqlite.MirrorPatterns})
	if err != nil {
		return nil, err
	}

	if err := w.Watch(sync.Path()); err != nil {
		_ = w.Stop()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("Sync watcher stopped", "error", err)
		}
	}()
	go sync.FollowMirror(ctx, w)

	log.Info("Sync mirror watching", "path", sync.Path())

	return &SyncMirrorHandle{Watcher: w, cancel: cancel}, nil
}
