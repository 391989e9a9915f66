package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/store"
)

// AlarmName identifies the live check alarm record.
const AlarmName = "live-check"

// DefaultDebounce suppresses a scheduled run right after the startup run.
const DefaultDebounce = 1500 * time.Millisecond

// Alarm is the persisted schedule. It survives restarts so an overdue check
// fires as soon as the daemon is back.
type Alarm struct {
	Name     string    `json:"name"`
	PeriodMs int64     `json:"periodMs"`
	NextAt   time.Time `json:"nextAt"`
}

// RunFunc performs one live check.
type RunFunc func(ctx context.Context, trigger domain.Trigger) domain.UpdateLogEntry

// Scheduler drives periodic live checks. It prefers the durable alarm and
// falls back to a timer that re-arms after each run when the alarm record
// cannot be written. Runs never overlap: one goroutine does all the firing.
type Scheduler struct {
	scope    store.Scope
	run      RunFunc
	period   time.Duration
	debounce time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	initDone time.Time
	fallback bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler that calls run every period.
func NewScheduler(scope store.Scope, run RunFunc, period, debounce time.Duration, logger *slog.Logger) *Scheduler {
	if debounce < 0 {
		debounce = DefaultDebounce
	}
	return &Scheduler{
		scope:    scope,
		run:      run,
		period:   period,
		debounce: debounce,
		logger:   logger,
		now:      time.Now,
	}
}

// Start performs the initialization run and then schedules checks in the
// background until Shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.run(ctx, domain.TriggerInitialization)
	s.mu.Lock()
	s.initDone = s.now()
	s.mu.Unlock()

	next, trigger := s.arm(ctx)
	for {
		timer := time.NewTimer(max(next.Sub(s.now()), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		next, trigger = s.fire(ctx, trigger)
	}
}

// arm decides when the first scheduled run happens. An alarm that came due
// while the daemon was down fires immediately.
func (s *Scheduler) arm(ctx context.Context) (time.Time, domain.Trigger) {
	now := s.now()
	alarm, found, err := store.Load[Alarm](ctx, s.scope, store.KeyLiveAlarm)
	if err != nil {
		s.logger.Warn("failed to read live alarm", slog.String("error", err.Error()))
	}
	if found && alarm.PeriodMs == s.period.Milliseconds() {
		if !alarm.NextAt.After(now) {
			s.logger.Info("live alarm overdue, firing now", slog.Time("due", alarm.NextAt))
			return now, domain.TriggerAlarm
		}
		return alarm.NextAt, domain.TriggerAlarm
	}
	return s.schedule(ctx, now)
}

// schedule persists the next alarm, switching to the fallback timer when the
// record cannot be written.
func (s *Scheduler) schedule(ctx context.Context, from time.Time) (time.Time, domain.Trigger) {
	next := from.Add(s.period)
	alarm := Alarm{Name: AlarmName, PeriodMs: s.period.Milliseconds(), NextAt: next}
	if err := s.scope.Set(ctx, store.KeyLiveAlarm, alarm); err != nil {
		s.mu.Lock()
		wasFallback := s.fallback
		s.fallback = true
		s.mu.Unlock()
		if !wasFallback {
			s.logger.Warn("live alarm unavailable, using fallback timer", slog.String("error", err.Error()))
		}
		return next, domain.TriggerFallback
	}
	s.mu.Lock()
	s.fallback = false
	s.mu.Unlock()
	return next, domain.TriggerAlarm
}

// fire runs one scheduled check and returns when the next one is due.
// The alarm keeps a fixed cadence from the moment it fired; the fallback
// timer re-arms from when the run finished.
func (s *Scheduler) fire(ctx context.Context, trigger domain.Trigger) (time.Time, domain.Trigger) {
	fired := s.now()

	var next time.Time
	if trigger == domain.TriggerAlarm {
		next, trigger = s.schedule(ctx, fired)
	}

	if s.debounced(fired) {
		s.logger.Debug("skipping scheduled live check right after initialization")
	} else {
		s.run(ctx, trigger)
	}

	if trigger == domain.TriggerFallback {
		next, trigger = s.schedule(ctx, s.now())
	}
	return next, trigger
}

func (s *Scheduler) debounced(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.initDone.IsZero() && at.Sub(s.initDone) < s.debounce
}

// UsingFallback reports whether the fallback timer is driving checks.
func (s *Scheduler) UsingFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Shutdown stops scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
