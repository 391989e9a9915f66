// Package metrics records daemon counters through the OpenTelemetry metric API.
// Without an SDK installed the global meter is a no-op, so recording is always safe.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	LiveChecks         = "live_checks_total"
	LiveNotifications  = "live_notifications_total"
	LiveCheckDuration  = "live_check_duration_ms"
	FollowRefreshes    = "follow_refresh_total"
	FollowFetchedItems = "follow_fetched_items_total"
)

// Recorder lazily creates and caches instruments by name.
type Recorder struct {
	meter  metric.Meter
	logger *slog.Logger

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Int64Histogram
}

// New creates a recorder on meter.
func New(meter metric.Meter, logger *slog.Logger) *Recorder {
	return &Recorder{
		meter:      meter,
		logger:     logger,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Int64Histogram),
	}
}

// NewGlobal creates a recorder on the globally registered meter provider.
func NewGlobal(scope string, logger *slog.Logger) *Recorder {
	return New(otel.Meter(scope), logger)
}

// Count adds n to the named counter.
func (r *Recorder) Count(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	if r == nil {
		return
	}
	counter, ok := r.counter(name)
	if !ok {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Duration records d in milliseconds on the named histogram.
func (r *Recorder) Duration(ctx context.Context, name string, d time.Duration, attrs ...attribute.KeyValue) {
	if r == nil {
		return
	}
	r.mu.Lock()
	h, ok := r.histograms[name]
	if !ok {
		var err error
		h, err = r.meter.Int64Histogram(name, metric.WithUnit("ms"))
		if err != nil {
			r.mu.Unlock()
			r.logger.Warn("failed to create histogram", slog.String("name", name), slog.String("error", err.Error()))
			return
		}
		r.histograms[name] = h
	}
	r.mu.Unlock()
	h.Record(ctx, d.Milliseconds(), metric.WithAttributes(attrs...))
}

func (r *Recorder) counter(name string) (metric.Int64Counter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[name]; ok {
		return c, true
	}
	c, err := r.meter.Int64Counter(name)
	if err != nil {
		r.logger.Warn("failed to create counter", slog.String("name", name), slog.String("error", err.Error()))
		return nil, false
	}
	r.counters[name] = c
	return c, true
}
