package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_CachesInstruments(t *testing.T) {
	r := New(noop.NewMeterProvider().Meter("test"), logger.Discard())
	ctx := context.Background()

	r.Count(ctx, LiveChecks, 1, attribute.String("trigger", "alarm"))
	r.Count(ctx, LiveChecks, 1, attribute.String("trigger", "manual"))
	r.Duration(ctx, LiveCheckDuration, 25*time.Millisecond)

	assert.Len(t, r.counters, 1)
	assert.Len(t, r.histograms, 1)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Count(context.Background(), FollowRefreshes, 1)
	r.Duration(context.Background(), LiveCheckDuration, time.Second)
}

func TestNewGlobal(t *testing.T) {
	r := NewGlobal("starwatch/test", logger.Discard())
	r.Count(context.Background(), FollowRefreshes, 2)
	assert.Contains(t, r.counters, FollowRefreshes)
}
