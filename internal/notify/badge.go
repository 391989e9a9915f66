package notify

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
)

// BadgeBackground is the badge color, applied once per process.
const BadgeBackground = "#9146FF"

// Badge is the toolbar count of starred channels that are live.
type Badge struct {
	scope  store.Scope
	events Broadcaster
	logger *slog.Logger

	background sync.Once
	mu         sync.Mutex
	current    sse.BadgeEventData
}

// NewBadge creates the badge.
func NewBadge(scope store.Scope, events Broadcaster, logger *slog.Logger) *Badge {
	return &Badge{scope: scope, events: events, logger: logger}
}

// Text renders count as badge text: empty when zero.
func Text(count int) string {
	if count <= 0 {
		return ""
	}
	return strconv.Itoa(count)
}

// Set records and broadcasts the live-starred count. Persisting is best
// effort so a storage hiccup never hides the count from open surfaces.
func (b *Badge) Set(ctx context.Context, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if count < 0 {
		count = 0
	}
	data := sse.BadgeEventData{Text: Text(count), Count: count}
	b.background.Do(func() { data.Background = BadgeBackground })

	if err := b.scope.Set(ctx, store.KeyBadge, sse.BadgeEventData{Text: data.Text, Count: count, Background: BadgeBackground}); err != nil {
		b.logger.Warn("failed to persist badge", slog.String("error", err.Error()))
	}
	b.current = sse.BadgeEventData{Text: data.Text, Count: count, Background: BadgeBackground}
	b.events.Broadcast(sse.EventBadgeUpdate, data)
}

// Current returns the last badge set in this process.
func (b *Badge) Current() sse.BadgeEventData {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
