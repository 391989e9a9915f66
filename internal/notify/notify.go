// Package notify delivers "went live" notifications and maintains the badge.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/sse"
)

// Notification is one "went live" alert.
type Notification struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	IconURL  string `json:"iconUrl,omitempty"`
	URL      string `json:"url"`
	EntityID string `json:"entityId"`
}

// Notifier delivers a notification to one sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ChannelURL is where clicking a notification for login leads.
func ChannelURL(login string) string {
	return "https://twitch.tv/" + login
}

// ForLive builds the notification for a channel that just went live.
func ForLive(entry domain.FollowEntry) Notification {
	name := entry.DisplayName
	if name == "" {
		name = entry.Login
	}
	body := entry.Title
	if entry.GameName != "" {
		if body != "" {
			body += " · "
		}
		body += entry.GameName
	}
	return Notification{
		ID:       "live-" + entry.ID,
		Title:    fmt.Sprintf("%s is live", name),
		Body:     body,
		IconURL:  entry.AvatarURL,
		URL:      ChannelURL(entry.Login),
		EntityID: entry.ID,
	}
}

// Broadcaster pushes events to open surfaces.
type Broadcaster interface {
	Broadcast(eventType sse.EventType, data any)
}

// Broadcast shows notifications in connected surfaces over SSE.
type Broadcast struct {
	events Broadcaster
}

// NewBroadcast creates a surface notifier.
func NewBroadcast(events Broadcaster) *Broadcast {
	return &Broadcast{events: events}
}

// Notify emits notification:show. No connected surface is not an error.
func (b *Broadcast) Notify(_ context.Context, n Notification) error {
	b.events.Broadcast(sse.EventNotificationShow, n)
	return nil
}

// Fanout sends every notification to all sinks.
type Fanout struct {
	sinks  []Notifier
	logger *slog.Logger
}

// NewFanout creates a Fanout over the non-nil sinks.
func NewFanout(logger *slog.Logger, sinks ...Notifier) *Fanout {
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify delivers to every sink, logging failures, and returns the first error.
func (f *Fanout) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, sink := range f.sinks {
		if err := sink.Notify(ctx, n); err != nil {
			f.logger.Warn("notification sink failed",
				slog.String("sink", fmt.Sprintf("%T", sink)),
				slog.String("entity_id", n.EntityID),
				slog.String("error", err.Error()))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// ErrUnavailable is returned by sinks that cannot reach their backend.
var ErrUnavailable = errors.New("notify: sink unavailable")
