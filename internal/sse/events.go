// Package sse implements Server-Sent Events, the channel the daemon uses to push
// unsolicited broadcasts (auth changes, preference updates, badge counts) to every
// open surface.
package sse

import (
	"time"

	"github.com/starwatchapp/starwatch/internal/store"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is sent once when a stream opens.
	EventConnected EventType = "connected"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventOAuthStatus carries the current *domain.AuthStatus (null when signed out).
	EventOAuthStatus EventType = "oauth:status"
	// EventPreferencesUpdated carries the new domain.Preferences.
	EventPreferencesUpdated EventType = "preferences:updated"
	// EventBadgeUpdate carries a BadgeEventData.
	EventBadgeUpdate EventType = "badge:update"
	// EventNotificationShow asks surfaces to display a notification.
	EventNotificationShow EventType = "notification:show"
	// EventStorageChanged mirrors a store.Change.
	EventStorageChanged EventType = "storage:changed"
	// EventTagsUpdated carries the new *domain.TagDocument.
	EventTagsUpdated EventType = "tags:updated"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"serverTime"`
}

// BadgeEventData is the toolbar badge as surfaces should render it.
type BadgeEventData struct {
	Text       string `json:"text"`
	Count      int    `json:"count"`
	Background string `json:"background,omitempty"`
}

// NewEvent stamps data with the current time.
func NewEvent(eventType EventType, data any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}

// NewStorageChangedEvent mirrors a store write.
func NewStorageChangedEvent(c store.Change) Event {
	return NewEvent(EventStorageChanged, c)
}
