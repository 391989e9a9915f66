// Package live tracks which starred channels are broadcasting, notifies when
// one starts, and keeps the badge count in step.
package live

import (
	"time"

	"github.com/starwatchapp/starwatch/internal/domain"
)

// Observation is what the follow cache reports for one channel.
type Observation struct {
	Live      bool
	StartedAt *time.Time
}

// Observe reads the observation for a follow entry.
func Observe(e domain.FollowEntry) Observation {
	return Observation{Live: e.IsLive, StartedAt: e.StartedAt}
}

// Transition computes a channel's next record from its previous one (nil when
// untracked) and the current observation. next is nil when the channel should
// not be tracked. fresh reports a new broadcast: either there was no record,
// or the start time differs from the one on record. A channel that drops
// offline keeps its start time so the same broadcast reappearing is not new.
func Transition(prev *domain.LiveRecord, obs Observation) (next *domain.LiveRecord, fresh bool) {
	if !obs.Live {
		if prev == nil {
			return nil, false
		}
		return &domain.LiveRecord{IsLive: false, StartedAt: prev.StartedAt}, false
	}

	next = &domain.LiveRecord{IsLive: true, StartedAt: obs.StartedAt}
	if prev == nil {
		return next, true
	}
	return next, !sameInstant(prev.StartedAt, obs.StartedAt)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// withinMaxAge reports whether a broadcast started recently enough to notify
// about. An unknown start time counts as recent.
func withinMaxAge(startedAt *time.Time, now time.Time, maxAge time.Duration) bool {
	if startedAt == nil {
		return true
	}
	return now.Sub(*startedAt) <= maxAge
}
