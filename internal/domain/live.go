package domain

import "time"

// LiveRecord is the persisted projection for one starred channel.
// A record with IsLive=false keeps the startedAt of the broadcast that ended,
// so a reappearance of that same broadcast is not mistaken for a new one.
type LiveRecord struct {
	IsLive    bool       `json:"isLive"`
	StartedAt *time.Time `json:"startedAt"`
}

// LiveState maps starred entity ids to their live record.
type LiveState map[string]LiveRecord

// LiveCount counts entries currently live.
func (s LiveState) LiveCount() int {
	n := 0
	for _, r := range s {
		if r.IsLive {
			n++
		}
	}
	return n
}

// Trigger names what started a live check.
type Trigger string

// Live check triggers.
const (
	TriggerAlarm          Trigger = "alarm"
	TriggerManual         Trigger = "manual"
	TriggerFallback       Trigger = "fallback"
	TriggerInitialization Trigger = "initialization"
)

// SkipReason explains a live check that did no work.
type SkipReason string

// Skip reasons.
const (
	SkipNoAuth  SkipReason = "no_auth"
	SkipNoCache SkipReason = "no_cache"
)

// UpdateLogEntry is one audit record of a live check.
type UpdateLogEntry struct {
	ID           string     `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	Trigger      Trigger    `json:"trigger"`
	LiveCount    int        `json:"liveCount"`
	StarredCount int        `json:"starredCount"`
	Notified     int        `json:"notified"`
	CacheAgeMs   *int64     `json:"cacheAge"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
	Skipped      SkipReason `json:"skipped,omitempty"`
	DurationMs   int64      `json:"duration"`
}
