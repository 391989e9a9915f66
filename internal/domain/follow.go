package domain

import "time"

// FollowEntry is one followed channel, joined from the follow list, the user
// profile, and the live stream (if any).
type FollowEntry struct {
	ID           string     `json:"id"`
	Login        string     `json:"login"`
	DisplayName  string     `json:"displayName"`
	Title        string     `json:"title"`
	GameName     string     `json:"gameName"`
	IsLive       bool       `json:"isLive"`
	StartedAt    *time.Time `json:"startedAt"`
	FollowDate   time.Time  `json:"followDate"`
	AvatarURL    string     `json:"avatarUrl"`
	ViewerCount  *int       `json:"viewerCount"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	LastSeenLive *time.Time `json:"lastSeenLive"`
	LastUpdated  time.Time  `json:"lastUpdated"`
}

// FollowCache is the TTL-bounded snapshot of followed channels.
type FollowCache struct {
	FetchedAt time.Time     `json:"fetchedAt"`
	Items     []FollowEntry `json:"items"`
}

// Age returns how old the snapshot is at now.
func (c *FollowCache) Age(now time.Time) time.Duration {
	return now.Sub(c.FetchedAt)
}

// IsFresh reports whether the snapshot is younger than ttl.
func (c *FollowCache) IsFresh(now time.Time, ttl time.Duration) bool {
	return c != nil && !c.FetchedAt.IsZero() && c.Age(now) < ttl
}

// Find returns the entry with the given id.
func (c *FollowCache) Find(id string) (FollowEntry, bool) {
	if c == nil {
		return FollowEntry{}, false
	}
	for _, e := range c.Items {
		if e.ID == id {
			return e, true
		}
	}
	return FollowEntry{}, false
}

// FindByLogin returns the entry with the given login.
func (c *FollowCache) FindByLogin(login string) (FollowEntry, bool) {
	if c == nil {
		return FollowEntry{}, false
	}
	for _, e := range c.Items {
		if e.Login == login {
			return e, true
		}
	}
	return FollowEntry{}, false
}

// LastSeen maps entity id to the last time it was observed live.
type LastSeen map[string]time.Time
