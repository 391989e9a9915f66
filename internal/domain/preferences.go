package domain

// Sort modes for the follow list.
const (
	SortByName     = "name"
	SortByLive     = "live"
	SortByFollowed = "followed"
)

// Bounds for the notification age window, in minutes.
const (
	MinNotificationMaxAge     = 5
	MaxNotificationMaxAge     = 720
	DefaultNotificationMaxAge = 30
)

// Preferences are user settings stored in the sync scope.
type Preferences struct {
	NotificationsEnabled      bool   `json:"notificationsEnabled"`
	NotificationMaxAgeMinutes int    `json:"notificationMaxAgeMinutes"`
	BadgeEnabled              bool   `json:"badgeEnabled"`
	ShowOfflineStarred        bool   `json:"showOfflineStarred"`
	SortMode                  string `json:"sortMode"`
}

// DefaultPreferences returns the settings a fresh install starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		NotificationsEnabled:      true,
		NotificationMaxAgeMinutes: DefaultNotificationMaxAge,
		BadgeEnabled:              true,
		ShowOfflineStarred:        false,
		SortMode:                  SortByLive,
	}
}

// Clamped returns p with out-of-range values pulled back into bounds.
func (p Preferences) Clamped() Preferences {
	switch {
	case p.NotificationMaxAgeMinutes == 0:
		p.NotificationMaxAgeMinutes = DefaultNotificationMaxAge
	case p.NotificationMaxAgeMinutes < MinNotificationMaxAge:
		p.NotificationMaxAgeMinutes = MinNotificationMaxAge
	case p.NotificationMaxAgeMinutes > MaxNotificationMaxAge:
		p.NotificationMaxAgeMinutes = MaxNotificationMaxAge
	}
	switch p.SortMode {
	case SortByName, SortByLive, SortByFollowed:
	default:
		p.SortMode = SortByLive
	}
	return p
}
