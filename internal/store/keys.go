package store

// Local scope keys.
const (
	KeyCredentials = "auth.credentials"
	KeyFollowCache = "follow.cache"
	KeyLastSeen    = "follow.lastSeen"
	KeyLiveState   = "live.state"
	KeyUpdateLog   = "live.updateLog"
	KeyLiveAlarm   = "live.alarm"
	KeyUISnapshot  = "ui.snapshot"
	KeyBadge       = "ui.badge"
)

// Sync scope keys.
const (
	KeyTagDocument = "tags.document"
	KeyPreferences = "preferences"
)
