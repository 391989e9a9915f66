package domain

import "time"

// AuthStatus is what surfaces see of the signed-in account. Nil means signed out.
type AuthStatus struct {
	UserID      string    `json:"userId"`
	Login       string    `json:"login"`
	DisplayName string    `json:"displayName"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Scopes      []string  `json:"scopes"`
}

// DashboardPayload is the single snapshot handed to UI surfaces.
type DashboardPayload struct {
	Auth        *AuthStatus   `json:"auth"`
	Follows     []FollowEntry `json:"follows"`
	FetchedAt   *time.Time    `json:"fetchedAt"`
	TagState    *TagDocument  `json:"tagState"`
	Preferences Preferences   `json:"preferences"`
}
