// Package search provides in-memory full-text search over followed channels
// using Bleve, so surfaces can filter a large follow list by name, title,
// category or tag.
package search

import (
	"github.com/starwatchapp/starwatch/internal/domain"
)

// FollowDocument is one followed channel as indexed.
//
// Tag names are denormalized into the document so a single query can match
// "music" against a channel tagged Music as well as one playing music.
type FollowDocument struct {
	ID          string   `json:"id"`
	Login       string   `json:"login"`
	DisplayName string   `json:"display_name"`
	Title       string   `json:"title,omitempty"`
	Game        string   `json:"game,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsLive      bool     `json:"is_live"`
	Viewers     int      `json:"viewers,omitempty"`
	FollowedAt  int64    `json:"followed_at"` // Unix millis
}

// ToMap converts the document to a map keyed by the mapping's field names.
func (d *FollowDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":           d.ID,
		"login":        d.Login,
		"display_name": d.DisplayName,
		"is_live":      d.IsLive,
		"followed_at":  d.FollowedAt,
	}

	if d.Title != "" {
		m["title"] = d.Title
	}
	if d.Game != "" {
		m["game"] = d.Game
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if d.Viewers > 0 {
		m["viewers"] = d.Viewers
	}

	return m
}

// FollowToDocument converts a cache entry, resolving its tag ids to names
// through doc. A nil doc indexes no tags.
func FollowToDocument(e domain.FollowEntry, doc *domain.TagDocument) *FollowDocument {
	d := &FollowDocument{
		ID:          e.ID,
		Login:       e.Login,
		DisplayName: e.DisplayName,
		Title:       e.Title,
		Game:        e.GameName,
		IsLive:      e.IsLive,
		FollowedAt:  e.FollowDate.UnixMilli(),
	}
	if e.ViewerCount != nil {
		d.Viewers = *e.ViewerCount
	}
	if doc != nil {
		for _, id := range doc.TagsFor(e.ID) {
			if tag, ok := doc.Tags[id]; ok {
				d.Tags = append(d.Tags, tag.Name)
			}
		}
	}
	return d
}
