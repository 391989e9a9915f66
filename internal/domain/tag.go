package domain

import (
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/starwatchapp/starwatch/internal/color"
)

// Reserved starred tag. Its id is stable across installs so exports and other
// devices agree on it.
const (
	StarredTagID   = "favorite"
	StarredTagName = "⭐ Starred"
)

// Tag is a user-defined label that can be assigned to followed channels.
type Tag struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Locked    bool       `json:"locked,omitempty"`
	SortOrder int        `json:"sortOrder"`
}

// IsStarred reports whether t is the reserved starred tag.
func (t *Tag) IsStarred() bool {
	return t.ID == StarredTagID
}

// NumericID returns the counter value behind a user-created tag id.
func (t *Tag) NumericID() (int, bool) {
	n, err := strconv.Atoi(t.ID)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Touch stamps UpdatedAt.
func (t *Tag) Touch(now time.Time) {
	t.UpdatedAt = &now
}

// TagDocument is the canonical tags + assignments record. It is persisted as a
// single value in the sync scope.
type TagDocument struct {
	Tags        map[string]*Tag     `json:"tags"`
	Assignments map[string][]string `json:"assignments"`
	NextID      int                 `json:"nextId"`
}

// NewStarredTag builds the reserved starred tag.
func NewStarredTag(now time.Time) *Tag {
	return &Tag{
		ID:        StarredTagID,
		Name:      StarredTagName,
		Color:     color.Starred,
		CreatedAt: now,
		Locked:    true,
		SortOrder: 0,
	}
}

// NewTagDocument returns the default document: only the starred tag.
func NewTagDocument(now time.Time) *TagDocument {
	return &TagDocument{
		Tags:        map[string]*Tag{StarredTagID: NewStarredTag(now)},
		Assignments: map[string][]string{},
		NextID:      1,
	}
}

// Clone returns a deep copy.
func (d *TagDocument) Clone() *TagDocument {
	if d == nil {
		return nil
	}
	out := &TagDocument{
		Tags:        make(map[string]*Tag, len(d.Tags)),
		Assignments: make(map[string][]string, len(d.Assignments)),
		NextID:      d.NextID,
	}
	for id, t := range d.Tags {
		if t == nil {
			continue
		}
		cp := *t
		if t.UpdatedAt != nil {
			u := *t.UpdatedAt
			cp.UpdatedAt = &u
		}
		out.Tags[id] = &cp
	}
	for entity, ids := range d.Assignments {
		out.Assignments[entity] = slices.Clone(ids)
	}
	return out
}

// SortedTags returns the tags ordered by SortOrder, starred first.
func (d *TagDocument) SortedTags() []*Tag {
	out := make([]*Tag, 0, len(d.Tags))
	for _, t := range d.Tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TagByName finds a tag by exact, case-sensitive name.
func (d *TagDocument) TagByName(name string) (*Tag, bool) {
	for _, t := range d.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// TagsFor returns the tag ids assigned to entityID.
func (d *TagDocument) TagsFor(entityID string) []string {
	return slices.Clone(d.Assignments[entityID])
}

// HasTag reports whether entityID carries tagID.
func (d *TagDocument) HasTag(entityID, tagID string) bool {
	return slices.Contains(d.Assignments[entityID], tagID)
}

// IsStarred reports whether entityID carries the starred tag.
func (d *TagDocument) IsStarred(entityID string) bool {
	return d.HasTag(entityID, StarredTagID)
}

// StarredIDs returns the set of starred entity ids.
func (d *TagDocument) StarredIDs() map[string]struct{} {
	out := make(map[string]struct{})
	for entity, ids := range d.Assignments {
		if slices.Contains(ids, StarredTagID) {
			out[entity] = struct{}{}
		}
	}
	return out
}
