package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTagDocument_OnlyStarred(t *testing.T) {
	doc := NewTagDocument(time.Now())

	require.Len(t, doc.Tags, 1)
	starred := doc.Tags[StarredTagID]
	require.NotNil(t, starred)
	assert.True(t, starred.Locked)
	assert.True(t, starred.IsStarred())
	assert.Equal(t, 0, starred.SortOrder)
	assert.Equal(t, 1, doc.NextID)
	assert.Empty(t, doc.Assignments)
}

func TestTagDocument_CloneIsDeep(t *testing.T) {
	now := time.Now()
	doc := NewTagDocument(now)
	doc.Tags["1"] = &Tag{ID: "1", Name: "Music", SortOrder: 1}
	doc.Assignments["123"] = []string{StarredTagID, "1"}

	cp := doc.Clone()
	cp.Tags["1"].Name = "Changed"
	cp.Assignments["123"][0] = "x"
	cp.Tags[StarredTagID].Touch(now)

	assert.Equal(t, "Music", doc.Tags["1"].Name)
	assert.Equal(t, StarredTagID, doc.Assignments["123"][0])
	assert.Nil(t, doc.Tags[StarredTagID].UpdatedAt)
}

func TestTagDocument_Lookups(t *testing.T) {
	doc := NewTagDocument(time.Now())
	doc.Tags["2"] = &Tag{ID: "2", Name: "Music", SortOrder: 2}
	doc.Tags["1"] = &Tag{ID: "1", Name: "Chill", SortOrder: 1}
	doc.Assignments["123"] = []string{StarredTagID, "2"}
	doc.Assignments["456"] = []string{"1"}

	sorted := doc.SortedTags()
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{StarredTagID, "1", "2"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})

	tag, ok := doc.TagByName("Music")
	require.True(t, ok)
	assert.Equal(t, "2", tag.ID)
	_, ok = doc.TagByName("music")
	assert.False(t, ok)

	assert.True(t, doc.IsStarred("123"))
	assert.False(t, doc.IsStarred("456"))
	assert.Equal(t, map[string]struct{}{"123": {}}, doc.StarredIDs())
}

func TestTag_NumericID(t *testing.T) {
	n, ok := (&Tag{ID: "7"}).NumericID()
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = (&Tag{ID: StarredTagID}).NumericID()
	assert.False(t, ok)
	_, ok = (&Tag{ID: "0"}).NumericID()
	assert.False(t, ok)
}

func TestPreferences_Clamped(t *testing.T) {
	tests := []struct {
		name   string
		in     int
		want   int
		sort   string
		wantSo string
	}{
		{"zero uses default", 0, 30, "", SortByLive},
		{"below minimum", 1, 5, "name", SortByName},
		{"above maximum", 5000, 720, "followed", SortByFollowed},
		{"in range", 60, 60, "bogus", SortByLive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Preferences{NotificationMaxAgeMinutes: tt.in, SortMode: tt.sort}.Clamped()
			assert.Equal(t, tt.want, p.NotificationMaxAgeMinutes)
			assert.Equal(t, tt.wantSo, p.SortMode)
		})
	}
}

func TestFollowCache_Freshness(t *testing.T) {
	now := time.Now()
	cache := &FollowCache{FetchedAt: now.Add(-6 * time.Minute)}

	assert.False(t, cache.IsFresh(now, 5*time.Minute))
	assert.True(t, cache.IsFresh(now, 10*time.Minute))

	var missing *FollowCache
	assert.False(t, missing.IsFresh(now, time.Hour))
	_, ok := missing.Find("1")
	assert.False(t, ok)
}

func TestLiveState_LiveCount(t *testing.T) {
	s := LiveState{
		"1": {IsLive: true},
		"2": {IsLive: false},
		"3": {IsLive: true},
	}
	assert.Equal(t, 2, s.LiveCount())
}
