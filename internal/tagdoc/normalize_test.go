package tagdoc

import (
	"testing"
	"time"

	"github.com/starwatchapp/starwatch/internal/color"
	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func messyDocument() *domain.TagDocument {
	return &domain.TagDocument{
		Tags: map[string]*domain.Tag{
			domain.StarredTagID: {ID: domain.StarredTagID, Name: "renamed", Color: "#000000", SortOrder: 7},
			"3":                 {ID: "3", Name: "Chill", Color: "#112233", SortOrder: 2},
			"7":                 {ID: "wrong", Name: "Speedrun", Color: "not-a-color", SortOrder: 2},
			"5":                 {ID: "5", Name: "Art", Color: "#445566", SortOrder: 0},
			"9":                 nil,
		},
		Assignments: map[string][]string{
			"100": {"3", "3", "missing", domain.StarredTagID},
			"200": {"missing"},
			"300": {},
			"":    {"3"},
		},
		NextID: 2,
	}
}

func TestNormalize_RepairsEverything(t *testing.T) {
	doc := Normalize(messyDocument(), t0)

	starred := doc.Tags[domain.StarredTagID]
	require.NotNil(t, starred)
	assert.Equal(t, domain.StarredTagName, starred.Name)
	assert.Equal(t, color.Starred, starred.Color)
	assert.True(t, starred.Locked)
	assert.Equal(t, 0, starred.SortOrder)

	assert.Len(t, doc.Tags, 4, "nil tag dropped")
	assert.Equal(t, "7", doc.Tags["7"].ID)
	assert.Equal(t, color.ForTag(7), doc.Tags["7"].Color)

	assert.Equal(t, 8, doc.NextID)

	// Equal sort orders break ties by numeric id; invalid orders go last.
	assert.Equal(t, 1, doc.Tags["3"].SortOrder)
	assert.Equal(t, 2, doc.Tags["7"].SortOrder)
	assert.Equal(t, 3, doc.Tags["5"].SortOrder)

	assert.Equal(t, map[string][]string{
		"100": {"3", domain.StarredTagID},
	}, doc.Assignments)
}

func TestNormalize_Idempotent(t *testing.T) {
	once := Normalize(messyDocument(), t0)
	twice := Normalize(once, t0.Add(time.Hour))

	assert.Equal(t, once, twice)
}

func TestNormalize_NilAndEmpty(t *testing.T) {
	doc := Normalize(nil, t0)
	assert.Equal(t, domain.NewTagDocument(t0), doc)

	doc = Normalize(&domain.TagDocument{}, t0)
	assert.Contains(t, doc.Tags, domain.StarredTagID)
	assert.NotNil(t, doc.Assignments)
	assert.Equal(t, 1, doc.NextID)
}

func TestNormalize_KeepsLargerCounter(t *testing.T) {
	doc := domain.NewTagDocument(t0)
	doc.NextID = 40
	doc.Tags["2"] = &domain.Tag{ID: "2", Name: "Music", Color: "#ABCDEF", SortOrder: 1}

	assert.Equal(t, 40, Normalize(doc, t0).NextID)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := messyDocument()
	_ = Normalize(in, t0)

	assert.Equal(t, "renamed", in.Tags[domain.StarredTagID].Name)
	assert.Len(t, in.Assignments["100"], 4)
}
