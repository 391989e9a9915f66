package tagdoc

import (
	"testing"

	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"  Music  ":                        "Music",
		"<b>Late</b>   Night":              "Late Night",
		"Tom &amp; Jerry":                  "Tom & Jerry",
		"a<script>alert(1)</script>b":      "ab",
		"line\nbreak\ttab":                 "line break tab",
		"Cafe\u0301":                    "Caf\u00e9",
		"<img src=x onerror=alert(1)>":     "",
		"<style>p{color:red}</style>Games": "Games",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestIsReservedName(t *testing.T) {
	for _, name := range []string{"⭐ Starred", "⭐️ starred", "STARRED", " starred ", "Favorite", "<i>favourite</i>", "⭐"} {
		assert.True(t, IsReservedName(name), name)
	}
	for _, name := range []string{"Stars", "My favorites", "Music"} {
		assert.False(t, IsReservedName(name), name)
	}
}

func TestCheckName(t *testing.T) {
	doc := domain.NewTagDocument(t0)
	doc.Tags["1"] = &domain.Tag{ID: "1", Name: "Music", SortOrder: 1}

	_, err := checkName(doc, "   ", "", 50)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	_, err = checkName(doc, "music", "", 50)
	assert.ErrorContains(t, err, "already exists")

	name, err := checkName(doc, "MUSIC", "1", 50)
	assert.NoError(t, err, "renaming a tag to a new case of its own name")
	assert.Equal(t, "MUSIC", name)

	_, err = checkName(doc, "Starred", "", 50)
	assert.ErrorContains(t, err, "reserved")

	_, err = checkName(doc, "ééééé", "", 4)
	assert.ErrorContains(t, err, "4 characters")
}
