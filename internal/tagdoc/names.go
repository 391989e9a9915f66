package tagdoc

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
)

// Names users may not give their own tags because they read as the starred tag.
var reservedNames = []string{
	domain.StarredTagName,
	"⭐",
	"starred",
	"favorite",
	"favourite",
	domain.StarredTagID,
}

// SanitizeName strips markup, normalizes to NFC and collapses whitespace.
func SanitizeName(raw string) string {
	text := norm.NFC.String(stripMarkup(raw))
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// stripMarkup keeps only the text content of s, dropping tags, comments and
// anything inside script or style elements. Entities are decoded.
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			if isRawText(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawText(z) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawText(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	a := atom.Lookup(name)
	return a == atom.Script || a == atom.Style
}

// fold returns the caseless comparison key for a tag name.
func fold(name string) string {
	name = strings.ReplaceAll(name, "\uFE0F", "")
	return cases.Fold().String(strings.TrimSpace(name))
}

// IsReservedName reports whether name reads as the starred tag.
func IsReservedName(name string) bool {
	key := fold(SanitizeName(name))
	return slices.ContainsFunc(reservedNames, func(r string) bool {
		return fold(r) == key
	})
}

// checkName sanitizes and validates a user-chosen name against doc. excludeID
// is the tag being renamed, if any.
func checkName(doc *domain.TagDocument, raw, excludeID string, maxLen int) (string, error) {
	name := SanitizeName(raw)
	if name == "" {
		return "", domainerrors.Validation("Tag name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxLen {
		return "", domainerrors.Validationf("Tag name must be %d characters or fewer", maxLen)
	}
	if IsReservedName(name) {
		return "", domainerrors.Validationf("%q is reserved for the starred tag", name)
	}

	key := fold(name)
	for id, t := range doc.Tags {
		if id != excludeID && fold(t.Name) == key {
			return "", domainerrors.Validationf("A tag named %q already exists", t.Name)
		}
	}
	return name, nil
}

// FindByName looks a tag up the way duplicate names are detected: after
// sanitizing and case folding. Any reserved name resolves to the starred tag.
func FindByName(doc *domain.TagDocument, raw string) (*domain.Tag, bool) {
	name := SanitizeName(raw)
	if name == "" {
		return nil, false
	}
	if IsReservedName(name) {
		t, ok := doc.Tags[domain.StarredTagID]
		return t, ok
	}
	key := fold(name)
	for _, t := range doc.Tags {
		if fold(t.Name) == key {
			return t, true
		}
	}
	return nil, false
}
