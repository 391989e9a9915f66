// Package tagdoc owns the tag document: the reserved starred tag, user tags,
// and which followed channels carry which tags. Every mutation runs through a
// bounded serial queue so concurrent callers never overwrite each other.
package tagdoc

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/starwatchapp/starwatch/internal/color"
	"github.com/starwatchapp/starwatch/internal/domain"
)

// Normalize returns a repaired copy of doc:
//   - the starred tag exists, is locked, keeps its name and color, and sorts at 0
//   - nextId is greater than every numeric tag id
//   - other tags have dense sort orders 1..N, keeping their relative order
//   - assignments reference only existing tags, without duplicates or empty entries
//
// Normalize is idempotent. A nil doc yields the default document.
func Normalize(doc *domain.TagDocument, now time.Time) *domain.TagDocument {
	if doc == nil {
		return domain.NewTagDocument(now)
	}
	out := doc.Clone()
	if out.Tags == nil {
		out.Tags = map[string]*domain.Tag{}
	}
	if out.Assignments == nil {
		out.Assignments = map[string][]string{}
	}

	repairStarred(out, now)
	repairTags(out)
	repairNextID(out)
	repairSortOrder(out)
	cleanAssignments(out)
	return out
}

func repairStarred(doc *domain.TagDocument, now time.Time) {
	starred, ok := doc.Tags[domain.StarredTagID]
	if !ok || starred == nil {
		doc.Tags[domain.StarredTagID] = domain.NewStarredTag(now)
		return
	}
	starred.ID = domain.StarredTagID
	starred.Name = domain.StarredTagName
	starred.Color = color.Starred
	starred.Locked = true
	starred.SortOrder = 0
	if starred.CreatedAt.IsZero() {
		starred.CreatedAt = now
	}
}

func repairTags(doc *domain.TagDocument) {
	for key, t := range doc.Tags {
		if t == nil {
			delete(doc.Tags, key)
			continue
		}
		if key == domain.StarredTagID {
			continue
		}
		t.ID = key
		t.Locked = false
		if _, err := color.ParseHex(t.Color); err != nil {
			n, _ := t.NumericID()
			t.Color = color.ForTag(n)
		}
	}
}

func repairNextID(doc *domain.TagDocument) {
	highest := 0
	for _, t := range doc.Tags {
		if n, ok := t.NumericID(); ok && n > highest {
			highest = n
		}
	}
	doc.NextID = max(doc.NextID, highest+1, 1)
}

func repairSortOrder(doc *domain.TagDocument) {
	custom := make([]*domain.Tag, 0, len(doc.Tags))
	for _, t := range doc.Tags {
		if !t.IsStarred() {
			custom = append(custom, t)
		}
	}
	sort.SliceStable(custom, func(i, j int) bool {
		return lessTag(custom[i], custom[j])
	})
	for i, t := range custom {
		t.SortOrder = i + 1
	}
}

// lessTag orders by sort position, then creation counter, then id. Tags
// without a valid position go last.
func lessTag(a, b *domain.Tag) bool {
	ap, bp := position(a.SortOrder), position(b.SortOrder)
	if ap != bp {
		return ap < bp
	}
	an, aok := a.NumericID()
	bn, bok := b.NumericID()
	switch {
	case aok && bok && an != bn:
		return an < bn
	case aok != bok:
		return aok
	}
	return a.ID < b.ID
}

func position(order int) int {
	if order < 1 {
		return math.MaxInt
	}
	return order
}

func cleanAssignments(doc *domain.TagDocument) {
	for entity, ids := range doc.Assignments {
		kept := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := doc.Tags[id]; ok && !slices.Contains(kept, id) {
				kept = append(kept, id)
			}
		}
		if entity == "" || len(kept) == 0 {
			delete(doc.Assignments, entity)
			continue
		}
		doc.Assignments[entity] = kept
	}
}
