package tagdoc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/starwatchapp/starwatch/internal/color"
	"github.com/starwatchapp/starwatch/internal/domain"
	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/sse"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	count int
}

func (r *recorder) Broadcast(sse.EventType, any) {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func newTestService(t *testing.T, quota int64) (*Service, store.Scope) {
	t.Helper()
	scope, err := store.OpenLocalInMemory(store.NewHub(logger.Discard()), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close() })

	guard := store.NewQuotaGuard(scope, quota, 0.8, 0.95, logger.Discard())
	svc := NewService(scope, guard, validation.New(), &recorder{}, Options{QueueCapacity: 50}, logger.Discard())
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc, scope
}

func str(s string) *string { return &s }

func TestService_CreateTagScenario(t *testing.T) {
	svc, _ := newTestService(t, 102400)
	ctx := context.Background()

	doc, err := svc.UpsertTag(ctx, TagFields{Name: str("Music")}, "")
	require.NoError(t, err)

	tag, ok := doc.TagByName("Music")
	require.True(t, ok)
	assert.Equal(t, "1", tag.ID)
	assert.Equal(t, color.ForTag(1), tag.Color)
	assert.Equal(t, 1, tag.SortOrder)
	assert.Equal(t, 2, doc.NextID)

	_, ok = doc.TagByName("music")
	assert.False(t, ok, "lookup is case-sensitive")

	stored, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc, stored)
}

func TestService_UpsertValidation(t *testing.T) {
	svc, scope := newTestService(t, 102400)
	ctx := context.Background()

	_, err := svc.UpsertTag(ctx, TagFields{Name: str("Music")}, "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields TagFields
		id     string
		want   string
	}{
		{"missing name", TagFields{}, "", "cannot be empty"},
		{"markup only", TagFields{Name: str("<b></b>")}, "", "cannot be empty"},
		{"too long", TagFields{Name: str(strings.Repeat("x", 51))}, "", "50 characters"},
		{"duplicate", TagFields{Name: str("MUSIC")}, "", "already exists"},
		{"reserved", TagFields{Name: str("⭐ Starred")}, "", "reserved"},
		{"bad color", TagFields{Name: str("Art"), Color: str("#12345")}, "", "Invalid color"},
		{"unknown id", TagFields{Name: str("Art")}, "99", "Unknown tag"},
		{"starred", TagFields{Color: str("#000000")}, domain.StarredTagID, "cannot be changed"},
	}

	before, err := scope.BytesInUse(ctx)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertTag(ctx, tt.fields, tt.id)
			require.Error(t, err)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	after, err := scope.BytesInUse(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed operations persist nothing")
}

func TestService_UpdateTag(t *testing.T) {
	svc, _ := newTestService(t, 102400)
	ctx := context.Background()

	_, err := svc.UpsertTag(ctx, TagFields{Name: str("Music"), Color: str("1e90ff")}, "")
	require.NoError(t, err)

	doc, err := svc.UpsertTag(ctx, TagFields{Name: str("Tunes")}, "1")
	require.NoError(t, err)

	tag := doc.Tags["1"]
	assert.Equal(t, "Tunes", tag.Name)
	assert.Equal(t, "#1E90FF", tag.Color)
	assert.NotNil(t, tag.UpdatedAt)
}

func TestService_RemoveTagStripsAssignments(t *testing.T) {
	svc, _ := newTestService(t, 102400)
	ctx := context.Background()

	_, err := svc.UpsertTag(ctx, TagFields{Name: str("Music")}, "")
	require.NoError(t, err)
	_, err = svc.UpdateAssignment(ctx, "123", "1", true)
	require.NoError(t, err)
	_, err = svc.UpdateAssignment(ctx, "456", "1", true)
	require.NoError(t, err)
	_, err = svc.UpdateAssignment(ctx, "456", domain.StarredTagID, true)
	require.NoError(t, err)

	doc, err := svc.RemoveTag(ctx, "1")
	require.NoError(t, err)

	assert.NotContains(t, doc.Tags, "1")
	assert.NotContains(t, doc.Assignments, "123", "empty entries are removed")
	assert.Equal(t, []string{domain.StarredTagID}, doc.TagsFor("456"))

	_, err = svc.RemoveTag(ctx, domain.StarredTagID)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	// Ids are never reused.
	doc, err = svc.UpsertTag(ctx, TagFields{Name: str("Again")}, "")
	require.NoError(t, err)
	tag, _ := doc.TagByName("Again")
	assert.Equal(t, "2", tag.ID)
}

func TestService_Assignments(t *testing.T) {
	svc, _ := newTestService(t, 102400)
	ctx := context.Background()

	_, err := svc.UpdateAssignment(ctx, "123", "nope", true)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	_, err = svc.UpdateAssignment(ctx, "bad id!", domain.StarredTagID, true)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	doc, err := svc.UpdateAssignment(ctx, "123", domain.StarredTagID, true)
	require.NoError(t, err)
	assert.True(t, doc.IsStarred("123"))

	doc, err = svc.UpdateAssignment(ctx, "123", domain.StarredTagID, true)
	require.NoError(t, err)
	assert.Len(t, doc.TagsFor("123"), 1, "assigning twice is a no-op")

	doc, err = svc.ReplaceAssignments(ctx, "123", nil)
	require.NoError(t, err)
	assert.NotContains(t, doc.Assignments, "123")
}

func TestService_ReorderTags(t *testing.T) {
	svc, _ := newTestService(t, 102400)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C", "D"} {
		_, err := svc.UpsertTag(ctx, TagFields{Name: str(name)}, "")
		require.NoError(t, err)
	}

	doc, err := svc.ReorderTags(ctx, []string{"3", domain.StarredTagID, "missing", "1", "3"})
	require.NoError(t, err)

	var names []string
	for _, tag := range doc.SortedTags() {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{domain.StarredTagName, "C", "A", "B", "D"}, names)
	assert.Equal(t, 0, doc.Tags[domain.StarredTagID].SortOrder)
	assert.Equal(t, 4, doc.Tags["4"].SortOrder)
}

func TestService_Reset(t *testing.T) {
	svc, _ := newTestService(t, 102400)
	ctx := context.Background()

	_, err := svc.UpsertTag(ctx, TagFields{Name: str("Music")}, "")
	require.NoError(t, err)

	doc, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Tags, 1)
	assert.Empty(t, doc.Assignments)
	assert.Equal(t, 1, doc.NextID)
}

func TestService_QuotaBlocksWrite(t *testing.T) {
	svc, _ := newTestService(t, 250)
	ctx := context.Background()

	_, err := svc.UpsertTag(ctx, TagFields{Name: str("Music")}, "")
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrCapacity))
	assert.Contains(t, err.Error(), "Export your data")

	doc, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Tags, 1)
}

func TestService_HooksSeeChangedEntity(t *testing.T) {
	svc, _ := newTestService(t, 102400)
	ctx := context.Background()

	var got []string
	svc.OnChange(func(_ context.Context, doc *domain.TagDocument, entityID string) {
		if entityID != "" {
			got = append(got, fmt.Sprintf("%s:%t", entityID, doc.IsStarred(entityID)))
		}
	})

	_, err := svc.UpdateAssignment(ctx, "123", domain.StarredTagID, true)
	require.NoError(t, err)
	_, err = svc.UpdateAssignment(ctx, "123", domain.StarredTagID, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"123:true", "123:false"}, got)
}

// Concurrent mutations must never lose an update or break document invariants.
func TestService_ConcurrentMutationsKeepInvariants(t *testing.T) {
	svc, _ := newTestService(t, 1<<20)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpsertTag(ctx, TagFields{Name: str(fmt.Sprintf("Tag %d", i))}, "")
			assert.NoError(t, err)
		}()
	}
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ReorderTags(ctx, []string{fmt.Sprint(20 - i), fmt.Sprint(i + 1)})
			_, _ = svc.UpdateAssignment(ctx, fmt.Sprint(1000+i), domain.StarredTagID, true)
		}()
	}
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Duplicate names race; exactly one may win.
			_, _ = svc.UpsertTag(ctx, TagFields{Name: str("dup")}, "")
		}()
	}
	wg.Wait()

	doc, err := svc.Get(ctx)
	require.NoError(t, err)

	assert.Len(t, doc.Tags, 1+20+1)
	assert.Len(t, doc.StarredIDs(), 10, "no assignment was lost")

	starred := 0
	seenNames := map[string]bool{}
	orders := map[int]bool{}
	for _, tag := range doc.Tags {
		if tag.IsStarred() {
			starred++
			assert.Equal(t, 0, tag.SortOrder)
			continue
		}
		key := strings.ToLower(tag.Name)
		assert.False(t, seenNames[key], "duplicate name %q", tag.Name)
		seenNames[key] = true
		orders[tag.SortOrder] = true

		n, ok := tag.NumericID()
		require.True(t, ok)
		assert.Greater(t, doc.NextID, n)
	}
	assert.Equal(t, 1, starred)
	for pos := 1; pos <= len(doc.Tags)-1; pos++ {
		assert.True(t, orders[pos], "sort order %d missing", pos)
	}
}
