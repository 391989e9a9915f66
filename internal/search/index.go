package search

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/starwatchapp/starwatch/internal/domain"
)

// FollowIndex wraps an in-memory Bleve index over the follow cache.
//
// The follow cache is rebuilt wholesale on every refresh, so the index is
// too: Rebuild builds a fresh index off to the side and swaps it in, and
// readers never see a half-filled index.
type FollowIndex struct {
	index  bleve.Index
	logger *slog.Logger
	mu     sync.RWMutex // Protects the index pointer during swaps
}

// NewFollowIndex creates an empty index.
func NewFollowIndex(logger *slog.Logger) (*FollowIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &FollowIndex{index: index, logger: logger}, nil
}

// Rebuild replaces the indexed channels with entries, tagged per doc.
func (f *FollowIndex) Rebuild(entries []domain.FollowEntry, doc *domain.TagDocument) error {
	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	const batchSize = 500

	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))

		batch := fresh.NewBatch()
		for _, e := range entries[i:end] {
			d := FollowToDocument(e, doc)
			if err := batch.Index(d.ID, d.ToMap()); err != nil {
				_ = fresh.Close()
				return fmt.Errorf("batch index %s: %w", d.ID, err)
			}
		}
		if err := fresh.Batch(batch); err != nil {
			_ = fresh.Close()
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	f.mu.Lock()
	old := f.index
	f.index = fresh
	f.mu.Unlock()

	if err := old.Close(); err != nil {
		f.logger.Warn("failed to close previous follow index", slog.String("error", err.Error()))
	}
	f.logger.Debug("follow index rebuilt", slog.Int("documents", len(entries)))
	return nil
}

// DocumentCount returns the number of indexed channels.
func (f *FollowIndex) DocumentCount() (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.index.DocCount()
}

// Close releases the index.
func (f *FollowIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Close()
}

// Shutdown closes the index; it lets the container tear it down.
func (f *FollowIndex) Shutdown() error {
	return f.Close()
}
