package sqlite

import (
	"context"

	"github.com/starwatchapp/starwatch/internal/watcher"
)

// EventSource is the slice of watcher.Watcher the mirror needs.
type EventSource interface {
	Events() <-chan watcher.Event
}

// FollowMirror reconciles the store every time the database file settles after
// an external write. It blocks until ctx is done or the source closes.
func (s *Store) FollowMirror(ctx context.Context, src EventSource) {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != watcher.EventModified {
				continue
			}
			if _, err := s.Reconcile(ctx); err != nil && s.logger != nil {
				s.logger.Warn("sync reconcile failed", "path", ev.Path, "error", err)
			}
		}
	}
}

// MirrorPatterns are the files inside the sync directory worth watching.
var MirrorPatterns = []string{FileName, FileName + "-wal"}
