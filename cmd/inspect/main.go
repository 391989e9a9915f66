// Command inspect prints what the daemon has persisted in both storage scopes.
// Run it while the daemon is stopped: Badger holds an exclusive lock.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/starwatchapp/starwatch/internal/store"
	"github.com/starwatchapp/starwatch/internal/store/sqlite"
)

func main() {
	dataPath := flag.String("data-path", os.ExpandEnv("$HOME/.starwatch"), "Base path for local and sync storage")
	flag.Parse()

	fmt.Println("=== Local scope ===")
	inspectLocal(filepath.Join(*dataPath, "local"))

	fmt.Println()
	fmt.Println("=== Sync scope ===")
	inspectSync(filepath.Join(*dataPath, "sync"))
}

func inspectLocal(dir string) {
	opts := badger.DefaultOptions(dir).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open local storage: %v", err)
	}
	defer db.Close()

	values := make(map[string][]byte)
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				log.Printf("Error reading %s: %v", item.Key(), err)
				continue
			}
			values[string(item.KeyCopy(nil))] = val
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating local storage: %v", err)
	}

	printSizes(values)

	if raw, ok := values[store.KeyCredentials]; ok {
		fmt.Printf("Credentials: sealed (%d bytes)\n", len(raw))
	} else {
		fmt.Println("Credentials: signed out")
	}

	var cache domain.FollowCache
	if decode(values, store.KeyFollowCache, &cache) {
		live := 0
		for _, e := range cache.Items {
			if e.IsLive {
				live++
			}
		}
		fmt.Printf("Follow cache: %d channels, %d live, fetched %s\n",
			len(cache.Items), live, cache.FetchedAt.Format("2006-01-02 15:04:05"))
	}

	var state domain.LiveState
	if decode(values, store.KeyLiveState, &state) {
		fmt.Printf("Live state: %d starred tracked, %d live\n", len(state), state.LiveCount())
	}

	var entries []domain.UpdateLogEntry
	if decode(values, store.KeyUpdateLog, &entries) {
		fmt.Printf("Update log: %d entries\n", len(entries))
		for i, e := range entries {
			if i >= 5 {
				fmt.Printf("    ... and %d more\n", len(entries)-5)
				break
			}
			status := "ok"
			switch {
			case e.Skipped != "":
				status = "skipped: " + string(e.Skipped)
			case !e.Success:
				status = "failed: " + e.Error
			}
			fmt.Printf("    [%s] %-14s live=%d notified=%d %s\n",
				e.Timestamp.Format("15:04:05"), e.Trigger, e.LiveCount, e.Notified, status)
		}
	}
}

func inspectSync(dir string) {
	db, err := sqlite.Open(dir, 0, nil, nil)
	if err != nil {
		log.Fatalf("Failed to open sync storage: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	used, err := db.BytesInUse(ctx)
	if err != nil {
		log.Fatalf("Failed to measure sync storage: %v", err)
	}
	fmt.Printf("Bytes in use: %d\n", used)

	doc, found, err := store.Load[*domain.TagDocument](ctx, db, store.KeyTagDocument)
	switch {
	case err != nil:
		log.Printf("Error reading tag document: %v", err)
	case !found:
		fmt.Println("Tag document: not written yet")
	default:
		fmt.Printf("Tag document: %d tags, %d tagged channels, next id %d\n",
			len(doc.Tags), len(doc.Assignments), doc.NextID)
		for _, tag := range doc.SortedTags() {
			count := 0
			for entityID := range doc.Assignments {
				if doc.HasTag(entityID, tag.ID) {
					count++
				}
			}
			fmt.Printf("    %-3s %-24s %s  %d channels\n", tag.ID, tag.Name, tag.Color, count)
		}
	}

	prefs, found, err := store.Load[domain.Preferences](ctx, db, store.KeyPreferences)
	switch {
	case err != nil:
		log.Printf("Error reading preferences: %v", err)
	case found:
		fmt.Printf("Preferences: %+v\n", prefs)
	}
}

func printSizes(values map[string][]byte) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %8d bytes\n", k, len(values[k]))
	}
}

func decode(values map[string][]byte, key string, dest any) bool {
	raw, ok := values[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Printf("Error decoding %s: %v", key, err)
		return false
	}
	return true
}
