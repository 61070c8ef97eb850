// Package localcache keeps document state, dirty flags and client-side
// snapshots on disk so that editing and snapshotting keep working while
// the sync channel is down.
package localcache

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const (
	snapshotPrefix = "snapshot:"
	unsyncedPrefix = "unsynced:"
	docStatePrefix = "docstate:"
	dirtyPrefix    = "dirty:"
)

// Cache is a badger-backed local store. A single Cache serves every
// project of the process; entries are namespaced by project key.
type Cache struct {
	db *badger.DB

	mu      sync.Mutex
	pending bool
	subs    map[int]func(bool)
	nextSub int
}

// Open opens (or creates) the cache at path.
func Open(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	c := &Cache{
		db:   db,
		subs: make(map[int]func(bool)),
	}
	c.recomputePending()
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// HasPendingSync reports whether any dirty document or unsynced snapshot
// is waiting for the server.
func (c *Cache) HasPendingSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// SubscribePending registers an observer for pending-sync transitions.
// The returned function removes it.
func (c *Cache) SubscribePending(fn func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// recomputePending rescans the pending markers. It runs after every
// mutation, including failed ones, so the flag never drifts from disk.
func (c *Cache) recomputePending() {
	pending := false
	err := c.db.View(func(txn *badger.Txn) error {
		for _, prefix := range []string{dirtyPrefix, unsyncedPrefix} {
			if hasKeyWithPrefix(txn, []byte(prefix)) {
				pending = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		logrus.Errorf("failed to recompute pending sync state: %v", err)
		return
	}

	c.mu.Lock()
	if c.pending == pending {
		c.mu.Unlock()
		return
	}
	c.pending = pending
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(pending)
	}
}

func hasKeyWithPrefix(txn *badger.Txn, prefix []byte) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	return it.ValidForPrefix(prefix)
}

// ComposeSnapshotID builds the client snapshot id `projectKey:documentID:snapshotID`.
func ComposeSnapshotID(projectKey, documentID, snapshotID string) string {
	return projectKey + ":" + documentID + ":" + snapshotID
}

// SplitSnapshotID splits a composite snapshot id back into its parts.
// The project key carries no colon and the snapshot id is a uuid, so the
// first and last colon of the composite are unambiguous delimiters.
func SplitSnapshotID(id string) (projectKey, documentID, snapshotID string, err error) {
	first := strings.Index(id, ":")
	last := strings.LastIndex(id, ":")
	if first < 0 || first == last {
		return "", "", "", fmt.Errorf("invalid snapshot id %q", id)
	}

	projectKey = id[:first]
	documentID = id[first+1 : last]
	snapshotID = id[last+1:]
	if projectKey == "" || documentID == "" || snapshotID == "" {
		return "", "", "", fmt.Errorf("invalid snapshot id %q", id)
	}
	return projectKey, documentID, snapshotID, nil
}
