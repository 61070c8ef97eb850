package localcache

import (
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrSnapshotNotFound is returned when a snapshot id resolves to nothing.
var ErrSnapshotNotFound = fmt.Errorf("snapshot not found")

// SnapshotRecord is a client-side snapshot. Content holds the captured
// fragment as JSON so a restore never depends on the server being up.
type SnapshotRecord struct {
	ID          string    `msgpack:"id"`
	DocumentID  string    `msgpack:"document_id"`
	ProjectKey  string    `msgpack:"project_key"`
	Name        string    `msgpack:"name"`
	Description string    `msgpack:"description"`
	Content     []byte    `msgpack:"content"`
	WordCount   int       `msgpack:"word_count"`
	Metadata    string    `msgpack:"metadata"`
	CreatedAt   time.Time `msgpack:"created_at"`
	Synced      bool      `msgpack:"synced"`
	ServerID    string    `msgpack:"server_id"`
}

// CompositeID returns the id clients address the snapshot by.
func (r *SnapshotRecord) CompositeID() string {
	return ComposeSnapshotID(r.ProjectKey, r.DocumentID, r.ID)
}

// SnapshotInfo is the listing projection, without the captured content.
type SnapshotInfo struct {
	ID          string
	CompositeID string
	DocumentID  string
	Name        string
	Description string
	WordCount   int
	CreatedAt   time.Time
	Synced      bool
}

func info(r *SnapshotRecord) *SnapshotInfo {
	return &SnapshotInfo{
		ID:          r.ID,
		CompositeID: r.CompositeID(),
		DocumentID:  r.DocumentID,
		Name:        r.Name,
		Description: r.Description,
		WordCount:   r.WordCount,
		CreatedAt:   r.CreatedAt,
		Synced:      r.Synced,
	}
}

func snapshotKey(projectKey, documentID, snapshotID string) []byte {
	return []byte(snapshotPrefix + ComposeSnapshotID(projectKey, documentID, snapshotID))
}

func unsyncedKey(compositeID string) []byte {
	return []byte(unsyncedPrefix + compositeID)
}

// CreateSnapshot stores a new snapshot. A missing id and created-at are
// filled in; the record starts unsynced.
func (c *Cache) CreateSnapshot(rec *SnapshotRecord) error {
	if rec.ProjectKey == "" || rec.DocumentID == "" {
		return fmt.Errorf("snapshot needs a project key and document id")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Synced = false
	rec.ServerID = ""

	err := c.writeSnapshot(rec, true)
	c.recomputePending()
	return err
}

// ImportSnapshot stores a snapshot produced elsewhere, keeping its id and
// sync state.
func (c *Cache) ImportSnapshot(rec *SnapshotRecord) error {
	if rec.ID == "" || rec.ProjectKey == "" || rec.DocumentID == "" {
		return fmt.Errorf("imported snapshot needs id, project key and document id")
	}
	err := c.writeSnapshot(rec, !rec.Synced)
	c.recomputePending()
	return err
}

func (c *Cache) writeSnapshot(rec *SnapshotRecord, unsynced bool) error {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", rec.ID, err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(rec.ProjectKey, rec.DocumentID, rec.ID), raw); err != nil {
			return err
		}
		if unsynced {
			return txn.Set(unsyncedKey(rec.CompositeID()), []byte{1})
		}
		return txn.Delete(unsyncedKey(rec.CompositeID()))
	})
}

// GetSnapshot loads one snapshot by its parts.
func (c *Cache) GetSnapshot(projectKey, documentID, snapshotID string) (*SnapshotRecord, error) {
	var rec *SnapshotRecord
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(projectKey, documentID, snapshotID))
		if err == badger.ErrKeyNotFound {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &SnapshotRecord{}
			return msgpack.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetSnapshotByID loads one snapshot by its composite id.
func (c *Cache) GetSnapshotByID(compositeID string) (*SnapshotRecord, error) {
	projectKey, documentID, snapshotID, err := SplitSnapshotID(compositeID)
	if err != nil {
		return nil, err
	}
	return c.GetSnapshot(projectKey, documentID, snapshotID)
}

// ListForDocument lists a document's snapshots, newest first.
func (c *Cache) ListForDocument(projectKey, documentID string) ([]*SnapshotInfo, error) {
	recs, err := c.scan(snapshotPrefix + projectKey + ":" + documentID + ":")
	if err != nil {
		return nil, err
	}
	return newestFirst(recs), nil
}

// ListForProject lists every snapshot under a project, newest first.
func (c *Cache) ListForProject(projectKey string) ([]*SnapshotInfo, error) {
	recs, err := c.scan(snapshotPrefix + projectKey + ":")
	if err != nil {
		return nil, err
	}
	return newestFirst(recs), nil
}

// ExportForProject returns full snapshot records for a project, oldest
// first, for transfer to another machine.
func (c *Cache) ExportForProject(projectKey string) ([]*SnapshotRecord, error) {
	recs, err := c.scan(snapshotPrefix + projectKey + ":")
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

// UnsyncedSnapshots returns the project's snapshots still waiting to be
// pushed, oldest first.
func (c *Cache) UnsyncedSnapshots(projectKey string) ([]*SnapshotRecord, error) {
	recs, err := c.scan(snapshotPrefix + projectKey + ":")
	if err != nil {
		return nil, err
	}
	unsynced := recs[:0]
	for _, rec := range recs {
		if !rec.Synced {
			unsynced = append(unsynced, rec)
		}
	}
	sort.Slice(unsynced, func(i, j int) bool {
		return unsynced[i].CreatedAt.Before(unsynced[j].CreatedAt)
	})
	return unsynced, nil
}

// MarkSynced records that the server accepted the snapshot. Marking an
// already-synced snapshot keeps the first server id.
func (c *Cache) MarkSynced(compositeID, serverID string) error {
	rec, err := c.GetSnapshotByID(compositeID)
	if err != nil {
		return err
	}
	if !rec.Synced {
		rec.Synced = true
		rec.ServerID = serverID
		err = c.writeSnapshot(rec, false)
	}
	c.recomputePending()
	return err
}

// DeleteSnapshot removes one snapshot by its parts.
func (c *Cache) DeleteSnapshot(projectKey, documentID, snapshotID string) error {
	composite := ComposeSnapshotID(projectKey, documentID, snapshotID)
	err := c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(snapshotKey(projectKey, documentID, snapshotID)); err != nil {
			return err
		}
		return txn.Delete(unsyncedKey(composite))
	})
	c.recomputePending()
	return err
}

// DeleteSnapshotByID removes one snapshot by its composite id.
func (c *Cache) DeleteSnapshotByID(compositeID string) error {
	projectKey, documentID, snapshotID, err := SplitSnapshotID(compositeID)
	if err != nil {
		return err
	}
	return c.DeleteSnapshot(projectKey, documentID, snapshotID)
}

// DeleteAllForProject removes every snapshot under a project key.
func (c *Cache) DeleteAllForProject(projectKey string) error {
	recs, err := c.scan(snapshotPrefix + projectKey + ":")
	if err != nil {
		return err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			if err := txn.Delete(snapshotKey(rec.ProjectKey, rec.DocumentID, rec.ID)); err != nil {
				return err
			}
			if err := txn.Delete(unsyncedKey(rec.CompositeID())); err != nil {
				return err
			}
		}
		return nil
	})
	c.recomputePending()
	return err
}

func (c *Cache) scan(prefix string) ([]*SnapshotRecord, error) {
	var recs []*SnapshotRecord
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec := &SnapshotRecord{}
				if err := msgpack.Unmarshal(val, rec); err != nil {
					return err
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func newestFirst(recs []*SnapshotRecord) []*SnapshotInfo {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	infos := make([]*SnapshotInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, info(rec))
	}
	return infos
}
