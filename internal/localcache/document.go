package localcache

import (
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// SaveDocumentState stores the document's full CRDT state.
func (c *Cache) SaveDocumentState(documentID string, state []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(docStatePrefix+documentID), state)
	})
}

// DocumentState loads the cached CRDT state; a miss returns nil, nil.
func (c *Cache) DocumentState(documentID string) ([]byte, error) {
	var state []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(docStatePrefix + documentID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		state, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// DeleteDocumentState drops the cached state and dirty flag together.
func (c *Cache) DeleteDocumentState(documentID string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(docStatePrefix + documentID)); err != nil {
			return err
		}
		return txn.Delete([]byte(dirtyPrefix + documentID))
	})
	c.recomputePending()
	return err
}

// MarkDirty flags a document as having local edits the server has not seen.
func (c *Cache) MarkDirty(documentID string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dirtyPrefix+documentID), []byte{1})
	})
	c.recomputePending()
	return err
}

// ClearDirty removes the flag once the server has the document's edits.
func (c *Cache) ClearDirty(documentID string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(dirtyPrefix + documentID))
	})
	c.recomputePending()
	return err
}

// IsDirty reports whether the document carries unsynced local edits.
func (c *Cache) IsDirty(documentID string) (bool, error) {
	dirty := false
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(dirtyPrefix + documentID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		dirty = true
		return nil
	})
	return dirty, err
}

// DirtyDocuments returns the ids of every dirty document, sorted.
func (c *Cache) DirtyDocuments() ([]string, error) {
	var ids []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(dirtyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, dirtyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
