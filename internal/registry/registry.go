// Package registry holds the process-wide map of live replicated documents.
// It is the coordination point shared by the connection manager, the sync
// hub and the restore engine; the durable store remains the system of
// record.
package registry

import (
	"sync"

	"github.com/emrgen/manuscript/internal/crdt"
)

type Registry struct {
	mu   sync.Mutex
	docs map[string]*crdt.Document
}

func New() *Registry {
	return &Registry{docs: make(map[string]*crdt.Document)}
}

// Lookup returns the live document for the id, if any.
func (r *Registry) Lookup(id string) (*crdt.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	return doc, ok
}

// GetOrCreate returns the live document for the id, materializing it with
// create when absent. The lock is held across create so two concurrent
// callers can never both materialize a document for the same id.
func (r *Registry) GetOrCreate(id string, create func() (*crdt.Document, error)) (*crdt.Document, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.docs[id]; ok {
		return doc, false, nil
	}

	doc, err := create()
	if err != nil {
		return nil, false, err
	}
	r.docs[id] = doc
	return doc, true, nil
}

// Remove drops the live document for the id. Server-side this only happens
// on explicit data deletion; clients call it when the last connection for
// the id is torn down.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
}

// Each calls fn for every live document. The snapshot of the map is taken
// under the lock; fn runs without it.
func (r *Registry) Each(fn func(id string, doc *crdt.Document)) {
	r.mu.Lock()
	docs := make(map[string]*crdt.Document, len(r.docs))
	for id, doc := range r.docs {
		docs[id] = doc
	}
	r.mu.Unlock()

	for id, doc := range docs {
		fn(id, doc)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}
