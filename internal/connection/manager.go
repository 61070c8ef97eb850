// Package connection tracks which documents are bound to live sync
// channels and keeps their local cache entries current while bound.
package connection

import (
	"errors"
	"fmt"
	"sync"

	manuscript "github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/emrgen/manuscript/internal/localcache"
	"github.com/emrgen/manuscript/internal/transport"
	"github.com/sirupsen/logrus"
)

// ErrEditorNotReady is returned when a document is connected before its
// content container exists.
var ErrEditorNotReady = errors.New("editor is not ready")

// binding ties one live document to its transport and cache writes. The
// transport is nil when no endpoint resolves for the document; the binding
// then works purely against the local cache.
type binding struct {
	doc       *crdt.Document
	transport *transport.Transport
	unsubDoc  func()
	unsubSync func()
}

// Manager owns the process's document connections. All methods are safe
// for concurrent use.
type Manager struct {
	mu       sync.Mutex
	conns    map[string]*binding
	cache    *localcache.Cache
	resolver transport.EndpointResolver
}

func NewManager(cache *localcache.Cache, resolver transport.EndpointResolver) *Manager {
	if resolver == nil {
		resolver = transport.NullResolver{}
	}
	return &Manager{
		conns:    make(map[string]*binding),
		cache:    cache,
		resolver: resolver,
	}
}

// Connect binds a document to its sync channel. Connecting an already
// connected document is a no-op. Cached local state is merged into the
// document before the channel comes up, so offline edits are never lost.
func (m *Manager) Connect(doc *crdt.Document, id manuscript.DocID) error {
	if doc == nil || !doc.Ready() {
		return ErrEditorNotReady
	}

	documentID := id.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[documentID]; ok {
		return nil
	}

	if state, err := m.cache.DocumentState(documentID); err != nil {
		logrus.Warnf("failed to read cached state for %s: %v", documentID, err)
	} else if state != nil {
		if err := doc.MergeState(state, crdt.OriginRemote); err != nil {
			return fmt.Errorf("failed to merge cached state for %s: %w", documentID, err)
		}
	}

	b := &binding{doc: doc}
	b.unsubDoc = doc.Subscribe(func(origin crdt.Origin) {
		if origin != crdt.OriginLocal {
			return
		}
		// cache writes are best effort; editing continues either way
		if err := m.cache.MarkDirty(documentID); err != nil {
			logrus.Errorf("failed to mark %s dirty: %v", documentID, err)
		}
		if err := m.cache.SaveDocumentState(documentID, doc.SaveState()); err != nil {
			logrus.Errorf("failed to cache state for %s: %v", documentID, err)
		}
	})

	if endpoint, ok := m.resolver.Resolve(id); ok {
		b.transport = transport.New(endpoint, doc)
		// every sync confirmation clears the flag, not just the transition
		// into synced; edits made in the synced steady state confirm without
		// a status change
		b.unsubSync = b.transport.SubscribeSynced(func() {
			if err := m.cache.ClearDirty(documentID); err != nil {
				logrus.Errorf("failed to clear dirty flag for %s: %v", documentID, err)
			}
		})
	}

	m.conns[documentID] = b
	return nil
}

// Disconnect releases the given documents, or every connection when
// called with no ids. The cached data stays on disk.
func (m *Manager) Disconnect(ids ...manuscript.DocID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(ids) == 0 {
		for documentID, b := range m.conns {
			release(b)
			delete(m.conns, documentID)
		}
		return
	}

	for _, id := range ids {
		documentID := id.String()
		if b, ok := m.conns[documentID]; ok {
			release(b)
			delete(m.conns, documentID)
		}
	}
}

func release(b *binding) {
	b.unsubDoc()
	if b.unsubSync != nil {
		b.unsubSync()
	}
	if b.transport != nil {
		if err := b.transport.Close(); err != nil {
			logrus.Warnf("failed to close transport: %v", err)
		}
	}
}

// IsConnected reports whether the document is currently bound.
func (m *Manager) IsConnected(id manuscript.DocID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[id.String()]
	return ok
}

// HasUnsyncedChanges reports whether the document carries local edits the
// server has not confirmed.
func (m *Manager) HasUnsyncedChanges(id manuscript.DocID) (bool, error) {
	return m.cache.IsDirty(id.String())
}

// Status returns the sync status of a connected document. Documents
// without a resolved endpoint report offline.
func (m *Manager) Status(id manuscript.DocID) (transport.Status, error) {
	m.mu.Lock()
	b, ok := m.conns[id.String()]
	m.mu.Unlock()
	if !ok {
		return transport.StatusOffline, fmt.Errorf("no connection found for document %s", id)
	}
	if b.transport == nil {
		return transport.StatusOffline, nil
	}
	return b.transport.Status(), nil
}

// SubscribeStatus observes sync status transitions for a connected
// document. The returned function removes the observer.
func (m *Manager) SubscribeStatus(id manuscript.DocID, fn func(transport.Status)) (func(), error) {
	m.mu.Lock()
	b, ok := m.conns[id.String()]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no connection found for document %s", id)
	}
	if b.transport == nil {
		fn(transport.StatusOffline)
		return func() {}, nil
	}
	return b.transport.Subscribe(fn), nil
}

// NotifyOnline tells every bound transport that connectivity came back,
// cutting backoff waits short.
func (m *Manager) NotifyOnline() {
	m.mu.Lock()
	transports := make([]*transport.Transport, 0, len(m.conns))
	for _, b := range m.conns {
		if b.transport != nil {
			transports = append(transports, b.transport)
		}
	}
	m.mu.Unlock()

	for _, tr := range transports {
		tr.NotifyOnline()
	}
}

// ExportDocument returns the full CRDT state of a connected document.
func (m *Manager) ExportDocument(id manuscript.DocID) ([]byte, error) {
	m.mu.Lock()
	b, ok := m.conns[id.String()]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no connection found for document %s", id)
	}
	return b.doc.SaveState(), nil
}

// ImportDocument merges an exported state into a connected document. The
// merged content counts as local edits and syncs out like any other.
func (m *Manager) ImportDocument(id manuscript.DocID, state []byte) error {
	m.mu.Lock()
	b, ok := m.conns[id.String()]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no connection found for document %s", id)
	}
	return b.doc.MergeState(state, crdt.OriginLocal)
}
