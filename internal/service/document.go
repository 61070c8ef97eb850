package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/cache"
	"github.com/emrgen/manuscript/internal/compress"
	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/emrgen/manuscript/internal/model"
	"github.com/emrgen/manuscript/internal/queue"
	"github.com/emrgen/manuscript/internal/registry"
	"github.com/emrgen/manuscript/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const contentCacheTTL = 10 * time.Minute

// NewDocumentService creates a new DocumentService.
func NewDocumentService(compress compress.Compress, store store.Store, cache cache.ContentCache, queue queue.DocumentQueue, registry *registry.Registry) *DocumentService {
	return &DocumentService{
		compress: compress,
		store:    store,
		cache:    cache,
		queue:    queue,
		registry: registry,
	}
}

// DocumentService manages the durable side of replicated documents.
type DocumentService struct {
	compress compress.Compress
	store    store.Store
	cache    cache.ContentCache
	queue    queue.DocumentQueue
	registry *registry.Registry
}

// DocumentView is the read projection of a document.
type DocumentView struct {
	ID        string        `json:"id"`
	Content   crdt.Fragment `json:"content"`
	WordCount int           `json:"wordCount"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// DocumentInfo is the listing projection; it carries no content blob.
type DocumentInfo struct {
	ID        string    `json:"id"`
	WordCount int       `json:"wordCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EnsureDocument returns the document record for the id, creating an empty
// document when none exists yet.
func (s *DocumentService) EnsureDocument(ctx context.Context, id manuscript.DocID) (*model.Document, error) {
	doc, err := s.store.GetDocument(ctx, id.String())
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, E(KindServer, err)
	}

	fresh, err := crdt.New()
	if err != nil {
		return nil, E(KindServer, err)
	}
	state, err := s.compress.Encode(fresh.SaveState())
	if err != nil {
		return nil, E(KindServer, err)
	}

	doc = &model.Document{
		ID:          id.String(),
		Owner:       id.Owner,
		Project:     id.Project,
		State:       state,
		Compression: s.compress.Name(),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, E(KindServer, err)
	}

	logrus.Infof("created document %s", doc.ID)
	return doc, nil
}

// Materialize loads the persisted document into a live CRDT instance.
func (s *DocumentService) Materialize(ctx context.Context, documentID string) (*crdt.Document, error) {
	return materialize(ctx, s.store, documentID)
}

// GetDocument returns the materialized content of a document. The live
// instance wins over the cache, the cache over the store.
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*DocumentView, error) {
	if _, err := manuscript.ParseDocID(documentID); err != nil {
		return nil, E(KindInvalidFormat, err)
	}

	if live, ok := s.registry.Lookup(documentID); ok {
		fragment, err := live.Fragment()
		if err != nil {
			return nil, E(KindServer, err)
		}
		return &DocumentView{
			ID:        documentID,
			Content:   fragment,
			WordCount: fragment.WordCount(),
			UpdatedAt: time.Now(),
		}, nil
	}

	if cached, err := s.cache.GetContent(ctx, documentID); err == nil && cached != nil {
		var view DocumentView
		if err := json.Unmarshal(cached, &view); err == nil {
			return &view, nil
		}
		logrus.Warnf("discarding corrupt content cache entry for %s", documentID)
	} else if err != nil {
		logrus.Errorf("content cache read failed for %s: %v", documentID, err)
	}

	rec, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindNotFound, "document %s not found", documentID)
		}
		return nil, E(KindServer, err)
	}

	doc, err := s.Materialize(ctx, documentID)
	if err != nil {
		return nil, err
	}
	fragment, err := doc.Fragment()
	if err != nil {
		return nil, E(KindServer, err)
	}

	view := &DocumentView{
		ID:        documentID,
		Content:   fragment,
		WordCount: fragment.WordCount(),
		UpdatedAt: rec.UpdatedAt,
	}
	s.refreshContentCache(ctx, view)
	return view, nil
}

// ListDocuments lists the documents of a project as lightweight projections.
func (s *DocumentService) ListDocuments(ctx context.Context, owner, project string) ([]*DocumentInfo, int64, error) {
	docs, total, err := s.store.ListDocuments(ctx, owner, project)
	if err != nil {
		return nil, 0, E(KindServer, err)
	}

	infos := make([]*DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, &DocumentInfo{
			ID:        doc.ID,
			WordCount: doc.WordCount,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return infos, total, nil
}

// MergeState folds a full client state log into the document: into the live
// instance when one exists (so peers receive the changes), otherwise into
// the persisted state. This is the headless push path.
func (s *DocumentService) MergeState(ctx context.Context, id manuscript.DocID, state []byte) error {
	if _, err := s.EnsureDocument(ctx, id); err != nil {
		return err
	}
	documentID := id.String()

	if live, ok := s.registry.Lookup(documentID); ok {
		if err := live.MergeState(state, crdt.OriginRemote); err != nil {
			return E(KindServer, err)
		}
		return s.PersistLive(ctx, documentID, live, queue.EventUpdate)
	}

	doc, err := s.Materialize(ctx, documentID)
	if err != nil {
		return err
	}
	if err := doc.MergeState(state, crdt.OriginRemote); err != nil {
		return E(KindServer, err)
	}
	return s.persist(ctx, documentID, doc, queue.EventUpdate)
}

// PersistLive writes the live document's full state back to the store and
// refreshes the downstream caches and queue.
func (s *DocumentService) PersistLive(ctx context.Context, documentID string, doc *crdt.Document, kind queue.EventKind) error {
	return s.persist(ctx, documentID, doc, kind)
}

func (s *DocumentService) persist(ctx context.Context, documentID string, doc *crdt.Document, kind queue.EventKind) error {
	id, err := manuscript.ParseDocID(documentID)
	if err != nil {
		return E(KindInvalidFormat, err)
	}

	fragment, err := doc.Fragment()
	if err != nil {
		return E(KindServer, err)
	}
	state, err := s.compress.Encode(doc.SaveState())
	if err != nil {
		return E(KindServer, err)
	}

	rec := &model.Document{
		ID:          documentID,
		Owner:       id.Owner,
		Project:     id.Project,
		State:       state,
		WordCount:   fragment.WordCount(),
		Compression: s.compress.Name(),
	}
	if err := s.store.SaveDocument(ctx, rec); err != nil {
		return E(KindServer, err)
	}

	// unnamed automatic backup row; the snapshot cleaner thins these
	backup := &model.Snapshot{
		ID:          uuid.New().String(),
		DocumentID:  documentID,
		Owner:       id.Owner,
		Project:     id.Project,
		RawState:    state,
		WordCount:   rec.WordCount,
		Compression: s.compress.Name(),
	}
	if heads, err := json.Marshal(doc.Heads()); err == nil {
		backup.StateVector = heads
	}
	if err := s.store.CreateSnapshot(ctx, backup); err != nil {
		logrus.Errorf("failed to write backup snapshot for %s: %v", documentID, err)
	}

	view := &DocumentView{
		ID:        documentID,
		Content:   fragment,
		WordCount: rec.WordCount,
		UpdatedAt: time.Now(),
	}
	s.refreshContentCache(ctx, view)

	if err := s.queue.PublishChange(ctx, &queue.Event{
		DocumentID: documentID,
		Kind:       kind,
		WordCount:  rec.WordCount,
		UpdatedAt:  view.UpdatedAt,
	}); err != nil {
		logrus.Errorf("failed to publish change event for %s: %v", documentID, err)
	}

	return nil
}

// DeleteDocument removes the document record and its live instance.
// Only the project owner may delete.
func (s *DocumentService) DeleteDocument(ctx context.Context, id manuscript.DocID, userID string) error {
	if userID != id.Owner {
		return Errorf(KindForbidden, "user %s does not own project %s", userID, id.ProjectKey())
	}

	documentID := id.String()
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return E(KindServer, err)
	}
	s.registry.Remove(documentID)

	if err := s.cache.DeleteContent(ctx, documentID); err != nil {
		logrus.Errorf("failed to invalidate content cache for %s: %v", documentID, err)
	}
	if err := s.queue.PublishChange(ctx, &queue.Event{
		DocumentID: documentID,
		Kind:       queue.EventDelete,
		UpdatedAt:  time.Now(),
	}); err != nil {
		logrus.Errorf("failed to publish delete event for %s: %v", documentID, err)
	}
	return nil
}

func (s *DocumentService) refreshContentCache(ctx context.Context, view *DocumentView) {
	data, err := json.Marshal(view)
	if err != nil {
		logrus.Errorf("failed to encode content cache entry for %s: %v", view.ID, err)
		return
	}
	if err := s.cache.SetContent(ctx, view.ID, data, contentCacheTTL); err != nil {
		logrus.Errorf("content cache write failed for %s: %v", view.ID, err)
	}
}
