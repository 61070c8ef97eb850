package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/compress"
	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/emrgen/manuscript/internal/model"
	"github.com/emrgen/manuscript/internal/registry"
	"github.com/emrgen/manuscript/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MaxListLimit bounds snapshot listing pages.
const MaxListLimit = 100

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(compress compress.Compress, store store.Store, registry *registry.Registry) *SnapshotService {
	return &SnapshotService{
		compress: compress,
		store:    store,
		registry: registry,
	}
}

// SnapshotService creates, lists and deletes point-in-time captures of
// documents on the durable side. It stores the raw replicated state and
// the state vector, not just serialized content.
type SnapshotService struct {
	compress compress.Compress
	store    store.Store
	registry *registry.Registry
}

// CreateSnapshotRequest carries the inputs for a snapshot capture.
type CreateSnapshotRequest struct {
	DocID       manuscript.DocID
	UserID      string
	Name        string
	Description string
	Metadata    map[string]string
}

// SnapshotView is the read projection of a snapshot; listings omit the
// raw state.
type SnapshotView struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"documentId"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	WordCount   int               `json:"wordCount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Create captures the current state of the document as a named snapshot.
// Only the project owner may create snapshots.
func (s *SnapshotService) Create(ctx context.Context, req CreateSnapshotRequest) (*SnapshotView, error) {
	if !req.DocID.Valid() {
		return nil, Errorf(KindInvalidFormat, "invalid document id %q", req.DocID.String())
	}
	if req.UserID != req.DocID.Owner {
		return nil, Errorf(KindForbidden, "user %s does not own project %s", req.UserID, req.DocID.ProjectKey())
	}
	if req.Name == "" {
		return nil, Errorf(KindInvalidFormat, "snapshot name must not be empty")
	}

	documentID := req.DocID.String()

	// the live instance already incorporates every operation it has seen;
	// fall back to the persisted state only when no connection is open
	doc, live := s.registry.Lookup(documentID)
	if !live {
		materialized, err := materialize(ctx, s.store, documentID)
		if err != nil {
			return nil, err
		}
		doc = materialized
	}

	fragment, err := doc.Fragment()
	if err != nil {
		return nil, E(KindServer, err)
	}

	rawState, err := s.compress.Encode(doc.SaveState())
	if err != nil {
		return nil, E(KindServer, err)
	}
	stateVector, err := json.Marshal(doc.Heads())
	if err != nil {
		return nil, E(KindServer, err)
	}

	metadata := "{}"
	if len(req.Metadata) > 0 {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, E(KindServer, err)
		}
		metadata = string(data)
	}

	rec := &model.Snapshot{
		ID:          uuid.New().String(),
		DocumentID:  documentID,
		Owner:       req.DocID.Owner,
		Project:     req.DocID.Project,
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		RawState:    rawState,
		StateVector: stateVector,
		WordCount:   fragment.WordCount(),
		Metadata:    metadata,
		Compression: s.compress.Name(),
	}
	if err := s.store.CreateSnapshot(ctx, rec); err != nil {
		return nil, E(KindServer, err)
	}

	logrus.Infof("created snapshot %s for document %s", rec.ID, documentID)
	return snapshotView(rec), nil
}

// Get retrieves a snapshot by id, enforcing ownership.
func (s *SnapshotService) Get(ctx context.Context, snapshotID, userID string) (*SnapshotView, error) {
	rec, err := s.load(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if rec.Owner != userID {
		return nil, Errorf(KindForbidden, "user %s does not own snapshot %s", userID, snapshotID)
	}
	return snapshotView(rec), nil
}

// List pages through the snapshots of a document, newest first by default.
func (s *SnapshotService) List(ctx context.Context, docID manuscript.DocID, userID string, p store.Pagination) ([]*SnapshotView, int64, error) {
	if userID != docID.Owner {
		return nil, 0, Errorf(KindForbidden, "user %s does not own project %s", userID, docID.ProjectKey())
	}

	if p.Limit <= 0 || p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}

	records, total, err := s.store.ListSnapshots(ctx, docID.String(), p)
	if err != nil {
		return nil, 0, E(KindServer, err)
	}

	views := make([]*SnapshotView, 0, len(records))
	for _, rec := range records {
		views = append(views, snapshotView(rec))
	}
	return views, total, nil
}

// Delete removes a snapshot, enforcing ownership.
func (s *SnapshotService) Delete(ctx context.Context, snapshotID, userID string) error {
	rec, err := s.load(ctx, snapshotID)
	if err != nil {
		return err
	}
	if rec.Owner != userID {
		return Errorf(KindForbidden, "user %s does not own snapshot %s", userID, snapshotID)
	}
	if err := s.store.DeleteSnapshot(ctx, snapshotID); err != nil {
		return E(KindServer, err)
	}
	return nil
}

// MaterializeState decodes a snapshot's raw state into a fresh document.
func (s *SnapshotService) MaterializeState(rec *model.Snapshot) (*crdt.Document, error) {
	return materializeSnapshot(rec)
}

func (s *SnapshotService) load(ctx context.Context, snapshotID string) (*model.Snapshot, error) {
	rec, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindNotFound, "snapshot %s not found", snapshotID)
		}
		return nil, E(KindServer, err)
	}
	return rec, nil
}

func snapshotView(rec *model.Snapshot) *SnapshotView {
	view := &SnapshotView{
		ID:          rec.ID,
		DocumentID:  rec.DocumentID,
		Name:        rec.Name,
		Description: rec.Description,
		WordCount:   rec.WordCount,
		CreatedAt:   rec.CreatedAt,
	}
	if rec.Metadata != "" && rec.Metadata != "{}" {
		metadata := make(map[string]string)
		if err := json.Unmarshal([]byte(rec.Metadata), &metadata); err == nil {
			view.Metadata = metadata
		} else {
			logrus.Warnf("snapshot %s carries corrupt metadata", rec.ID)
		}
	}
	return view
}

func materializeSnapshot(rec *model.Snapshot) (*crdt.Document, error) {
	codec, err := compress.FromName(rec.Compression)
	if err != nil {
		return nil, E(KindServer, err)
	}
	state, err := codec.Decode(rec.RawState)
	if err != nil {
		return nil, E(KindServer, err)
	}
	doc, err := crdt.Load(state)
	if err != nil {
		return nil, E(KindServer, err)
	}
	return doc, nil
}

func materialize(ctx context.Context, st store.Store, documentID string) (*crdt.Document, error) {
	rec, err := st.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindNotFound, "document %s not found", documentID)
		}
		return nil, E(KindServer, err)
	}

	codec, err := compress.FromName(rec.Compression)
	if err != nil {
		return nil, E(KindServer, err)
	}
	state, err := codec.Decode(rec.State)
	if err != nil {
		return nil, E(KindServer, err)
	}
	return crdt.Load(state)
}
