package service

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/queue"
	"github.com/emrgen/manuscript/internal/registry"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewRestoreService creates a new RestoreService.
func NewRestoreService(documents *DocumentService, snapshots *SnapshotService, registry *registry.Registry) *RestoreService {
	return &RestoreService{
		documents: documents,
		snapshots: snapshots,
		registry:  registry,
	}
}

// RestoreService reconciles a snapshot against the current live state of a
// document. Against a live document it synthesizes new forward operations;
// replaying the snapshot's historical update would be silently discarded
// because CRDT operations are idempotent by origin and sequence.
type RestoreService struct {
	documents *DocumentService
	snapshots *SnapshotService
	registry  *registry.Registry
}

// RestoreResult reports a completed restore.
type RestoreResult struct {
	Success      bool      `json:"success"`
	DocumentID   string    `json:"documentId"`
	RestoredFrom string    `json:"restoredFrom"`
	RestoredAt   time.Time `json:"restoredAt"`
}

// RestoreSnapshot restores documentID to the content captured in
// snapshotID. The snapshot's document id must match exactly; a mismatch is
// a client error and fails before any persisted state is touched.
func (s *RestoreService) RestoreSnapshot(ctx context.Context, docID manuscript.DocID, snapshotID, userID string) (*RestoreResult, error) {
	documentID := docID.String()

	snapshot, err := s.snapshots.load(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.DocumentID != documentID {
		return nil, Errorf(KindInvalidFormat,
			"snapshot %s belongs to document %s, not %s", snapshotID, snapshot.DocumentID, documentID)
	}
	if userID != docID.Owner {
		return nil, Errorf(KindForbidden, "user %s does not own project %s", userID, docID.ProjectKey())
	}

	if live, ok := s.registry.Lookup(documentID); ok {
		// materialize the snapshot into a temporary replica, then clear the
		// live fragment and re-insert clones of its top-level nodes as one
		// commit. The cloned nodes carry fresh operation identities and
		// reach every peer as an ordinary forward update.
		temp, err := materializeSnapshot(snapshot)
		if err != nil {
			return nil, err
		}
		fragment, err := temp.Fragment()
		if err != nil {
			return nil, E(KindServer, err)
		}
		if err := live.RestoreFragment(fragment); err != nil {
			return nil, E(KindServer, err)
		}
		if err := s.documents.PersistLive(ctx, documentID, live, queue.EventRestore); err != nil {
			return nil, err
		}
	} else {
		// snapshots outlive their document; persisting here would resurrect
		// a deleted record through the upsert
		if _, err := s.documents.store.GetDocument(ctx, documentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, Errorf(KindNotFound, "document %s not found", documentID)
			}
			return nil, E(KindServer, err)
		}

		// no peers to reconcile with: replace the persisted state with the
		// snapshot's raw historical update wholesale
		doc, err := materializeSnapshot(snapshot)
		if err != nil {
			return nil, err
		}
		if err := s.documents.persist(ctx, documentID, doc, queue.EventRestore); err != nil {
			return nil, err
		}
	}

	logrus.Infof("restored document %s from snapshot %s", documentID, snapshotID)
	return &RestoreResult{
		Success:      true,
		DocumentID:   documentID,
		RestoredFrom: snapshotID,
		RestoredAt:   time.Now(),
	}, nil
}
