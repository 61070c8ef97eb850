package store

import (
	"context"
	"time"

	"github.com/emrgen/manuscript/internal/model"
)

// Pagination bounds listing queries. Limit is clamped to MaxListLimit by
// the service layer.
type Pagination struct {
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
	OrderBy string `form:"orderBy"` // created_at (default) or name
	Order   string `form:"order"`   // asc or desc
}

type Store interface {
	DocumentStore
	SnapshotStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type DocumentStore interface {
	// CreateDocument creates a new document record.
	CreateDocument(ctx context.Context, doc *model.Document) error
	// GetDocument retrieves a document by its composite id.
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// SaveDocument upserts a document's state and metadata.
	SaveDocument(ctx context.Context, doc *model.Document) error
	// ListDocuments retrieves the documents of one project.
	ListDocuments(ctx context.Context, owner, project string) ([]*model.Document, int64, error)
	// DeleteDocument removes a document by id.
	DeleteDocument(ctx context.Context, id string) error
}

type SnapshotStore interface {
	// CreateSnapshot creates a new snapshot record.
	CreateSnapshot(ctx context.Context, snapshot *model.Snapshot) error
	// GetSnapshot retrieves a snapshot by id.
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	// ListSnapshots retrieves the snapshots of one document plus the total count.
	ListSnapshots(ctx context.Context, documentID string, p Pagination) ([]*model.Snapshot, int64, error)
	// ListSnapshotsCreatedBetween retrieves snapshots in a creation-time window,
	// ordered ascending. Used by the retention cleaner.
	ListSnapshotsCreatedBetween(ctx context.Context, from, to time.Time) ([]*model.Snapshot, error)
	// DeleteSnapshot removes a snapshot by id.
	DeleteSnapshot(ctx context.Context, id string) error
	// DeleteSnapshots removes a batch of snapshots by id.
	DeleteSnapshots(ctx context.Context, ids []string) error
}
