package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	manuscript "github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/cache"
	"github.com/emrgen/manuscript/internal/compress"
	"github.com/emrgen/manuscript/internal/queue"
	"github.com/emrgen/manuscript/internal/registry"
	"github.com/emrgen/manuscript/internal/store"
	"github.com/emrgen/manuscript/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docSeq atomic.Int64

type services struct {
	documents *DocumentService
	snapshots *SnapshotService
	restore   *RestoreService
	registry  *registry.Registry
}

func newServices(t *testing.T) *services {
	t.Helper()

	st := store.NewGormStore(tester.TestDB())
	reg := registry.New()
	codec := compress.NewGZip()

	documents := NewDocumentService(codec, st, cache.NewNop(), queue.NewNop(), reg)
	snapshots := NewSnapshotService(codec, st, reg)
	return &services{
		documents: documents,
		snapshots: snapshots,
		restore:   NewRestoreService(documents, snapshots, reg),
		registry:  reg,
	}
}

// testDocID returns a fresh id so tests sharing the database never collide.
func testDocID(t *testing.T) manuscript.DocID {
	t.Helper()
	id, err := manuscript.ParseDocID(fmt.Sprintf("alice:novel:doc-%d", docSeq.Add(1)))
	require.NoError(t, err)
	return id
}

func TestEnsureDocumentCreatesEmptyDocument(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	rec, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), rec.ID)
	assert.Equal(t, 0, rec.WordCount)

	// ensuring again returns the existing record
	again, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	view, err := s.documents.GetDocument(ctx, id.String())
	require.NoError(t, err)
	assert.Empty(t, view.Content.Nodes)
	assert.Equal(t, 0, view.WordCount)
}

func TestGetDocumentErrors(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	_, err := s.documents.GetDocument(ctx, "not a doc id")
	assert.Equal(t, KindInvalidFormat, KindOf(err))

	_, err = s.documents.GetDocument(ctx, "alice:novel:never-created")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestMergeStatePersistsPushedEdits(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	// an offline editor wrote into a replica forked from the server state
	remote, err := s.documents.Materialize(ctx, id.String())
	require.NoError(t, err)
	require.NoError(t, remote.AppendParagraph("pushed from afar"))

	require.NoError(t, s.documents.MergeState(ctx, id, remote.SaveState()))

	view, err := s.documents.GetDocument(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, 3, view.WordCount)
}

func TestDeleteDocumentRequiresOwnership(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	err = s.documents.DeleteDocument(ctx, id, "mallory")
	assert.Equal(t, KindForbidden, KindOf(err))

	require.NoError(t, s.documents.DeleteDocument(ctx, id, "alice"))
	_, err = s.documents.GetDocument(ctx, id.String())
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestListDocumentsScopesToProject(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	owner := fmt.Sprintf("owner-%d", docSeq.Add(1))
	for i := 0; i < 3; i++ {
		id, err := manuscript.ParseDocID(fmt.Sprintf("%s:novel:ch%d", owner, i))
		require.NoError(t, err)
		_, err = s.documents.EnsureDocument(ctx, id)
		require.NoError(t, err)
	}
	other, err := manuscript.ParseDocID(owner + ":memoir:ch0")
	require.NoError(t, err)
	_, err = s.documents.EnsureDocument(ctx, other)
	require.NoError(t, err)

	docs, total, err := s.documents.ListDocuments(ctx, owner, "novel")
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Equal(t, int64(3), total)
}
