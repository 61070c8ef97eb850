package service

import (
	"context"
	"testing"

	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreRejectsMismatchedDocument(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	source := testDocID(t)
	other := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, source)
	require.NoError(t, err)
	_, err = s.documents.EnsureDocument(ctx, other)
	require.NoError(t, err)

	snap, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: source, UserID: "alice", Name: "v1"})
	require.NoError(t, err)

	_, err = s.restore.RestoreSnapshot(ctx, other, snap.ID, "alice")
	assert.Equal(t, KindInvalidFormat, KindOf(err))

	// the mismatch is detected even before ownership, so a foreign caller
	// learns nothing beyond the id mismatch
	_, err = s.restore.RestoreSnapshot(ctx, other, snap.ID, "mallory")
	assert.Equal(t, KindInvalidFormat, KindOf(err))
}

func TestRestoreRequiresOwnership(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)
	snap, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice", Name: "v1"})
	require.NoError(t, err)

	_, err = s.restore.RestoreSnapshot(ctx, id, snap.ID, "mallory")
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = s.restore.RestoreSnapshot(ctx, id, "no-such-snapshot", "alice")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRestoreLiveDocumentSynthesizesForwardOperations(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	live, _, err := s.registry.GetOrCreate(id.String(), func() (*crdt.Document, error) {
		return s.documents.Materialize(ctx, id.String())
	})
	require.NoError(t, err)

	require.NoError(t, live.AppendParagraph("keep me"))
	snap, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice", Name: "v1"})
	require.NoError(t, err)

	require.NoError(t, live.AppendParagraph("regrettable addition"))
	headsBefore := live.Heads()

	var origins []crdt.Origin
	unsub := live.Subscribe(func(origin crdt.Origin) {
		origins = append(origins, origin)
	})
	defer unsub()

	result, err := s.restore.RestoreSnapshot(ctx, id, snap.ID, "alice")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, snap.ID, result.RestoredFrom)

	text, err := live.PlainText()
	require.NoError(t, err)
	assert.Equal(t, "keep me", text)

	// history moved forward, it was not rewound
	assert.NotEqual(t, headsBefore, live.Heads())

	// the restore surfaced as an ordinary local update, so connected peers
	// receive it through the usual sync path
	require.NotEmpty(t, origins)
	assert.Equal(t, crdt.OriginLocal, origins[0])

	// the persisted record reflects the restored content
	view, err := s.documents.GetDocument(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, 2, view.WordCount)
}

func TestRestoreDoesNotResurrectDeletedDocument(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)
	snap, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice", Name: "v1"})
	require.NoError(t, err)

	require.NoError(t, s.documents.DeleteDocument(ctx, id, "alice"))

	// the snapshot row outlives the document, but restoring it must not
	// write the record back through the persist upsert
	_, err = s.restore.RestoreSnapshot(ctx, id, snap.ID, "alice")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = s.documents.GetDocument(ctx, id.String())
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRestoreOfflineDocumentReplacesPersistedState(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	editor, err := s.documents.Materialize(ctx, id.String())
	require.NoError(t, err)
	require.NoError(t, editor.AppendParagraph("version one"))
	require.NoError(t, s.documents.MergeState(ctx, id, editor.SaveState()))

	snap, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice", Name: "v1"})
	require.NoError(t, err)

	require.NoError(t, editor.AppendParagraph("version two extras"))
	require.NoError(t, s.documents.MergeState(ctx, id, editor.SaveState()))

	view, err := s.documents.GetDocument(ctx, id.String())
	require.NoError(t, err)
	require.Equal(t, 5, view.WordCount)

	_, err = s.restore.RestoreSnapshot(ctx, id, snap.ID, "alice")
	require.NoError(t, err)

	view, err = s.documents.GetDocument(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, 2, view.WordCount)
	require.Len(t, view.Content.Nodes, 1)
}
