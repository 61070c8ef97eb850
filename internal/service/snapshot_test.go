package service

import (
	"context"
	"testing"

	"github.com/emrgen/manuscript/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSnapshotCapturesPersistedState(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	remote, err := s.documents.Materialize(ctx, id.String())
	require.NoError(t, err)
	require.NoError(t, remote.AppendParagraph("three little words"))
	require.NoError(t, s.documents.MergeState(ctx, id, remote.SaveState()))

	view, err := s.snapshots.Create(ctx, CreateSnapshotRequest{
		DocID:  id,
		UserID: "alice",
		Name:   "first draft",
		Metadata: map[string]string{
			"chapter": "one",
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, id.String(), view.DocumentID)
	assert.Equal(t, 3, view.WordCount)
	assert.Equal(t, "one", view.Metadata["chapter"])

	got, err := s.snapshots.Get(ctx, view.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "first draft", got.Name)
}

func TestSnapshotOwnershipChecks(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	_, err = s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "mallory", Name: "sneaky"})
	assert.Equal(t, KindForbidden, KindOf(err))

	view, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice", Name: "mine"})
	require.NoError(t, err)

	_, err = s.snapshots.Get(ctx, view.ID, "mallory")
	assert.Equal(t, KindForbidden, KindOf(err))
	err = s.snapshots.Delete(ctx, view.ID, "mallory")
	assert.Equal(t, KindForbidden, KindOf(err))
	_, _, err = s.snapshots.List(ctx, id, "mallory", store.Pagination{})
	assert.Equal(t, KindForbidden, KindOf(err))

	require.NoError(t, s.snapshots.Delete(ctx, view.ID, "alice"))
	_, err = s.snapshots.Get(ctx, view.ID, "alice")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreateSnapshotValidation(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	_, err = s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice"})
	assert.Equal(t, KindInvalidFormat, KindOf(err))

	_, err = s.snapshots.Create(ctx, CreateSnapshotRequest{UserID: "", Name: "x"})
	assert.Equal(t, KindInvalidFormat, KindOf(err))
}

func TestListSnapshotsExcludesAutomaticBackups(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	// each merge persists and writes an unnamed backup row
	remote, err := s.documents.Materialize(ctx, id.String())
	require.NoError(t, err)
	require.NoError(t, remote.AppendParagraph("words"))
	require.NoError(t, s.documents.MergeState(ctx, id, remote.SaveState()))

	for _, name := range []string{"one", "two"} {
		_, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice", Name: name})
		require.NoError(t, err)
	}

	views, total, err := s.snapshots.List(ctx, id, "alice", store.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.NotEmpty(t, v.Name)
	}
}

func TestListSnapshotsPagination(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	id := testDocID(t)

	_, err := s.documents.EnsureDocument(ctx, id)
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		_, err := s.snapshots.Create(ctx, CreateSnapshotRequest{DocID: id, UserID: "alice", Name: name})
		require.NoError(t, err)
	}

	views, total, err := s.snapshots.List(ctx, id, "alice", store.Pagination{
		Limit: 2, OrderBy: "name", Order: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].Name)
	assert.Equal(t, "b", views[1].Name)
}
