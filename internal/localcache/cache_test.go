package localcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})
	return c
}

func TestSplitSnapshotID(t *testing.T) {
	projectKey, docID, snapID, err := SplitSnapshotID("alice/novel:alice:novel:ch1:abc-123")
	require.NoError(t, err)
	assert.Equal(t, "alice/novel", projectKey)
	assert.Equal(t, "alice:novel:ch1", docID)
	assert.Equal(t, "abc-123", snapID)

	_, _, _, err = SplitSnapshotID("no-colons")
	assert.Error(t, err)
	_, _, _, err = SplitSnapshotID("only:one")
	assert.Error(t, err)
	_, _, _, err = SplitSnapshotID(":missing:parts")
	assert.Error(t, err)
}

func TestSnapshotLifecycle(t *testing.T) {
	c := openTestCache(t)

	rec := &SnapshotRecord{
		DocumentID: "alice:novel:ch1",
		ProjectKey: "alice/novel",
		Name:       "draft one",
		Content:    []byte(`[]`),
		WordCount:  42,
	}
	require.NoError(t, c.CreateSnapshot(rec))
	require.NotEmpty(t, rec.ID)
	require.False(t, rec.CreatedAt.IsZero())

	got, err := c.GetSnapshotByID(rec.CompositeID())
	require.NoError(t, err)
	assert.Equal(t, "draft one", got.Name)
	assert.Equal(t, 42, got.WordCount)
	assert.False(t, got.Synced)

	assert.True(t, c.HasPendingSync())

	require.NoError(t, c.MarkSynced(rec.CompositeID(), "srv-1"))
	got, err = c.GetSnapshotByID(rec.CompositeID())
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, "srv-1", got.ServerID)
	assert.False(t, c.HasPendingSync())

	// marking again keeps the original server id
	require.NoError(t, c.MarkSynced(rec.CompositeID(), "srv-2"))
	got, err = c.GetSnapshotByID(rec.CompositeID())
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)

	require.NoError(t, c.DeleteSnapshotByID(rec.CompositeID()))
	_, err = c.GetSnapshotByID(rec.CompositeID())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSnapshotListings(t *testing.T) {
	c := openTestCache(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(docID, name string, age time.Duration) {
		require.NoError(t, c.CreateSnapshot(&SnapshotRecord{
			DocumentID: docID,
			ProjectKey: "alice/novel",
			Name:       name,
			CreatedAt:  base.Add(age),
		}))
	}
	mk("alice:novel:ch1", "oldest", 0)
	mk("alice:novel:ch1", "newest", 2*time.Hour)
	mk("alice:novel:ch2", "other-doc", time.Hour)
	require.NoError(t, c.CreateSnapshot(&SnapshotRecord{
		DocumentID: "bob:memoir:ch1",
		ProjectKey: "bob/memoir",
		Name:       "foreign",
	}))

	byDoc, err := c.ListForDocument("alice/novel", "alice:novel:ch1")
	require.NoError(t, err)
	require.Len(t, byDoc, 2)
	assert.Equal(t, "newest", byDoc[0].Name)
	assert.Equal(t, "oldest", byDoc[1].Name)

	byProject, err := c.ListForProject("alice/novel")
	require.NoError(t, err)
	assert.Len(t, byProject, 3)

	export, err := c.ExportForProject("alice/novel")
	require.NoError(t, err)
	require.Len(t, export, 3)
	assert.Equal(t, "oldest", export[0].Name)

	require.NoError(t, c.DeleteAllForProject("alice/novel"))
	byProject, err = c.ListForProject("alice/novel")
	require.NoError(t, err)
	assert.Empty(t, byProject)

	// the other project is untouched
	foreign, err := c.ListForProject("bob/memoir")
	require.NoError(t, err)
	assert.Len(t, foreign, 1)
}

func TestImportKeepsSyncState(t *testing.T) {
	c := openTestCache(t)

	rec := &SnapshotRecord{
		ID:         "abc-123",
		DocumentID: "alice:novel:ch1",
		ProjectKey: "alice/novel",
		Name:       "imported",
		CreatedAt:  time.Now().UTC(),
		Synced:     true,
		ServerID:   "srv-9",
	}
	require.NoError(t, c.ImportSnapshot(rec))
	assert.False(t, c.HasPendingSync())

	got, err := c.GetSnapshot("alice/novel", "alice:novel:ch1", "abc-123")
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, "srv-9", got.ServerID)
}

func TestDocumentStateAndDirtyFlags(t *testing.T) {
	c := openTestCache(t)

	state, err := c.DocumentState("alice:novel:ch1")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, c.SaveDocumentState("alice:novel:ch1", []byte("state")))
	state, err = c.DocumentState("alice:novel:ch1")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), state)

	dirty, err := c.IsDirty("alice:novel:ch1")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.False(t, c.HasPendingSync())

	require.NoError(t, c.MarkDirty("alice:novel:ch1"))
	require.NoError(t, c.MarkDirty("alice:novel:ch2"))
	dirty, err = c.IsDirty("alice:novel:ch1")
	require.NoError(t, err)
	assert.True(t, dirty)
	assert.True(t, c.HasPendingSync())

	ids, err := c.DirtyDocuments()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice:novel:ch1", "alice:novel:ch2"}, ids)

	require.NoError(t, c.ClearDirty("alice:novel:ch1"))
	require.NoError(t, c.DeleteDocumentState("alice:novel:ch2"))
	assert.False(t, c.HasPendingSync())

	state, err = c.DocumentState("alice:novel:ch2")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestPendingSubscription(t *testing.T) {
	c := openTestCache(t)

	var transitions []bool
	unsub := c.SubscribePending(func(pending bool) {
		transitions = append(transitions, pending)
	})
	defer unsub()

	require.NoError(t, c.MarkDirty("alice:novel:ch1"))
	require.NoError(t, c.MarkDirty("alice:novel:ch1")) // no transition
	require.NoError(t, c.ClearDirty("alice:novel:ch1"))

	assert.Equal(t, []bool{true, false}, transitions)
}
