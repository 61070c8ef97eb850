package manuscript

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsIdentity(t *testing.T) {
	var gotUser, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(Document{ID: "alice:novel:ch1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "alice")
	id, err := ParseDocID("alice:novel:ch1")
	require.NoError(t, err)

	doc, err := c.GetDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice:novel:ch1", doc.ID)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestClientClassifiesEnvelopeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"kind":"FORBIDDEN","message":"not yours"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", "mallory")
	id, err := ParseDocID("alice:novel:ch1")
	require.NoError(t, err)

	err = c.DeleteDocument(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, ErrKindForbidden, ErrKind(err))
	assert.Contains(t, err.Error(), "not yours")
}

func TestClientMapsStatusCodesWithoutEnvelope(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	id, err := ParseDocID("alice:novel:ch1")
	require.NoError(t, err)

	c := NewClient(srv.URL, "", "alice")
	_, err = c.GetDocument(context.Background(), id)
	assert.Equal(t, ErrKindNotFound, ErrKind(err))

	// 401 without a token is plain unauthorized
	status = http.StatusUnauthorized
	_, err = c.GetDocument(context.Background(), id)
	assert.Equal(t, ErrKindUnauthorized, ErrKind(err))

	// with a token the session must have expired
	withToken := NewClient(srv.URL, "tok", "alice")
	_, err = withToken.GetDocument(context.Background(), id)
	assert.Equal(t, ErrKindSessionExpired, ErrKind(err))
}

func TestClientReportsNetworkErrors(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", "alice")
	id, err := ParseDocID("alice:novel:ch1")
	require.NoError(t, err)

	_, err = c.GetDocument(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, ErrKindNetwork, ErrKind(err))
}

func TestClientWorldbuildingPaths(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(Document{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "alice")
	id, err := ParseDocID("worldbuilding:alice:novel:dragon")
	require.NoError(t, err)

	_, err = c.GetDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "/v1/projects/alice/novel/worldbuilding/dragon", gotPath)
}
