package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// peerServer runs the authoritative side of the sync protocol against doc,
// one connection at a time.
func peerServer(t *testing.T, doc *crdt.Document) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		state := doc.NewSyncState()

		wake := make(chan struct{}, 1)
		poke := func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
		unsub := doc.Subscribe(func(crdt.Origin) { poke() })
		defer unsub()

		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			for {
				_, p, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if err := doc.ReceiveSync(state, p); err != nil {
					return
				}
				poke()
			}
		}()

		drain := func() bool {
			for {
				msg, ok := doc.GenerateSync(state)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
					return false
				}
			}
		}

		if !drain() {
			return
		}
		for {
			select {
			case <-readerDone:
				return
			case <-wake:
				if !drain() {
					return
				}
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransportSyncsBothWays(t *testing.T) {
	serverDoc, err := crdt.New()
	require.NoError(t, err)
	require.NoError(t, serverDoc.AppendParagraph("from server"))

	srv := peerServer(t, serverDoc)
	defer srv.Close()

	clientDoc, err := crdt.New()
	require.NoError(t, err)

	tr := New(&Endpoint{SyncURL: wsURL(srv)}, clientDoc)
	defer tr.Close()

	require.Eventually(t, func() bool {
		text, err := clientDoc.PlainText()
		return err == nil && text == "from server"
	}, 5*time.Second, 10*time.Millisecond, "server content should reach the client")

	require.NoError(t, clientDoc.AppendParagraph("from client"))

	require.Eventually(t, func() bool {
		text, err := serverDoc.PlainText()
		return err == nil && strings.Contains(text, "from client")
	}, 5*time.Second, 10*time.Millisecond, "client edit should reach the server")
}

func TestTransportStatusTransitions(t *testing.T) {
	serverDoc, err := crdt.New()
	require.NoError(t, err)

	srv := peerServer(t, serverDoc)
	defer srv.Close()

	clientDoc, err := crdt.New()
	require.NoError(t, err)

	tr := New(&Endpoint{SyncURL: wsURL(srv)}, clientDoc)

	var mu sync.Mutex
	var seen []Status
	unsub := tr.Subscribe(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		return tr.Status() == StatusSynced
	}, 5*time.Second, 10*time.Millisecond)
	unsub()

	mu.Lock()
	assert.Contains(t, seen, StatusSynced)
	mu.Unlock()

	require.NoError(t, tr.Close())
	assert.Equal(t, StatusOffline, tr.Status())
}

func TestTransportConfirmsDrainsWhileSynced(t *testing.T) {
	serverDoc, err := crdt.New()
	require.NoError(t, err)

	srv := peerServer(t, serverDoc)
	defer srv.Close()

	clientDoc, err := crdt.New()
	require.NoError(t, err)

	tr := New(&Endpoint{SyncURL: wsURL(srv)}, clientDoc)
	defer tr.Close()

	var mu sync.Mutex
	confirms := 0
	unsub := tr.SubscribeSynced(func() {
		mu.Lock()
		confirms++
		mu.Unlock()
	})
	defer unsub()

	require.Eventually(t, func() bool {
		return tr.Status() == StatusSynced
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	before := confirms
	mu.Unlock()

	// an edit in the synced steady state never transitions the status, but
	// it must still be confirmed once it drains
	require.NoError(t, clientDoc.AppendParagraph("steady state edit"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return confirms > before
	}, 5*time.Second, 10*time.Millisecond, "drain while synced should confirm")
}

func TestTransportRetriesWhileUnreachable(t *testing.T) {
	clientDoc, err := crdt.New()
	require.NoError(t, err)

	// nothing listens on this address
	tr := New(&Endpoint{SyncURL: "ws://127.0.0.1:1/sync"}, clientDoc)
	defer tr.Close()

	require.Eventually(t, func() bool {
		return tr.Status() != StatusSynced
	}, time.Second, 10*time.Millisecond)

	// waking the dialer while the target is still down must not panic or
	// flip the transport to synced
	tr.NotifyOnline()
	time.Sleep(50 * time.Millisecond)
	assert.NotEqual(t, StatusSynced, tr.Status())
}
