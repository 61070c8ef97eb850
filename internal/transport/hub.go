package transport

import (
	"context"
	"time"

	manuscript "github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/emrgen/manuscript/internal/queue"
	"github.com/emrgen/manuscript/internal/registry"
	"github.com/emrgen/manuscript/internal/service"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// persistDebounce bounds how often a busy document is flushed to the store
// while sync messages keep arriving.
const persistDebounce = 2 * time.Second

// Hub serves the authoritative side of the sync channel. Every peer of a
// document shares one live crdt.Document through the registry; each peer
// carries its own sync state.
type Hub struct {
	registry  *registry.Registry
	documents *service.DocumentService
}

func NewHub(registry *registry.Registry, documents *service.DocumentService) *Hub {
	return &Hub{
		registry:  registry,
		documents: documents,
	}
}

// Serve pumps sync messages for one peer connection until the peer goes
// away or ctx is cancelled. The document is loaded into the registry on
// first contact and kept live for later peers.
func (h *Hub) Serve(ctx context.Context, id manuscript.DocID, conn *websocket.Conn) error {
	defer conn.Close()

	documentID := id.String()
	if _, err := h.documents.EnsureDocument(ctx, id); err != nil {
		return err
	}

	doc, _, err := h.registry.GetOrCreate(documentID, func() (*crdt.Document, error) {
		return h.documents.Materialize(ctx, documentID)
	})
	if err != nil {
		return err
	}

	state := doc.NewSyncState()

	wake := make(chan struct{}, 1)
	poke := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	// edits from other peers of the same document reach this peer through
	// the shared doc's subscription
	unsub := doc.Subscribe(func(crdt.Origin) { poke() })
	defer unsub()

	received := make(chan struct{}, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			mt, p, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			if err := doc.ReceiveSync(state, p); err != nil {
				logrus.Errorf("failed to receive sync message for %s: %v", documentID, err)
				return
			}
			select {
			case received <- struct{}{}:
			default:
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

	persist := time.NewTimer(persistDebounce)
	persist.Stop()
	defer persist.Stop()

	dirty := false
	flush := func() {
		if !dirty {
			return
		}
		dirty = false
		// survives ctx cancellation so the final flush still lands
		if err := h.documents.PersistLive(context.WithoutCancel(ctx), documentID, doc, queue.EventUpdate); err != nil {
			logrus.Errorf("failed to persist document %s: %v", documentID, err)
		}
	}
	defer flush()

	if !drain() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return ctx.Err()
		case <-readerDone:
			return nil
		case <-received:
			if !dirty {
				dirty = true
				persist.Reset(persistDebounce)
			}
		case <-persist.C:
			flush()
		case <-wake:
			if !drain() {
				return nil
			}
		}
	}
}
