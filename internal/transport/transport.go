// Package transport streams CRDT updates over a per-document websocket
// channel and publishes connectivity status transitions.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Transport binds one document to its websocket sync channel. It dials on
// construction, reconnects with monotonic backoff after failures, and
// re-dials immediately when the network-restored signal fires.
type Transport struct {
	url    string
	header http.Header
	doc    *crdt.Document

	mu       sync.Mutex
	status   Status
	subs     map[int]func(Status)
	syncSubs map[int]func()
	nextSub  int

	online chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs the transport and starts its connection loop.
func New(endpoint *Endpoint, doc *crdt.Document) *Transport {
	header := http.Header{}
	if endpoint.Token != "" {
		header.Set("Authorization", "Bearer "+endpoint.Token)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		url:      endpoint.SyncURL,
		header:   header,
		doc:      doc,
		status:   StatusOffline,
		subs:     make(map[int]func(Status)),
		syncSubs: make(map[int]func()),
		online:   make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go t.run(ctx)
	return t
}

// Status returns the current connectivity state.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Subscribe registers a status observer. The returned function removes it.
func (t *Transport) Subscribe(fn func(Status)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// SubscribeSynced registers a sync-confirmation observer, invoked every
// time the channel confirms that all pending local changes reached the
// peer. Unlike status observers it fires on every confirmation, including
// the steady-state drains that leave the status value unchanged. The
// returned function removes it.
func (t *Transport) SubscribeSynced(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.syncSubs[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.syncSubs, id)
	}
}

// NotifyOnline signals that system connectivity was regained; a pending
// backoff wait is cut short.
func (t *Transport) NotifyOnline() {
	select {
	case t.online <- struct{}{}:
	default:
	}
}

// Close stops the connection loop and tears the channel down.
func (t *Transport) Close() error {
	t.cancel()
	<-t.done
	return nil
}

func (t *Transport) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	subs := make([]func(Status), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (t *Transport) notifySynced() {
	t.mu.Lock()
	subs := make([]func(), 0, len(t.syncSubs))
	for _, fn := range t.syncSubs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.done)
	defer t.setStatus(StatusOffline)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.setStatus(StatusConnecting)
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.url, t.header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			t.setStatus(StatusOffline)
			logrus.Warnf("failed to dial %s: %v", t.url, err)

			select {
			case <-ctx.Done():
				return
			case <-t.online:
				backoff = initialBackoff
			case <-time.After(backoff):
				backoff = backoff * 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		backoff = initialBackoff
		t.sync(ctx, conn)
		t.setStatus(StatusOffline)
	}
}

// sync pumps the automerge sync protocol over an established connection
// until the connection drops or the context is cancelled.
func (t *Transport) sync(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	state := t.doc.NewSyncState()

	wake := make(chan struct{}, 1)
	poke := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	unsub := t.doc.Subscribe(func(origin crdt.Origin) {
		if origin == crdt.OriginLocal {
			poke()
		}
	})
	defer unsub()

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
			if err := t.doc.ReceiveSync(state, p); err != nil {
				logrus.Errorf("failed to receive sync message: %v", err)
				return
			}
			// every received message may require a generated response
			poke()
		}
	}()

	drain := func() bool {
		for {
			msg, ok := t.doc.GenerateSync(state)
			if !ok {
				return true
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				logrus.Warnf("failed to write sync message: %v", err)
				return false
			}
		}
	}

	if !drain() {
		return
	}
	t.setStatus(StatusSynced)
	t.notifySynced()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-readerDone:
			return
		case <-wake:
			if !drain() {
				return
			}
			// the status value does not change while already synced, so
			// confirmation is signalled separately from the transition
			t.setStatus(StatusSynced)
			t.notifySynced()
		}
	}
}
