// Package headless pushes locally cached document state to the server in
// bulk, without mounting an editor. Used on app shutdown and by the sync
// CLI command.
package headless

import (
	"context"
	"sync"

	manuscript "github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/localcache"
	"github.com/emrgen/manuscript/internal/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many documents sync at once.
const DefaultConcurrency = 4

// StatePusher delivers one document's full state to its endpoint.
type StatePusher interface {
	Push(ctx context.Context, endpoint *transport.Endpoint, id manuscript.DocID, state []byte) error
}

// Result partitions a batch by outcome. Every input id lands in exactly
// one of the two lists.
type Result struct {
	Success []string
	Failed  []string
}

// Coordinator runs bounded-concurrency batch syncs against the local cache.
type Coordinator struct {
	cache       *localcache.Cache
	resolver    transport.EndpointResolver
	pusher      StatePusher
	concurrency int
}

func NewCoordinator(cache *localcache.Cache, resolver transport.EndpointResolver, pusher StatePusher) *Coordinator {
	return &Coordinator{
		cache:       cache,
		resolver:    resolver,
		pusher:      pusher,
		concurrency: DefaultConcurrency,
	}
}

// WithConcurrency overrides the worker bound. Values below one fall back
// to the default.
func (c *Coordinator) WithConcurrency(n int) *Coordinator {
	if n < 1 {
		n = DefaultConcurrency
	}
	c.concurrency = n
	return c
}

// SyncDocuments pushes the cached state of each document id. A malformed
// id fails its entry before any transport work happens; an id with no
// resolvable endpoint or no cached state is a successful no-op.
func (c *Coordinator) SyncDocuments(ctx context.Context, documentIDs []string) (*Result, error) {
	result := &Result{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, documentID := range documentIDs {
		documentID := documentID
		g.Go(func() error {
			ok := c.syncOne(ctx, documentID)

			mu.Lock()
			if ok {
				result.Success = append(result.Success, documentID)
			} else {
				result.Failed = append(result.Failed, documentID)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// SyncWorldbuildingBatch pushes a project's worldbuilding elements. The
// result reports the composite element ids.
func (c *Coordinator) SyncWorldbuildingBatch(ctx context.Context, owner, project string, elementIDs []string) (*Result, error) {
	documentIDs := make([]string, 0, len(elementIDs))
	for _, elementID := range elementIDs {
		id := manuscript.DocID{Worldbuilding: true, Owner: owner, Project: project, Doc: elementID}
		documentIDs = append(documentIDs, id.String())
	}
	return c.SyncDocuments(ctx, documentIDs)
}

func (c *Coordinator) syncOne(ctx context.Context, documentID string) bool {
	// id validation comes first: a malformed id is a failure even when the
	// push would have been skipped anyway
	id, err := manuscript.ParseDocID(documentID)
	if err != nil {
		logrus.Warnf("skipping malformed document id %q: %v", documentID, err)
		return false
	}

	endpoint, ok := c.resolver.Resolve(id)
	if !ok {
		return true
	}

	state, err := c.cache.DocumentState(documentID)
	if err != nil {
		logrus.Errorf("failed to read cached state for %s: %v", documentID, err)
		return false
	}
	if state == nil {
		// nothing cached means nothing to push
		return true
	}

	if err := c.pusher.Push(ctx, endpoint, id, state); err != nil {
		logrus.Errorf("failed to push state for %s: %v", documentID, err)
		return false
	}

	if err := c.cache.ClearDirty(documentID); err != nil {
		logrus.Warnf("failed to clear dirty flag for %s: %v", documentID, err)
	}
	return true
}
