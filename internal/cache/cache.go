package cache

import (
	"context"
	"time"
)

// ContentCache caches the materialized content of documents so read paths
// avoid re-materializing the CRDT on every request. Writes to it are
// best-effort: a cache failure must never abort the operation whose
// authoritative write already succeeded.
type ContentCache interface {
	// GetContent gets the cached portable content of a document.
	// A miss returns nil, nil.
	GetContent(ctx context.Context, documentID string) ([]byte, error)
	// SetContent caches the portable content of a document.
	SetContent(ctx context.Context, documentID string, content []byte, ttl time.Duration) error
	// DeleteContent invalidates the cached content, e.g. after a restore.
	DeleteContent(ctx context.Context, documentID string) error
}

// Nop is the cache used by tests and cache-less deployments.
type Nop struct{}

func NewNop() Nop {
	return Nop{}
}

func (Nop) GetContent(ctx context.Context, documentID string) ([]byte, error) {
	return nil, nil
}

func (Nop) SetContent(ctx context.Context, documentID string, content []byte, ttl time.Duration) error {
	return nil
}

func (Nop) DeleteContent(ctx context.Context, documentID string) error {
	return nil
}
