package jobs

import (
	"context"

	"github.com/emrgen/manuscript/internal/crdt"
	"github.com/emrgen/manuscript/internal/queue"
	"github.com/emrgen/manuscript/internal/registry"
	"github.com/emrgen/manuscript/internal/service"
	"github.com/sirupsen/logrus"
)

// FlushTask periodically persists every live document to the durable
// store, backstopping the per-connection flush in case a server crash
// would otherwise drop buffered edits.
type FlushTask struct {
	registry  *registry.Registry
	documents *service.DocumentService
	cron      string
}

func NewFlushTask(interval string, registry *registry.Registry, documents *service.DocumentService) *FlushTask {
	return &FlushTask{
		registry:  registry,
		documents: documents,
		cron:      interval,
	}
}

func (f *FlushTask) Schedule() string {
	return f.cron
}

func (f *FlushTask) Run() {
	ctx := context.Background()
	f.registry.Each(func(id string, doc *crdt.Document) {
		if err := f.documents.PersistLive(ctx, id, doc, queue.EventUpdate); err != nil {
			logrus.Errorf("failed to flush live document %s: %v", id, err)
		}
	})
}
