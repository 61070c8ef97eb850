// Package job holds the scheduled maintenance jobs.
package job

import (
	"context"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/manuscript/internal/store"
	"github.com/sirupsen/logrus"
)

// SnapshotCleaner thins the automatic backup snapshots. Within the
// retention window only the first backup of each document per bucket
// interval survives; named snapshots are never touched and anything older
// than the window is left alone.
type SnapshotCleaner struct {
	store    store.Store
	window   time.Duration
	interval time.Duration
	cron     string
}

func NewSnapshotCleaner(store store.Store) *SnapshotCleaner {
	return &SnapshotCleaner{
		store:    store,
		window:   2 * time.Hour,
		interval: 10 * time.Minute,
		cron:     "@every 10m",
	}
}

func (c *SnapshotCleaner) Schedule() string {
	return c.cron
}

func (c *SnapshotCleaner) Run() {
	ctx := context.Background()
	now := time.Now()

	snapshots, err := c.store.ListSnapshotsCreatedBetween(ctx, now.Add(-c.window), now)
	if err != nil {
		logrus.Errorf("failed to list snapshots for cleaning: %v", err)
		return
	}

	// first snapshot per (document, bucket) stays
	seen := goset.NewSet[string]()
	remove := goset.NewSet[string]()
	for _, snapshot := range snapshots {
		if snapshot.Name != "" {
			continue
		}
		bucket := snapshot.DocumentID + "@" + snapshot.CreatedAt.Round(c.interval).Format(time.RFC3339)
		if !seen.Add(bucket) {
			remove.Add(snapshot.ID)
		}
	}

	if remove.Cardinality() == 0 {
		return
	}

	if err := c.store.DeleteSnapshots(ctx, remove.ToSlice()); err != nil {
		logrus.Errorf("failed to delete %d snapshots: %v", remove.Cardinality(), err)
		return
	}
	logrus.Infof("removed %d redundant snapshots", remove.Cardinality())
}
