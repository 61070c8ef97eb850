package store

import (
	"context"
	"time"

	"github.com/emrgen/manuscript/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func (g *GormStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	return g.db.WithContext(ctx).Create(doc).Error
}

func (g *GormStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (g *GormStore) SaveDocument(ctx context.Context, doc *model.Document) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(doc).Error
}

func (g *GormStore) ListDocuments(ctx context.Context, owner, project string) ([]*model.Document, int64, error) {
	var docs []*model.Document
	q := g.db.WithContext(ctx).Where("owner = ? AND project = ?", owner, project)

	var total int64
	if err := q.Model(&model.Document{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("updated_at desc").Find(&docs).Error
	return docs, total, err
}

func (g *GormStore) DeleteDocument(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}

func (g *GormStore) CreateSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	return g.db.WithContext(ctx).Create(snapshot).Error
}

func (g *GormStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	var snapshot model.Snapshot
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (g *GormStore) ListSnapshots(ctx context.Context, documentID string, p Pagination) ([]*model.Snapshot, int64, error) {
	// unnamed rows are automatic backups, not user snapshots
	q := g.db.WithContext(ctx).Where("document_id = ? AND name <> ''", documentID)

	var total int64
	if err := q.Model(&model.Snapshot{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := p.OrderBy
	if orderBy != "name" {
		orderBy = "created_at"
	}
	order := p.Order
	if order != "asc" {
		order = "desc"
	}

	var snapshots []*model.Snapshot
	err := q.Order(orderBy + " " + order).Limit(p.Limit).Offset(p.Offset).Find(&snapshots).Error
	return snapshots, total, err
}

func (g *GormStore) ListSnapshotsCreatedBetween(ctx context.Context, from, to time.Time) ([]*model.Snapshot, error) {
	var snapshots []*model.Snapshot
	err := g.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at asc").
		Find(&snapshots).Error
	return snapshots, err
}

func (g *GormStore) DeleteSnapshot(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Snapshot{}).Error
}

func (g *GormStore) DeleteSnapshots(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Where("id in (?)", ids).Delete(&model.Snapshot{}).Error
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}
