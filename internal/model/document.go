package model

import (
	"gorm.io/gorm"
)

// Document is the durable record of one replicated document. State holds
// the accumulated binary CRDT update log; the live in-memory instance is
// materialized from it on demand.
type Document struct {
	gorm.Model
	ID          string `gorm:"primaryKey;not null"`
	Owner       string `gorm:"index;not null"`
	Project     string `gorm:"index;not null"`
	State       []byte `gorm:"not null"`
	WordCount   int
	Compression string // codec used for the state blob
}

func (Document) TableName() string {
	return "documents"
}
