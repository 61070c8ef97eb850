package model

import "gorm.io/gorm"

// Snapshot is a named point-in-time capture of a document. Unlike client
// snapshots it stores the raw replicated state and the state vector, not
// just serialized content, so future versions can diff against it.
type Snapshot struct {
	gorm.Model
	ID          string `gorm:"primaryKey;not null"`
	DocumentID  string `gorm:"index;not null"`
	Owner       string `gorm:"index;not null"`
	Project     string `gorm:"index;not null"`
	UserID      string `gorm:"not null"`
	Name        string `gorm:"not null"`
	Description string
	RawState    []byte `gorm:"not null"`
	StateVector []byte
	WordCount   int
	Metadata    string // free-form JSON
	Compression string
}

func (Snapshot) TableName() string {
	return "snapshots"
}
