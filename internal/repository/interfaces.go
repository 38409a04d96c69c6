package repository

import (
	"time"

	"wastesort/internal/model"
)

// SessionRepository defines the interface for detection session records.
type SessionRepository interface {
	// Create operations
	Insert(s *model.Session) error

	// Update operations
	Finish(id string, endedAt time.Time, reason, errMsg string, frames, snapshots int64) error

	// Read operations
	GetByID(id string) (*model.Session, error)
	GetRecent(limit int) ([]model.Session, error)
}

// SnapshotRepository defines the interface for snapshot data operations.
type SnapshotRepository interface {
	// Create operations
	Insert(s *model.Snapshot) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Snapshot, error)
	GetByPath(path string) (*model.Snapshot, error)
	GetAll(filter *model.SnapshotFilter) ([]model.Snapshot, error)
	GetTotalCount(filter *model.SnapshotFilter) (int, error)
	GetStats() (*model.SnapshotStats, error)

	// Delete operations
	Delete(id int64) error
	DeleteBySession(sessionID string) error
}

// DetectionRepository defines the interface for detection data operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(detections []model.Detection) error

	// Read operations
	GetBySnapshotID(snapshotID int64) ([]model.Detection, error)
	GetLabelsBySnapshotID(snapshotID int64) ([]string, error)
	GetAllLabels() ([]string, error)
}
