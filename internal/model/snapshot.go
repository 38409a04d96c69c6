package model

import "time"

// Snapshot is a persisted frame.
type Snapshot struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Index      int64     `json:"index"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"filepath"`
	FileSize   int64     `json:"filesize"`
	CapturedAt time.Time `json:"captured_at"`
	Labels     []string  `json:"labels,omitempty"`
}

// SnapshotFilter narrows snapshot listings. Zero values match everything.
type SnapshotFilter struct {
	SessionID string
	Label     string
	Category  string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
	Offset    int
}

// SnapshotStats summarizes the snapshot index.
type SnapshotStats struct {
	TotalSnapshots int            `json:"total_snapshots"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	PerCategory    map[string]int `json:"per_category"`
	TopLabels      map[string]int `json:"top_labels"`
}
