package dto

import (
	"encoding/json"
	"time"
)

// SnapshotInfo is a stored snapshot as listed in the gallery.
type SnapshotInfo struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	Index      int64     `json:"index"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	CapturedAt time.Time `json:"capturedAt"`
	Labels     []string  `json:"labels"`
}

// MarshalJSON formats the capture time the way the gallery shows it.
func (s SnapshotInfo) MarshalJSON() ([]byte, error) {
	type Alias SnapshotInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      s.CapturedAt.Format("02-01-2006"),
		TimeOfDay: s.CapturedAt.Format("15:04:05"),
		Alias:     (Alias)(s),
	})
}

// SnapshotsData is a paginated snapshot listing.
type SnapshotsData struct {
	Snapshots   []SnapshotInfo `json:"snapshots"`
	Length      int            `json:"length"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	Limit       int            `json:"pageSize"`
}
