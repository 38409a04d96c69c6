package model

import "time"

// Session is one run of the detection loop over a source.
type Session struct {
	ID              string     `json:"id"`
	Source          string     `json:"source"`
	SourceKind      string     `json:"source_kind"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Error           string     `json:"error,omitempty"`
	FramesProcessed int64      `json:"frames_processed"`
	Snapshots       int64      `json:"snapshots"`
}

// Running reports whether the session has not ended yet.
func (s *Session) Running() bool {
	return s.EndedAt == nil
}
