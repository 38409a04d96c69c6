package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats are the counters of one loop, updated by the loop goroutine and
// read from anywhere.
type Stats struct {
	FramesPulled        atomic.Int64
	FramesProcessed     atomic.Int64
	TransientErrors     atomic.Int64
	SnapshotsWritten    atomic.Int64
	SnapshotFailures    atomic.Int64
	AdvisoriesPresented atomic.Int64
	LastInferenceNanos  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	FramesPulled        int64   `json:"frames_pulled"`
	FramesProcessed     int64   `json:"frames_processed"`
	TransientErrors     int64   `json:"transient_errors"`
	SnapshotsWritten    int64   `json:"snapshots_written"`
	SnapshotFailures    int64   `json:"snapshot_failures"`
	AdvisoriesPresented int64   `json:"advisories_presented"`
	LastInferenceMillis float64 `json:"last_inference_ms"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesPulled:        s.FramesPulled.Load(),
		FramesProcessed:     s.FramesProcessed.Load(),
		TransientErrors:     s.TransientErrors.Load(),
		SnapshotsWritten:    s.SnapshotsWritten.Load(),
		SnapshotFailures:    s.SnapshotFailures.Load(),
		AdvisoriesPresented: s.AdvisoriesPresented.Load(),
		LastInferenceMillis: float64(s.LastInferenceNanos.Load()) / float64(time.Millisecond),
	}
}

// Map returns the snapshot as a generic map for status messages.
func (s StatsSnapshot) Map() map[string]interface{} {
	return map[string]interface{}{
		"frames_pulled":        s.FramesPulled,
		"frames_processed":     s.FramesProcessed,
		"transient_errors":     s.TransientErrors,
		"snapshots_written":    s.SnapshotsWritten,
		"snapshot_failures":    s.SnapshotFailures,
		"advisories_presented": s.AdvisoriesPresented,
		"last_inference_ms":    s.LastInferenceMillis,
	}
}
