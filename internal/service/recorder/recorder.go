// Package recorder decides which processed frames are saved as snapshots and
// writes them to disk.
package recorder

import (
	"errors"
	"fmt"
	"path/filepath"

	"wastesort/internal/control"
	"wastesort/internal/vision"
)

// DefaultEvery is the snapshot cadence the file naming scheme assumes.
const DefaultEvery = 10

// Extension is the image extension of snapshot files.
const Extension = ".jpg"

// ErrIOFailure wraps every persistence failure. It is never fatal to a
// session.
var ErrIOFailure = errors.New("snapshot write failed")

// PersistenceSink stores a frame at a path.
type PersistenceSink interface {
	Write(path string, frame *vision.Frame) error
}

// PersistAction describes a snapshot that was written.
type PersistAction struct {
	Path  string
	Name  string
	Index int64 // counter / every
}

// Recorder persists every N-th processed frame while recording is enabled.
type Recorder struct {
	sink  PersistenceSink
	every int64
}

// NewRecorder creates a Recorder. every <= 0 selects DefaultEvery.
func NewRecorder(sink PersistenceSink, every int) *Recorder {
	if every <= 0 {
		every = DefaultEvery
	}
	return &Recorder{sink: sink, every: int64(every)}
}

// SnapshotName returns the file name for a snapshot index.
func SnapshotName(index int64) string {
	return fmt.Sprintf("%06d%s", index, Extension)
}

// MaybePersist writes frame when state allows recording and counter falls
// on the cadence. It returns nil, nil when nothing was due.
func (r *Recorder) MaybePersist(frame *vision.Frame, counter int64, state control.State) (*PersistAction, error) {
	if !state.ShouldRecord() || counter%r.every != 0 {
		return nil, nil
	}

	index := counter / r.every
	name := SnapshotName(index)
	path := filepath.Join(state.Destination, name)

	if err := r.sink.Write(path, frame); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIOFailure, path, err)
	}
	return &PersistAction{Path: path, Name: name, Index: index}, nil
}
