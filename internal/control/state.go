// Package control holds the shared run/record state of a detection session
// and the external actors that change it.
//
// The loop only ever polls the Cell. Writers never wait for the loop, and
// the loop never waits for a writer.
package control

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Mode is the run mode requested by the controlling actor.
type Mode int

const (
	Running Mode = iota
	Paused
	Exiting
)

func (m Mode) String() string {
	switch m {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Exiting:
		return "exiting"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts mode names and the legacy control file values
// ("1" running, "0" paused, "2" exiting).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running", "run", "resume", "1":
		return Running, nil
	case "paused", "pause", "0":
		return Paused, nil
	case "exiting", "exit", "stop", "2":
		return Exiting, nil
	default:
		return Running, fmt.Errorf("invalid mode %q", s)
	}
}

// MarshalText lets Mode appear as a string in JSON.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// State is one consistent snapshot of the control state.
type State struct {
	Mode             Mode   `json:"mode"`
	RecordingEnabled bool   `json:"recording_enabled"`
	Destination      string `json:"destination"`
	Version          uint64 `json:"version"`
}

// ShouldRecord reports whether snapshots may be written in this state.
func (s State) ShouldRecord() bool {
	return s.RecordingEnabled && s.Destination != ""
}

// Cell is a lock-free, versioned holder of State. Every successful write
// bumps Version, so readers can tell two reads apart.
type Cell struct {
	state atomic.Pointer[State]
}

// NewCell creates a cell in the Running mode.
func NewCell(recordingEnabled bool, destination string) *Cell {
	c := &Cell{}
	c.state.Store(&State{
		Mode:             Running,
		RecordingEnabled: recordingEnabled,
		Destination:      destination,
	})
	return c
}

// Read returns the current state. The value may be stale as soon as it
// is returned.
func (c *Cell) Read() State {
	return *c.state.Load()
}

// update applies fn to a copy of the current state and publishes it.
func (c *Cell) update(fn func(*State)) State {
	for {
		old := c.state.Load()
		next := *old
		fn(&next)
		next.Version = old.Version + 1
		if c.state.CompareAndSwap(old, &next) {
			return next
		}
	}
}

func (c *Cell) SetMode(mode Mode) State {
	return c.update(func(s *State) { s.Mode = mode })
}

func (c *Cell) SetRecording(enabled bool) State {
	return c.update(func(s *State) { s.RecordingEnabled = enabled })
}

// ToggleRecording flips RecordingEnabled and returns the new state.
func (c *Cell) ToggleRecording() State {
	return c.update(func(s *State) { s.RecordingEnabled = !s.RecordingEnabled })
}

// SetDestination sets the recording directory. An empty path disables
// persistence without touching RecordingEnabled.
func (c *Cell) SetDestination(path string) State {
	return c.update(func(s *State) { s.Destination = strings.TrimSpace(path) })
}
