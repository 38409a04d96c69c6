package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"wastesort/internal/control"
	"wastesort/internal/logger"
	"wastesort/internal/model"
	"wastesort/internal/repository"
	"wastesort/internal/source"
)

// ErrSessionRunning is returned by Start while another session is active.
var ErrSessionRunning = errors.New("a session is already running")

// ManagerDeps are the long-lived collaborators shared by all sessions.
// Sessions and JournalFor may be nil.
type ManagerDeps struct {
	Open       func(spec string) (source.Source, error)
	Detector   Detector
	Annotator  FrameAnnotator
	Aggregator AdvisoryAggregator
	Recorder   SnapshotRecorder
	Display    DisplaySink
	Cell       *control.Cell
	Sessions   repository.SessionRepository
	JournalFor func(sessionID string) Journal
}

// SessionStatus describes the current or last session.
type SessionStatus struct {
	ID        string        `json:"id,omitempty"`
	Source    string        `json:"source,omitempty"`
	Running   bool          `json:"running"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Reason    Reason        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Stats     StatsSnapshot `json:"stats"`
	Control   control.State `json:"control"`
}

type session struct {
	id        string
	source    string
	startedAt time.Time
	loop      *Loop
	done      chan struct{}

	// Set before done is closed
	endedAt time.Time
	result  Result
	err     error
}

// Manager runs at most one detection session at a time, each on its own
// goroutine.
type Manager struct {
	deps   ManagerDeps
	opts   Options
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *session
}

func NewManager(deps ManagerDeps, opts Options, logger *logger.Logger) *Manager {
	if deps.Open == nil {
		deps.Open = source.Open
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:   deps,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start opens spec and runs a new session on it. The control mode is reset
// to Running first, so a previous exit request does not end the new session.
func (m *Manager) Start(spec string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !isDone(m.current.done) {
		return "", ErrSessionRunning
	}

	src, err := m.deps.Open(spec)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}

	id := uuid.NewString()
	started := time.Now()
	m.deps.Cell.SetMode(control.Running)

	if m.deps.Sessions != nil {
		kind, _, _ := source.Classify(spec)
		if err := m.deps.Sessions.Insert(&model.Session{
			ID:         id,
			Source:     spec,
			SourceKind: kind.String(),
			StartedAt:  started,
		}); err != nil {
			m.logger.Warning("Failed to record session %s: %v", id, err)
		}
	}

	deps := Deps{
		Source:     src,
		Detector:   m.deps.Detector,
		Annotator:  m.deps.Annotator,
		Aggregator: m.deps.Aggregator,
		Recorder:   m.deps.Recorder,
		Display:    m.deps.Display,
		State:      m.deps.Cell,
	}
	if m.deps.JournalFor != nil {
		deps.Journal = m.deps.JournalFor(id)
	}

	s := &session{
		id:        id,
		source:    src.Describe(),
		startedAt: started,
		loop:      NewLoop(deps, m.opts, m.logger),
		done:      make(chan struct{}),
	}
	m.current = s

	m.logger.Info("Session %s started on %s", id, s.source)
	go m.run(s, src)
	return id, nil
}

func (m *Manager) run(s *session, src source.Source) {
	result, err := s.loop.Run(m.ctx)

	if cerr := src.Close(); cerr != nil {
		m.logger.Warning("Failed to close source of session %s: %v", s.id, cerr)
	}

	s.endedAt = time.Now()
	s.result = result
	s.err = err

	if m.deps.Sessions != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if ferr := m.deps.Sessions.Finish(s.id, s.endedAt, string(result.Reason), errMsg, result.FramesProcessed, result.Snapshots); ferr != nil {
			m.logger.Warning("Failed to record end of session %s: %v", s.id, ferr)
		}
	}

	if err != nil {
		m.logger.Error("Session %s failed (%s) after %d frames: %v", s.id, result.Reason, result.FramesProcessed, err)
	} else {
		m.logger.Info("Session %s ended (%s) after %d frames, %d snapshots", s.id, result.Reason, result.FramesProcessed, result.Snapshots)
	}
	close(s.done)
}

// Stop requests Exiting and waits for the running session to end or for
// ctx to expire. A detector call in progress is allowed to finish.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil || isDone(s.done) {
		return nil
	}

	m.deps.Cell.SetMode(control.Exiting)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the current session, if any, has ended.
func (m *Manager) Wait() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s != nil {
		<-s.done
	}
}

// Shutdown cancels the running session and waits for it.
func (m *Manager) Shutdown() {
	m.cancel()
	m.Wait()
}

// Status reports the current session, or the last one if none is running.
func (m *Manager) Status() SessionStatus {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	status := SessionStatus{Control: m.deps.Cell.Read()}
	if s == nil {
		return status
	}

	status.ID = s.id
	status.Source = s.source
	status.StartedAt = s.startedAt
	status.Stats = s.loop.Stats().Snapshot()

	if !isDone(s.done) {
		status.Running = true
		return status
	}

	ended := s.endedAt
	status.EndedAt = &ended
	status.Reason = s.result.Reason
	if s.err != nil {
		status.Error = s.err.Error()
	}
	return status
}

func isDone(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
