package storage

import (
	"context"
	"os"
	"sync"
	"time"

	"wastesort/internal/category"
	"wastesort/internal/logger"
	"wastesort/internal/model"
	"wastesort/internal/repository"
	"wastesort/internal/service/recorder"
	"wastesort/internal/vision"
)

const (
	// IndexBufferLimit limits how many snapshots wait in memory before new ones are dropped.
	IndexBufferLimit = 256
	// IndexFlushInterval defines how often buffered snapshots are written to the database.
	IndexFlushInterval = 2 * time.Second
)

type pendingSnapshot struct {
	sessionID  string
	action     recorder.PersistAction
	capturedAt time.Time
	detections []vision.Detection
}

// IndexService buffers written snapshots in memory and periodically stores
// them with their detections in the database. The detection loop only
// appends to the buffer, so a slow database never stalls it.
type IndexService struct {
	pending       []pendingSnapshot
	mu            sync.Mutex
	logger        *logger.Logger
	table         *category.Table
	snapshotRepo  repository.SnapshotRepository
	detectionRepo repository.DetectionRepository
}

// NewIndexService creates a new IndexService.
func NewIndexService(logger *logger.Logger, table *category.Table, snapshotRepo repository.SnapshotRepository, detectionRepo repository.DetectionRepository) *IndexService {
	return &IndexService{
		pending:       make([]pendingSnapshot, 0),
		logger:        logger,
		table:         table,
		snapshotRepo:  snapshotRepo,
		detectionRepo: detectionRepo,
	}
}

// Run flushes the buffer on a ticker until ctx is cancelled, then flushes
// one last time.
func (s *IndexService) Run(ctx context.Context) {
	ticker := time.NewTicker(IndexFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// ForSession returns the journal the detection loop of one session reports to.
func (s *IndexService) ForSession(sessionID string) *SessionJournal {
	return &SessionJournal{sessionID: sessionID, index: s}
}

func (s *IndexService) add(p pendingSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) >= IndexBufferLimit {
		s.logger.Warning("Snapshot index buffer full, not indexing %s", p.action.Path)
		return
	}
	s.pending = append(s.pending, p)
}

// Pending returns the number of buffered snapshots.
func (s *IndexService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes buffered snapshots to the database. Failures are logged and
// the affected snapshot is dropped from the index; the file stays on disk.
func (s *IndexService) Flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = make([]pendingSnapshot, 0, len(batch))
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	saved := 0
	for _, p := range batch {
		var size int64
		if info, err := os.Stat(p.action.Path); err == nil {
			size = info.Size()
		}

		snapshotID, err := s.snapshotRepo.Insert(&model.Snapshot{
			SessionID:  p.sessionID,
			Index:      p.action.Index,
			Filename:   p.action.Name,
			FilePath:   p.action.Path,
			FileSize:   size,
			CapturedAt: p.capturedAt,
		})
		if err != nil {
			s.logger.Warning("Error indexing snapshot %s: %v", p.action.Path, err)
			continue
		}

		if len(p.detections) > 0 {
			dbDetections := make([]model.Detection, 0, len(p.detections))
			for _, det := range p.detections {
				dbDetections = append(dbDetections, model.Detection{
					SnapshotID: snapshotID,
					Label:      det.Label,
					Category:   s.categoryOf(det.Label),
					X:          det.Box.Min.X,
					Y:          det.Box.Min.Y,
					Width:      det.Box.Dx(),
					Height:     det.Box.Dy(),
					Confidence: float64(det.Confidence),
				})
			}
			if err := s.detectionRepo.InsertBatch(dbDetections); err != nil {
				s.logger.Warning("Error indexing detections of %s: %v", p.action.Path, err)
			}
		}
		saved++
	}

	s.logger.Info("Indexed %d snapshots", saved)
}

func (s *IndexService) categoryOf(label string) string {
	entry, err := s.table.Lookup(label)
	if err != nil {
		return ""
	}
	return entry.Category.String()
}

// SessionJournal tags snapshots with a session id.
type SessionJournal struct {
	sessionID string
	index     *IndexService
}

// SnapshotSaved queues a written snapshot for indexing.
func (j *SessionJournal) SnapshotSaved(action *recorder.PersistAction, frame *vision.Frame, detections []vision.Detection) {
	capturedAt := frame.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	j.index.add(pendingSnapshot{
		sessionID:  j.sessionID,
		action:     *action,
		capturedAt: capturedAt,
		detections: append([]vision.Detection(nil), detections...),
	})
}
