package storage

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wastesort/internal/category"
	"wastesort/internal/logger"
	"wastesort/internal/model"
	"wastesort/internal/repository/sqlite"
	"wastesort/internal/service/recorder"
	"wastesort/internal/vision"
)

func newTestIndex(t *testing.T) (*IndexService, *sqlite.SnapshotRepository, *sqlite.DetectionRepository) {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	snapshots := sqlite.NewSnapshotRepository(db)
	detections := sqlite.NewDetectionRepository(db)
	return NewIndexService(logger.NewDiscard(), category.Default(), snapshots, detections), snapshots, detections
}

func TestIndexService_Flush(t *testing.T) {
	index, snapshots, detections := newTestIndex(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "000001.jpg")
	if err := os.WriteFile(path, make([]byte, 42), 0644); err != nil {
		t.Fatal(err)
	}

	frame := &vision.Frame{Width: 10, Height: 10, CapturedAt: time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)}
	journal := index.ForSession("s1")
	journal.SnapshotSaved(&recorder.PersistAction{Path: path, Name: "000001.jpg", Index: 1}, frame, []vision.Detection{
		{Box: image.Rect(1, 2, 5, 8), Label: "battery", Confidence: 0.9},
		{Box: image.Rect(0, 0, 1, 1), Label: "hoverboard", Confidence: 0.3},
	})

	if index.Pending() != 1 {
		t.Fatalf("Expected 1 pending snapshot, got %d", index.Pending())
	}
	index.Flush()
	if index.Pending() != 0 {
		t.Errorf("Buffer not emptied by Flush")
	}

	list, err := snapshots.GetAll(&model.SnapshotFilter{SessionID: "s1"})
	if err != nil || len(list) != 1 {
		t.Fatalf("GetAll = %v, %v", list, err)
	}
	s := list[0]
	if s.Index != 1 || s.FileSize != 42 || !s.CapturedAt.Equal(frame.CapturedAt) {
		t.Errorf("Unexpected snapshot %+v", s)
	}

	dets, err := detections.GetBySnapshotID(s.ID)
	if err != nil || len(dets) != 2 {
		t.Fatalf("GetBySnapshotID = %v, %v", dets, err)
	}
	if dets[0].Category != "Hazardous" || dets[0].Width != 4 || dets[0].Height != 6 {
		t.Errorf("Unexpected detection %+v", dets[0])
	}
	if dets[1].Category != "" {
		t.Errorf("Unknown label should have no category, got %q", dets[1].Category)
	}
}

func TestIndexService_BufferLimit(t *testing.T) {
	index, _, _ := newTestIndex(t)
	journal := index.ForSession("s")
	frame := &vision.Frame{}

	for i := 0; i < IndexBufferLimit+5; i++ {
		journal.SnapshotSaved(&recorder.PersistAction{Path: "/x", Index: int64(i)}, frame, nil)
	}
	if index.Pending() != IndexBufferLimit {
		t.Errorf("Pending = %d, expected %d", index.Pending(), IndexBufferLimit)
	}
}

func TestIndexService_RunFlushesOnCancel(t *testing.T) {
	index, snapshots, _ := newTestIndex(t)
	index.ForSession("s").SnapshotSaved(&recorder.PersistAction{Path: "/nowhere/000000.jpg", Name: "000000.jpg"}, &vision.Frame{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		index.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if count, _ := snapshots.GetTotalCount(&model.SnapshotFilter{}); count != 1 {
		t.Errorf("Expected the pending snapshot to be flushed, count = %d", count)
	}
}

func TestBackfill(t *testing.T) {
	_, snapshots, _ := newTestIndex(t)

	dir := t.TempDir()
	for _, name := range []string{"000000.jpg", "000001.jpg", "notes.txt", "12.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	added, err := Backfill(dir, "legacy", snapshots)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected 2 snapshots added, got %d", added)
	}

	added, err = Backfill(dir, "legacy", snapshots)
	if err != nil || added != 0 {
		t.Errorf("Second backfill added %d, %v", added, err)
	}
}
