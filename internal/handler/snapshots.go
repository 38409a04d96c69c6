package handler

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"wastesort/internal/dto"
	"wastesort/internal/logger"
	"wastesort/internal/model"
	"wastesort/internal/repository"
)

// GetSnapshotsHandler returns a filtered, paginated list of snapshots.
// Query: page, limit, session, label, category, dateAfter, dateBefore.
func GetSnapshotsHandler(snapshotRepo repository.SnapshotRepository, detectionRepo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &model.SnapshotFilter{
			SessionID: q.Get("session"),
			Label:     q.Get("label"),
			Category:  q.Get("category"),
			StartDate: parseDate(q.Get("dateAfter")),
			EndDate:   endOfDay(parseDate(q.Get("dateBefore"))),
			Limit:     limit,
			Offset:    (page - 1) * limit,
		}

		snapshots, err := snapshotRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying snapshots from database: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to list snapshots")
			return
		}

		totalCount, err := snapshotRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting snapshots: %v", err)
			totalCount = len(snapshots)
		}

		infos := make([]dto.SnapshotInfo, 0, len(snapshots))
		for _, s := range snapshots {
			labels, err := detectionRepo.GetLabelsBySnapshotID(s.ID)
			if err != nil {
				logger.Error("Error getting labels for snapshot %d: %v", s.ID, err)
			}
			if labels == nil {
				labels = []string{}
			}

			infos = append(infos, dto.SnapshotInfo{
				ID:         s.ID,
				SessionID:  s.SessionID,
				Index:      s.Index,
				Name:       s.Filename,
				Size:       s.FileSize,
				CapturedAt: s.CapturedAt,
				Labels:     labels,
			})
		}

		writeJSON(w, logger, http.StatusOK, dto.SnapshotsData{
			Snapshots:   infos,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// ViewSnapshotHandler serves the image file of the snapshot given by ?id=.
func ViewSnapshotHandler(snapshotRepo repository.SnapshotRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := lookupSnapshot(w, r, snapshotRepo, logger)
		if !ok {
			return
		}
		http.ServeFile(w, r, snapshot.FilePath)
	}
}

// DeleteSnapshotHandler removes the snapshot given by ?id= from disk and
// from the index.
func DeleteSnapshotHandler(snapshotRepo repository.SnapshotRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snapshot, ok := lookupSnapshot(w, r, snapshotRepo, logger)
		if !ok {
			return
		}

		if err := os.Remove(snapshot.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete file %s: %v", snapshot.FilePath, err)
		}
		if err := snapshotRepo.Delete(snapshot.ID); err != nil {
			logger.Error("Failed to delete snapshot %d from database: %v", snapshot.ID, err)
			writeError(w, logger, http.StatusInternalServerError, "failed to delete snapshot")
			return
		}

		logger.Info("Deleted snapshot: %s", snapshot.FilePath)
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"status": "deleted", "id": snapshot.ID})
	}
}

// SnapshotStatsHandler returns totals, per-category counts and top labels.
func SnapshotStatsHandler(snapshotRepo repository.SnapshotRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := snapshotRepo.GetStats()
		if err != nil {
			logger.Error("Error getting snapshot stats: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to get stats")
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}

// LabelsHandler returns every label stored in the index, for filter lists.
func LabelsHandler(detectionRepo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labels, err := detectionRepo.GetAllLabels()
		if err != nil {
			logger.Error("Error getting labels: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to get labels")
			return
		}
		if labels == nil {
			labels = []string{}
		}
		writeJSON(w, logger, http.StatusOK, labels)
	}
}

func lookupSnapshot(w http.ResponseWriter, r *http.Request, snapshotRepo repository.SnapshotRepository, logger *logger.Logger) (*model.Snapshot, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "id parameter is required")
		return nil, false
	}

	snapshot, err := snapshotRepo.GetByID(id)
	if err != nil {
		logger.Error("Error getting snapshot %d: %v", id, err)
		writeError(w, logger, http.StatusInternalServerError, "failed to get snapshot")
		return nil, false
	}
	if snapshot == nil {
		writeError(w, logger, http.StatusNotFound, "snapshot not found")
		return nil, false
	}
	return snapshot, true
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(24*time.Hour - time.Nanosecond)
}
