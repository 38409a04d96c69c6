package sqlite

import (
	"database/sql"
	"fmt"

	"wastesort/internal/model"
)

// SnapshotRepository implements repository.SnapshotRepository for SQLite.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new SQLite snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert adds a snapshot record. A file written again at the same path
// replaces the previous record and its detections.
func (r *SnapshotRepository) Insert(s *model.Snapshot) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM detections WHERE snapshot_id IN (SELECT id FROM snapshots WHERE filepath = ?)`, s.FilePath); err != nil {
		return 0, fmt.Errorf("failed to delete replaced detections: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE filepath = ?`, s.FilePath); err != nil {
		return 0, fmt.Errorf("failed to delete replaced snapshot: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO snapshots (session_id, idx, filename, filepath, filesize, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.SessionID, s.Index, s.Filename, s.FilePath, s.FileSize, s.CapturedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetByID retrieves a snapshot by its ID.
func (r *SnapshotRepository) GetByID(id int64) (*model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var s model.Snapshot
	err := r.db.Conn().QueryRow(`
		SELECT id, session_id, idx, filename, filepath, filesize, captured_at
		FROM snapshots WHERE id = ?
	`, id).Scan(&s.ID, &s.SessionID, &s.Index, &s.Filename, &s.FilePath, &s.FileSize, &s.CapturedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}

// GetByPath retrieves a snapshot by its file path.
func (r *SnapshotRepository) GetByPath(path string) (*model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var s model.Snapshot
	err := r.db.Conn().QueryRow(`
		SELECT id, session_id, idx, filename, filepath, filesize, captured_at
		FROM snapshots WHERE filepath = ?
	`, path).Scan(&s.ID, &s.SessionID, &s.Index, &s.Filename, &s.FilePath, &s.FileSize, &s.CapturedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}

func applyFilter(query string, filter *model.SnapshotFilter) (string, []interface{}) {
	args := []interface{}{}

	if filter.SessionID != "" {
		query += " AND s.session_id = ?"
		args = append(args, filter.SessionID)
	}

	if filter.Label != "" {
		query += " AND d.label = ?"
		args = append(args, filter.Label)
	}

	if filter.Category != "" {
		query += " AND d.category = ?"
		args = append(args, filter.Category)
	}

	if !filter.StartDate.IsZero() {
		query += " AND s.captured_at >= ?"
		args = append(args, filter.StartDate)
	}

	if !filter.EndDate.IsZero() {
		query += " AND s.captured_at <= ?"
		args = append(args, filter.EndDate)
	}

	return query, args
}

// GetAll retrieves snapshots based on filter criteria, newest first.
func (r *SnapshotRepository) GetAll(filter *model.SnapshotFilter) ([]model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := applyFilter(`
		SELECT DISTINCT s.id, s.session_id, s.idx, s.filename, s.filepath, s.filesize, s.captured_at
		FROM snapshots s
		LEFT JOIN detections d ON s.id = d.snapshot_id
		WHERE 1=1
	`, filter)

	query += " ORDER BY s.captured_at DESC, s.id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.Snapshot
	for rows.Next() {
		var s model.Snapshot
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Index, &s.Filename, &s.FilePath, &s.FileSize, &s.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	return snapshots, rows.Err()
}

// GetTotalCount returns the total count of snapshots matching the filter.
func (r *SnapshotRepository) GetTotalCount(filter *model.SnapshotFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query, args := applyFilter(`
		SELECT COUNT(DISTINCT s.id)
		FROM snapshots s
		LEFT JOIN detections d ON s.id = d.snapshot_id
		WHERE 1=1
	`, filter)

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}

	return count, nil
}

// GetStats returns statistics about stored snapshots.
func (r *SnapshotRepository) GetStats() (*model.SnapshotStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.SnapshotStats{
		PerCategory: make(map[string]int),
		TopLabels:   make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*), COALESCE(SUM(filesize), 0) FROM snapshots`).Scan(&stats.TotalSnapshots, &stats.TotalSizeBytes); err != nil {
		return nil, err
	}

	rows, err := r.db.Conn().Query(`SELECT category, COUNT(*) FROM detections GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.PerCategory[category] = count
	}

	labelRows, err := r.db.Conn().Query(`
		SELECT label, COUNT(*) as cnt
		FROM detections
		GROUP BY label
		ORDER BY cnt DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer labelRows.Close()

	for labelRows.Next() {
		var label string
		var count int
		if err := labelRows.Scan(&label, &count); err != nil {
			return nil, err
		}
		stats.TopLabels[label] = count
	}

	return stats, nil
}

// Delete removes a snapshot and its detections.
func (r *SnapshotRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE snapshot_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// DeleteBySession removes every snapshot of a session.
func (r *SnapshotRepository) DeleteBySession(sessionID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE snapshot_id IN (SELECT id FROM snapshots WHERE session_id = ?)`, sessionID); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM snapshots WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}
