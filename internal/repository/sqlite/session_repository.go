package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"wastesort/internal/model"
)

// SessionRepository implements repository.SessionRepository for SQLite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert adds a started session.
func (r *SessionRepository) Insert(s *model.Session) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO sessions (id, source, source_kind, started_at)
		VALUES (?, ?, ?, ?)
	`, s.ID, s.Source, s.SourceKind, s.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Finish stores the outcome of a session.
func (r *SessionRepository) Finish(id string, endedAt time.Time, reason, errMsg string, frames, snapshots int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE sessions
		SET ended_at = ?, reason = ?, error = ?, frames_processed = ?, snapshots = ?
		WHERE id = ?
	`, endedAt, reason, errMsg, frames, snapshots, id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetByID retrieves a session, or nil when it does not exist.
func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, source, source_kind, started_at, ended_at, reason, error, frames_processed, snapshots
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetRecent returns the newest sessions first.
func (r *SessionRepository) GetRecent(limit int) ([]model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Conn().Query(`
		SELECT id, source, source_kind, started_at, ended_at, reason, error, frames_processed, snapshots
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var s model.Session
	var ended sql.NullTime
	if err := row.Scan(&s.ID, &s.Source, &s.SourceKind, &s.StartedAt, &ended, &s.Reason, &s.Error, &s.FramesProcessed, &s.Snapshots); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return &s, nil
}
