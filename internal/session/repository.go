package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Page size limits for ListRecent.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Repository stores stream sessions.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	Finish(ctx context.Context, id string, endedAt time.Time, frames, bytes uint64, outcome Outcome, errMsg string) error
	GetByID(ctx context.Context, id string) (*Session, error)
	ListRecent(ctx context.Context, limit int) ([]Session, error)
}

// SQLiteRepository implements Repository on the stream_sessions table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a session. A session that already carries an EndedAt is
// stored finished.
func (r *SQLiteRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" || s.CameraID == "" {
		return ErrInvalidSession
	}
	if s.Outcome == "" {
		s.Outcome = OutcomeRunning
	}

	var endedAt any
	if s.EndedAt != nil {
		endedAt = s.EndedAt.UTC().Format(timeLayout)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stream_sessions
		   (id, camera_id, address, attempt, started_at, ended_at, frames, bytes, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CameraID, s.Address, int64(s.Attempt), //nolint:gosec // Attempt counts never reach 2^63
		s.StartedAt.UTC().Format(timeLayout), endedAt,
		int64(s.Frames), int64(s.Bytes), //nolint:gosec // Counters never reach 2^63
		string(s.Outcome), nullableString(s.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting stream session: %w", err)
	}
	return nil
}

// Finish records the end of a running session.
func (r *SQLiteRepository) Finish(ctx context.Context, id string, endedAt time.Time, frames, bytes uint64, outcome Outcome, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE stream_sessions
		    SET ended_at = ?, frames = ?, bytes = ?, outcome = ?, error = ?
		  WHERE id = ?`,
		endedAt.UTC().Format(timeLayout),
		int64(frames), int64(bytes), //nolint:gosec // Counters never reach 2^63
		string(outcome), nullableString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("finishing stream session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns one session.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListRecent returns up to limit sessions, newest first. A limit outside
// 1..MaxListLimit is clamped.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY started_at DESC, attempt DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying stream sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stream sessions: %w", err)
	}
	return sessions, nil
}

const selectColumns = `SELECT id, camera_id, address, attempt, started_at, ended_at,
	frames, bytes, outcome, error FROM stream_sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s                Session
		attempt          int64
		frames, bytes    int64
		startedAt        string
		endedAt, errText sql.NullString
		outcome          string
	)
	if err := row.Scan(&s.ID, &s.CameraID, &s.Address, &attempt, &startedAt, &endedAt,
		&frames, &bytes, &outcome, &errText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning stream session: %w", err)
	}

	started, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	s.StartedAt = started
	if endedAt.Valid {
		ended, err := time.Parse(timeLayout, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at %q: %w", endedAt.String, err)
		}
		s.EndedAt = &ended
	}

	s.Attempt = uint64(attempt) //nolint:gosec // Stored from a uint64
	s.Frames = uint64(frames)   //nolint:gosec // Stored from a uint64
	s.Bytes = uint64(bytes)     //nolint:gosec // Stored from a uint64
	s.Outcome = Outcome(outcome)
	s.Error = errText.String
	return &s, nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
