package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ezbridge/internal/core"
)

// SQLiteStorage persists the vendor access token and the privacy change
// event history. All camera state itself stays in process memory.
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ezviz_token (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			access_token TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS privacy_events (
			id TEXT PRIMARY KEY,
			device_serial TEXT NOT NULL,
			device_name TEXT NOT NULL,
			old_state TEXT NOT NULL,
			new_state TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_privacy_events_serial ON privacy_events(device_serial);
		CREATE INDEX IF NOT EXISTS idx_privacy_events_created ON privacy_events(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// LoadToken returns the persisted access token, if any
func (s *SQLiteStorage) LoadToken(ctx context.Context) (string, time.Time, error) {
	var token string
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, expires_at FROM ezviz_token WHERE id = 1
	`).Scan(&token, &expiresAt)

	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load token: %w", err)
	}

	return token, expiresAt, nil
}

// SaveToken stores the access token, replacing any previous one
func (s *SQLiteStorage) SaveToken(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ezviz_token (id, access_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, token, expiresAt, time.Now())

	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// AppendEvent records one privacy change in the history log
func (s *SQLiteStorage) AppendEvent(ctx context.Context, evt core.ChangeEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO privacy_events (id, device_serial, device_name, old_state, new_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, evt.ID, evt.Serial, evt.Name, string(evt.OldState), string(evt.NewState), evt.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent privacy changes, newest first
func (s *SQLiteStorage) RecentEvents(ctx context.Context, limit int) ([]core.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_serial, device_name, old_state, new_state, created_at
		FROM privacy_events
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]core.ChangeEvent, 0, limit)
	for rows.Next() {
		var evt core.ChangeEvent
		var oldState, newState string
		if err := rows.Scan(&evt.ID, &evt.Serial, &evt.Name, &oldState, &newState, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		evt.OldState = core.PrivacyState(oldState)
		evt.NewState = core.PrivacyState(newState)
		events = append(events, evt)
	}

	return events, rows.Err()
}
