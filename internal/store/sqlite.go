package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clauseguard/internal/logging"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements CheckpointStore on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteStore initializes the database at the given path, creating
// directories and schema as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Initializing checkpoint store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			session_id TEXT PRIMARY KEY,
			state      BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// Save overwrites the snapshot for a session.
func (s *SQLiteStore) Save(sessionID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Saving checkpoint: session=%s size=%d", sessionID, len(state))

	_, err := s.db.Exec(
		`INSERT INTO checkpoints (session_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at`,
		sessionID, state, time.Now().UTC(),
	)
	if err != nil {
		logging.StoreError("Failed to save checkpoint for %s: %v", sessionID, err)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the last snapshot, or ErrNoCheckpoint.
func (s *SQLiteStore) Load(sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state []byte
	err := s.db.QueryRow(
		"SELECT state FROM checkpoints WHERE session_id = ?", sessionID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		logging.StoreError("Failed to load checkpoint for %s: %v", sessionID, err)
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	logging.StoreDebug("Loaded checkpoint: session=%s size=%d", sessionID, len(state))
	return state, nil
}

// List returns stored sessions, newest first.
func (s *SQLiteStore) List() ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT session_id, updated_at, LENGTH(state) FROM checkpoints ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.SessionID, &info.UpdatedAt, &info.Size); err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a session's snapshot.
func (s *SQLiteStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM checkpoints WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
