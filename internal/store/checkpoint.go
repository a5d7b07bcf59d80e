// Package store persists workflow checkpoints. The state machine hands over
// opaque JSON snapshots keyed by session ID; the engine behind the interface
// is swappable (SQLite for production, memory for tests).
package store

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoCheckpoint reports that a session has no saved state.
var ErrNoCheckpoint = errors.New("no checkpoint for session")

// SessionInfo summarizes one stored session.
type SessionInfo struct {
	SessionID string
	UpdatedAt time.Time
	Size      int
}

// CheckpointStore is the durable keyed snapshot storage the workflow state
// machine writes after every step.
type CheckpointStore interface {
	// Save overwrites the snapshot for a session.
	Save(sessionID string, state []byte) error
	// Load returns the last snapshot, or ErrNoCheckpoint.
	Load(sessionID string) ([]byte, error)
	// List returns stored sessions, newest first.
	List() ([]SessionInfo, error)
	// Delete removes a session's snapshot. Deleting a missing session is
	// not an error.
	Delete(sessionID string) error
	// Close releases underlying resources.
	Close() error
}

// MemoryStore is an in-process CheckpointStore for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memEntry
}

type memEntry struct {
	state     []byte
	updatedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memEntry)}
}

// Save stores a copy of the snapshot.
func (m *MemoryStore) Save(sessionID string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(state))
	copy(cp, state)
	m.sessions[sessionID] = memEntry{state: cp, updatedAt: time.Now()}
	return nil
}

// Load returns a copy of the last snapshot.
func (m *MemoryStore) Load(sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNoCheckpoint
	}
	cp := make([]byte, len(entry.state))
	copy(cp, entry.state)
	return cp, nil
}

// List returns stored sessions, newest first.
func (m *MemoryStore) List() ([]SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for id, entry := range m.sessions {
		out = append(out, SessionInfo{SessionID: id, UpdatedAt: entry.updatedAt, Size: len(entry.state)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }
