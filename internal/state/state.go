// Package state persists the browsers owned by running sessions so a later
// process can find and kill them after a crash.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// BrowserRecord is one browser process owned by a session.
type BrowserRecord struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	PGID      int       `json:"pgid,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// SessionsState is the content of sessions.json.
type SessionsState struct {
	Browsers []BrowserRecord `json:"browsers"`
	LastSave time.Time       `json:"last_save"`
}

// Manager handles sessions.json.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager creates a state Manager storing its file inside dir.
func NewManager(dir string) *Manager {
	return &Manager{
		path: filepath.Join(dir, "sessions.json"),
	}
}

// Path returns the state file location.
func (m *Manager) Path() string { return m.path }

// Track records that sessionID owns the browser process pid.
func (m *Manager) Track(sessionID string, pid, pgid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.loadOrEmpty()
	if err != nil {
		return err
	}
	kept := st.Browsers[:0]
	for _, b := range st.Browsers {
		if b.SessionID != sessionID {
			kept = append(kept, b)
		}
	}
	st.Browsers = append(kept, BrowserRecord{
		SessionID: sessionID,
		PID:       pid,
		PGID:      pgid,
		StartedAt: time.Now(),
	})
	return m.save(st)
}

// Untrack forgets the browser of sessionID.
func (m *Manager) Untrack(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.loadOrEmpty()
	if err != nil {
		return err
	}
	kept := st.Browsers[:0]
	for _, b := range st.Browsers {
		if b.SessionID != sessionID {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(st.Browsers) {
		return nil
	}
	st.Browsers = kept
	return m.save(st)
}

// Load reads the persisted state.
func (m *Manager) Load() (*SessionsState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (*SessionsState, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st SessionsState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &st, nil
}

func (m *Manager) loadOrEmpty() (*SessionsState, error) {
	st, err := m.load()
	if errors.Is(err, fs.ErrNotExist) {
		return &SessionsState{}, nil
	}
	return st, err
}

// save persists the state atomically.
func (m *Manager) save(st *SessionsState) error {
	st.LastSave = time.Now()
	sort.Slice(st.Browsers, func(i, j int) bool {
		return st.Browsers[i].SessionID < st.Browsers[j].SessionID
	})

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "sessions-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Exists returns true if a state file exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Remove deletes the state file.
func (m *Manager) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state: %w", err)
	}
	return nil
}
