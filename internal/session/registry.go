package session

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Registry maps session ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lastID   int64
	now      func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Create registers a new initializing session. Its id is the creation time
// in Unix milliseconds, bumped past the previous id on collision.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id := now.UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id

	s := newSession(strconv.FormatInt(id, 10), now)
	r.sessions[s.ID] = s
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Status returns a snapshot of the session with id.
func (r *Registry) Status(id string) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of every session, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Sweep releases and removes every session created before now-retention,
// whatever its status. It returns the removed ids.
func (r *Registry) Sweep(retention time.Duration) []string {
	r.mu.RLock()
	cutoff := r.now().Add(-retention)
	var expired []*Session
	for _, s := range r.sessions {
		if s.Created.Before(cutoff) {
			expired = append(expired, s)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return nil
	}

	// Release before removal so the browser is closed while the entry is
	// still visible.
	for _, s := range expired {
		_ = s.Release()
	}

	ids := make([]string, 0, len(expired))
	r.mu.Lock()
	for _, s := range expired {
		if r.sessions[s.ID] == s {
			delete(r.sessions, s.ID)
			ids = append(ids, s.ID)
		}
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// RunSweeper sweeps every interval until ctx is done. onSweep, if set,
// receives the ids removed by each non-empty sweep.
func (r *Registry) RunSweeper(ctx context.Context, interval, retention time.Duration, onSweep func(ids []string)) {
	if interval <= 0 {
		interval = retention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := r.Sweep(retention); len(ids) > 0 && onSweep != nil {
				onSweep(ids)
			}
		}
	}
}

// ReleaseAll closes every session's resources without removing the
// entries. Used on shutdown.
func (r *Registry) ReleaseAll() {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		_ = s.Release()
	}
}
