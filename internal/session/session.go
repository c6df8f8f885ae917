// Package session tracks automation sessions for status polling and
// reclaims them once their retention window has passed.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for unknown or already swept ids.
var ErrSessionNotFound = errors.New("automation session not found")

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusInitializing:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

// Resource is anything a session must close when it is released, usually
// the browser.
type Resource interface {
	Close() error
}

// CloserFunc adapts a function to Resource.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID                    string    `json:"-"`
	Status                Status    `json:"status"`
	Error                 string    `json:"error,omitempty"`
	ApplicationsSubmitted int       `json:"applicationsSubmitted"`
	Created               time.Time `json:"-"`
	Finished              time.Time `json:"-"`
}

// Session is one automation run. Only its own workflow mutates it; any
// number of readers may take snapshots.
type Session struct {
	ID      string
	Created time.Time

	mu        sync.RWMutex
	status    Status
	errMsg    string
	applied   int
	finished  time.Time
	resources []Resource
	released  bool
	done      chan struct{}
}

func newSession(id string, created time.Time) *Session {
	return &Session{
		ID:      id,
		Created: created,
		status:  StatusInitializing,
		done:    make(chan struct{}),
	}
}

// transition moves forward only. It reports whether the state changed.
func (s *Session) transition(to Status, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() || to.rank() <= s.status.rank() {
		return false
	}
	s.status = to
	if to.Terminal() {
		s.errMsg = errMsg
		s.finished = time.Now()
		close(s.done)
	}
	return true
}

// MarkRunning moves an initializing session to running.
func (s *Session) MarkRunning() bool {
	return s.transition(StatusRunning, "")
}

// Complete finishes the session successfully.
func (s *Session) Complete() bool {
	return s.transition(StatusCompleted, "")
}

// Fail finishes the session with err's message.
func (s *Session) Fail(err error) bool {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return s.transition(StatusFailed, msg)
}

// IncrementApplied counts one submitted application and returns the new
// total. It has no effect unless the session is running.
func (s *Session) IncrementApplied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		s.applied++
	}
	return s.applied
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Done is closed once the session reaches a terminal status.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:                    s.ID,
		Status:                s.status,
		Error:                 s.errMsg,
		ApplicationsSubmitted: s.applied,
		Created:               s.Created,
		Finished:              s.finished,
	}
}

// Attach hands r to the session. If the session was already released, r is
// closed immediately.
func (s *Session) Attach(r Resource) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return r.Close()
	}
	s.resources = append(s.resources, r)
	s.mu.Unlock()
	return nil
}

// Release closes every attached resource, last attached first. Each
// resource is closed exactly once no matter how often Release is called.
func (s *Session) Release() error {
	s.mu.Lock()
	rs := s.resources
	s.resources = nil
	s.released = true
	s.mu.Unlock()

	var errs []error
	for i := len(rs) - 1; i >= 0; i-- {
		if err := rs[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
