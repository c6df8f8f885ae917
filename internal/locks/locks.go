// Package locks guards the state directory with an advisory flock so only
// one applyflow process at a time owns the browsers recorded there.
package locks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("state directory is in use by another applyflow process")

const lockFile = "applyflow.lock"

// Lock is an exclusive, non-blocking flock on <dir>/applyflow.lock.
type Lock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// New returns a Lock for dir. Nothing is acquired yet.
func New(dir string) *Lock {
	return &Lock{path: filepath.Join(dir, lockFile)}
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock for owner (e.g. "serve" or "run"). It fails
// immediately with ErrLocked, naming the holder, if another process has it.
func (l *Lock) Acquire(owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}

	// Non-blocking exclusive lock
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(f)
		f.Close()
		if holder != "" {
			return fmt.Errorf("%w (held by %s)", ErrLocked, holder)
		}
		return ErrLocked
	}

	// Write lock metadata
	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%s %d %s\n", owner, os.Getpid(), time.Now().Format(time.RFC3339))

	l.file = f
	return nil
}

// Held reports whether this process holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Release drops the lock and removes the lock file. Safe to call when the
// lock is not held.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	os.Remove(l.path)
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
}

func readHolder(f *os.File) string {
	buf := make([]byte, 256)
	n, _ := f.ReadAt(buf, 0)
	return strings.TrimSpace(string(buf[:n]))
}
