package locks

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	if err := l.Acquire("serve"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !l.Held() {
		t.Error("Held() = false after Acquire")
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.HasPrefix(string(data), "serve ") {
		t.Errorf("lock metadata = %q, want owner first", data)
	}

	l.Release()
	if l.Held() {
		t.Error("Held() = true after Release")
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
}

func TestAcquireTwiceIsNoop(t *testing.T) {
	l := New(t.TempDir())
	if err := l.Acquire("run"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l.Release()
	if err := l.Acquire("run"); err != nil {
		t.Errorf("second Acquire: %v", err)
	}
}

func TestConflictNamesHolder(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	if err := first.Acquire("serve"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	// flock locks belong to the open file description, so a second handle
	// in the same process conflicts like another process would.
	second := New(dir)
	err := second.Acquire("cleanup")
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
	if !strings.Contains(err.Error(), "serve") {
		t.Errorf("err = %v, want holder named", err)
	}
	if second.Held() {
		t.Error("second lock should not be held")
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	if err := first.Acquire("serve"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first.Release()

	second := New(dir)
	if err := second.Acquire("run"); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
	second.Release()
}

func TestReleaseWithoutAcquire(t *testing.T) {
	l := New(t.TempDir())
	l.Release()
	if l.Held() {
		t.Error("Held() = true")
	}
}
