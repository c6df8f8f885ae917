package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTrackAndLoad(t *testing.T) {
	mgr := NewManager(t.TempDir())

	if err := mgr.Track("1700000000000", 4242, 4242); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := mgr.Track("1700000000001", 4343, 0); err != nil {
		t.Fatalf("Track: %v", err)
	}

	st, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Browsers) != 2 {
		t.Fatalf("len(browsers) = %d, want 2", len(st.Browsers))
	}
	if st.Browsers[0].SessionID != "1700000000000" || st.Browsers[0].PID != 4242 {
		t.Errorf("browsers[0] = %+v", st.Browsers[0])
	}
	if st.Browsers[0].StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}
	if st.LastSave.IsZero() {
		t.Error("LastSave should be set after Track")
	}
}

func TestTrackReplacesSameSession(t *testing.T) {
	mgr := NewManager(t.TempDir())
	mgr.Track("s", 1, 0)
	mgr.Track("s", 2, 0)

	st, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(st.Browsers) != 1 || st.Browsers[0].PID != 2 {
		t.Errorf("browsers = %+v, want single record with PID 2", st.Browsers)
	}
}

func TestUntrack(t *testing.T) {
	mgr := NewManager(t.TempDir())
	mgr.Track("a", 1, 0)
	mgr.Track("b", 2, 0)

	if err := mgr.Untrack("a"); err != nil {
		t.Fatalf("Untrack: %v", err)
	}
	if err := mgr.Untrack("missing"); err != nil {
		t.Fatalf("Untrack missing: %v", err)
	}

	st, _ := mgr.Load()
	if len(st.Browsers) != 1 || st.Browsers[0].SessionID != "b" {
		t.Errorf("browsers = %+v, want only b", st.Browsers)
	}
}

func TestUntrackWithoutFile(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.Untrack("a"); err != nil {
		t.Errorf("Untrack: %v", err)
	}
	if mgr.Exists() {
		t.Error("Untrack of nothing should not create the file")
	}
}

func TestExistsAndRemove(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	if mgr.Exists() {
		t.Error("Exists should be false before Track")
	}
	mgr.Track("a", 1, 0)
	if !mgr.Exists() {
		t.Error("Exists should be true after Track")
	}
	if err := mgr.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if mgr.Exists() {
		t.Error("Exists should be false after Remove")
	}
	if err := mgr.Remove(); err != nil {
		t.Errorf("Remove twice: %v", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)
	os.WriteFile(filepath.Join(dir, "sessions.json"), []byte("{not json"), 0o644)

	if _, err := mgr.Load(); err == nil {
		t.Error("expected error for corrupt state file")
	}
	if err := mgr.Track("a", 1, 0); err == nil {
		t.Error("Track should not overwrite a corrupt state file")
	}
}

func TestNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)
	mgr.Track("a", 1, 0)

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}
