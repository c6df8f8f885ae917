package session

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
)

type countingCloser struct {
	closes atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closes.Add(1)
	return nil
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name  string
		steps func(s *Session)
		want  Status
	}{
		{"initial", func(*Session) {}, StatusInitializing},
		{"running", func(s *Session) { s.MarkRunning() }, StatusRunning},
		{"completed", func(s *Session) { s.MarkRunning(); s.Complete() }, StatusCompleted},
		{"failed before running", func(s *Session) { s.Fail(errors.New("launch")) }, StatusFailed},
		{"no failure after completion", func(s *Session) { s.MarkRunning(); s.Complete(); s.Fail(errors.New("late")) }, StatusCompleted},
		{"no running after failure", func(s *Session) { s.Fail(nil); s.MarkRunning() }, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession("1", fixedNow)
			tt.steps(s)
			if got := s.Status(); got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMarkRunningTwice(t *testing.T) {
	s := newSession("1", fixedNow)
	if !s.MarkRunning() {
		t.Fatal("first MarkRunning should succeed")
	}
	if s.MarkRunning() {
		t.Error("second MarkRunning should be a no-op")
	}
}

func TestFailRecordsMessage(t *testing.T) {
	s := newSession("1", fixedNow)
	s.MarkRunning()
	s.Fail(errors.New("authentication failed: element not found"))

	snap := s.Snapshot()
	if snap.Error != "authentication failed: element not found" {
		t.Errorf("error = %q", snap.Error)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed after Fail")
	}
}

func TestIncrementAppliedOnlyWhileRunning(t *testing.T) {
	s := newSession("1", fixedNow)
	if n := s.IncrementApplied(); n != 0 {
		t.Errorf("count while initializing = %d, want 0", n)
	}
	s.MarkRunning()
	s.IncrementApplied()
	s.IncrementApplied()
	s.Complete()
	if n := s.IncrementApplied(); n != 2 {
		t.Errorf("count after completion = %d, want 2", n)
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := newSession("1", fixedNow)
	s.MarkRunning()
	s.IncrementApplied()
	s.Complete()

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"status":"completed","applicationsSubmitted":1}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestReleaseClosesOnce(t *testing.T) {
	s := newSession("1", fixedNow)
	browser := &countingCloser{}
	var order []string
	s.Attach(browser)
	s.Attach(CloserFunc(func() error {
		order = append(order, "cancel")
		return nil
	}))

	s.Release()
	s.Release()

	if n := browser.closes.Load(); n != 1 {
		t.Errorf("browser closed %d times, want 1", n)
	}
	if len(order) != 1 {
		t.Errorf("cancel ran %d times, want 1", len(order))
	}
}

func TestAttachAfterReleaseClosesImmediately(t *testing.T) {
	s := newSession("1", fixedNow)
	s.Release()

	late := &countingCloser{}
	s.Attach(late)
	if n := late.closes.Load(); n != 1 {
		t.Errorf("late resource closed %d times, want 1", n)
	}
	s.Release()
	if n := late.closes.Load(); n != 1 {
		t.Errorf("late resource closed %d times after second release, want 1", n)
	}
}
