package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	start := time.UnixMilli(1_700_000_000_000)

	if err := s.StartSession(ctx, "1700000000000", "Go", start); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	rec, err := s.Session(ctx, "1700000000000")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if rec.Status != "running" || !rec.FinishedAt.IsZero() {
		t.Errorf("started record = %+v", rec)
	}

	end := start.Add(3 * time.Minute)
	if err := s.FinishSession(ctx, "1700000000000", "completed", "", 2, end); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	rec, err = s.Session(ctx, "1700000000000")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if rec.Status != "completed" || rec.ApplicationsSubmitted != 2 || rec.Error != "" {
		t.Errorf("finished record = %+v", rec)
	}
	if !rec.StartedAt.Equal(start) || !rec.FinishedAt.Equal(end) {
		t.Errorf("timestamps = %v .. %v", rec.StartedAt, rec.FinishedAt)
	}
}

func TestFinishUnknownSession(t *testing.T) {
	s := openTestStore(t)
	err := s.FinishSession(context.Background(), "nope", "failed", "boom", 0, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.Session(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Session err = %v, want ErrNotFound", err)
	}
}

func TestRecordAttempts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.UnixMilli(1_700_000_000_000)
	s.StartSession(ctx, "s1", "Go", now)

	attempts := []Attempt{
		{SessionID: "s1", ItemIndex: 1, Outcome: "failed", Error: "continue: element not found", StartedAt: now, FinishedAt: now.Add(time.Second)},
		{SessionID: "s1", ItemIndex: 0, Outcome: "applied", StartedAt: now, FinishedAt: now.Add(time.Second)},
	}
	for _, a := range attempts {
		id, err := s.RecordAttempt(ctx, a)
		if err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("attempt id %q is not a uuid: %v", id, err)
		}
	}

	got, err := s.Attempts(ctx, "s1")
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(attempts) = %d, want 2", len(got))
	}
	if got[0].ItemIndex != 0 || got[0].Outcome != "applied" || got[0].Error != "" {
		t.Errorf("attempts[0] = %+v", got[0])
	}
	if got[1].Error != "continue: element not found" {
		t.Errorf("attempts[1].Error = %q", got[1].Error)
	}
}

func TestRecordAttemptRequiresSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.RecordAttempt(context.Background(), Attempt{SessionID: "ghost", Outcome: "applied", StartedAt: time.Now(), FinishedAt: time.Now()})
	if err == nil {
		t.Error("expected foreign key violation for unknown session")
	}
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"a", "b", "c"} {
		s.StartSession(ctx, id, "Go", base.Add(time.Duration(i)*time.Minute))
	}

	got, err := s.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("RecentSessions = %+v", got)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.StartSession(context.Background(), "x", "", time.Now())
	s.Close()

	s, err = Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Session(context.Background(), "x"); err != nil {
		t.Errorf("session lost across reopen: %v", err)
	}
}
