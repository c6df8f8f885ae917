package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/kylegalloway/applyflow/internal/session"
	"github.com/kylegalloway/applyflow/internal/store"
)

func TestFormatProgress(t *testing.T) {
	snap := session.Snapshot{
		ID:                    "1700000000000",
		Status:                session.StatusRunning,
		ApplicationsSubmitted: 2,
	}

	got := FormatProgress(snap, 90*time.Second+400*time.Millisecond)
	for _, want := range []string{"running", "1700000000000", "2 submitted", "1m30s elapsed"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in: %s", want, got)
		}
	}
}

func TestFormatProgressShowsError(t *testing.T) {
	snap := session.Snapshot{Status: session.StatusFailed, Error: "authentication failed: element not found"}
	got := FormatProgress(snap, 0)
	if !strings.Contains(got, "authentication failed") {
		t.Errorf("missing error in: %s", got)
	}
}

func TestFormatRunSummary(t *testing.T) {
	rs := RunSummary{
		SessionID:       "1700000000000",
		Profile:         "Full Stack Development",
		Status:          session.StatusCompleted,
		Discovered:      8,
		Attempted:       5,
		Applied:         4,
		MaxApplications: 5,
		Duration:        3*time.Minute + 200*time.Millisecond,
	}

	got := FormatRunSummary(rs)
	checks := []string{
		"Session Summary",
		"1700000000000",
		"Full Stack Development",
		"completed",
		"3m0s",
		"Found      8",
		"Attempted  5",
		"Submitted  4",
		"Limit      5",
	}
	for _, want := range checks {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Error") {
		t.Errorf("unexpected error row in:\n%s", got)
	}
}

func TestFormatRunSummaryFailed(t *testing.T) {
	rs := RunSummary{
		SessionID: "1",
		Status:    session.StatusFailed,
		Error:     "browser launch failed",
	}
	got := FormatRunSummary(rs)
	if !strings.Contains(got, "browser launch failed") {
		t.Errorf("missing error in:\n%s", got)
	}
	if strings.Contains(got, "Limit") {
		t.Errorf("unexpected limit row in:\n%s", got)
	}
}

func TestFormatHistory(t *testing.T) {
	records := []store.SessionRecord{
		{ID: "1700000000002", Profile: "Data Science", Status: "completed", ApplicationsSubmitted: 3, StartedAt: time.Unix(1700000000, 0)},
		{ID: "1700000000001", Profile: "Go", Status: "failed", Error: "authentication failed"},
	}

	got := FormatHistory(records)
	for _, want := range []string{"SESSION", "1700000000002", "Data Science", "completed", "1700000000001", "failed", "authentication failed"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if n := strings.Count(got, "\n"); n != 4 {
		t.Errorf("lines = %d, want 4 (header, two rows, one error)", n)
	}
}

func TestFormatHistoryEmpty(t *testing.T) {
	if got := FormatHistory(nil); !strings.Contains(got, "No recorded sessions") {
		t.Errorf("got %q", got)
	}
}
