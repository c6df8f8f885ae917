package orchestrator

import (
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/kylegalloway/applyflow/internal/state"
)

func TestCleanupStaleStateNoState(t *testing.T) {
	stateMgr := state.NewManager(t.TempDir())

	result, err := CleanupStaleState(stateMgr, nil)
	if err != nil {
		t.Fatalf("CleanupStaleState: %v", err)
	}
	if result.OrphansKilled != 0 || result.StaleRecords != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestCleanupStaleStateNilManager(t *testing.T) {
	result, err := CleanupStaleState(nil, nil)
	if err != nil || result == nil {
		t.Fatalf("CleanupStaleState(nil) = %v, %v", result, err)
	}
}

func TestCleanupDeadBrowser(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run helper process: %v", err)
	}
	stateMgr := state.NewManager(t.TempDir())
	stateMgr.Track("1700000000000", cmd.Process.Pid, 0)

	result, err := CleanupStaleState(stateMgr, nil)
	if err != nil {
		t.Fatalf("CleanupStaleState: %v", err)
	}
	if result.StaleRecords != 1 || result.OrphansKilled != 0 {
		t.Errorf("result = %+v, want 1 stale record and no kills", result)
	}
	if stateMgr.Exists() {
		t.Error("state file should be removed after cleanup")
	}
}

func TestCleanupKillsOrphanBrowser(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	pid := cmd.Process.Pid
	stateMgr := state.NewManager(t.TempDir())
	stateMgr.Track("1700000000000", pid, processGroup(pid))

	result, err := CleanupStaleState(stateMgr, nil)
	if err != nil {
		t.Fatalf("CleanupStaleState: %v", err)
	}
	if result.OrphansKilled != 1 {
		t.Errorf("OrphansKilled = %d, want 1", result.OrphansKilled)
	}

	select {
	case err := <-waited:
		if err == nil || !strings.Contains(err.Error(), "killed") {
			t.Errorf("helper exit = %v, want killed", err)
		}
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		t.Fatal("orphan browser was not killed")
	}
}

func TestFormatCleanupResult(t *testing.T) {
	tests := []struct {
		name string
		r    *CleanupResult
		want string
	}{
		{"nil", nil, "Clean startup"},
		{"empty", &CleanupResult{}, "Clean startup"},
		{"stale only", &CleanupResult{StaleRecords: 2}, "Cleared 2 stale browser record(s)"},
		{"killed", &CleanupResult{StaleRecords: 2, OrphansKilled: 1}, "Killed 1 orphan browser(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCleanupResult(tt.r); !strings.Contains(got, tt.want) {
				t.Errorf("FormatCleanupResult = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
