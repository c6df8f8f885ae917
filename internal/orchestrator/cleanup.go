package orchestrator

import (
	"fmt"
	"syscall"

	"github.com/kylegalloway/applyflow/internal/logging"
	"github.com/kylegalloway/applyflow/internal/state"
)

// CleanupResult reports what was cleaned up during startup.
type CleanupResult struct {
	OrphansKilled int
	StaleRecords  int
}

// ProcessAlive reports whether pid exists.
func ProcessAlive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, 0) == nil
}

func processGroup(pid int) int {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return 0
	}
	return pgid
}

// killBrowser kills pid and, when the browser leads its own process group,
// its helpers too.
var killBrowser = func(pid, pgid int) {
	if pgid > 0 && pgid == pid {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}

// CleanupStaleState kills browsers left behind by a previous process that
// crashed before closing them, then clears the state file.
func CleanupStaleState(stateMgr *state.Manager, log *logging.Logger) (*CleanupResult, error) {
	result := &CleanupResult{}
	if stateMgr == nil || !stateMgr.Exists() {
		return result, nil
	}

	st, err := stateMgr.Load()
	if err != nil {
		log.Errorf(err, "Could not load browser state")
		return result, stateMgr.Remove()
	}

	for _, b := range st.Browsers {
		result.StaleRecords++
		if !ProcessAlive(b.PID) {
			continue
		}
		killBrowser(b.PID, b.PGID)
		log.Infof("Killed orphan browser of session %s (PID %d)", b.SessionID, b.PID)
		result.OrphansKilled++
	}

	if err := stateMgr.Remove(); err != nil {
		return result, err
	}
	return result, nil
}

// FormatCleanupResult returns a human-readable summary of cleanup actions.
func FormatCleanupResult(r *CleanupResult) string {
	if r == nil || r.StaleRecords == 0 {
		return "Clean startup, no stale browsers found."
	}
	if r.OrphansKilled == 0 {
		return fmt.Sprintf("Cleared %d stale browser record(s); none were still running.", r.StaleRecords)
	}
	return fmt.Sprintf("Killed %d orphan browser(s) from %d stale record(s).", r.OrphansKilled, r.StaleRecords)
}
