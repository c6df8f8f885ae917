//go:build linux

package session

import (
	"strings"
	"testing"
)

func TestParseMemAvailable(t *testing.T) {
	meminfo := "MemTotal:       16318480 kB\nMemFree:         1203044 kB\nMemAvailable:    8192000 kB\n"
	if got := parseMemAvailable(strings.NewReader(meminfo)); got != 8000 {
		t.Errorf("parseMemAvailable = %d, want 8000", got)
	}
	if got := parseMemAvailable(strings.NewReader("MemTotal: 1 kB\n")); got != 0 {
		t.Errorf("missing field = %d, want 0", got)
	}
}
