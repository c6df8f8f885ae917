package session

import (
	"context"

	"github.com/kylegalloway/applyflow/internal/config"
	"github.com/kylegalloway/applyflow/internal/logging"
)

// EffectiveCapacity returns how many browsers may run at once, possibly
// reduced from the configured value based on available system RAM.
func EffectiveCapacity(cfg *config.SessionsConfig, log *logging.Logger) int {
	return effectiveCapacity(cfg, getAvailableRAMMB(), log)
}

func effectiveCapacity(cfg *config.SessionsConfig, availableRAM int, log *logging.Logger) int {
	configured := cfg.MaxConcurrent
	if configured < 1 {
		configured = 1
	}

	if !cfg.Adaptive {
		return configured
	}

	minRAM := cfg.MinRAMPerBrowserMB
	if minRAM <= 0 {
		minRAM = 512
	}

	if availableRAM <= 0 {
		log.Infof("Could not determine available RAM; using configured capacity %d", configured)
		return configured
	}

	maxByRAM := availableRAM / minRAM
	if maxByRAM < 1 {
		maxByRAM = 1
	}

	if maxByRAM < configured {
		log.Infof("Reducing browser capacity from %d to %d due to available RAM (%d MB)",
			configured, maxByRAM, availableRAM)
		return maxByRAM
	}

	return configured
}

// Slots limits how many sessions hold a browser at the same time.
type Slots struct {
	ch chan struct{}
}

// NewSlots returns a limiter with n slots (at least one).
func NewSlots(n int) *Slots {
	if n < 1 {
		n = 1
	}
	return &Slots{ch: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Slots) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (s *Slots) Release() {
	<-s.ch
}

// InUse returns the number of taken slots.
func (s *Slots) InUse() int {
	return len(s.ch)
}

// Cap returns the total number of slots.
func (s *Slots) Cap() int {
	return cap(s.ch)
}
