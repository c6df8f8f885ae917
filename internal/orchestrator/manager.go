package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kylegalloway/applyflow/internal/logging"
	"github.com/kylegalloway/applyflow/internal/session"
	"github.com/kylegalloway/applyflow/internal/stages"
)

// Manager starts sessions in the background and answers status queries.
type Manager struct {
	orch  *Orchestrator
	reg   *session.Registry
	slots *session.Slots
	log   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager. At most slots.Cap() sessions hold a browser
// at once; the rest wait in the initializing state.
func NewManager(orch *Orchestrator, reg *session.Registry, slots *session.Slots, log *logging.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		orch:   orch,
		reg:    reg,
		slots:  slots,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Registry exposes the session registry.
func (m *Manager) Registry() *session.Registry {
	return m.reg
}

// Start validates creds, registers a session and runs it asynchronously.
// It returns as soon as the session id is known.
func (m *Manager) Start(creds stages.Credentials) (string, error) {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return "", ErrInvalidInput
	}
	if err := m.ctx.Err(); err != nil {
		return "", fmt.Errorf("manager is shutting down: %w", err)
	}

	sess := m.reg.Create()
	ctx, cancel := context.WithCancel(m.ctx)
	// Sweeping or shutting down the session stops its workflow too.
	sess.Attach(session.CloserFunc(func() error {
		cancel()
		return nil
	}))
	m.log.Infof("Session %s created", sess.ID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		if err := m.slots.Acquire(ctx); err != nil {
			sess.Fail(fmt.Errorf("waiting for a browser: %w", err))
			return
		}
		defer m.slots.Release()

		m.orch.Run(ctx, sess, creds)
	}()
	return sess.ID, nil
}

// Status returns the snapshot of session id.
func (m *Manager) Status(id string) (session.Snapshot, error) {
	return m.reg.Status(id)
}

// List returns every retained session, oldest first.
func (m *Manager) List() []session.Snapshot {
	return m.reg.List()
}

// Shutdown cancels every session, closes their browsers and waits for the
// workflows to return or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	m.reg.ReleaseAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
