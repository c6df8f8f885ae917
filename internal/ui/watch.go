package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kylegalloway/applyflow/internal/session"
)

// StatusFunc fetches the current snapshot of a session.
type StatusFunc func(ctx context.Context, id string) (session.Snapshot, error)

type statusMsg struct {
	snap session.Snapshot
	err  error
}

type pollMsg struct{}

// WatchModel polls one session until it finishes and shows its progress.
type WatchModel struct {
	id       string
	fetch    StatusFunc
	interval time.Duration
	started  time.Time
	now      func() time.Time

	spinner  spinner.Model
	snap     session.Snapshot
	err      error
	failures int
	done     bool
}

// maxPollFailures is how many consecutive transport errors the watcher
// tolerates before giving up.
const maxPollFailures = 5

// NewWatchModel returns a model that polls session id every interval.
func NewWatchModel(id string, fetch StatusFunc, interval time.Duration) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = waitStyle
	return WatchModel{
		id:       id,
		fetch:    fetch,
		interval: interval,
		started:  time.Now(),
		now:      time.Now,
		spinner:  s,
		snap:     session.Snapshot{ID: id, Status: session.StatusInitializing},
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m WatchModel) poll() tea.Cmd {
	id, fetch := m.id, m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := fetch(ctx, id)
		return statusMsg{snap: snap, err: err}
	}
}

func (m WatchModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil

	case pollMsg:
		return m, m.poll()

	case statusMsg:
		if msg.err != nil {
			m.failures++
			if errors.Is(msg.err, session.ErrSessionNotFound) || m.failures >= maxPollFailures {
				m.err = msg.err
				m.done = true
				return m, tea.Quit
			}
			return m, m.schedule()
		}
		m.failures = 0
		m.snap = msg.snap
		m.snap.ID = m.id
		if m.snap.Status.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.schedule()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	elapsed := m.now().Sub(m.started)
	if m.err != nil {
		return failStyle.Render(fmt.Sprintf("session %s: %v", m.id, m.err)) + "\n"
	}
	line := FormatProgress(m.snap, elapsed)
	if m.done {
		return line + "\n"
	}
	return m.spinner.View() + " " + line + "\n" + labelStyle.Render("q to stop watching") + "\n"
}

// Snapshot returns the last snapshot received.
func (m WatchModel) Snapshot() session.Snapshot { return m.snap }

// Err returns the error that stopped the watcher, if any.
func (m WatchModel) Err() error { return m.err }

// Watch runs the watcher on the terminal until the session finishes.
func Watch(id string, fetch StatusFunc, interval time.Duration) (session.Snapshot, error) {
	final, err := tea.NewProgram(NewWatchModel(id, fetch, interval)).Run()
	if err != nil {
		return session.Snapshot{}, err
	}
	m := final.(WatchModel)
	return m.Snapshot(), m.Err()
}
