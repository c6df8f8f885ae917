package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kylegalloway/applyflow/internal/stages"
	"github.com/kylegalloway/applyflow/internal/state"
)

// RecoveryDecision is the human's decision when browsers from a previous
// run are still recorded.
type RecoveryDecision int

const (
	RecoveryKill RecoveryDecision = iota
	RecoveryLeave
)

// Prompter is the interface for human interaction in foreground runs.
type Prompter interface {
	// Credentials fills in whatever is missing from creds.
	Credentials(creds stages.Credentials) stages.Credentials
	// Confirm asks a yes/no question.
	Confirm(question string) bool
	RecoveryPrompt(st *state.SessionsState) RecoveryDecision
	Warn(msg string)
	Info(msg string)
}

// TerminalPrompter implements Prompter using terminal I/O.
type TerminalPrompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewTerminalPrompter creates a TerminalPrompter using stdin/stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return NewPrompter(os.Stdin, os.Stdout)
}

// NewPrompter creates a TerminalPrompter over arbitrary streams.
func NewPrompter(r io.Reader, w io.Writer) *TerminalPrompter {
	return &TerminalPrompter{reader: bufio.NewReader(r), writer: w}
}

func (p *TerminalPrompter) readLine() string {
	line, _ := p.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func (p *TerminalPrompter) Credentials(creds stages.Credentials) stages.Credentials {
	if creds.Email == "" {
		fmt.Fprintf(p.writer, "Email: ")
		creds.Email = p.readLine()
	}
	if creds.Password == "" {
		fmt.Fprintf(p.writer, "Password: ")
		creds.Password = p.readLine()
	}
	return creds
}

func (p *TerminalPrompter) Confirm(question string) bool {
	fmt.Fprintf(p.writer, "%s (y/n)? ", question)
	switch strings.ToLower(p.readLine()) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (p *TerminalPrompter) RecoveryPrompt(st *state.SessionsState) RecoveryDecision {
	fmt.Fprintf(p.writer, "\nBrowsers from a previous run are still recorded (saved %s):\n",
		st.LastSave.Local().Format(time.DateTime))
	for _, b := range st.Browsers {
		fmt.Fprintf(p.writer, "  session %s  PID %d  started %s\n",
			b.SessionID, b.PID, b.StartedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(p.writer, "\n(k)ill them / (l)eave them running? ")
	switch strings.ToLower(p.readLine()) {
	case "l", "leave":
		return RecoveryLeave
	default:
		return RecoveryKill
	}
}

func (p *TerminalPrompter) Warn(msg string) {
	fmt.Fprintf(p.writer, "WARNING: %s\n", msg)
}

func (p *TerminalPrompter) Info(msg string) {
	fmt.Fprintf(p.writer, "%s\n", msg)
}

// ScriptedPrompter implements Prompter with predetermined answers for
// non-interactive runs and tests.
type ScriptedPrompter struct {
	Email             string
	Password          string
	Confirmations     []bool
	RecoveryDecisions []RecoveryDecision
	Messages          []string

	confirmIdx  int
	recoveryIdx int
}

func (p *ScriptedPrompter) Credentials(creds stages.Credentials) stages.Credentials {
	if creds.Email == "" {
		creds.Email = p.Email
	}
	if creds.Password == "" {
		creds.Password = p.Password
	}
	return creds
}

func (p *ScriptedPrompter) Confirm(question string) bool {
	if p.confirmIdx < len(p.Confirmations) {
		d := p.Confirmations[p.confirmIdx]
		p.confirmIdx++
		return d
	}
	return false
}

func (p *ScriptedPrompter) RecoveryPrompt(st *state.SessionsState) RecoveryDecision {
	if p.recoveryIdx < len(p.RecoveryDecisions) {
		d := p.RecoveryDecisions[p.recoveryIdx]
		p.recoveryIdx++
		return d
	}
	return RecoveryKill
}

func (p *ScriptedPrompter) Warn(msg string) {
	p.Messages = append(p.Messages, "WARN: "+msg)
}

func (p *ScriptedPrompter) Info(msg string) {
	p.Messages = append(p.Messages, msg)
}
