// Package browser drives a single browser tab: it resolves selector
// fallback lists against the live page and performs one UI action at a time
// under a bounded timeout.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrElementNotFound means no candidate selector resolved before the timeout.
	ErrElementNotFound = errors.New("element not found")
	// ErrNavigationTimeout means a navigation did not settle before the timeout.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrLaunch wraps failures to start a browser.
	ErrLaunch = errors.New("browser launch failed")
)

// KeyEnter is the key sequence that commits a search input.
const KeyEnter = "\r"

// Target is one resolved element: the Index-th match of Selector.
type Target struct {
	Selector string
	Index    int
}

func (t Target) String() string {
	return fmt.Sprintf("%s[%d]", t.Selector, t.Index)
}

// Locator describes one semantic control as an ordered list of alternative
// CSS selectors. Index picks which match of the winning selector to use.
type Locator struct {
	Candidates []string
	Index      int
}

// Select builds a Locator from candidates in priority order.
func Select(candidates ...string) Locator {
	return Locator{Candidates: candidates}
}

// Nth returns a copy of l addressing the i-th match.
func (l Locator) Nth(i int) Locator {
	return Locator{Candidates: l.Candidates, Index: i}
}

// Empty reports whether l has no candidates.
func (l Locator) Empty() bool {
	return len(l.Candidates) == 0
}

func (l Locator) String() string {
	s := strings.Join(l.Candidates, " | ")
	if l.Index > 0 {
		s += fmt.Sprintf(" #%d", l.Index)
	}
	return s
}

// Script is a JavaScript function expression evaluated in the page. When
// Target is set the function receives that element as its first argument,
// followed by Args; otherwise it receives null.
type Script struct {
	Func   string
	Target *Target
	Args   []any
}

// Page is the part of a browser tab the executor needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Count returns how many elements match selector right now.
	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, t Target) error
	Focus(ctx context.Context, t Target) error
	// SendKeys types keys into the focused element.
	SendKeys(ctx context.Context, keys string) error
	// Evaluate runs s and decodes its JSON result into out (out may be nil).
	Evaluate(ctx context.Context, s Script, out any) error
	// WaitNavigation blocks until a navigation started by the previous
	// action has finished loading.
	WaitNavigation(ctx context.Context) error
	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Instance is a launched browser owning one Page.
type Instance interface {
	Page
	// PID of the browser process, or 0 when unknown.
	PID() int
	// Close releases the browser. It is safe to call more than once.
	Close() error
	// OnPageError registers fn for uncaught script errors and crashes of
	// the page. fn may be called from another goroutine.
	OnPageError(fn func(msg string))
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context) (Instance, error)
}
