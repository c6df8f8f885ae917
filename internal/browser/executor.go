package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kylegalloway/applyflow/internal/retry"
)

// ActionKind names a single UI operation.
type ActionKind int

const (
	ActionClick ActionKind = iota + 1
	ActionWait
	ActionType
	ActionSelectAll
	ActionReadText
	ActionEvaluate
	ActionNavigate
	ActionWaitNavigation
	ActionPress
	ActionCount
	ActionPause
	ActionScreenshot
)

func (k ActionKind) String() string {
	switch k {
	case ActionClick:
		return "click"
	case ActionWait:
		return "wait"
	case ActionType:
		return "type"
	case ActionSelectAll:
		return "select-all"
	case ActionReadText:
		return "read-text"
	case ActionEvaluate:
		return "evaluate"
	case ActionNavigate:
		return "navigate"
	case ActionWaitNavigation:
		return "wait-navigation"
	case ActionPress:
		return "press"
	case ActionCount:
		return "count"
	case ActionPause:
		return "pause"
	case ActionScreenshot:
		return "screenshot"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action describes one operation for Perform. Only the fields relevant to
// Kind are read.
type Action struct {
	Kind    ActionKind
	Locator Locator
	URL     string
	Text    string
	Key     string
	Script  string
	Args    []any
	Result  any
	// KeyDelay spaces out keystrokes for ActionType.
	KeyDelay time.Duration
	// Delay is the pause length for ActionPause.
	Delay time.Duration
	// Timeout bounds the action; zero uses the executor default.
	Timeout time.Duration
}

// Outcome reports what an action resolved and produced.
type Outcome struct {
	Target  Target
	Text    string
	Count   int
	Data    []byte // PNG from ActionScreenshot
	Elapsed time.Duration
}

// Options configures an Executor.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Executor performs actions against a Page.
type Executor struct {
	page Page
	opts Options
}

// NewExecutor wraps page. Zero options fall back to 30s / 100ms.
func NewExecutor(page Page, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Executor{page: page, opts: opts}
}

// WithTimeout returns an executor sharing the page with a different default
// timeout.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	opts := e.opts
	if d > 0 {
		opts.Timeout = d
	}
	return &Executor{page: e.page, opts: opts}
}

// Perform runs a single action.
func (e *Executor) Perform(ctx context.Context, a Action) (Outcome, error) {
	start := time.Now()
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = e.opts.Timeout
	}

	var out Outcome
	var err error
	switch a.Kind {
	case ActionNavigate:
		err = e.navigate(ctx, a.URL, timeout)
	case ActionWaitNavigation:
		err = e.waitNavigation(ctx, timeout)
	case ActionPause:
		err = retry.Sleep(ctx, a.Delay)
	case ActionPress:
		actx, cancel := context.WithTimeout(ctx, timeout)
		err = e.page.SendKeys(actx, a.Key)
		cancel()
	case ActionCount:
		out.Count, out.Target, err = e.count(ctx, a.Locator, timeout)
	case ActionScreenshot:
		actx, cancel := context.WithTimeout(ctx, timeout)
		out.Data, err = e.page.Screenshot(actx)
		cancel()
	case ActionEvaluate:
		if a.Locator.Empty() {
			actx, cancel := context.WithTimeout(ctx, timeout)
			err = e.page.Evaluate(actx, Script{Func: a.Script, Args: a.Args}, a.Result)
			cancel()
			break
		}
		fallthrough
	default:
		out.Target, err = e.resolve(ctx, a.Locator, timeout)
		if err == nil {
			err = e.act(ctx, a, out.Target, timeout, &out)
		}
	}
	out.Elapsed = time.Since(start)

	if err != nil {
		return out, fmt.Errorf("%s %s: %w", a.Kind, describe(a), err)
	}
	return out, nil
}

func describe(a Action) string {
	switch a.Kind {
	case ActionNavigate:
		return a.URL
	case ActionPause:
		return a.Delay.String()
	case ActionWaitNavigation, ActionPress, ActionScreenshot:
		return ""
	default:
		return a.Locator.String()
	}
}

// resolve polls the candidates in declared order until one has more than
// Index matches or the timeout passes. Candidates after the first match are
// never queried. The timeout also bounds each Count, so a hung page cannot
// stall the lookup.
func (e *Executor) resolve(ctx context.Context, loc Locator, timeout time.Duration) (Target, error) {
	if loc.Empty() {
		return Target{}, fmt.Errorf("%w: no selectors given", ErrElementNotFound)
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		for _, sel := range loc.Candidates {
			n, err := e.page.Count(lctx, sel)
			if err != nil {
				if lctx.Err() != nil {
					return Target{}, lookupError(ctx, lctx.Err(), timeout)
				}
				// An invalid or unsupported selector just does not match.
				continue
			}
			if n > loc.Index {
				return Target{Selector: sel, Index: loc.Index}, nil
			}
		}
		if err := retry.Sleep(lctx, e.opts.PollInterval); err != nil {
			return Target{}, lookupError(ctx, err, timeout)
		}
	}
}

func (e *Executor) count(ctx context.Context, loc Locator, timeout time.Duration) (int, Target, error) {
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	failed := 0
	for _, sel := range loc.Candidates {
		n, err := e.page.Count(lctx, sel)
		if err != nil {
			if lctx.Err() != nil {
				return 0, Target{}, lookupError(ctx, lctx.Err(), timeout)
			}
			lastErr = err
			failed++
			continue
		}
		if n > 0 {
			return n, Target{Selector: sel}, nil
		}
	}
	if failed > 0 && failed == len(loc.Candidates) {
		return 0, Target{}, lastErr
	}
	return 0, Target{}, nil
}

// lookupError maps our own deadline to ErrElementNotFound while leaving the
// caller's cancellation untouched.
func lookupError(parent context.Context, err error, timeout time.Duration) error {
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w within %v", ErrElementNotFound, timeout)
	}
	return err
}

const (
	selectAllScript = `(el) => {
	el.focus();
	if (typeof el.select === "function") {
		el.select();
	} else {
		const range = document.createRange();
		range.selectNodeContents(el);
		const sel = window.getSelection();
		sel.removeAllRanges();
		sel.addRange(range);
	}
	return true;
}`
	textScript = `(el) => (el.innerText || el.textContent || "").trim()`
)

func (e *Executor) act(ctx context.Context, a Action, t Target, timeout time.Duration, out *Outcome) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch a.Kind {
	case ActionClick:
		return e.page.Click(actx, t)
	case ActionWait:
		return nil
	case ActionType:
		return e.typeText(actx, t, a.Text, a.KeyDelay)
	case ActionSelectAll:
		return e.page.Evaluate(actx, Script{Func: selectAllScript, Target: &t}, nil)
	case ActionReadText:
		return e.page.Evaluate(actx, Script{Func: textScript, Target: &t}, &out.Text)
	case ActionEvaluate:
		return e.page.Evaluate(actx, Script{Func: a.Script, Target: &t, Args: a.Args}, a.Result)
	default:
		return fmt.Errorf("unsupported action %s", a.Kind)
	}
}

func (e *Executor) typeText(ctx context.Context, t Target, text string, delay time.Duration) error {
	if err := e.page.Focus(ctx, t); err != nil {
		return err
	}
	if delay <= 0 {
		return e.page.SendKeys(ctx, text)
	}
	for _, r := range text {
		if err := e.page.SendKeys(ctx, string(r)); err != nil {
			return err
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) navigate(ctx context.Context, url string, timeout time.Duration) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return navigationError(ctx, e.page.Navigate(actx, url), timeout)
}

func (e *Executor) waitNavigation(ctx context.Context, timeout time.Duration) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return navigationError(ctx, e.page.WaitNavigation(actx), timeout)
}

// navigationError maps our own deadline to ErrNavigationTimeout while
// leaving the caller's cancellation untouched.
func navigationError(parent context.Context, err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v", ErrNavigationTimeout, timeout)
	}
	return err
}

// Click clicks the element described by loc.
func (e *Executor) Click(ctx context.Context, loc Locator) error {
	_, err := e.Perform(ctx, Action{Kind: ActionClick, Locator: loc})
	return err
}

// WaitFor blocks until loc resolves.
func (e *Executor) WaitFor(ctx context.Context, loc Locator) error {
	_, err := e.Perform(ctx, Action{Kind: ActionWait, Locator: loc})
	return err
}

// Type focuses loc and types text, pausing keyDelay between keystrokes.
func (e *Executor) Type(ctx context.Context, loc Locator, text string, keyDelay time.Duration) error {
	_, err := e.Perform(ctx, Action{Kind: ActionType, Locator: loc, Text: text, KeyDelay: keyDelay})
	return err
}

// SelectAll selects the current content of loc so typing replaces it.
func (e *Executor) SelectAll(ctx context.Context, loc Locator) error {
	_, err := e.Perform(ctx, Action{Kind: ActionSelectAll, Locator: loc})
	return err
}

// ReadText returns the trimmed visible text of loc.
func (e *Executor) ReadText(ctx context.Context, loc Locator) (string, error) {
	out, err := e.Perform(ctx, Action{Kind: ActionReadText, Locator: loc})
	return out.Text, err
}

// Evaluate runs script against loc (or against null when loc is empty) and
// decodes the result into out.
func (e *Executor) Evaluate(ctx context.Context, loc Locator, script string, out any, args ...any) error {
	_, err := e.Perform(ctx, Action{Kind: ActionEvaluate, Locator: loc, Script: script, Args: args, Result: out})
	return err
}

// Navigate loads url and waits for it to settle.
func (e *Executor) Navigate(ctx context.Context, url string) error {
	_, err := e.Perform(ctx, Action{Kind: ActionNavigate, URL: url})
	return err
}

// WaitNavigation waits for the navigation triggered by the previous action.
func (e *Executor) WaitNavigation(ctx context.Context) error {
	_, err := e.Perform(ctx, Action{Kind: ActionWaitNavigation})
	return err
}

// Press sends a key to the focused element.
func (e *Executor) Press(ctx context.Context, key string) error {
	_, err := e.Perform(ctx, Action{Kind: ActionPress, Key: key})
	return err
}

// Count returns the number of matches of the first candidate that has any,
// without waiting.
func (e *Executor) Count(ctx context.Context, loc Locator) (int, error) {
	out, err := e.Perform(ctx, Action{Kind: ActionCount, Locator: loc})
	return out.Count, err
}

// Pause waits for d unless ctx ends first.
func (e *Executor) Pause(ctx context.Context, d time.Duration) error {
	_, err := e.Perform(ctx, Action{Kind: ActionPause, Delay: d})
	return err
}

// Screenshot captures the visible viewport as PNG.
func (e *Executor) Screenshot(ctx context.Context) ([]byte, error) {
	out, err := e.Perform(ctx, Action{Kind: ActionScreenshot})
	return out.Data, err
}
