package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakePage is an in-memory Page for tests. Elements maps a selector to the
// number of matches it currently has; everything else is recorded.
type FakePage struct {
	mu sync.Mutex

	Elements map[string]int
	// CountErr makes Count fail for a selector.
	CountErr map[string]error
	// FailClick makes Click fail for a Target.String() key.
	FailClick map[string]error
	// EvalFunc, when set, handles every Evaluate call.
	EvalFunc      func(s Script, out any) error
	NavigateErr   error
	WaitNavErr    error
	SendKeysErr   error
	ScreenshotErr error
	// OnClick runs after a successful click, outside the lock.
	OnClick func(t Target)
	Pid     int

	calls   []string
	queries []string
	typed   map[string]string
	focused *Target
	closed  int
	onError func(msg string)
}

// NewFakePage returns a FakePage with the given element counts.
func NewFakePage(elements map[string]int) *FakePage {
	if elements == nil {
		elements = map[string]int{}
	}
	return &FakePage{Elements: elements, typed: map[string]string{}}
}

// SetCount changes how many elements match selector.
func (f *FakePage) SetCount(selector string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Elements == nil {
		f.Elements = map[string]int{}
	}
	f.Elements[selector] = n
}

func (f *FakePage) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *FakePage) exists(t Target) bool {
	return f.Elements[t.Selector] > t.Index
}

func (f *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("navigate %s", url)
	return f.NavigateErr
}

func (f *FakePage) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, selector)
	if err := f.CountErr[selector]; err != nil {
		return 0, err
	}
	return f.Elements[selector], nil
}

func (f *FakePage) Click(ctx context.Context, t Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if err := f.FailClick[t.String()]; err != nil {
		f.record("click %s (failed)", t)
		f.mu.Unlock()
		return err
	}
	if !f.exists(t) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrElementNotFound, t)
	}
	f.record("click %s", t)
	hook := f.OnClick
	f.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return nil
}

func (f *FakePage) Focus(ctx context.Context, t Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists(t) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, t)
	}
	f.record("focus %s", t)
	f.focused = &t
	return nil
}

func (f *FakePage) SendKeys(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendKeysErr != nil {
		return f.SendKeysErr
	}
	if keys == KeyEnter {
		f.record("press enter")
		return nil
	}
	if f.focused != nil {
		if f.typed == nil {
			f.typed = map[string]string{}
		}
		f.typed[f.focused.String()] += keys
	}
	return nil
}

func (f *FakePage) Evaluate(ctx context.Context, s Script, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if s.Target != nil {
		if !f.exists(*s.Target) {
			f.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrElementNotFound, s.Target)
		}
		f.record("eval %s", s.Target)
	} else {
		f.record("eval")
	}
	fn := f.EvalFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(s, out)
	}
	return nil
}

func (f *FakePage) WaitNavigation(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait-navigation")
	return f.WaitNavErr
}

// Screenshot returns a fixed PNG header unless ScreenshotErr is set.
func (f *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("screenshot")
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (f *FakePage) PID() int { return f.Pid }

func (f *FakePage) OnPageError(fn func(msg string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = fn
}

// ThrowPageError reports msg as an uncaught page error.
func (f *FakePage) ThrowPageError(msg string) {
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (f *FakePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Calls returns the recorded operations in order.
func (f *FakePage) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Clicked returns the targets of successful clicks, in order.
func (f *FakePage) Clicked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if t, ok := strings.CutPrefix(c, "click "); ok && !strings.HasSuffix(t, "(failed)") {
			out = append(out, t)
		}
	}
	return out
}

// Queried returns every selector passed to Count, in order.
func (f *FakePage) Queried() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// Typed returns the text typed into the i-th match of selector.
func (f *FakePage) Typed(selector string, i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typed[Target{Selector: selector, Index: i}.String()]
}

// Closed returns how many times Close was called.
func (f *FakePage) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeLauncher hands out FakePages.
type FakeLauncher struct {
	mu sync.Mutex

	// NewPage builds the page for each launch; nil yields an empty page.
	NewPage func() *FakePage
	Err     error
	// Block, when set, holds Launch until it is closed or ctx ends.
	Block <-chan struct{}

	pages []*FakePage
}

func (l *FakeLauncher) Launch(ctx context.Context) (Instance, error) {
	if l.Block != nil {
		select {
		case <-l.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, l.Err)
	}
	var p *FakePage
	if l.NewPage != nil {
		p = l.NewPage()
	} else {
		p = NewFakePage(nil)
	}
	l.pages = append(l.pages, p)
	return p, nil
}

// Pages returns every page launched so far.
func (l *FakeLauncher) Pages() []*FakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakePage(nil), l.pages...)
}
