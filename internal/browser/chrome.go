package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/inspector"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// LaunchOptions configures the Chrome process.
type LaunchOptions struct {
	Headless       bool
	StartMaximized bool
	NoSandbox      bool
	ExecPath       string
	UserAgent      string
	// Flags are extra command-line switches, "name" or "name=value", with
	// or without leading dashes.
	Flags []string
}

// ChromeLauncher starts a local Chrome per Launch call through chromedp.
type ChromeLauncher struct {
	Options LaunchOptions
}

// NewChromeLauncher returns a launcher using opts.
func NewChromeLauncher(opts LaunchOptions) *ChromeLauncher {
	return &ChromeLauncher{Options: opts}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	o := l.Options
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", o.Headless))
	if o.StartMaximized {
		opts = append(opts, chromedp.Flag("start-maximized", true))
	}
	if o.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(o.UserAgent))
	}
	for _, f := range o.Flags {
		name, value, ok := strings.Cut(strings.TrimLeft(f, "-"), "=")
		if name == "" {
			continue
		}
		if ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Launch starts a browser and opens its first tab. The browser outlives ctx;
// only Close stops it.
func (l *ChromeLauncher) Launch(ctx context.Context) (Instance, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := &chromePage{tab: tabCtx, tabCancel: tabCancel, allocCancel: allocCancel}
	if err := p.run(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch ev := ev.(type) {
		case *cdppage.EventLoadEventFired:
			p.loads.Add(1)
		case *runtime.EventExceptionThrown:
			p.pageError(exceptionMessage(ev.ExceptionDetails))
		case *inspector.EventTargetCrashed:
			p.pageError("page crashed")
		}
	})
	if c := chromedp.FromContext(tabCtx); c != nil && c.Browser != nil {
		if proc := c.Browser.Process(); proc != nil {
			p.pid = proc.Pid
		}
	}
	return p, nil
}

type chromePage struct {
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	pid         int

	// loads counts load events; mark is the count before the last action
	// that may navigate.
	loads atomic.Int64
	mark  atomic.Int64

	onError atomic.Pointer[func(string)]

	closeOnce sync.Once
	closeErr  error
}

// run executes actions on the tab while honoring the caller's deadline and
// cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	var rctx context.Context
	var cancel context.CancelFunc
	if dl, ok := ctx.Deadline(); ok {
		rctx, cancel = context.WithDeadline(p.tab, dl)
	} else {
		rctx, cancel = context.WithCancel(p.tab)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) OnPageError(fn func(msg string)) {
	p.onError.Store(&fn)
}

func (p *chromePage) pageError(msg string) {
	if fn := p.onError.Load(); fn != nil && *fn != nil {
		(*fn)(msg)
	}
}

// exceptionMessage prefers the thrown value's description, which carries
// the stack, over the generic "Uncaught" text.
func exceptionMessage(d *runtime.ExceptionDetails) string {
	if d == nil {
		return "uncaught exception"
	}
	msg := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		msg = d.Exception.Description
	}
	if d.URL != "" {
		msg = fmt.Sprintf("%s (%s:%d)", msg, d.URL, d.LineNumber+1)
	}
	return msg
}

func (p *chromePage) markNavigation() {
	p.mark.Store(p.loads.Load())
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	p.markNavigation()
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Count(ctx context.Context, selector string) (int, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return 0, err
	}
	var n int
	err = p.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelectorAll(%s).length", sel), &n))
	return n, err
}

func (p *chromePage) node(ctx context.Context, t Target) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(t.Selector, &nodes, chromedp.ByQueryAll)); err != nil {
		return nil, err
	}
	if len(nodes) <= t.Index {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, t)
	}
	return nodes[t.Index], nil
}

func (p *chromePage) Click(ctx context.Context, t Target) error {
	n, err := p.node(ctx, t)
	if err != nil {
		return err
	}
	p.markNavigation()
	return p.run(ctx, chromedp.MouseClickNode(n))
}

func (p *chromePage) Focus(ctx context.Context, t Target) error {
	n, err := p.node(ctx, t)
	if err != nil {
		return err
	}
	return p.run(ctx, dom.Focus().WithNodeID(n.NodeID))
}

func (p *chromePage) SendKeys(ctx context.Context, keys string) error {
	p.markNavigation()
	return p.run(ctx, chromedp.KeyEvent(keys))
}

func (p *chromePage) Evaluate(ctx context.Context, s Script, out any) error {
	expr, err := scriptExpression(s)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

func (p *chromePage) WaitNavigation(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for p.loads.Load() <= p.mark.Load() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) PID() int { return p.pid }

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		err := chromedp.Cancel(p.tab)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.closeErr = err
		}
		p.tabCancel()
		p.allocCancel()
	})
	return p.closeErr
}

// scriptExpression renders s as a self-invoking expression.
func scriptExpression(s Script) (string, error) {
	args := []string{"null"}
	if s.Target != nil {
		sel, err := json.Marshal(s.Target.Selector)
		if err != nil {
			return "", err
		}
		args[0] = fmt.Sprintf("document.querySelectorAll(%s)[%d]", sel, s.Target.Index)
	}
	for _, a := range s.Args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument: %w", err)
		}
		args = append(args, string(b))
	}
	return fmt.Sprintf("(%s)(%s)", s.Func, strings.Join(args, ", ")), nil
}
