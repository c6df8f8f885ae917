package stages

import (
	"context"

	"github.com/kylegalloway/applyflow/internal/browser"
)

// Outcome of one application attempt.
type Outcome int

const (
	Pending Outcome = iota
	Applied
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Item is one listing on the results page, addressed by position.
type Item struct {
	Index   int
	Locator browser.Locator
	Outcome Outcome
}

// Discover returns one pending Item per listing currently rendered. The
// items address the listing selector that actually matched.
func Discover(ctx context.Context, d Deps) ([]Item, error) {
	out, err := d.Exec.Perform(ctx, browser.Action{Kind: browser.ActionCount, Locator: d.Sel.Listing})
	if err != nil {
		return nil, err
	}
	items := make([]Item, out.Count)
	for i := range items {
		items[i] = Item{
			Index:   i,
			Locator: browser.Select(out.Target.Selector).Nth(i),
		}
	}
	return items, nil
}
