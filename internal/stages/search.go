package stages

import (
	"context"

	"github.com/kylegalloway/applyflow/internal/browser"
	"github.com/kylegalloway/applyflow/internal/retry"
	"github.com/kylegalloway/applyflow/internal/sanitize"
)

// SearchAndFilter opens the listings view and applies the preferences.
// Only failing to reach the listings is fatal; filter and keyword failures
// are logged and the search goes on with whatever is rendered.
type SearchAndFilter struct {
	Deps
	ListingsURL string
	Prefs       Preferences
}

func (s *SearchAndFilter) Run(ctx context.Context) error {
	if err := s.openListings(ctx); err != nil {
		return fatal(StageSearch, err)
	}
	s.Log.Infof("Navigated to internships page")

	if err := s.Exec.Pause(ctx, s.Timing.SettleDelay); err != nil {
		return fatal(StageSearch, err)
	}

	filter := s.Exec.WithTimeout(s.Timing.FilterTimeout)
	if s.Prefs.WorkFromHome {
		if err := filter.Click(ctx, s.Sel.WorkFromHome); err != nil {
			s.Log.Errorf(err, "Failed to apply work from home filter")
		} else {
			s.Log.Infof("Work from home filter applied")
		}
	}
	if s.Prefs.PartTime {
		if err := filter.Click(ctx, s.Sel.PartTime); err != nil {
			s.Log.Errorf(err, "Failed to apply part-time filter")
		} else {
			s.Log.Infof("Part-time filter applied")
		}
	}
	if err := ctx.Err(); err != nil {
		return fatal(StageSearch, err)
	}

	if profile := sanitize.SingleLine(s.Prefs.Profile); profile != "" {
		if err := s.searchProfile(ctx, filter, profile); err != nil {
			if ctx.Err() != nil {
				return fatal(StageSearch, ctx.Err())
			}
			s.Log.Errorf(err, "Failed to enter profile search")
		} else {
			s.Log.Infof("Searched for profile: %s", profile)
		}
	}

	if location := sanitize.SingleLine(s.Prefs.Location); location != "" {
		if err := enterKeywords(ctx, filter, s.Sel.SearchInput.Nth(1), location); err != nil {
			s.Log.Errorf(err, "Failed to enter location search")
		} else {
			s.Log.Infof("Searched for location: %s", location)
		}
	}

	if err := s.Exec.Pause(ctx, s.Timing.ActionDelay); err != nil {
		return fatal(StageSearch, err)
	}
	return nil
}

// openListings prefers the navigation link and falls back to loading the
// listings URL directly.
func (s *SearchAndFilter) openListings(ctx context.Context) error {
	link := s.Exec.WithTimeout(s.Timing.FilterTimeout)
	err := link.Click(ctx, s.Sel.InternshipsLink)
	if err == nil {
		err = s.Exec.WaitNavigation(ctx)
	}
	if err == nil || s.ListingsURL == "" || ctx.Err() != nil {
		return err
	}
	s.Log.Errorf(err, "Internships link unavailable, loading %s", s.ListingsURL)
	return s.Exec.Navigate(ctx, s.ListingsURL)
}

func (s *SearchAndFilter) searchProfile(ctx context.Context, exec *browser.Executor, profile string) error {
	policy := retry.Policy{
		MaxAttempts: s.Timing.MaxRetries,
		Delay:       s.Timing.RetryDelay,
		OnRetry: func(attempt int, err error) {
			s.Log.Errorf(err, "Profile search attempt %d failed", attempt)
		},
	}
	return retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		return enterKeywords(ctx, exec, s.Sel.SearchInput, profile)
	})
}

// enterKeywords replaces the content of a search input and submits it.
func enterKeywords(ctx context.Context, exec *browser.Executor, input browser.Locator, text string) error {
	if err := exec.Click(ctx, input); err != nil {
		return err
	}
	if err := exec.SelectAll(ctx, input); err != nil {
		return err
	}
	if err := exec.Type(ctx, input, text, 0); err != nil {
		return err
	}
	return exec.Press(ctx, browser.KeyEnter)
}
