package stages

import (
	"context"
	"fmt"

	"github.com/kylegalloway/applyflow/internal/sanitize"
)

// ApplicationSubmission applies to a single listing. Any failure is
// reported as the failure of that item only.
type ApplicationSubmission struct {
	Deps
	CoverLetter string
	Assessment  *AssessmentAnswering
}

// Run applies to item and records the outcome on it.
func (a *ApplicationSubmission) Run(ctx context.Context, item *Item) error {
	if err := a.run(ctx, item); err != nil {
		item.Outcome = Failed
		return fmt.Errorf("internship %d: %w", item.Index+1, err)
	}
	item.Outcome = Applied
	return nil
}

func (a *ApplicationSubmission) run(ctx context.Context, item *Item) error {
	exec := a.Exec
	if err := exec.Click(ctx, item.Locator); err != nil {
		return err
	}
	if err := exec.Pause(ctx, a.Timing.ActionDelay); err != nil {
		return err
	}

	if err := exec.Click(ctx, a.Sel.Continue); err != nil {
		return err
	}
	if err := exec.Pause(ctx, a.Timing.ActionDelay); err != nil {
		return err
	}

	if err := exec.SelectAll(ctx, a.Sel.CoverLetter); err != nil {
		return err
	}
	if err := exec.Type(ctx, a.Sel.CoverLetter, sanitize.KeyText(a.CoverLetter), a.Timing.CoverKeyDelay); err != nil {
		return err
	}
	a.Log.Infof("Cover letter entered")

	if a.Assessment != nil {
		if _, err := a.Assessment.Run(ctx); err != nil {
			return err
		}
	}

	if err := exec.Click(ctx, a.Sel.Submit); err != nil {
		return err
	}
	a.Log.Infof("Application submitted")
	return nil
}
