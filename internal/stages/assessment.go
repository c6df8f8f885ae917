package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/kylegalloway/applyflow/internal/browser"
	"github.com/kylegalloway/applyflow/internal/config"
)

const (
	labelScript = `(el, labelSel, missing) => {
	const label = labelSel ? el.querySelector(labelSel) : null;
	const text = label ? label.textContent.trim() : "";
	return text || missing;
}`

	// scopedAnswerScript fills the first answer field inside the question.
	scopedAnswerScript = `(el, fieldSel, answer) => {
	const field = el.querySelector(fieldSel);
	if (!field) {
		return false;
	}
	field.focus();
	field.value = answer;
	field.dispatchEvent(new Event("input", { bubbles: true }));
	return true;
}`

	answerScript = `(el, answer) => {
	el.focus();
	el.value = answer;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	return true;
}`
)

// AssessmentAnswering fills the free-text questions of an open application.
type AssessmentAnswering struct {
	Deps
	// IncludeFirst also answers the first question element, which the
	// portal currently renders as a non-question block.
	IncludeFirst    bool
	MissingQuestion string
	Answer          Answerer
}

// Run answers every question it can and returns how many were filled.
// Individual question failures are logged; only failing to enumerate the
// questions is returned.
func (a *AssessmentAnswering) Run(ctx context.Context) (int, error) {
	out, err := a.Exec.Perform(ctx, browser.Action{Kind: browser.ActionCount, Locator: a.Sel.Question})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", StageAssessment, err)
	}

	skip := 1
	if a.IncludeFirst {
		skip = 0
	}
	total := out.Count - skip
	if total < 0 {
		total = 0
	}
	a.Log.Infof("Found %d assessment questions", total)

	answered := 0
	for i := skip; i < out.Count; i++ {
		if err := ctx.Err(); err != nil {
			return answered, err
		}
		n := i - skip + 1
		question := browser.Select(out.Target.Selector).Nth(i)
		if err := a.answer(ctx, question, i-skip, n); err != nil {
			a.Log.Errorf(err, "Failed to answer question %d", n)
			continue
		}
		answered++
		a.Log.Infof("Answered question %d", n)
	}
	return answered, nil
}

func (a *AssessmentAnswering) answer(ctx context.Context, question browser.Locator, field, n int) error {
	var text string
	if err := a.Exec.Evaluate(ctx, question, labelScript, &text, a.Sel.QuestionLabel, a.MissingQuestion); err != nil {
		return err
	}
	a.Log.Infof("Processing question %d: %s", n, text)

	answerer := a.Answer
	if answerer == nil {
		answerer = FixedAnswer(config.DefaultAnswer)
	}
	answer := answerer(text)

	var filled bool
	fields := strings.Join(a.Sel.AnswerField.Candidates, ", ")
	if fields != "" {
		if err := a.Exec.Evaluate(ctx, question, scopedAnswerScript, &filled, fields, answer); err != nil {
			return err
		}
	}
	if filled {
		return nil
	}

	// Some layouts render the text areas outside the question blocks.
	return a.Exec.WithTimeout(a.Timing.FilterTimeout).
		Evaluate(ctx, a.Sel.AnswerField.Nth(field), answerScript, &filled, answer)
}
