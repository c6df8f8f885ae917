// Package stages holds the individual steps of an application session:
// authentication, search and filtering, per-listing submission and
// assessment answering. Each stage drives the page through a
// browser.Executor and reports whether its failure is fatal to the session.
package stages

import (
	"errors"
	"fmt"
	"time"

	"github.com/kylegalloway/applyflow/internal/browser"
	"github.com/kylegalloway/applyflow/internal/config"
	"github.com/kylegalloway/applyflow/internal/logging"
)

// Stage names used in FatalError and logs.
const (
	StageLaunch         = "launch"
	StageAuthentication = "authentication"
	StageSearch         = "search"
	StageApplication    = "application"
	StageAssessment     = "assessment"
)

// FatalError aborts the whole session.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func fatal(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Stage: stage, Err: err}
}

// Credentials for the portal account.
type Credentials struct {
	Email    string
	Password string
}

// Preferences drive the search stage and cap the application loop.
type Preferences struct {
	Profile         string
	Location        string
	WorkFromHome    bool
	PartTime        bool
	MaxApplications int
}

// PreferencesFromConfig copies the search section.
func PreferencesFromConfig(c config.SearchConfig) Preferences {
	return Preferences{
		Profile:         c.Profile,
		Location:        c.Location,
		WorkFromHome:    c.WorkFromHome,
		PartTime:        c.PartTime,
		MaxApplications: c.MaxApplications,
	}
}

// Selectors are the page controls every stage needs.
type Selectors struct {
	LoginButton     browser.Locator
	Email           browser.Locator
	Password        browser.Locator
	LoginSubmit     browser.Locator
	InternshipsLink browser.Locator
	WorkFromHome    browser.Locator
	PartTime        browser.Locator
	SearchInput     browser.Locator
	Listing         browser.Locator
	Continue        browser.Locator
	CoverLetter     browser.Locator
	Submit          browser.Locator
	Question        browser.Locator
	AnswerField     browser.Locator
	// QuestionLabel is queried inside each question element.
	QuestionLabel string
}

// SelectorsFromConfig turns configured candidate lists into locators.
func SelectorsFromConfig(c config.SelectorsConfig) Selectors {
	return Selectors{
		LoginButton:     browser.Select(c.LoginButton...),
		Email:           browser.Select(c.Email...),
		Password:        browser.Select(c.Password...),
		LoginSubmit:     browser.Select(c.LoginSubmit...),
		InternshipsLink: browser.Select(c.InternshipsLink...),
		WorkFromHome:    browser.Select(c.WorkFromHome...),
		PartTime:        browser.Select(c.PartTime...),
		SearchInput:     browser.Select(c.SearchInput...),
		Listing:         browser.Select(c.Listing...),
		Continue:        browser.Select(c.Continue...),
		CoverLetter:     browser.Select(c.CoverLetter...),
		Submit:          browser.Select(c.Submit...),
		Question:        browser.Select(c.Question...),
		AnswerField:     browser.Select(c.AnswerField...),
		QuestionLabel:   c.QuestionLabel,
	}
}

// Timing holds the delays and bounds the stages use.
type Timing struct {
	ActionDelay   time.Duration
	SettleDelay   time.Duration
	KeyDelay      time.Duration
	CoverKeyDelay time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	FilterTimeout time.Duration
}

// TimingFromConfig copies the timing section.
func TimingFromConfig(c config.TimingConfig) Timing {
	return Timing{
		ActionDelay:   c.ActionDelay,
		SettleDelay:   c.SettleDelay,
		KeyDelay:      c.KeyDelay,
		CoverKeyDelay: c.CoverKeyDelay,
		MaxRetries:    c.MaxRetries,
		RetryDelay:    c.RetryDelay,
		FilterTimeout: c.FilterTimeout,
	}
}

// Deps is shared by every stage of one session.
type Deps struct {
	Exec   *browser.Executor
	Sel    Selectors
	Timing Timing
	Log    *logging.Logger
}

// Answerer produces a free-text answer for an assessment question.
type Answerer func(question string) string

// FixedAnswer answers every question with s.
func FixedAnswer(s string) Answerer {
	return func(string) string { return s }
}
