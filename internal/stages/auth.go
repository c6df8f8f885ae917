package stages

import (
	"context"
)

// Authentication logs into the portal. Every failure is fatal.
type Authentication struct {
	Deps
	BaseURL string
}

func (a *Authentication) Run(ctx context.Context, creds Credentials) error {
	return fatal(StageAuthentication, a.run(ctx, creds))
}

func (a *Authentication) run(ctx context.Context, creds Credentials) error {
	exec := a.Exec
	if err := exec.Navigate(ctx, a.BaseURL); err != nil {
		return err
	}
	a.Log.Infof("Navigated to %s", a.BaseURL)

	if err := exec.Click(ctx, a.Sel.LoginButton); err != nil {
		return err
	}
	a.Log.Infof("Login button clicked")

	if err := exec.WaitFor(ctx, a.Sel.Email); err != nil {
		return err
	}
	if err := exec.Type(ctx, a.Sel.Email, creds.Email, a.Timing.KeyDelay); err != nil {
		return err
	}
	if err := exec.Type(ctx, a.Sel.Password, creds.Password, a.Timing.KeyDelay); err != nil {
		return err
	}
	a.Log.Infof("Credentials entered")

	if err := exec.Click(ctx, a.Sel.LoginSubmit); err != nil {
		return err
	}
	if err := exec.WaitNavigation(ctx); err != nil {
		return err
	}
	a.Log.Infof("Login successful")
	return nil
}
