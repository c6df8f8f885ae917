// Package notion mirrors submitted applications into a Notion database.
package notion

import (
	"context"
	"fmt"
	"time"

	gnt "github.com/dstotijn/go-notion"
)

// Application is one submitted application as it appears in the tracker.
type Application struct {
	SessionID    string
	Profile      string
	Location     string
	WorkFromHome bool
	Index        int
	Outcome      string
	AppliedAt    time.Time
}

// Position is the row title: the search profile plus the listing position.
func (a Application) Position() string {
	profile := a.Profile
	if profile == "" {
		profile = "Internship"
	}
	return fmt.Sprintf("%s #%d", profile, a.Index+1)
}

type Client struct {
	api        *gnt.Client
	databaseID string
}

func New(token, databaseID string, opts ...gnt.ClientOption) *Client {
	return &Client{
		api:        gnt.NewClient(token, opts...),
		databaseID: databaseID,
	}
}

// Ping runs a one-row query to check that the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.QueryDatabase(ctx, c.databaseID, &gnt.DatabaseQuery{
		PageSize: 1,
	})
	return err
}

// helper: build a valid Notion rich_text slice from a plain string.
func richText(s string) []gnt.RichText {
	if s == "" {
		return nil
	}
	return []gnt.RichText{
		{
			Text: &gnt.Text{
				Content: s,
			},
		},
	}
}

func selectOption(name string) *gnt.SelectOptions {
	return &gnt.SelectOptions{Name: name}
}

func buildPageProperties(app Application) gnt.DatabasePageProperties {
	props := gnt.DatabasePageProperties{
		"Position": gnt.DatabasePageProperty{
			Title: richText(app.Position()),
		},
		"Stage": gnt.DatabasePageProperty{
			Select: selectOption("Applied"),
		},
	}

	if app.WorkFromHome {
		props["Work Mode"] = gnt.DatabasePageProperty{
			Select: selectOption("Remote"),
		}
	}

	if app.Location != "" {
		props["location"] = gnt.DatabasePageProperty{
			RichText: richText(app.Location),
		}
	}

	if app.Outcome != "" {
		props["Outcome"] = gnt.DatabasePageProperty{
			Select: selectOption(app.Outcome),
		}
	}

	if app.SessionID != "" {
		props["Notes"] = gnt.DatabasePageProperty{
			RichText: richText("Submitted by applyflow session " + app.SessionID),
		}
	}

	if !app.AppliedAt.IsZero() {
		props["Applied On"] = gnt.DatabasePageProperty{
			Date: &gnt.Date{
				Start: gnt.NewDateTime(app.AppliedAt, true),
			},
		}
	}

	return props
}

// Publish creates one row for app and returns the new page id.
func (c *Client) Publish(ctx context.Context, app Application) (string, error) {
	props := buildPageProperties(app)

	params := gnt.CreatePageParams{
		ParentType:             gnt.ParentTypeDatabase,
		ParentID:               c.databaseID,
		DatabasePageProperties: &props,
	}

	page, err := c.api.CreatePage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("notion: create page: %w", err)
	}
	return page.ID, nil
}
