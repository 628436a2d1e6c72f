// Package apps holds the table of supported web applications and maps task text onto it.
package apps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// ErrUnknownApp is returned by Get for keys missing from the table.
var ErrUnknownApp = errors.New("unknown application")

// DefaultKey is used when neither an override nor the task text names an app.
const DefaultKey = "wikipedia"

// table is ordered: keyword scanning stops at the first key found in the task.
var table = []schemas.Application{
	{
		Key: "linear", Name: "Linear", BaseURL: "https://linear.app", LoginRequired: true,
		UIHints: map[string]string{
			"create_button":  `[data-testid*="create"], button:has-text("Create")`,
			"project_button": `button:has-text("Project"), a:has-text("Project")`,
			"modal":          `[role="dialog"]`,
			"form_input":     `input[type="text"], textarea`,
		},
	},
	{
		Key: "notion", Name: "Notion", BaseURL: "https://www.notion.so", LoginRequired: true,
		UIHints: map[string]string{
			"filter_button": `button:has-text("Filter"), [aria-label*="Filter"]`,
			"database_view": `.notion-collection-view`,
			"modal":         `[role="dialog"]`,
			"form_input":    `input, textarea`,
		},
	},
	{
		Key: "asana", Name: "Asana", BaseURL: "https://app.asana.com", LoginRequired: true,
		UIHints: map[string]string{
			"create_button": `button:has-text("Create"), [aria-label*="Create"]`,
			"modal":         `[role="dialog"]`,
			"form_input":    `input, textarea`,
		},
	},
	{
		Key: "github", Name: "GitHub", BaseURL: "https://github.com", LoginRequired: false,
		UIHints: map[string]string{
			"create_button": `button:has-text("New"), [aria-label*="Create new"]`,
			"repo_button":   `a:has-text("Repository"), button:has-text("Repository")`,
			"modal":         `[role="dialog"]`,
			"form_input":    `input[name="repository[name]"], textarea[name="repository[description]"]`,
		},
	},
	{
		Key: "trello", Name: "Trello", BaseURL: "https://trello.com", LoginRequired: true,
		UIHints: map[string]string{
			"create_button": `button:has-text("Create"), [data-testid*="create"]`,
			"board_button":  `button:has-text("Board"), a:has-text("Board")`,
			"modal":         `[role="dialog"]`,
			"form_input":    `input[type="text"], textarea`,
		},
	},
	{
		Key: "wikipedia", Name: "Wikipedia", BaseURL: "https://en.wikipedia.org", LoginRequired: false,
		UIHints: map[string]string{
			"search_button": `button:has-text("Search"), [type="submit"]`,
			"search_input":  `input[name="search"], #searchInput`,
			"modal":         `[role="dialog"]`,
			"form_input":    `input, textarea`,
		},
	},
	{
		Key: "reddit", Name: "Reddit", BaseURL: "https://www.reddit.com", LoginRequired: false,
		UIHints: map[string]string{
			"search_button": `button:has-text("Search"), [type="submit"]`,
			"search_input":  `input[name="q"], #header-search-bar`,
			"post_button":   `button:has-text("Post"), a:has-text("Create post")`,
			"modal":         `[role="dialog"]`,
			"form_input":    `input, textarea`,
		},
	},
}

// All returns a copy of the table in lookup order.
func All() []schemas.Application {
	out := make([]schemas.Application, len(table))
	copy(out, table)
	return out
}

// Get returns the application registered under key (case-insensitive).
func Get(key string) (schemas.Application, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, app := range table {
		if app.Key == key {
			return app, nil
		}
	}
	return schemas.Application{}, fmt.Errorf("%w: %q", ErrUnknownApp, key)
}

// ForTask picks the application for a task. A known override wins; an unknown
// override is ignored. Otherwise the first app whose key appears in the task
// text is used, and the default app when none does.
func ForTask(task, override string) schemas.Application {
	if override != "" {
		if app, err := Get(override); err == nil {
			return app
		}
	}

	lower := strings.ToLower(task)
	for _, app := range table {
		if strings.Contains(lower, app.Key) {
			return app
		}
	}

	app, _ := Get(DefaultKey)
	return app
}
