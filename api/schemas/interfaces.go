package schemas

import (
	"context"
	"time"
)

// -- Browser Surface --

// BrowserSurface is the narrow set of page operations the step loop needs.
// One surface serves exactly one run; its captures land in WorkflowDir.
type BrowserSurface interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// CaptureScreenshot stores the current page image under the next sequence
	// number and appends it to the workflow record.
	CaptureScreenshot(ctx context.Context, label string, metadata map[string]interface{}) (Observation, error)
	// Click clicks the element matched by selector. The text-matching dialect
	// (`:contains("x")`, `:has-text("x")`) is accepted.
	Click(ctx context.Context, selector string) error
	// ClickByText clicks the first visible element whose text contains text.
	ClickByText(ctx context.Context, text string) error
	// Fill replaces the value of the matched input with text.
	Fill(ctx context.Context, selector, text string) error
	WaitForTimeout(ctx context.Context, d time.Duration) error
	// WaitForUIStable waits until no loading indicators remain, bounded by maxWait.
	// Timing out is not an error.
	WaitForUIStable(ctx context.Context, maxWait time.Duration) error
	HasModalVisible(ctx context.Context) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
	WorkflowDir() string
}

// -- Reasoning --

// ReasoningClient turns a screenshot plus task text into either a structured
// directive or a free-text judgment.
type ReasoningClient interface {
	// NextDirective returns nil when no directive could be produced at all.
	NextDirective(ctx context.Context, screenshotPath, task string) *ActionDirective
	// Classify returns the model's free-text answer to prompt about the screenshot.
	Classify(ctx context.Context, screenshotPath, prompt string) (string, error)
}

// -- Persistence --

// RunStore persists finished runs beyond the filesystem workflow record.
type RunStore interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
}
