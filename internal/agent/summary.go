// internal/agent/summary.go
package agent

import (
	"time"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// minPassingSteps is the capture count a run needs to count as a usable walkthrough.
const minPassingSteps = 2

// ScreenshotRef is one line of a run summary.
type ScreenshotRef struct {
	Step      int       `json:"step"`
	Label     string    `json:"label"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is what the agent reports back for a processed task.
type Summary struct {
	RunID         string              `json:"run_id"`
	Task          string              `json:"task"`
	App           string              `json:"app"`
	Success       bool                `json:"success"`
	Termination   schemas.Termination `json:"termination"`
	Error         string              `json:"error,omitempty"`
	StepsCaptured int                 `json:"steps_captured"`
	WorkflowDir   string              `json:"workflow_dir"`
	Screenshots   []ScreenshotRef     `json:"screenshots"`
}

// NewSummary condenses a task result.
func NewSummary(task string, app schemas.Application, result *schemas.TaskResult) *Summary {
	refs := make([]ScreenshotRef, 0, len(result.Observations))
	for _, o := range result.Observations {
		refs = append(refs, ScreenshotRef{Step: o.Sequence, Label: o.Label, URL: o.URL, Timestamp: o.CapturedAt})
	}
	return &Summary{
		RunID:         result.RunID,
		Task:          task,
		App:           app.Name,
		Success:       result.Succeeded,
		Termination:   result.Termination,
		Error:         result.ErrorMessage,
		StepsCaptured: len(result.Observations),
		WorkflowDir:   result.WorkflowDir,
		Screenshots:   refs,
	}
}

// Passed reports whether enough steps were captured for a task expected to
// take expectedSteps. Success of the task itself is not required.
func (s *Summary) Passed(expectedSteps int) bool {
	need := minPassingSteps
	if expectedSteps < need {
		need = expectedSteps
	}
	return s.StepsCaptured >= need
}
