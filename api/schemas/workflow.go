package schemas

import (
	"strings"
	"time"
)

// -- Task Inputs --

// Application describes a web application a task can target.
type Application struct {
	Key           string            `json:"key"`            // Lookup key, e.g. "linear".
	Name          string            `json:"name"`           // Display name.
	BaseURL       string            `json:"base_url"`       // Where every run starts.
	LoginRequired bool              `json:"login_required"` // Whether the app gates its UI behind a sign-in.
	UIHints       map[string]string `json:"ui_hints"`       // Named selector hints (e.g. "create_button").
}

// TaskRequest is the immutable input of a single run.
type TaskRequest struct {
	Description string      `json:"description"`
	Application Application `json:"application"`
}

// -- Observations --

// Metadata keys attached to every observation.
const (
	MetaTask        = "task"
	MetaStep        = "step"
	MetaAction      = "action"
	MetaDescription = "description"
	MetaHasModal    = "has_modal"
)

// Observation is one captured UI state. Observations are append-only; once
// recorded they are never mutated. The json tags match the on-disk metadata.json layout.
type Observation struct {
	Sequence       int                    `json:"step"`
	Label          string                 `json:"label"`
	ScreenshotPath string                 `json:"filepath"`
	URL            string                 `json:"url"`
	CapturedAt     time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// HasModal reports the modal flag recorded at capture time. A missing or
// non-boolean value reads as false.
func (o Observation) HasModal() bool {
	if o.Metadata == nil {
		return false
	}
	v, ok := o.Metadata[MetaHasModal].(bool)
	return ok && v
}

// -- Directives --

// DirectiveKind is the tag of an ActionDirective.
type DirectiveKind string

const (
	KindClick    DirectiveKind = "click"
	KindFill     DirectiveKind = "fill"
	KindWait     DirectiveKind = "wait"
	KindNavigate DirectiveKind = "navigate"
	KindUnknown  DirectiveKind = "unknown"
)

// ParseDirectiveKind maps a raw action name to its kind. "type" is an alias of
// fill and "goto" an alias of navigate; an empty name yields "" so callers can
// tell an absent directive apart from an unrecognized one.
func ParseDirectiveKind(raw string) DirectiveKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "click":
		return KindClick
	case "fill", "type":
		return KindFill
	case "wait":
		return KindWait
	case "navigate", "goto":
		return KindNavigate
	default:
		return KindUnknown
	}
}

// ActionDirective is one structured instruction produced by the reasoning service.
type ActionDirective struct {
	Kind        DirectiveKind `json:"kind"`
	RawKind     string        `json:"raw_kind"` // The action name exactly as the model wrote it.
	Selector    string        `json:"selector,omitempty"`
	Text        string        `json:"text,omitempty"`
	URL         string        `json:"url,omitempty"`
	WaitMillis  int           `json:"wait_ms,omitempty"`
	Description string        `json:"description,omitempty"`
}

// NewDirective builds a directive from its raw action name.
func NewDirective(rawKind string) ActionDirective {
	return ActionDirective{Kind: ParseDirectiveKind(rawKind), RawKind: rawKind}
}

// ActionOutcome is the result of dispatching one directive. Failures are
// carried as data, never as a returned error.
type ActionOutcome struct {
	Succeeded    bool   `json:"succeeded"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// OutcomeOK returns a successful outcome.
func OutcomeOK() ActionOutcome { return ActionOutcome{Succeeded: true} }

// OutcomeFailed returns a failed outcome carrying err's message.
func OutcomeFailed(err error) ActionOutcome {
	return ActionOutcome{ErrorMessage: err.Error()}
}

// -- Run Results --

// Verdict is the completion classifier's judgment of the current state.
type Verdict string

const (
	VerdictDone     Verdict = "done"
	VerdictContinue Verdict = "continue"
	VerdictFailed   Verdict = "failed"
)

// Termination records why a run stopped.
type Termination string

const (
	TerminationCompleted        Termination = "completed"
	TerminationExhausted        Termination = "exhausted"
	TerminationAuthRequired     Termination = "auth_required"
	TerminationNoDirective      Termination = "no_directive"
	TerminationClassifiedFailed Termination = "classified_failed"
	TerminationCanceled         Termination = "canceled"
)

// TaskResult is the terminal record of one run. Observations are always
// populated with whatever was captured, even on failure.
type TaskResult struct {
	RunID        string        `json:"run_id"`
	Succeeded    bool          `json:"succeeded"`
	Termination  Termination   `json:"termination"`
	Observations []Observation `json:"observations"`
	WorkflowDir  string        `json:"workflow_dir"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StepsTaken   int           `json:"steps_taken"`
}

// RunRecord is the persisted form of a finished run.
type RunRecord struct {
	RunID        string        `json:"run_id"`
	Task         string        `json:"task"`
	AppKey       string        `json:"app"`
	Succeeded    bool          `json:"succeeded"`
	Termination  Termination   `json:"termination"`
	ErrorMessage string        `json:"error_message,omitempty"`
	WorkflowDir  string        `json:"workflow_dir"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Observations []Observation `json:"observations"`
}
