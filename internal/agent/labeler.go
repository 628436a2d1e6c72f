// internal/agent/labeler.go
package agent

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

const maxLabelLength = 30

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// LabelStep names a capture from the directive that led to it. The label is a
// naming convenience for the workflow record and never drives control flow.
func LabelStep(d schemas.ActionDirective, hasModal bool, url string) string {
	desc := strings.ToLower(d.Description)

	if hasModal {
		if strings.Contains(desc, "create") {
			return "create_project_modal"
		}
		return "modal_open"
	}

	if desc == "" {
		return "step_" + d.RawKind
	}

	switch {
	case strings.Contains(desc, "create project"), strings.Contains(desc, "new project"):
		return "create_project_button"
	case strings.Contains(desc, "form"), strings.Contains(desc, "fill"):
		return "filling_form_fields"
	case strings.Contains(desc, "submit"), strings.Contains(desc, "save"), strings.Contains(desc, "create"):
		return "submitting_project"
	}

	slug := slugRegex.ReplaceAllString(desc, "_")
	if len(slug) > maxLabelLength {
		slug = slug[:maxLabelLength]
	}
	return slug
}
