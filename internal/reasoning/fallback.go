package reasoning

import (
	"strings"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// FallbackDirective derives a directive from a response that carried no usable JSON.
func FallbackDirective(raw string) *schemas.ActionDirective {
	lower := strings.ToLower(raw)

	var d schemas.ActionDirective
	switch {
	case strings.Contains(lower, "create project") || strings.Contains(lower, "new project"):
		d = schemas.NewDirective("click")
		d.Text = "Create Project"
		d.Description = "Click the Create Project button"
	case strings.Contains(lower, "login") || strings.Contains(lower, "sign in"):
		d = schemas.NewDirective("click")
		d.Text = "Sign in"
		d.Description = "Click sign in button"
	default:
		d = schemas.NewDirective("wait")
		d.WaitMillis = 2000
		d.Description = "Wait for page to load"
	}
	return &d
}
