// internal/browser/selector.go
package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// Query is a selector resolved into the form chromedp executes.
type Query struct {
	Expr  string
	XPath bool // Evaluate with chromedp.BySearch instead of chromedp.ByQuery.
}

var (
	// textPseudoRegex matches a trailing `:contains("x")` or `:has-text("x")`.
	textPseudoRegex = regexp.MustCompile(`^(.*?):(?:contains|has-text)\(\s*["']([^"']+)["']\s*\)\s*$`)

	tagRegex      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)
	tagIDRegex    = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?#([\w-]+)$`)
	tagClassRegex = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?\.([\w-]+)$`)
)

// TranslateSelector rewrites the text-matching pseudo-selectors models like to
// emit into an XPath the browser can evaluate natively. Supported bases are
// empty, `*`, a tag, `#id`, `.class`, `tag#id` and `tag.class`. Anything else
// passes through unchanged as CSS and fails at query time if it is invalid.
func TranslateSelector(selector string) Query {
	selector = strings.TrimSpace(selector)
	m := textPseudoRegex.FindStringSubmatch(selector)
	if m == nil {
		return Query{Expr: selector}
	}

	base, text := strings.TrimSpace(m[1]), m[2]
	textCond := "contains(normalize-space(.), " + xpathLiteral(text) + ")"

	var step string
	switch {
	case base == "" || base == "*":
		step = "//*[" + textCond + "]"
	case tagRegex.MatchString(base):
		step = "//" + strings.ToLower(base) + "[" + textCond + "]"
	case tagIDRegex.MatchString(base):
		parts := tagIDRegex.FindStringSubmatch(base)
		step = "//" + tagOrAny(parts[1]) + "[@id=" + xpathLiteral(parts[2]) + " and " + textCond + "]"
	case tagClassRegex.MatchString(base):
		parts := tagClassRegex.FindStringSubmatch(base)
		classCond := `contains(concat(" ", normalize-space(@class), " "), ` + xpathLiteral(" "+parts[2]+" ") + ")"
		step = "//" + tagOrAny(parts[1]) + "[" + classCond + " and " + textCond + "]"
	default:
		return Query{Expr: selector}
	}

	return Query{Expr: "(" + step + ")[1]", XPath: true}
}

// TextQuery selects the innermost element in the page body whose text contains text.
func TextQuery(text string) Query {
	cond := "contains(normalize-space(.), " + xpathLiteral(text) + ")"
	expr := fmt.Sprintf("(//body//*[%s and not(self::script or self::style)][not(*[%s])])[1]", cond, cond)
	return Query{Expr: expr, XPath: true}
}

func tagOrAny(tag string) string {
	if tag == "" {
		return "*"
	}
	return strings.ToLower(tag)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
