// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Backticks are written as \x60 because Go raw strings cannot contain them.
	fenceOpenRegex = regexp.MustCompile("\x60\x60\x60json\\n?")
	fenceRegex     = regexp.MustCompile("\x60\x60\x60\\n?")

	// objectRegex is greedy: it spans from the first '{' to the last '}'.
	objectRegex = regexp.MustCompile(`\{[\s\S]*\}`)
)

// StripFences removes markdown code fences (with or without a json tag) and
// surrounding whitespace from a model response.
func StripFences(response string) string {
	response = fenceOpenRegex.ReplaceAllString(response, "")
	response = fenceRegex.ReplaceAllString(response, "")
	return strings.TrimSpace(response)
}

// ExtractObject returns the first-'{'-to-last-'}' span of response, or false
// when the response holds no object.
func ExtractObject(response string) (string, bool) {
	match := objectRegex.FindString(response)
	return match, match != ""
}

// ParseJSONResponse decodes the JSON object embedded in a model response into T.
// Fences and conversational text around the object are tolerated.
func ParseJSONResponse[T any](response string) (*T, error) {
	cleaned := StripFences(response)
	candidate, ok := ExtractObject(cleaned)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in LLM response: %s", truncateString(cleaned, 200))
	}

	var result T
	if err := lenientJSON.UnmarshalFromString(candidate, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(candidate, 500))
	}
	return &result, nil
}

// truncateString truncates a string to a maximum length. Byte-based; only used in error text.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
