// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directivePayload struct {
	NextAction  string `json:"nextAction"`
	Selector    string `json:"selector"`
	Text        string `json:"text"`
	Description string `json:"description"`
	WaitTime    int    `json:"waitTime"`
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\nProject created\n```", "Project created"},
		{"no fence", "  plain text  ", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestExtractObject(t *testing.T) {
	obj, ok := ExtractObject(`Sure! Here you go: {"nextAction":"click"} hope that helps`)
	require.True(t, ok)
	assert.Equal(t, `{"nextAction":"click"}`, obj)

	_, ok = ExtractObject("no braces here")
	assert.False(t, ok)
}

func TestParseJSONResponse(t *testing.T) {
	t.Run("fenced object", func(t *testing.T) {
		resp := "```json\n{\"nextAction\":\"click\",\"selector\":\"button.create\",\"description\":\"Open the form\"}\n```"
		out, err := ParseJSONResponse[directivePayload](resp)
		require.NoError(t, err)
		assert.Equal(t, "click", out.NextAction)
		assert.Equal(t, "button.create", out.Selector)
		assert.Equal(t, "Open the form", out.Description)
	})

	t.Run("object inside prose", func(t *testing.T) {
		resp := "I think the next step is {\"nextAction\":\"wait\",\"waitTime\":1500} because the page is loading."
		out, err := ParseJSONResponse[directivePayload](resp)
		require.NoError(t, err)
		assert.Equal(t, "wait", out.NextAction)
		assert.Equal(t, 1500, out.WaitTime)
	})

	t.Run("quoted number is accepted", func(t *testing.T) {
		out, err := ParseJSONResponse[directivePayload](`{"nextAction":"wait","waitTime":"2000"}`)
		require.NoError(t, err)
		assert.Equal(t, 2000, out.WaitTime)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := ParseJSONResponse[directivePayload]("I cannot see a Create Project button.")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no JSON object found")
	})

	t.Run("malformed object", func(t *testing.T) {
		_, err := ParseJSONResponse[directivePayload](`{"nextAction": click}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")
	})
}

func TestLenientDecodingIsScoped(t *testing.T) {
	const quoted = `{"nextAction":"wait","waitTime":"2000","text":42}`

	out, err := ParseJSONResponse[directivePayload](quoted)
	require.NoError(t, err)
	assert.Equal(t, 2000, out.WaitTime)
	assert.Equal(t, "42", out.Text)

	// The process-wide configs used for workflow files and stored runs must
	// keep rejecting mistyped fields.
	var strict directivePayload
	assert.Error(t, jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(`{"waitTime":"2000"}`, &strict))
	assert.Error(t, jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(`{"text":42}`, &strict))
	assert.Error(t, jsoniter.ConfigDefault.UnmarshalFromString(`{"waitTime":"2000"}`, &strict))

	t.Run("unparseable quoted number", func(t *testing.T) {
		_, err := ParseJSONResponse[directivePayload](`{"waitTime":"soon"}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")
	})

	t.Run("fractional wait time is truncated", func(t *testing.T) {
		out, err := ParseJSONResponse[directivePayload](`{"waitTime":"1500.7"}`)
		require.NoError(t, err)
		assert.Equal(t, 1500, out.WaitTime)
	})
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdef", 2))
	assert.Equal(t, "", truncateString("abc", 0))
}
