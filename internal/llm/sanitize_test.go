package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"fenced", "```sql\nSELECT a FROM t;\n```", "SELECT a FROM t"},
		{"fenced no lang", "```\nSELECT a FROM t\n```", "SELECT a FROM t"},
		{"surrounding whitespace", "\n  SELECT 1  \n", "SELECT 1"},
		{"fence with prose after", "```sql\nSELECT 1\n``` hope this helps", "SELECT 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeSQL(tc.in))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSON("here you go: {\"a\":1} done"))
	assert.Equal(t, `{"a":{"b":2}}`, ExtractJSON("```json\n{\"a\":{\"b\":2}}\n```"))
	assert.Equal(t, `{"s":"has } brace"}`, ExtractJSON(`{"s":"has } brace"}`))
	assert.Equal(t, "", ExtractJSON("no json here"))
	assert.Equal(t, "", ExtractJSON("{unclosed"))
}
