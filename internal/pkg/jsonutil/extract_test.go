package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, true},
		{"object in prose", `Based on the data, {"action":"buy"} is my call.`, `{"action":"buy"}`, true},
		{"fenced with language tag", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"fenced without tag", "```\n[1,2]\n```", `[1,2]`, true},
		{"nested braces", `{"a":{"b":2}} trailing`, `{"a":{"b":2}}`, true},
		{"braces inside strings ignored", `{"note":"use {curly} freely"}`, `{"note":"use {curly} freely"}`, true},
		{"escaped quote inside string", `{"s":"he said \"hi\" {"}`, `{"s":"he said \"hi\" {"}`, true},
		{"array fallback", `scores: [1,2,3]`, `[1,2,3]`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"no json at all", "buy now", "", false},
		{"empty", "   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
