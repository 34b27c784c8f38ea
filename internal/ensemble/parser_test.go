package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAdvice_PlainJSON(t *testing.T) {
	out, err := ParseAdvice(`{"action":"BUY","confidence":72.5,"reasoning":"breakout above sma"}`)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, out.Action)
	assert.InDelta(t, 72.5, out.Confidence, 1e-9)
	assert.Equal(t, "breakout above sma", out.Reasoning)
}

func TestParseAdvice_FencedAndProseWrapped(t *testing.T) {
	raw := "Sure, here is my analysis:\n```json\n{\"action\":\"open_short\",\"confidence\":55}\n```\nLet me know."
	out, err := ParseAdvice(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, out.Action)
	assert.InDelta(t, 55.0, out.Confidence, 1e-9)
}

func TestParseAdvice_ActionAliases(t *testing.T) {
	cases := map[string]Action{
		"long": ActionBuy, "short": ActionSell, "wait": ActionHold, "HOLD": ActionHold,
	}
	for raw, want := range cases {
		out, err := ParseAdvice(`{"action":"` + raw + `","confidence":50}`)
		require.NoError(t, err, raw)
		assert.Equal(t, want, out.Action, raw)
	}
}

func TestParseAdvice_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no json", "I think you should buy."},
		{"missing confidence", `{"action":"buy"}`},
		{"confidence out of schema range", `{"action":"buy","confidence":150}`},
		{"unknown action", `{"action":"yolo","confidence":80}`},
		{"confidence wrong type", `{"action":"buy","confidence":"high"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAdvice(tc.raw)
			assert.ErrorIs(t, err, ErrProviderInvalidResponse)
		})
	}
}
