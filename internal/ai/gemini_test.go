package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanModelJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, in, want string
	}{
		{"bare json", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"fenced no language", "```\n[]\n```", `[]`},
		{"surrounding whitespace", "  \n[]\n  ", `[]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, cleanModelJSON(tc.in))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p := buildPrompt([]string{"food", "travel"}, `[{"fingerprint":"abc"}]`)
	require.Contains(t, p, "food\ntravel")
	require.Contains(t, p, `[{"fingerprint":"abc"}]`)
	require.Contains(t, p, "STRICT JSON")
	require.False(t, strings.Contains(p, "```"))
}

func TestGeminiProviderModelFallback(t *testing.T) {
	t.Parallel()

	g := &GeminiProvider{}
	require.Equal(t, DefaultModel, g.model())
	g.Model = "gemini-2.5-pro"
	require.Equal(t, "gemini-2.5-pro", g.model())
}
