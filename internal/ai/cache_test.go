package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSuggestionsMissingFile(t *testing.T) {
	t.Parallel()

	set, err := LoadSuggestions(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestSaveAndLoadSuggestions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache", "suggestions.json")
	set := SuggestionSet{
		"a1b2c3d4e5f60718": {CategoryID: "food", Confidence: 0.82},
		"00112233445566ff": {CategoryID: "travel", Confidence: 0.65},
	}
	require.NoError(t, SaveSuggestions(path, set))

	got, err := LoadSuggestions(path)
	require.NoError(t, err)
	require.Equal(t, set, got)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestLoadSuggestionsRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "suggestions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "suggestions": {}}`), 0o644))

	_, err := LoadSuggestions(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "version")
}

func TestLoadSuggestionsRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "suggestions.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := LoadSuggestions(path)
	require.Error(t, err)
}
