package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// cacheVersion guards the suggestion cache file format.
const cacheVersion = 1

type cacheFile struct {
	Version     int           `json:"version"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Suggestions SuggestionSet `json:"suggestions"`
}

// LoadSuggestions reads a previously written suggestion cache. A missing file
// yields an empty set, not an error: a run without suggestions is valid.
func LoadSuggestions(path string) (SuggestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SuggestionSet{}, nil
		}
		return nil, err
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse suggestion cache: %w", err)
	}
	if f.Version != cacheVersion {
		return nil, fmt.Errorf("unsupported suggestion cache version %d", f.Version)
	}
	if f.Suggestions == nil {
		f.Suggestions = SuggestionSet{}
	}
	return f.Suggestions, nil
}

// SaveSuggestions writes the set atomically: temp file in the same directory,
// then rename. A failed write leaves any previous cache untouched.
func SaveSuggestions(path string, set SuggestionSet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(cacheFile{
		Version:     cacheVersion,
		UpdatedAt:   time.Now().UTC(),
		Suggestions: set,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal suggestion cache: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}
