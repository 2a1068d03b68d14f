package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSearchPaths returns the directories scanned for model weights: the
// configured model directory first, then the user's Desktop.
func DefaultSearchPaths(modelDir string) []string {
	paths := []string{}
	if modelDir != "" {
		paths = append(paths, modelDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "Desktop"))
	}
	return paths
}

// FindModelFile returns the first .gguf file found in the given directories,
// scanning each in name order. Missing directories are skipped.
func FindModelFile(dirs ...string) (string, error) {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".gguf") {
				names = append(names, e.Name())
			}
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		return filepath.Join(dir, names[0]), nil
	}
	return "", fmt.Errorf("%w: no .gguf file found in %s", ErrModelUnavailable, strings.Join(dirs, ", "))
}
