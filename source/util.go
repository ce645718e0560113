package source

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var supportedExts = []string{".jsonl", ".ndjson", ".json", ".csv", ".tsv"}

func isSupported(path string) bool {
	return slices.Contains(supportedExts, strings.ToLower(filepath.Ext(path)))
}

// resolveLocalFiles turns a dataset path into the list of files to read.
// A file path is used as is. For a directory, dataFiles globs win; otherwise
// the split is discovered from common layouts.
func resolveLocalFiles(path string, isDir bool, split, dataFiles string) ([]string, error) {
	if !isDir {
		if !isSupported(path) {
			return nil, fmt.Errorf("unsupported data file %s", path)
		}
		return []string{path}, nil
	}

	if dataFiles != "" {
		var patterns []string
		for _, p := range strings.Split(dataFiles, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, filepath.Join(path, p))
			}
		}
		files, err := globAll(patterns)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no data files match %q in %s", dataFiles, path)
		}
		return files, nil
	}

	return autoFindSplit(path, split)
}

// autoFindSplit tries the usual split layouts in order and returns the files
// of the first one that matches.
func autoFindSplit(dir, split string) ([]string, error) {
	var candidates [][]string
	for _, sub := range []string{"", "data"} {
		base := filepath.Join(dir, sub)
		for _, ext := range supportedExts {
			candidates = append(candidates, []string{
				filepath.Join(base, split+ext),
			}, []string{
				// sharded exports: train-00000-of-00002.jsonl
				filepath.Join(base, split+"-*"+ext),
			})
		}
	}
	for _, patterns := range candidates {
		files, err := globAll(patterns)
		if err == nil && len(files) > 0 {
			return files, nil
		}
	}
	return nil, fmt.Errorf("no %q split files found in %s", split, dir)
}

// globAll expands patterns and returns the sorted, de-duplicated supported
// files they match.
func globAll(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] && isSupported(m) {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	slices.Sort(files)
	return files, nil
}
