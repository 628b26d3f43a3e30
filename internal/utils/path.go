// Package utils provides small helpers shared across the CLI: path and
// log-file discovery, partial-ID resolution, and string similarity for
// suggestions.
package utils

import (
	"os"
	"path/filepath"
)

// FindJSONLInDir finds the issues log in the given .beads directory.
// issues.jsonl is the canonical name; other .jsonl files are accepted
// as a fallback so renamed logs keep working. Always returns a path.
func FindJSONLInDir(dbDir string) string {
	canonical := filepath.Join(dbDir, "issues.jsonl")

	matches, err := filepath.Glob(filepath.Join(dbDir, "*.jsonl"))
	if err != nil || len(matches) == 0 {
		return canonical
	}
	for _, match := range matches {
		if filepath.Base(match) == "issues.jsonl" {
			return match
		}
	}
	for _, match := range matches {
		base := filepath.Base(match)
		// Skip temp files left behind by interrupted exports.
		if len(base) > 4 && base[:1] != "." {
			return match
		}
	}
	return canonical
}

// ResolveForWrite returns the path to write to, resolving symlinks so a
// rename-over-destination lands on the real file rather than replacing
// the link. A nonexistent path is returned unchanged.
func ResolveForWrite(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return filepath.EvalSymlinks(path)
	}
	return path, nil
}
