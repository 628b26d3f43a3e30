package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/beadworks/beads/internal/types"
)

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		FatalError("encoding JSON: %v", err)
	}
}

// outputIssueListJSON prints a list of issues, normalizing nil to [] so
// scripted consumers always see an array.
func outputIssueListJSON(issues []*types.Issue) {
	if issues == nil {
		issues = []*types.Issue{}
	}
	outputJSON(issues)
}

// FatalError writes an error to stderr and exits 1. User-visible
// failures (not found, validation, cycles) all leave through here.
func FatalError(format string, args ...interface{}) {
	if jsonOutput {
		errObj := map[string]string{"error": fmt.Sprintf(format, args...)}
		_ = json.NewEncoder(os.Stderr).Encode(errObj)
	} else {
		fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	}
	os.Exit(1)
}

// FatalErrorWithHint writes an error with an actionable suggestion.
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// WarnError writes a warning to stderr and returns.
func WarnError(format string, args ...interface{}) {
	if quietFlag {
		return
	}
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// Infof writes an informational line to stdout unless --quiet.
func Infof(format string, args ...interface{}) {
	if quietFlag {
		return
	}
	fmt.Printf(format+"\n", args...)
}
