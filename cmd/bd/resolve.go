package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/beadworks/beads/internal/ui"
	"github.com/beadworks/beads/internal/utils"
)

// resolveIssueID expands a possibly-partial ID or exits 1 with the
// not-found / ambiguous rendering.
func resolveIssueID(input string) string {
	resolved, err := utils.ResolvePartialID(rootCtx, store, input)
	if err == nil {
		return resolved
	}

	if !jsonOutput && strings.Contains(err.Error(), "not found") {
		suggestions := utils.ClosestIDs(rootCtx, store, input, 3)
		fmt.Fprintln(os.Stderr, ui.RenderUnknownID(input, suggestions))
		os.Exit(1)
	}
	FatalError("%v", err)
	return "" // unreachable
}

// resolveIssueIDs resolves each argument, failing fast on the first bad
// one.
func resolveIssueIDs(inputs []string) []string {
	resolved := make([]string, 0, len(inputs))
	for _, input := range inputs {
		resolved = append(resolved, resolveIssueID(input))
	}
	return resolved
}
