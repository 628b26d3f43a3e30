package utils

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/beadworks/beads/internal/storage"
	"github.com/beadworks/beads/internal/types"
)

// maxAmbiguousCandidates caps how many matches an ambiguous-ID error
// lists before truncating.
const maxAmbiguousCandidates = 5

// ResolvePartialID expands a possibly-partial issue ID to a full one.
// Exact matches win; otherwise the input is treated as an ID prefix
// (with the configured issue prefix prepended to bare hashes). A unique
// prefix match resolves; zero matches is not-found (with a "did you
// mean" suggestion when a close ID exists); multiple matches is an
// ambiguity error listing the candidates.
func ResolvePartialID(ctx context.Context, store storage.Storage, input string) (string, error) {
	if store == nil {
		return "", fmt.Errorf("cannot resolve issue ID %q: storage is nil", input)
	}

	// Fast path: exact ID.
	exact := types.IssueFilter{IDs: []string{input}, IncludeTombstones: true}
	if issues, err := store.SearchIssues(ctx, "", exact); err == nil && len(issues) > 0 {
		return issues[0].ID, nil
	}

	prefix, err := store.GetConfig(ctx, "issue_prefix")
	if err != nil || prefix == "" {
		prefix = "bd"
	}
	prefixWithHyphen := prefix
	if !strings.HasSuffix(prefix, "-") {
		prefixWithHyphen = prefix + "-"
	}

	// Bare hashes get the configured prefix; inputs that already carry
	// one are used as-is.
	candidates := []string{input}
	if !strings.Contains(input, "-") {
		candidates = append(candidates, prefixWithHyphen+input)
	}

	for _, candidate := range candidates {
		matches, err := store.SearchIssues(ctx, "", types.IssueFilter{IDPrefix: candidate, IncludeTombstones: true})
		if err != nil {
			return "", fmt.Errorf("failed to search issues: %w", err)
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0].ID, nil
		default:
			ids := make([]string, 0, len(matches))
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			sort.Strings(ids)
			shown := ids
			suffix := ""
			if len(shown) > maxAmbiguousCandidates {
				shown = shown[:maxAmbiguousCandidates]
				suffix = fmt.Sprintf(" (and %d more)", len(ids)-maxAmbiguousCandidates)
			}
			return "", fmt.Errorf("ambiguous ID %q matches %d issues: %s%s\nUse more characters to disambiguate",
				input, len(ids), strings.Join(shown, ", "), suffix)
		}
	}

	if suggestion := closestID(ctx, store, input); suggestion != "" {
		return "", fmt.Errorf("issue not found: %s (did you mean %s?)", input, suggestion)
	}
	return "", fmt.Errorf("issue not found: %s", input)
}

// ResolvePartialIDs resolves a batch, failing on the first error.
func ResolvePartialIDs(ctx context.Context, store storage.Storage, inputs []string) ([]string, error) {
	resolved := make([]string, 0, len(inputs))
	for _, input := range inputs {
		fullID, err := ResolvePartialID(ctx, store, input)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fullID)
	}
	return resolved, nil
}

// ClosestIDs returns up to max existing issue IDs within edit distance 2
// of input, nearest first with lexical tie-breaking. Callers use it to
// offer suggestions after a failed resolution.
func ClosestIDs(ctx context.Context, store storage.Storage, input string, max int) []string {
	if max <= 0 {
		return nil
	}
	issues, err := store.SearchIssues(ctx, "", types.IssueFilter{})
	if err != nil {
		return nil
	}
	type scored struct {
		id   string
		dist int
	}
	var near []scored
	for _, issue := range issues {
		if d := ComputeDistance(input, issue.ID); d < 3 {
			near = append(near, scored{issue.ID, d})
		}
	}
	sort.Slice(near, func(i, j int) bool {
		if near[i].dist != near[j].dist {
			return near[i].dist < near[j].dist
		}
		return near[i].id < near[j].id
	})
	if len(near) > max {
		near = near[:max]
	}
	ids := make([]string, len(near))
	for i, n := range near {
		ids[i] = n.id
	}
	return ids
}

// closestID returns the nearest existing ID within edit distance 2, or
// empty when nothing is close enough to suggest.
func closestID(ctx context.Context, store storage.Storage, input string) string {
	if ids := ClosestIDs(ctx, store, input, 1); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
