package importer

import (
	"sort"

	"github.com/beadworks/beads/internal/idgen"
	"github.com/beadworks/beads/internal/types"
)

// SortByDepth orders issues by hierarchy depth, shallow first, so parents
// land before their children. Issues at the same depth sort by ID for
// deterministic output.
func SortByDepth(issues []*types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		depthI := idgen.Depth(issues[i].ID)
		depthJ := idgen.Depth(issues[j].ID)
		if depthI != depthJ {
			return depthI < depthJ
		}
		return issues[i].ID < issues[j].ID
	})
}

// GroupByDepth buckets issues by hierarchy depth. Each bucket can be
// inserted as one batch once every shallower bucket has landed.
func GroupByDepth(issues []*types.Issue) map[int][]*types.Issue {
	groups := make(map[int][]*types.Issue)
	for _, issue := range issues {
		groups[idgen.Depth(issue.ID)] = append(groups[idgen.Depth(issue.ID)], issue)
	}
	return groups
}
