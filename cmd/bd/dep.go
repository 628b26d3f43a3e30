package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies between issues",
}

var depAddCmd = &cobra.Command{
	Use:   "add <from> <to>",
	Short: "Record that <from> depends on <to>",
	Long: `Record that <from> depends on <to>.

The default edge type "blocks" keeps <from> out of the ready queue
while <to> is unresolved. Informational types (related, relates-to,
discovered-from, duplicates, supersedes) never block.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		depType, _ := cmd.Flags().GetString("type")
		dt := types.DependencyType(depType)
		if !dt.IsValid() {
			FatalError("invalid dependency type %q", depType)
		}
		if !dt.IsWellKnown() {
			WarnError("unknown dependency type %q; treated as non-blocking", depType)
		}

		from := resolveIssueID(args[0])
		to := resolveIssueID(args[1])

		actor := resolveActor()
		dep := &types.Dependency{
			IssueID:     from,
			DependsOnID: to,
			Type:        dt,
			CreatedBy:   actor,
		}
		if err := store.AddDependency(rootCtx, dep, actor); err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(dep)
			return
		}
		Infof("%s now depends on %s (%s)", ui.RenderID(from), ui.RenderID(to), dt)
		if dt.AffectsReadyWork() {
			if blocked, blockers, err := store.IsBlocked(rootCtx, from); err == nil && blocked && len(blockers) > 0 {
				Infof("%s is blocked until %d issue(s) resolve", from, len(blockers))
			}
		}
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "remove <from> <to>",
	Aliases: []string{"rm"},
	Short:   "Remove the dependency from <from> to <to>",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		from := resolveIssueID(args[0])
		to := resolveIssueID(args[1])

		if err := store.RemoveDependency(rootCtx, from, to, resolveActor()); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"issue_id": from, "depends_on_id": to, "removed": "true"})
			return
		}
		Infof("Removed dependency %s → %s", ui.RenderID(from), ui.RenderID(to))
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List an issue's dependencies and dependents",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveIssueID(args[0])

		records, err := store.GetDependencyRecords(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}
		dependents, err := store.GetDependents(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			if records == nil {
				records = []*types.Dependency{}
			}
			outputJSON(map[string]interface{}{
				"issue_id":     id,
				"dependencies": records,
				"dependents":   dependents,
			})
			return
		}

		if len(records) == 0 && len(dependents) == 0 {
			Infof("%s has no dependencies.", id)
			return
		}
		if len(records) > 0 {
			fmt.Printf("%s depends on:\n", ui.RenderID(id))
			for _, dep := range records {
				fmt.Printf("  → %s (%s)\n", dep.DependsOnID, dep.Type)
			}
		}
		if len(dependents) > 0 {
			fmt.Printf("Depended on by:\n")
			for _, d := range dependents {
				fmt.Printf("  ← %s  %s\n", d.ID, d.Title)
			}
		}
	},
}

var depTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Show the dependency tree rooted at an issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveIssueID(args[0])
		depth, _ := cmd.Flags().GetInt("depth")
		reverse, _ := cmd.Flags().GetBool("reverse")

		nodes, err := store.GetDependencyTree(rootCtx, id, depth, reverse)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			if nodes == nil {
				nodes = []*types.TreeNode{}
			}
			outputJSON(nodes)
			return
		}
		fmt.Println(ui.RenderDependencyTree(nodes))
	},
}

var depCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Detect dependency cycles",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cycles, err := store.DetectCycles(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			out := make([][]string, 0, len(cycles))
			for _, cycle := range cycles {
				ids := make([]string, 0, len(cycle))
				for _, issue := range cycle {
					ids = append(ids, issue.ID)
				}
				out = append(out, ids)
			}
			outputJSON(map[string]interface{}{"cycles": out})
			return
		}
		fmt.Println(ui.RenderCycleTable(cycles, ui.GetWidth()))
	},
}

func init() {
	depAddCmd.Flags().StringP("type", "t", string(types.DepBlocks), "Dependency type")
	depTreeCmd.Flags().Int("depth", 10, "Maximum traversal depth")
	depTreeCmd.Flags().Bool("reverse", false, "Walk dependents instead of dependencies")
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depListCmd)
	depCmd.AddCommand(depTreeCmd)
	depCmd.AddCommand(depCyclesCmd)
	rootCmd.AddCommand(depCmd)
}
