package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate issue statistics",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		stats, err := store.GetStatistics(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}
		fmt.Println(ui.RenderStatsReport(stats, ui.GetWidth()))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
