package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

var (
	// Version is the current version of bd (overridden by ldflags at build time).
	Version = "0.9.0"
	// Build can be set via ldflags at compile time.
	Build = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(map[string]string{"version": Version, "build": Build})
			return
		}
		fmt.Printf("bd version %s (%s)\n", Version, Build)
	},
}

// warnVersionChange compares the running binary against the version that
// last touched this workspace and warns on downgrades, where a newer
// collaborator's schema may not round-trip.
func warnVersionChange(recorded string) {
	if recorded == "" || recorded == Version {
		return
	}
	if semver.Compare("v"+Version, "v"+recorded) < 0 {
		WarnError("this workspace was last written by bd %s; you are running %s", recorded, Version)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
