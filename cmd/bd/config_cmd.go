package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get and set workspace configuration",
	Long: `Get and set configuration stored in the workspace database.

Database config is shared through the issue log's sidecar database and
covers per-workspace settings such as issue_prefix. Settings read at
startup (config.yaml, BD_* environment variables, flags) are shown by
"config list" with their source.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a config value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		value, err := store.GetConfig(rootCtx, key)
		if err != nil {
			FatalError("%v", err)
		}
		if value == "" {
			if s := config.GetString(key); s != "" {
				value = s
			}
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value, "source": string(config.GetValueSource(key))})
			return
		}
		if value == "" {
			FatalError("config key %q is not set", key)
		}
		fmt.Println(value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value in the workspace database",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]
		if key == "issue_prefix" {
			if !validPrefix.MatchString(value) {
				FatalError("invalid prefix %q: lowercase letters and digits, starting with a letter, max 12 chars", value)
			}
		}
		if err := store.SetConfig(rootCtx, key, value); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"key": key, "value": value})
			return
		}
		Infof("Set %s = %s", key, value)
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a config value from the workspace database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := store.DeleteConfig(rootCtx, args[0]); err != nil {
			FatalError("%v", err)
		}
		Infof("Unset %s", args[0])
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values and their sources",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dbConfig, err := store.GetAllConfig(rootCtx)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"database": dbConfig,
				"startup":  config.AllSettings(),
			})
			return
		}

		if len(dbConfig) > 0 {
			fmt.Println("Database:")
			for _, key := range sortedKeys(dbConfig) {
				fmt.Printf("  %s = %s\n", key, dbConfig[key])
			}
		}
		settings := config.AllSettings()
		if len(settings) > 0 {
			fmt.Println("Startup:")
			keys := make([]string, 0, len(settings))
			for key := range settings {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Printf("  %s = %v (%s)\n", key, settings[key], config.GetValueSource(key))
			}
		}
	},
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
