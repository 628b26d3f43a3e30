package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/autoimport"
	"github.com/beadworks/beads/internal/config"
	"github.com/beadworks/beads/internal/debug"
	"github.com/beadworks/beads/internal/export"
	"github.com/beadworks/beads/internal/storage"
	"github.com/beadworks/beads/internal/ui"
)

var (
	dbPath      string // --db flag value
	actorFlag   string // --actor flag value
	jsonOutput  bool
	noDb        bool
	verboseFlag bool
	quietFlag   bool

	// Explicit session state, created in PersistentPreRun and released in
	// PersistentPostRun. No command touches the filesystem outside these.
	store     storage.Storage
	beadsDir  string // the discovered .beads directory
	jsonlPath string // the issues log inside beadsDir

	// Signal-aware context for the whole command.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noStoreCommands run without a database: either they create one (init)
// or they never touch one.
var noStoreCommands = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

// noAutoImportCommands manage the log themselves, so the staleness check
// at command entry would either double-import or fight the sync lock.
var noAutoImportCommands = map[string]bool{
	"sync": true,
}

func isNoStoreCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noStoreCommands[c.Name()] {
			return true
		}
	}
	return false
}

// resolveActor returns the audit name for mutations.
// Priority: BD_ACTOR env > --actor flag > config > git user.name > $USER.
func resolveActor() string {
	if env := os.Getenv("BD_ACTOR"); env != "" {
		return env
	}
	if actorFlag != "" {
		return actorFlag
	}
	if cfg := config.GetString("actor"); cfg != "" {
		return cfg
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if gitUser := strings.TrimSpace(string(out)); gitUser != "" {
			return gitUser
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func setupSignalContext() {
	rootCtx, rootCancel = context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		rootCancel()
	}()
}

// applyOutputMode settles the --json global. Environment beats the flag,
// the flag beats config.yaml.
func applyOutputMode(cmd *cobra.Command) {
	if config.GetValueSource("json") == config.SourceEnvVar {
		jsonOutput = config.GetBool("json")
		return
	}
	if cmd.Flags().Changed("json") {
		return
	}
	jsonOutput = config.GetBool("json")
}

var rootCmd = &cobra.Command{
	Use:   "bd",
	Short: "bd - dependency-aware issue tracker",
	Long: `Issues chained together like beads. A lightweight issue tracker whose
store of record is a git-friendly JSONL log, with a local SQLite index
for queries. Run 'bd init' in a repository to get started.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()

		if verboseFlag {
			debug.SetEnabled(true)
		}
		applyOutputMode(cmd)
		ui.ConfigureColors()

		if isNoStoreCommand(cmd) {
			return
		}

		discoverWorkspace(cmd)
		openStore(cmd)

		if noDb {
			return
		}
		if recorded, err := store.GetMetadata(rootCtx, "bd_version"); err == nil {
			warnVersionChange(recorded)
		}
		if config.GetBool("no-auto-import") || noAutoImportCommands[cmd.Name()] {
			return
		}
		notify := autoimport.NewStderrNotifier(debug.Enabled() && !quietFlag)
		if _, err := autoimport.AutoImportIfNewer(rootCtx, store, store.Path(), notify); err != nil {
			// A conflicted or unreadable log must not brick every command;
			// the user was already told what to fix.
			debug.Logf("auto-import: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil && !config.GetBool("no-auto-flush") && !noAutoImportCommands[cmd.Name()] {
			if _, err := export.Flush(rootCtx, store, jsonlPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: auto-flush failed: %v\n", err)
			}
		}
		if store != nil {
			_ = store.Close()
			store = nil
		}
		debug.Close()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .beads/*.db)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor name for the audit trail (default: $BD_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noDb, "no-db", false, "JSONL-only mode: load from the log, no database file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Exit 2 is reserved for CLI misuse: unknown commands, bad flags,
		// wrong argument counts. Runtime failures call FatalError (exit 1)
		// before getting here.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}
