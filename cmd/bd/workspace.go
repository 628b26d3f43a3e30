package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/config"
	"github.com/beadworks/beads/internal/debug"
	"github.com/beadworks/beads/internal/jsonl"
	"github.com/beadworks/beads/internal/storage/memory"
	"github.com/beadworks/beads/internal/storage/sqlite"
	"github.com/beadworks/beads/internal/utils"
)

// workspaceMetadata mirrors .beads/metadata.json: internal bookkeeping
// that names the workspace files, as opposed to config.yaml which holds
// user preferences.
type workspaceMetadata struct {
	Database    string `json:"database"`
	JSONLExport string `json:"jsonl_export,omitempty"`
	Backend     string `json:"backend,omitempty"`
}

const defaultDBName = "beads.db"

// findBeadsDir walks up from the working directory looking for a .beads
// directory. Returns "" when none exists.
func findBeadsDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ".beads")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// readWorkspaceMetadata loads metadata.json from the given .beads dir.
// A missing or malformed file yields defaults.
func readWorkspaceMetadata(dir string) workspaceMetadata {
	meta := workspaceMetadata{Database: defaultDBName, Backend: "sqlite"}
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json")) // #nosec G304 - workspace-discovered path
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		debug.Logf("malformed metadata.json in %s: %v", dir, err)
		return workspaceMetadata{Database: defaultDBName, Backend: "sqlite"}
	}
	if meta.Database == "" {
		meta.Database = defaultDBName
	}
	return meta
}

// writeWorkspaceMetadata writes metadata.json during init.
func writeWorkspaceMetadata(dir string, meta workspaceMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), append(data, '\n'), 0o600)
}

// discoverWorkspace resolves beadsDir, dbPath, and jsonlPath for this
// command. Precedence for the database path: $BEADS_DB / $BD_DB, then
// the --db flag, then config.yaml, then metadata.json in the discovered
// .beads directory.
func discoverWorkspace(cmd *cobra.Command) {
	resolved := ""
	if config.GetValueSource("db") == config.SourceEnvVar {
		resolved = config.GetString("db")
	} else if dbPath != "" {
		resolved = dbPath
	} else if cfg := config.GetString("db"); cfg != "" {
		resolved = cfg
	}

	if resolved != "" {
		dbPath = resolved
		beadsDir = filepath.Dir(resolved)
		jsonlPath = utils.FindJSONLInDir(beadsDir)
		debug.SetLogFile(filepath.Join(beadsDir, "bd.log"))
		return
	}

	beadsDir = findBeadsDir()
	if beadsDir == "" {
		FatalErrorWithHint("no beads workspace found (missing .beads directory)",
			"Run 'bd init' in your project root to create one")
	}
	meta := readWorkspaceMetadata(beadsDir)
	dbPath = filepath.Join(beadsDir, meta.Database)
	if meta.JSONLExport != "" {
		jsonlPath = filepath.Join(beadsDir, meta.JSONLExport)
	} else {
		jsonlPath = utils.FindJSONLInDir(beadsDir)
	}
	if meta.Backend == "jsonl" {
		noDb = true
	}
	debug.SetLogFile(filepath.Join(beadsDir, "bd.log"))
}

// openStore opens the session store: SQLite by default, the in-memory
// backend in no-db mode (loaded from the log at entry, flushed back at
// exit like any other dirty state).
func openStore(cmd *cobra.Command) {
	if !noDb {
		noDb = config.GetBool("no-db")
	}

	if noDb {
		mem := memory.New(jsonlPath)
		prefix := config.GetString("issue-prefix")
		if prefix == "" {
			prefix = "bd"
		}
		if err := mem.SetConfig(rootCtx, "issue_prefix", prefix); err != nil {
			FatalError("%v", err)
		}
		batch, err := jsonl.ParseFile(jsonlPath)
		if err != nil {
			FatalError("failed to load log %s: %v", jsonlPath, err)
		}
		for _, w := range batch.Warnings {
			WarnError("%s", w)
		}
		if err := mem.LoadFromIssues(batch.Issues); err != nil {
			FatalError("failed to load log %s: %v", jsonlPath, err)
		}
		store = mem
		return
	}

	if _, err := os.Stat(dbPath); err != nil {
		FatalErrorWithHint(fmt.Sprintf("database not found at %s", dbPath),
			"Run 'bd init' to create one, or pass --db / set BEADS_DB")
	}
	s, err := sqlite.New(rootCtx, dbPath)
	if err != nil {
		FatalError("failed to open database: %v", err)
	}
	store = s
}
