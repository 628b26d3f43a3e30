package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/beadworks/beads/internal/storage/sqlite"
	"github.com/beadworks/beads/internal/ui"
)

// validPrefix keeps issue prefixes short, lowercase, and hyphen-safe so
// IDs like "bd-1a2b3c.1" stay unambiguous to parse.
var validPrefix = regexp.MustCompile(`^[a-z][a-z0-9]{0,11}$`)

var gitignoreContent = `# Local index and journals; the JSONL log is the shared store of record.
*.db
*.db-wal
*.db-shm
.sync.lock
bd.log
`

var readmeContent = `# .beads/

This directory belongs to [bd](https://github.com/beadworks/beads), a
dependency-aware issue tracker that stores issues in issues.jsonl so
they travel with the repository.

- issues.jsonl - the shared issue log. Commit it.
- beads.db - a local index rebuilt from the log. Ignored by git.
- config.yaml - workspace configuration. Commit it if the team shares it.
- metadata.json - internal bookkeeping. Commit it.

Run 'bd ready' to see unblocked work, 'bd create -t task "..."' to add
an issue, and 'bd sync' to reconcile after a pull.
`

var sampleTemplate = `# Issue template: fields here pre-fill 'bd create --template bug'.
title = ""
issue_type = "bug"
priority = 1
description = """
## Steps to reproduce

## Expected

## Actual
"""
labels = ["needs-triage"]
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a beads workspace in the current directory",
	Long: `Create a .beads/ directory with an issue log, a SQLite index, and
workspace configuration. Safe to re-run; existing files are kept.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		prefix, _ := cmd.Flags().GetString("prefix")
		interactive, _ := cmd.Flags().GetBool("interactive")

		if prefix == "" && interactive && ui.IsTerminal() {
			prefix = promptInitForm()
		}
		if prefix == "" {
			// Default prefix: the directory name's leading letters, or "bd".
			prefix = derivePrefix()
		}
		if !validPrefix.MatchString(prefix) {
			FatalError("invalid issue prefix %q: use 1-12 lowercase letters or digits, starting with a letter", prefix)
		}

		cwd, err := os.Getwd()
		if err != nil {
			FatalError("%v", err)
		}
		dir := filepath.Join(cwd, ".beads")
		res := ui.InitResult{Prefix: prefix}

		if err := os.MkdirAll(filepath.Join(dir, "templates"), 0o755); err != nil {
			FatalError("failed to create %s: %v", dir, err)
		}

		writeIfMissing := func(name, content string) {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return
			}
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				FatalError("failed to write %s: %v", path, err)
			}
			res.CreatedFiles = append(res.CreatedFiles, filepath.Join(".beads", name))
		}

		cfg, err := yaml.Marshal(map[string]interface{}{"issue-prefix": prefix})
		if err != nil {
			FatalError("%v", err)
		}
		writeIfMissing("config.yaml", string(cfg))
		writeIfMissing(".gitignore", gitignoreContent)
		writeIfMissing("README.md", readmeContent)
		writeIfMissing(filepath.Join("templates", "bug.toml"), sampleTemplate)

		if _, err := os.Stat(filepath.Join(dir, "metadata.json")); os.IsNotExist(err) {
			meta := workspaceMetadata{Database: defaultDBName, JSONLExport: "issues.jsonl", Backend: "sqlite"}
			if err := writeWorkspaceMetadata(dir, meta); err != nil {
				FatalError("failed to write metadata.json: %v", err)
			}
			res.CreatedFiles = append(res.CreatedFiles, filepath.Join(".beads", "metadata.json"))
		}

		dbFile := filepath.Join(dir, defaultDBName)
		res.DBPath = dbFile
		res.LogPath = filepath.Join(dir, "issues.jsonl")

		s, err := sqlite.New(rootCtx, dbFile)
		if err != nil {
			FatalError("failed to create database: %v", err)
		}
		defer s.Close()

		existing, err := s.GetConfig(rootCtx, "issue_prefix")
		if err == nil && existing != "" && existing != prefix {
			FatalError("workspace already initialized with prefix %q (asked for %q); edit .beads/config.yaml and the database config together if you really want to change it", existing, prefix)
		}
		if err := s.SetConfig(rootCtx, "issue_prefix", prefix); err != nil {
			FatalError("failed to set issue prefix: %v", err)
		}
		if err := s.SetMetadata(rootCtx, "bd_version", Version); err != nil {
			WarnError("failed to record bd version: %v", err)
		}

		// A log left behind by a collaborator imports on the next command;
		// say so instead of silently sitting on it.
		if info, err := os.Stat(res.LogPath); err == nil && info.Size() > 0 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("existing %s found; it will be imported on the next command", filepath.Join(".beads", "issues.jsonl")))
		}

		res.NextSteps = []string{
			fmt.Sprintf("bd create \"First issue\" -t task -p 2  (IDs will look like %s-1a2b3c)", prefix),
			"bd ready",
			"git add .beads/issues.jsonl .beads/config.yaml .beads/metadata.json .beads/.gitignore",
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"db_path": res.DBPath,
				"log":     res.LogPath,
				"prefix":  prefix,
				"created": res.CreatedFiles,
			})
			return
		}
		fmt.Println(ui.RenderInitReport(res, ui.GetWidth()))
	},
}

// derivePrefix builds a default issue prefix from the working directory
// name: lowercase letters and digits only, max 6 runes.
func derivePrefix() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "bd"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(filepath.Base(cwd)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9' && b.Len() > 0) {
			b.WriteRune(r)
			if b.Len() >= 6 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "bd"
	}
	return b.String()
}

// promptInitForm asks for the prefix interactively.
func promptInitForm() string {
	prefix := derivePrefix()
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Issue prefix").
			Description("Short tag prepended to issue IDs (e.g. bd-1a2b3c)").
			Value(&prefix).
			Validate(func(s string) error {
				if !validPrefix.MatchString(s) {
					return fmt.Errorf("1-12 lowercase letters or digits, starting with a letter")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		FatalError("%v", err)
	}
	return prefix
}

func init() {
	initCmd.Flags().String("prefix", "", "Issue ID prefix (default: derived from directory name)")
	initCmd.Flags().BoolP("interactive", "i", false, "Prompt for settings on a terminal")
	rootCmd.AddCommand(initCmd)
}
