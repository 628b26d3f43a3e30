package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/tools/txtar"
	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// bdExe is the binary built once in TestMain and shared by all scripts.
var bdExe string

func TestMain(m *testing.M) {
	os.Exit(runTestMain(m))
}

func runTestMain(m *testing.M) int {
	dir, err := os.MkdirTemp("", "bd-script-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer os.RemoveAll(dir)

	exe := filepath.Join(dir, "bd")
	if out, err := exec.Command("go", "build", "-o", exe, ".").CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "building bd: %v\n%s", err, out)
	} else {
		bdExe = exe
	}
	return m.Run()
}

// TestScripts runs the end-to-end scripts under testdata/script. Each
// script is a txtar file: the comment holds the commands, the files are
// laid out in a fresh workdir before the first command runs.
func TestScripts(t *testing.T) {
	if bdExe == "" {
		t.Skip("bd binary unavailable")
	}
	files, err := filepath.Glob(filepath.Join("testdata", "script", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scripts found in testdata/script")
	}

	engine := script.NewEngine()
	engine.Quiet = !testing.Verbose()
	engine.Cmds["bd"] = script.Program(bdExe, func(cmd *exec.Cmd) error {
		return cmd.Process.Signal(os.Interrupt)
	}, 100*time.Millisecond)

	for _, file := range files {
		file := file
		t.Run(strings.TrimSuffix(filepath.Base(file), ".txt"), func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			workdir := t.TempDir()
			env := []string{
				"HOME=" + workdir,
				"TMPDIR=" + workdir,
				"PATH=" + os.Getenv("PATH"),
				"BD_ACTOR=scripter",
				"NO_COLOR=1",
			}
			state, err := script.NewState(ctx, workdir, env)
			if err != nil {
				t.Fatal(err)
			}
			archive, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			if err := state.ExtractFiles(archive); err != nil {
				t.Fatal(err)
			}
			scripttest.Run(t, engine, state, filepath.Base(file), bytes.NewReader(archive.Comment))
		})
	}
}
