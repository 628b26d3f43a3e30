// Package debug provides the diagnostic channel: a cheap, env-gated
// logger that writes to stderr and, once a workspace is known, to a
// rotating log file beside the database.
package debug

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	enabled = envEnabled()
	sink    *lumberjack.Logger
)

func envEnabled() bool {
	val := os.Getenv("BD_DEBUG")
	if val == "" {
		return false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return true // any non-boolean value still turns it on
	}
	return b
}

// Enabled reports whether debug logging is on (BD_DEBUG or SetEnabled).
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// SetEnabled overrides the environment gate, e.g. for --verbose.
func SetEnabled(on bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = on
}

// SetLogFile attaches a rotating file sink. Debug lines are appended
// there regardless of the stderr gate, so a quiet run still leaves a
// trail next to the database.
func SetLogFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	sink = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 2,
	}
}

// Logf writes a diagnostic line. Output goes to the rotating file sink
// when one is attached, and to stderr when debug mode is enabled.
func Logf(format string, args ...interface{}) {
	mu.Lock()
	s := sink
	on := enabled
	mu.Unlock()

	if s == nil && !on {
		return
	}
	line := fmt.Sprintf(format, args...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}
	if s != nil {
		_, _ = s.Write([]byte(line))
	}
	if on {
		fmt.Fprint(os.Stderr, line)
	}
}

// Close releases the file sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		return nil
	}
	err := sink.Close()
	sink = nil
	return err
}
