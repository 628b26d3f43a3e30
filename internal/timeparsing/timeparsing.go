// Package timeparsing turns user-supplied schedule strings into
// timestamps. It accepts relative offsets ("+2h"), plain dates and
// RFC3339 stamps, and natural language ("tomorrow", "next monday").
package timeparsing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// absoluteLayouts are tried before natural-language parsing.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseRelativeTime parses a schedule expression relative to now.
// Supported forms: durations ("+90m", "2h30m"), day and week offsets
// ("2d", "3w"), absolute dates and timestamps, and English phrases like
// "tomorrow" or "in 3 days".
func ParseRelativeTime(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if strings.HasPrefix(input, "+") {
		rest := input[1:]
		if t, ok := parseOffset(rest, now); ok {
			return t, nil
		}
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid duration %q: %w", input, err)
		}
		return now.Add(d), nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			return t, nil
		}
	}

	if t, ok := parseOffset(input, now); ok {
		return t, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		return now.Add(d), nil
	}

	r, err := parser.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q (try +1h, 2d, tomorrow, next monday, 2025-01-15)", input)
	}
	return r.Time, nil
}

// parseOffset handles the day and week units time.ParseDuration lacks.
func parseOffset(s string, now time.Time) (time.Time, bool) {
	if len(s) < 2 {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	switch s[len(s)-1] {
	case 'd':
		return now.AddDate(0, 0, n), true
	case 'w':
		return now.AddDate(0, 0, 7*n), true
	}
	return time.Time{}, false
}
