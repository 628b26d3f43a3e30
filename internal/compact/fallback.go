package compact

import (
	"context"
	"strings"

	"github.com/beadworks/beads/internal/types"
)

const truncationLimit = 400

// truncationSummarizer is the offline fallback. It keeps the head of
// the issue's main text plus the close reason, cut at a word boundary,
// so repeated runs produce identical summaries without any API.
type truncationSummarizer struct{}

func (t *truncationSummarizer) Summarize(_ context.Context, issue *types.Issue) (string, error) {
	text := issue.Description
	if text == "" {
		text = issue.Design
	}
	if text == "" {
		text = issue.Notes
	}

	var b strings.Builder
	b.WriteString("**Summary:** ")
	b.WriteString(truncateAtWord(text, truncationLimit))
	if issue.CloseReason != "" {
		b.WriteString("\n\n**Resolution:** ")
		b.WriteString(truncateAtWord(issue.CloseReason, truncationLimit/2))
	}
	return b.String(), nil
}

func truncateAtWord(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + " …"
}
