package utils

import "strings"

// ExtractIssuePrefix returns the workspace prefix of an issue ID:
// "bd-1a2b3c" -> "bd". Multi-part prefixes are supported by splitting at
// the last hyphen when the remainder looks like an ID suffix:
//   - "web-app-1a2b3c"   -> "web-app" (hex suffix)
//   - "web-app-x9k2"     -> "web-app" (base-36 suffix)
//   - "beads-vscode-123" -> "beads-vscode" (legacy numeric suffix)
//   - "bd-1a2b3c.2"      -> "bd" (hierarchical suffix)
//
// When the last segment does not look generated, the split falls back to
// the first hyphen: in "vc-baseline-test" the ID part is
// "baseline-test", not "test". Returns "" for IDs without a hyphen.
func ExtractIssuePrefix(issueID string) string {
	lastIdx := strings.LastIndex(issueID, "-")
	if lastIdx <= 0 {
		return ""
	}

	suffix := issueID[lastIdx+1:]
	root := suffix
	if dotIdx := strings.Index(suffix, "."); dotIdx > 0 {
		root = suffix[:dotIdx]
	}

	if isNumeric(root) || isHexSuffix(root) || isBase36Suffix(root) {
		return issueID[:lastIdx]
	}

	firstIdx := strings.Index(issueID, "-")
	if firstIdx <= 0 {
		return ""
	}
	return issueID[:firstIdx]
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// isHexSuffix reports whether s looks like a generated hex ID suffix.
// Generated suffixes run 6-13 characters; 4 and 5 are accepted for
// hand-written short IDs.
func isHexSuffix(s string) bool {
	if len(s) < 4 || len(s) > 13 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// isBase36Suffix reports whether s looks like a suffix from the base-36
// scheme. At 4+ characters a digit is required to tell hashes from
// English words ("test", "baseline"); at 3 characters the word-collision
// rate is accepted because all-letter hashes ("bat", "oil") are common
// enough to matter.
func isBase36Suffix(s string) bool {
	if len(s) < 3 || len(s) > 13 {
		return false
	}
	hasDigit := false
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c >= 'a' && c <= 'z':
		default:
			return false
		}
	}
	return hasDigit || len(s) == 3
}
