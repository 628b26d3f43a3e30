package utils

import "testing"

func TestExtractIssuePrefix(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		// Generated hex suffixes split at the last hyphen.
		{"bd-1a2b3c", "bd"},
		{"bd-a1b2c3d4e5f", "bd"},
		{"web-app-1a2b3c", "web-app"},
		{"beads-vscode-4f9d2e", "beads-vscode"},

		// Numeric suffixes (imported sequential IDs).
		{"bd-123", "bd"},
		{"beads-vscode-123", "beads-vscode"},

		// Child IDs consider only the part before the dot.
		{"bd-1a2b3c.2", "bd"},
		{"web-app-1a2b3c.2", "web-app"},
		{"bd-1a2b3c.2.1", "bd"},

		// Base-36 suffixes may use letters past 'f'.
		{"web-app-x9k2", "web-app"},
		{"bd-q7r", "bd"},
		{"my-app-z4nq8", "my-app"},

		// Three-letter base-36 hashes happen to spell words.
		{"xa-adt-bat", "xa-adt"},
		{"xa-adt-dev", "xa-adt"},
		{"xa-adt-fbi", "xa-adt"},
		{"xa-adt-oil", "xa-adt"},
		{"xa-adt-r71", "xa-adt"},
		{"xa-adt-b4r", "xa-adt"},
		{"xa-adt-0lj", "xa-adt"},

		// Word suffixes fall back to the first hyphen.
		{"vc-baseline-test", "vc"},
		{"vc-some-feature", "vc"},
		{"bd-feline", "bd"},
		{"bd-hello", "bd"},

		// All-hex words still read as hand-written short IDs.
		{"bd-cafe", "bd"},

		// No usable prefix.
		{"noprefix", ""},
		{"-abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ExtractIssuePrefix(tt.id); got != tt.want {
				t.Errorf("ExtractIssuePrefix(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestIsHexSuffix(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"1a2b3c", true},
		{"cafe", true},
		{"a1b2c3d4e5f61", true},
		{"abc", false},           // too short
		{"a1b2c3d4e5f612", false}, // too long
		{"xyz123", false},        // not hex
		{"1A2B3C", false},        // IDs are lowercased
		{"", false},
	}
	for _, tt := range tests {
		if got := isHexSuffix(tt.s); got != tt.want {
			t.Errorf("isHexSuffix(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestIsBase36Suffix(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		// Three characters are accepted with or without digits.
		{"bat", true},
		{"r71", true},
		{"0lj", true},

		// Four and up require a digit.
		{"x9k2", true},
		{"test1", true},
		{"z4nq8", true},
		{"test", false},
		{"baseline", false},
		{"feature", false},

		// Length bounds.
		{"ab", false},
		{"a1", false},
		{"a1b2c3d4e5g6h", true},
		{"a1b2c3d4e5g6h7", false},

		// Character set.
		{"X9K2", false},
		{"a.b", false},
		{"a-b", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isBase36Suffix(tt.s); got != tt.want {
			t.Errorf("isBase36Suffix(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"123", true},
		{"0", true},
		{"12a", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isNumeric(tt.s); got != tt.want {
			t.Errorf("isNumeric(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
