package idgen

import (
	"strings"
	"testing"
	"time"
)

func TestHashID(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)

	h1 := HashID("Fix login", "details", created, "ws-1")
	h2 := HashID("Fix login", "details", created, "ws-1")
	if h1 != h2 {
		t.Error("identical inputs hashed differently")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64", len(h1))
	}

	if HashID("Fix login", "details", created, "ws-2") == h1 {
		t.Error("workspace ID should contribute to the hash")
	}
	if HashID("Fix login", "details", created.Add(time.Nanosecond), "ws-1") == h1 {
		t.Error("creation time should contribute at nanosecond precision")
	}
	if HashID("Fix logout", "details", created, "ws-1") == h1 {
		t.Error("title should contribute to the hash")
	}
}

func TestCandidateID(t *testing.T) {
	hash := "1a2b3c4d5e6f7890"

	if got := CandidateID("bd", hash, 6); got != "bd-1a2b3c" {
		t.Errorf("CandidateID = %q, want bd-1a2b3c", got)
	}
	if got := CandidateID("web-app", hash, 8); got != "web-app-1a2b3c4d" {
		t.Errorf("CandidateID = %q, want web-app-1a2b3c4d", got)
	}
	// Length beyond the hash is clamped.
	if got := CandidateID("bd", "abc", 10); got != "bd-abc" {
		t.Errorf("CandidateID = %q, want bd-abc", got)
	}
}

func TestBase36ID(t *testing.T) {
	nanos := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixNano()

	for length := 3; length <= 8; length++ {
		id := Base36ID("Fix login", "details", "alice", nanos, 0, length)
		if len(id) != length {
			t.Errorf("length %d: got %q (%d chars)", length, id, len(id))
		}
		for _, c := range id {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z') {
				t.Errorf("length %d: %q is not base-36", length, id)
			}
		}
	}

	a := Base36ID("Fix login", "details", "alice", nanos, 0, 4)
	b := Base36ID("Fix login", "details", "alice", nanos, 0, 4)
	if a != b {
		t.Error("identical inputs produced different IDs")
	}
	if Base36ID("Fix login", "details", "alice", nanos, 1, 4) == a {
		t.Error("nonce should vary the ID")
	}
}

// Other tools render the same hash bytes, so the digits must match
// theirs exactly: when the encoding is wider than the requested length,
// the trailing digits are the ones kept.
func TestBase36IDMatchesSharedEncoding(t *testing.T) {
	// sha256("Fix login|details|alice|1700000000000000000|28")[:4]
	// encodes to the 7-digit value 1g8z7hn; a length-6 ID keeps g8z7hn.
	got := Base36ID("Fix login", "details", "alice", 1700000000000000000, 28, 6)
	if got != "g8z7hn" {
		t.Errorf("Base36ID = %q, want g8z7hn", got)
	}

	// Unmapped lengths fall back to 3 hash bytes, whose encoding is at
	// most 5 digits; the rest is zero padding.
	wide := Base36ID("Fix login", "details", "alice", 1700000000000000000, 28, 10)
	if len(wide) != 10 {
		t.Fatalf("length 10 ID = %q (%d chars)", wide, len(wide))
	}
	if !strings.HasPrefix(wide, "00000") {
		t.Errorf("length 10 ID %q should be zero-padded from a 3-byte value", wide)
	}
}

func TestChildID(t *testing.T) {
	if got := ChildID("bd-1a2b3c", 1); got != "bd-1a2b3c.1" {
		t.Errorf("ChildID = %q", got)
	}
	if got := ChildID("bd-1a2b3c.1", 2); got != "bd-1a2b3c.1.2" {
		t.Errorf("nested ChildID = %q", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		id         string
		wantRoot   string
		wantParent string
		wantDepth  int
	}{
		{"bd-1a2b3c", "bd-1a2b3c", "", 0},
		{"bd-1a2b3c.1", "bd-1a2b3c", "bd-1a2b3c", 1},
		{"bd-1a2b3c.1.2", "bd-1a2b3c", "bd-1a2b3c.1", 2},
		{"bd-1a2b3c.1.2.3", "bd-1a2b3c", "bd-1a2b3c.1.2", 3},
		// A non-numeric segment makes the whole ID flat.
		{"release-1.2.beta", "release-1.2.beta", "", 0},
		{"bd-2.0-rc.1", "bd-2.0-rc.1", "", 0},
		// Numeric dot segments read as hierarchy even in version-like
		// names; only non-numeric segments break it.
		{"bd-v1.2.3", "bd-v1", "bd-v1.2", 2},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			root, parent, depth := Parse(tt.id)
			if root != tt.wantRoot || parent != tt.wantParent || depth != tt.wantDepth {
				t.Errorf("Parse(%q) = (%q, %q, %d), want (%q, %q, %d)",
					tt.id, root, parent, depth, tt.wantRoot, tt.wantParent, tt.wantDepth)
			}
		})
	}
}

func TestIsHierarchical(t *testing.T) {
	if IsHierarchical("bd-1a2b3c") {
		t.Error("flat ID reported hierarchical")
	}
	if !IsHierarchical("bd-abc123.2") {
		t.Error("bd-abc123.2 should be hierarchical")
	}
}

func TestDepthBounds(t *testing.T) {
	id := "bd-1a2b3c"
	for i := 1; i <= MaxDepth; i++ {
		id = ChildID(id, i)
		if Depth(id) != i {
			t.Errorf("Depth(%q) = %d, want %d", id, Depth(id), i)
		}
	}
}

func TestParseChildID(t *testing.T) {
	parent, n, ok := ParseChildID("bd-1a2b3c.7")
	if !ok || parent != "bd-1a2b3c" || n != 7 {
		t.Errorf("ParseChildID = (%q, %d, %v)", parent, n, ok)
	}

	parent, n, ok = ParseChildID("bd-1a2b3c.1.2")
	if !ok || parent != "bd-1a2b3c.1" || n != 2 {
		t.Errorf("nested ParseChildID = (%q, %d, %v)", parent, n, ok)
	}

	if _, _, ok := ParseChildID("bd-1a2b3c"); ok {
		t.Error("flat ID should not parse as child")
	}
	if _, _, ok := ParseChildID("bd-v1.2.beta"); ok {
		t.Error("non-numeric segments should not parse as child")
	}
}

func TestHashSuffixCharset(t *testing.T) {
	created := time.Now()
	hash := HashID("t", "d", created, "ws")
	suffix := hash[:MinLength]
	if strings.ToLower(suffix) != suffix {
		t.Errorf("suffix %q should be lowercase", suffix)
	}
}
