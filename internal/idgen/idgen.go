// Package idgen mints and parses issue identifiers. The default scheme
// hashes issue content into short hex suffixes ("bd-1a2b3c") that grow
// on collision; a base-36 scheme is kept for cross-tool compatibility.
// Hierarchical child IDs append 1-based ordinals: "bd-1a2b3c.1".
package idgen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID length bounds for the hex scheme. Collision resolution lengthens
// the suffix one character at a time from MinLength up to MaxLength.
const (
	MinLength = 6
	MaxLength = 13
)

// MaxDepth is the deepest allowed hierarchy: a root plus three numeric
// child segments.
const MaxDepth = 3

// HashID computes the full 64-char hex digest for the hex ID scheme:
// SHA-256 over title, description, the creation timestamp in
// RFC3339Nano, and the workspace ID, concatenated with no separators.
func HashID(title, description string, createdAt time.Time, workspaceID string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte(description))
	h.Write([]byte(createdAt.Format(time.RFC3339Nano)))
	h.Write([]byte(workspaceID))
	return hex.EncodeToString(h.Sum(nil))
}

// CandidateID forms "{prefix}-{hash[:length]}".
func CandidateID(prefix, hash string, length int) string {
	if length > len(hash) {
		length = len(hash)
	}
	return fmt.Sprintf("%s-%s", prefix, hash[:length])
}

// base36Bytes maps a desired ID length to the number of hash bytes fed
// into the base-36 rendering. Shorter inputs keep the encoded value
// within the target width.
var base36Bytes = map[int]int{
	3: 2,
	4: 3,
	5: 4,
	6: 4,
	7: 5,
	8: 5,
}

// Base36ID computes an ID suffix in the alternate base-36 scheme. The
// hashed payload is "title|description|creator|unixNanos|nonce"; the
// digest is truncated to a length-indexed byte count, interpreted as a
// big-endian integer, and rendered base-36 with left zero-padding or
// least-significant-digit truncation to exactly the requested length.
func Base36ID(title, description, creator string, unixNanos int64, nonce, length int) string {
	nbytes, ok := base36Bytes[length]
	if !ok {
		nbytes = 3
	}

	payload := fmt.Sprintf("%s|%s|%s|%d|%d", title, description, creator, unixNanos, nonce)
	sum := sha256.Sum256([]byte(payload))

	var buf [8]byte
	copy(buf[8-nbytes:], sum[:nbytes])
	value := binary.BigEndian.Uint64(buf[:])

	encoded := strconv.FormatUint(value, 36)
	if len(encoded) < length {
		encoded = strings.Repeat("0", length-len(encoded)) + encoded
	} else if len(encoded) > length {
		// Keep the least-significant digits so IDs match other tools
		// rendering the same hash bytes.
		encoded = encoded[len(encoded)-length:]
	}
	return encoded
}

// ChildID forms a hierarchical child ID from a parent and a 1-based
// ordinal.
func ChildID(parentID string, n int) string {
	return fmt.Sprintf("%s.%d", parentID, n)
}

// Parse splits an ID into its root, its parent, and its hierarchy
// depth. Any dotted segment that is not all digits breaks the
// hierarchy: the whole ID is then flat (depth 0, no parent).
func Parse(id string) (rootID, parentID string, depth int) {
	first := strings.Index(id, ".")
	if first < 0 {
		return id, "", 0
	}
	segments := strings.Split(id[first+1:], ".")
	for _, seg := range segments {
		if !allDigits(seg) {
			return id, "", 0
		}
	}
	last := strings.LastIndex(id, ".")
	return id[:first], id[:last], len(segments)
}

// Depth returns the hierarchy depth of an ID: 0 for flat IDs, the
// number of numeric dot-segments otherwise.
func Depth(id string) int {
	_, _, depth := Parse(id)
	return depth
}

// IsHierarchical reports whether the ID is a child ID.
func IsHierarchical(id string) bool {
	return Depth(id) > 0
}

// ParseChildID splits a hierarchical ID into its parent and child
// ordinal. ok is false for flat IDs.
func ParseChildID(id string) (parentID string, childNum int, ok bool) {
	_, parent, depth := Parse(id)
	if depth == 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[strings.LastIndex(id, ".")+1:])
	if err != nil {
		return "", 0, false
	}
	return parent, n, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
