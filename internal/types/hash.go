package types

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"time"
)

// ComputeContentHash returns the canonical SHA-256 of the issue's
// content as a 64-char lowercase hex string. The field order and byte
// formatting below are the wire-compatibility contract shared with
// every other writer of the log: identical content must hash
// identically across clones. IDs, timestamps, labels, edges, comments,
// and tombstone fields are deliberately excluded.
func (i *Issue) ComputeContentHash() string {
	h := sha256.New()
	w := hashFieldWriter{h}

	w.str(i.Title)
	w.str(i.Description)
	w.str(i.Design)
	w.str(i.AcceptanceCriteria)
	w.str(i.Notes)
	w.str(i.SpecID)
	w.str(string(i.Status))
	w.int(i.Priority)
	w.str(string(i.IssueType))
	w.str(i.Assignee)
	w.str(i.Owner)
	w.str(i.CreatedBy)

	w.strPtr(i.ExternalRef)
	w.str(i.SourceSystem)
	w.flag(i.Pinned, "pinned")
	w.str(i.Metadata)
	w.flag(i.IsTemplate, "template")

	for _, br := range i.BondedFrom {
		w.str(br.SourceID)
		w.str(br.BondType)
		w.str(br.BondPoint)
	}

	w.entityRef(i.Creator)

	for _, v := range i.Validations {
		w.entityRef(v.Validator)
		w.str(v.Outcome)
		w.str(v.Timestamp.UTC().Format(time.RFC3339))
		w.float32Ptr(v.Score)
	}

	w.float32Ptr(i.QualityScore)
	w.flag(i.Crystallizes, "crystallizes")

	w.str(i.AwaitType)
	w.str(i.AwaitID)
	w.duration(i.Timeout)
	for _, waiter := range i.Waiters {
		w.str(waiter)
	}

	w.str(i.Holder)
	w.str(i.HookBead)
	w.str(i.RoleBead)
	w.str(i.AgentState)
	w.str(i.RoleType)
	w.str(i.Rig)
	w.str(i.MolType)
	w.str(i.WorkType)

	w.str(i.EventKind)
	w.str(i.Actor)
	w.str(i.Target)
	w.str(i.Payload)

	return fmt.Sprintf("%x", h.Sum(nil))
}

// hashFieldWriter writes tagged, null-terminated fields to a hash. Every
// method terminates with a 0x00 separator so adjacent fields can never
// collide. An absent optional hashes the same as an empty string.
type hashFieldWriter struct {
	h hash.Hash
}

func (w hashFieldWriter) str(s string) {
	w.h.Write([]byte(s))
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) int(n int) {
	w.h.Write([]byte(fmt.Sprintf("%d", n)))
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) strPtr(p *string) {
	if p != nil {
		w.h.Write([]byte(*p))
	}
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) float32Ptr(p *float32) {
	if p != nil {
		w.h.Write([]byte(fmt.Sprintf("%f", *p)))
	}
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) duration(d time.Duration) {
	w.h.Write([]byte(fmt.Sprintf("%d", d)))
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) flag(b bool, label string) {
	if b {
		w.h.Write([]byte(label))
	}
	w.h.Write([]byte{0})
}

func (w hashFieldWriter) entityRef(e *EntityRef) {
	if e != nil {
		w.str(e.Name)
		w.str(e.Platform)
		w.str(e.Org)
		w.str(e.ID)
	}
}
