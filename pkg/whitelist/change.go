package whitelist

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind identifies what a single audit record describes.
type ChangeKind string

const (
	ChangeCreated              ChangeKind = "created"
	ChangeNameUpdated          ChangeKind = "name_updated"
	ChangeDescriptionUpdated   ChangeKind = "description_updated"
	ChangeEntryAdded           ChangeKind = "entry_added"
	ChangeEntryRemoved         ChangeKind = "entry_removed"
	ChangeEntryUpdated         ChangeKind = "entry_updated"
	ChangeSubmittedForApproval ChangeKind = "submitted_for_approval"
	ChangeApproved             ChangeKind = "approved"
	ChangeApprovalsReset       ChangeKind = "approvals_reset"
	ChangeStatusChanged        ChangeKind = "status_changed"
	ChangeRevoked              ChangeKind = "revoked"
	ChangeExpired              ChangeKind = "expired"
)

// editKinds is the set of change kinds that count as substantive edits when
// rendering a version's history, as opposed to approval bookkeeping. The
// predicate is part of the public contract: the presentation layer filters
// on it.
var editKinds = map[ChangeKind]bool{
	ChangeCreated:              true,
	ChangeNameUpdated:          true,
	ChangeDescriptionUpdated:   true,
	ChangeEntryAdded:           true,
	ChangeEntryRemoved:         true,
	ChangeEntryUpdated:         true,
	ChangeSubmittedForApproval: true,
	ChangeApprovalsReset:       true,
}

// IsEditKind reports whether the kind counts as a substantive edit.
func IsEditKind(kind ChangeKind) bool {
	return editKinds[kind]
}

// Change is one immutable audit record in a version's change log.
type Change struct {
	ID           string
	Kind         ChangeKind
	Description  string
	Actor        string
	ActorContact string
	Timestamp    time.Time
	PrevValue    string
	NewValue     string
	Metadata     map[string]string
}

func newChange(kind ChangeKind, description, actor string, at time.Time) Change {
	return Change{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: description,
		Actor:       actor,
		Timestamp:   at,
	}
}

func (c Change) withValues(prev, next string) Change {
	c.PrevValue = prev
	c.NewValue = next
	return c
}

func (c Change) withMetadata(key, value string) Change {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[key] = value
	return c
}

// AppendChange appends an audit record to the version's log. It fails with
// ErrImmutableVersion once the version has been finalized; the finalizing
// status-change record itself is appended internally as part of the
// transition, not through this method.
func (v *Version) AppendChange(c Change) error {
	if v.Status.Finalized() {
		return ErrImmutableVersion
	}
	v.appendChange(c)
	return nil
}

// appendChange records the change without the immutability guard. Used by
// transitions that finalize a version and must write the closing record.
func (v *Version) appendChange(c Change) {
	v.Changes = append(v.Changes, c)
}

// ChangesByKind returns the version's changes restricted to the given kinds,
// preserving log order.
func (v *Version) ChangesByKind(kinds ...ChangeKind) []Change {
	want := make(map[ChangeKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Change
	for _, c := range v.Changes {
		if want[c.Kind] {
			out = append(out, c)
		}
	}
	return out
}

// EditChanges returns only the substantive edit records of the version.
func (v *Version) EditChanges() []Change {
	var out []Change
	for _, c := range v.Changes {
		if editKinds[c.Kind] {
			out = append(out, c)
		}
	}
	return out
}

// ReplayChanges reconstructs a version's final status and approval set by
// applying its change log, in order, to an initial draft state. The result
// is deterministic for any log produced by this package, which makes the
// log the authoritative record of workflow state.
func ReplayChanges(changes []Change) (Status, []string) {
	status := StatusDraft
	var approvers []string

	for _, c := range changes {
		switch c.Kind {
		case ChangeSubmittedForApproval:
			status = StatusPending
		case ChangeApproved:
			approvers = append(approvers, c.Actor)
		case ChangeApprovalsReset:
			approvers = nil
		case ChangeStatusChanged:
			status = Status(c.NewValue)
		}
	}
	return status, approvers
}
