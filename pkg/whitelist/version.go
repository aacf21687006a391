package whitelist

import (
	"fmt"
	"time"
)

// Status represents the current state of a whitelist version.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusRevoked    Status = "revoked"
	StatusExpired    Status = "expired"
)

// Finalized reports whether the status forbids any further changes to the
// version's log or entry snapshot.
func (s Status) Finalized() bool {
	switch s {
	case StatusActive, StatusSuperseded, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the version can never become active again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuperseded, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// Version is one numbered snapshot unit of a whitelist. The Entries slice is
// the version's own effective entry set; superseded versions keep theirs as a
// true historical snapshot.
type Version struct {
	Number              int
	Status              Status
	CreatedAt           time.Time
	CreatedBy           string
	Comment             string
	RequiredApprovals   int
	ApprovedBy          []string
	ApprovalCompletedAt *time.Time
	ActivatedAt         *time.Time
	Changes             []Change
	Entries             []Entry
}

func newVersion(number int, actor, comment string, at time.Time) *Version {
	v := &Version{
		Number:    number,
		Status:    StatusDraft,
		CreatedAt: at,
		CreatedBy: actor,
		Comment:   comment,
	}
	v.appendChange(newChange(ChangeCreated, fmt.Sprintf("version %d created", number), actor, at))
	return v
}

// submit moves the version from draft to pending. The caller (aggregate) has
// already verified the sibling/entry/quorum guards; this enforces only the
// status edge itself.
func (v *Version) submit(requiredApprovals int, actor string, at time.Time) error {
	if v.Status != StatusDraft {
		return fmt.Errorf("%w: cannot submit %s version", ErrInvalidTransition, v.Status)
	}
	v.Status = StatusPending
	v.RequiredApprovals = requiredApprovals
	v.appendChange(newChange(ChangeSubmittedForApproval, "submitted for approval", actor, at).
		withMetadata("required_approvals", fmt.Sprintf("%d", requiredApprovals)))
	return nil
}

// activate moves the version from pending to active. Quorum has been checked
// by the approval tracker before this is invoked.
func (v *Version) activate(at time.Time) error {
	if v.Status != StatusPending {
		return fmt.Errorf("%w: cannot activate %s version", ErrInvalidTransition, v.Status)
	}
	prev := v.Status
	v.Status = StatusActive
	v.ActivatedAt = &at
	v.ApprovalCompletedAt = &at
	v.appendChange(newChange(ChangeStatusChanged, "version activated", "", at).
		withValues(string(prev), string(StatusActive)))
	return nil
}

// supersede demotes a previously active version. Only ever triggered as the
// side effect of a sibling activation, never directly by a caller.
func (v *Version) supersede(at time.Time) error {
	if v.Status != StatusActive {
		return fmt.Errorf("%w: cannot supersede %s version", ErrInvalidTransition, v.Status)
	}
	v.Status = StatusSuperseded
	v.appendChange(newChange(ChangeStatusChanged, "version superseded", "", at).
		withValues(string(StatusActive), string(StatusSuperseded)))
	return nil
}

// revoke terminates an active version with a required reason.
func (v *Version) revoke(reason, actor string, at time.Time) error {
	if v.Status != StatusActive {
		return fmt.Errorf("%w: cannot revoke %s version", ErrInvalidTransition, v.Status)
	}
	v.appendChange(newChange(ChangeRevoked, "version revoked", actor, at).
		withMetadata("reason", reason))
	v.Status = StatusRevoked
	v.appendChange(newChange(ChangeStatusChanged, "version revoked", actor, at).
		withValues(string(StatusActive), string(StatusRevoked)))
	return nil
}

// expire terminates an active version once its whitelist's expiration instant
// has passed. Driven by the expiration evaluator, not callers.
func (v *Version) expire(at time.Time) error {
	if v.Status != StatusActive {
		return fmt.Errorf("%w: cannot expire %s version", ErrInvalidTransition, v.Status)
	}
	v.appendChange(newChange(ChangeExpired, "version expired", "", at))
	v.Status = StatusExpired
	v.appendChange(newChange(ChangeStatusChanged, "version expired", "", at).
		withValues(string(StatusActive), string(StatusExpired)))
	return nil
}

// Entry returns the entry with the given id from the version's snapshot.
func (v *Version) Entry(entryID string) (Entry, bool) {
	for _, e := range v.Entries {
		if e.ID == entryID {
			return e, true
		}
	}
	return Entry{}, false
}
