package whitelist

import (
	"fmt"
	"strings"
	"time"
)

// Policy holds the whitelist-level approval policy constants. Values are
// resolved by the caller before a command enters the aggregate's critical
// section.
type Policy struct {
	// DefaultRequiredApprovals is used when neither the submit request nor
	// the version carries an explicit quorum.
	DefaultRequiredApprovals int `default:"2"`

	// AllowEmptySubmission permits submitting a version that has no
	// entry_added changes. Off by default.
	AllowEmptySubmission bool
}

// RecordApproval registers one principal's approval on a pending version.
// The eligible roster is an externally supplied capability, not state this
// package owns. Returns true when the resulting approval set meets quorum,
// in which case the aggregate immediately performs the pending->active
// transition as part of the same operation.
func (v *Version) RecordApproval(principal string, roster []string, at time.Time) (bool, error) {
	if v.Status != StatusPending {
		return false, fmt.Errorf("%w: version %d is %s", ErrNotPending, v.Number, v.Status)
	}
	if !rosterContains(roster, principal) {
		return false, fmt.Errorf("%w: %s", ErrUnauthorizedApprover, principal)
	}
	for _, p := range v.ApprovedBy {
		if p == principal {
			return false, fmt.Errorf("%w: %s", ErrDuplicateApproval, principal)
		}
	}

	v.ApprovedBy = append(v.ApprovedBy, principal)
	v.appendChange(newChange(ChangeApproved, fmt.Sprintf("approved by %s", principal), principal, at).
		withMetadata("approval_count", fmt.Sprintf("%d/%d", len(v.ApprovedBy), v.RequiredApprovals)))

	return v.QuorumMet(), nil
}

// QuorumMet reports whether the approval set satisfies the required count.
func (v *Version) QuorumMet() bool {
	return v.RequiredApprovals > 0 && len(v.ApprovedBy) >= v.RequiredApprovals
}

// resetApprovals clears the approval set after a qualifying edit to a
// pending version. The previous approver list is preserved in the reset
// record's metadata; status stays pending. Edits to a draft are a no-op
// here, there is nothing to reset.
func (v *Version) resetApprovals(actor string, at time.Time) {
	if v.Status != StatusPending || len(v.ApprovedBy) == 0 {
		return
	}
	previous := strings.Join(v.ApprovedBy, ",")
	v.ApprovedBy = nil
	v.ApprovalCompletedAt = nil
	v.appendChange(newChange(ChangeApprovalsReset, "approvals reset after edit", actor, at).
		withMetadata("previous_approvers", previous))
}

func rosterContains(roster []string, principal string) bool {
	for _, p := range roster {
		if p == principal {
			return true
		}
	}
	return false
}
