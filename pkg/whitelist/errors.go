package whitelist

import "errors"

// Domain error taxonomy. All of these are recoverable, caller-facing errors;
// the service layer maps them onto transport error categories. Matching is
// done with errors.Is so callers never need to parse messages.
var (
	// ErrInvalidTransition is returned when a requested status change is not
	// legal from the version's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrImmutableVersion is returned on any attempted mutation of a version
	// whose status forbids edits (active, superseded, revoked, expired).
	ErrImmutableVersion = errors.New("version is immutable")

	// ErrDuplicateApproval is returned when a principal has already approved
	// the version.
	ErrDuplicateApproval = errors.New("principal already approved this version")

	// ErrUnauthorizedApprover is returned when the approving principal is not
	// in the eligible-approver roster supplied for the operation.
	ErrUnauthorizedApprover = errors.New("principal is not an eligible approver")

	// ErrNotPending is returned when an approval is attempted on a version
	// that is not currently pending.
	ErrNotPending = errors.New("version is not pending approval")

	// ErrDraftAlreadyExists is returned when a second draft is opened while
	// one is still outstanding.
	ErrDraftAlreadyExists = errors.New("a draft version already exists")

	// ErrQuorumNotConfigured is returned when a submission cannot resolve a
	// positive required-approval count from the request, the version, or the
	// whitelist policy.
	ErrQuorumNotConfigured = errors.New("required approvals not configured")

	// ErrEmptySubmission is returned when a version with no added entries is
	// submitted for approval and policy does not allow it.
	ErrEmptySubmission = errors.New("version has no entries to submit")

	// ErrNotFound is returned when a referenced whitelist, version, or entry
	// does not exist.
	ErrNotFound = errors.New("not found")
)
