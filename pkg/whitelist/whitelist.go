// Package whitelist implements the versioning and approval workflow for
// named allow-lists of addresses: an editable draft moves through a
// multi-party approval to become the single authoritative active version,
// with a full per-version audit log, revocation, and expiration.
//
// The package is a pure state-transition engine. It performs no I/O and has
// no locking of its own; callers serialize all operations against one
// aggregate (see the service layer).
package whitelist

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScopeKind distinguishes global whitelists from vault-bound ones.
type ScopeKind string

const (
	ScopeGlobal ScopeKind = "global"
	ScopeVault  ScopeKind = "vault"
)

// Scope binds a whitelist either globally or to a specific vault.
type Scope struct {
	Kind    ScopeKind
	VaultID string
}

// Whitelist is the aggregate root. It exclusively owns its versions; no
// version is ever deleted (audit permanence), and CurrentVersion/DraftVersion
// are updated only inside transitions, never by external callers.
type Whitelist struct {
	ID          string
	Name        string
	Description string
	Scope       Scope
	Status      Status

	// Entries is the live authoritative entry set, replaced wholesale from
	// the activating version's snapshot.
	Entries []Entry

	// CurrentVersion is the number of the presently current version, 0 if
	// never activated. It keeps pointing at a revoked or expired version;
	// there is no other active version until a new draft is activated.
	CurrentVersion int

	// DraftVersion is the number of the at-most-one in-progress draft, 0 if
	// none.
	DraftVersion int

	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string

	Versions []*Version
}

// New creates a whitelist with version 1 in draft.
func New(name, description string, scope Scope, actor string, now time.Time) *Whitelist {
	if scope.Kind == "" {
		scope.Kind = ScopeGlobal
	}
	w := &Whitelist{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Scope:       scope,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   actor,
	}
	w.Versions = append(w.Versions, newVersion(1, actor, "", now))
	w.DraftVersion = 1
	return w
}

// Version returns the version with the given number.
func (w *Whitelist) Version(number int) (*Version, error) {
	for _, v := range w.Versions {
		if v.Number == number {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: version %d of whitelist %s", ErrNotFound, number, w.ID)
}

// ActiveVersion returns the currently active version, or nil if none.
func (w *Whitelist) ActiveVersion() *Version {
	for _, v := range w.Versions {
		if v.Status == StatusActive {
			return v
		}
	}
	return nil
}

// editableVersion fetches a version and rejects mutation of finalized ones.
func (w *Whitelist) editableVersion(number int) (*Version, error) {
	v, err := w.Version(number)
	if err != nil {
		return nil, err
	}
	if v.Status.Finalized() {
		return nil, fmt.Errorf("%w: version %d is %s", ErrImmutableVersion, v.Number, v.Status)
	}
	return v, nil
}

// AddEntry appends an entry to a draft or pending version's snapshot. On a
// pending version the approval set is cleared as part of the same operation.
func (w *Whitelist) AddEntry(versionNumber int, entry Entry, actor string, now time.Time) error {
	v, err := w.editableVersion(versionNumber)
	if err != nil {
		return err
	}

	v.Entries = append(v.Entries, entry)
	v.appendChange(newChange(ChangeEntryAdded, fmt.Sprintf("entry %s added", entry.Address), actor, now).
		withValues("", entry.Address).
		withMetadata("entry_id", entry.ID).
		withMetadata("chain", entry.Chain))
	v.resetApprovals(actor, now)
	w.UpdatedAt = now
	return nil
}

// RemoveEntry drops an entry from a draft or pending version's snapshot.
func (w *Whitelist) RemoveEntry(versionNumber int, entryID, actor string, now time.Time) error {
	v, err := w.editableVersion(versionNumber)
	if err != nil {
		return err
	}

	idx := -1
	for i, e := range v.Entries {
		if e.ID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: entry %s in version %d", ErrNotFound, entryID, versionNumber)
	}

	removed := v.Entries[idx]
	v.Entries = append(v.Entries[:idx], v.Entries[idx+1:]...)
	v.appendChange(newChange(ChangeEntryRemoved, fmt.Sprintf("entry %s removed", removed.Address), actor, now).
		withValues(removed.Address, "").
		withMetadata("entry_id", removed.ID))
	v.resetApprovals(actor, now)
	w.UpdatedAt = now
	return nil
}

// UpdateEntryLabel changes an entry's display label in place. Identity
// fields (address, chain, kind) stay immutable; replacing a target is a
// remove followed by an add.
func (w *Whitelist) UpdateEntryLabel(versionNumber int, entryID, label, actor string, now time.Time) error {
	v, err := w.editableVersion(versionNumber)
	if err != nil {
		return err
	}

	for i, e := range v.Entries {
		if e.ID == entryID {
			prev := e.Label
			v.Entries[i].Label = label
			v.appendChange(newChange(ChangeEntryUpdated, fmt.Sprintf("entry %s relabeled", e.Address), actor, now).
				withValues(prev, label).
				withMetadata("entry_id", entryID))
			v.resetApprovals(actor, now)
			w.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: entry %s in version %d", ErrNotFound, entryID, versionNumber)
}

// UpdateName renames the whitelist, recording the edit on its in-progress
// version.
func (w *Whitelist) UpdateName(name, actor string, now time.Time) error {
	v, err := w.InProgressVersion()
	if err != nil {
		return err
	}
	prev := w.Name
	w.Name = name
	v.appendChange(newChange(ChangeNameUpdated, "name updated", actor, now).withValues(prev, name))
	v.resetApprovals(actor, now)
	w.UpdatedAt = now
	return nil
}

// UpdateDescription edits the whitelist description, recording the edit on
// its in-progress version.
func (w *Whitelist) UpdateDescription(description, actor string, now time.Time) error {
	v, err := w.InProgressVersion()
	if err != nil {
		return err
	}
	prev := w.Description
	w.Description = description
	v.appendChange(newChange(ChangeDescriptionUpdated, "description updated", actor, now).withValues(prev, description))
	v.resetApprovals(actor, now)
	w.UpdatedAt = now
	return nil
}

// InProgressVersion returns the draft version if one exists, otherwise the
// pending one. Field edits with no editable version are rejected.
func (w *Whitelist) InProgressVersion() (*Version, error) {
	if w.DraftVersion != 0 {
		return w.Version(w.DraftVersion)
	}
	for _, v := range w.Versions {
		if v.Status == StatusPending {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: whitelist %s has no editable version", ErrImmutableVersion, w.ID)
}

// SubmitForApproval moves a draft version to pending. requiredApprovals
// resolves in order: the explicit argument, the value already on the
// version, then the policy default; a non-positive result fails with
// ErrQuorumNotConfigured. Rejected calls leave the aggregate untouched.
func (w *Whitelist) SubmitForApproval(versionNumber, requiredApprovals int, policy Policy, actor string, now time.Time) error {
	v, err := w.Version(versionNumber)
	if err != nil {
		return err
	}
	if v.Status != StatusDraft {
		return fmt.Errorf("%w: cannot submit %s version %d", ErrInvalidTransition, v.Status, v.Number)
	}
	for _, sibling := range w.Versions {
		if sibling.Status == StatusPending {
			return fmt.Errorf("%w: version %d is already pending", ErrInvalidTransition, sibling.Number)
		}
	}
	if len(v.Entries) == 0 && !policy.AllowEmptySubmission {
		return ErrEmptySubmission
	}

	required := requiredApprovals
	if required <= 0 {
		required = v.RequiredApprovals
	}
	if required <= 0 {
		required = policy.DefaultRequiredApprovals
	}
	if required <= 0 {
		return ErrQuorumNotConfigured
	}

	if err := v.submit(required, actor, now); err != nil {
		return err
	}
	if w.DraftVersion == v.Number {
		w.DraftVersion = 0
	}
	if w.CurrentVersion == 0 {
		w.Status = StatusPending
	}
	w.UpdatedAt = now
	return nil
}

// Approve records one principal's approval and, when quorum is reached,
// activates the version in the same operation: the prior active version is
// superseded, the version's snapshot becomes the live entry set, and
// CurrentVersion moves to it.
func (w *Whitelist) Approve(versionNumber int, principal string, roster []string, now time.Time) error {
	v, err := w.Version(versionNumber)
	if err != nil {
		return err
	}

	quorum, err := v.RecordApproval(principal, roster, now)
	if err != nil {
		return err
	}
	w.UpdatedAt = now
	if !quorum {
		return nil
	}
	return w.activateVersion(v, now)
}

// activateVersion performs the atomic pending->active transition with all of
// its cross-version side effects.
func (w *Whitelist) activateVersion(v *Version, now time.Time) error {
	if prior := w.ActiveVersion(); prior != nil {
		if err := prior.supersede(now); err != nil {
			return err
		}
	}
	if err := v.activate(now); err != nil {
		return err
	}

	w.CurrentVersion = v.Number
	if w.DraftVersion == v.Number {
		w.DraftVersion = 0
	}
	w.Entries = make([]Entry, len(v.Entries))
	copy(w.Entries, v.Entries)
	w.Status = StatusActive
	w.UpdatedAt = now
	return nil
}

// Revoke terminates the currently active version with the given reason. The
// whitelist's effective status mirrors its active version, so the whitelist
// becomes revoked too.
func (w *Whitelist) Revoke(reason, actor string, now time.Time) error {
	v := w.ActiveVersion()
	if v == nil {
		return fmt.Errorf("%w: whitelist %s has no active version", ErrInvalidTransition, w.ID)
	}
	if err := v.revoke(reason, actor, now); err != nil {
		return err
	}
	w.Status = StatusRevoked
	w.UpdatedAt = now
	return nil
}

// OpenNewDraft creates version N+1 in draft, seeded with the current live
// entry set.
func (w *Whitelist) OpenNewDraft(comment, actor string, now time.Time) (*Version, error) {
	if w.DraftVersion != 0 {
		return nil, fmt.Errorf("%w: version %d", ErrDraftAlreadyExists, w.DraftVersion)
	}

	next := 0
	for _, v := range w.Versions {
		if v.Number > next {
			next = v.Number
		}
	}
	v := newVersion(next+1, actor, comment, now)
	v.Entries = make([]Entry, len(w.Entries))
	copy(v.Entries, w.Entries)

	w.Versions = append(w.Versions, v)
	w.DraftVersion = v.Number
	w.UpdatedAt = now
	return v, nil
}

// EvaluateExpiration applies the active->expired transition once the
// whitelist's expiration instant has passed. Idempotent: repeat calls after
// the first successful transition are no-ops.
func (w *Whitelist) EvaluateExpiration(now time.Time) (bool, error) {
	if w.ExpiresAt == nil || w.ExpiresAt.After(now) {
		return false, nil
	}
	v := w.ActiveVersion()
	if v == nil {
		return false, nil
	}
	if err := v.expire(now); err != nil {
		return false, err
	}
	w.Status = StatusExpired
	w.UpdatedAt = now
	return true, nil
}

// CheckInvariants verifies the structural invariants that must hold after
// every operation: at most one active and one draft version, unique strictly
// increasing version numbers, and a CurrentVersion pointer that refers to an
// existing version.
func (w *Whitelist) CheckInvariants() error {
	active, draft := 0, 0
	seen := make(map[int]bool, len(w.Versions))
	last := 0
	for _, v := range w.Versions {
		switch v.Status {
		case StatusActive:
			active++
		case StatusDraft:
			draft++
		}
		if seen[v.Number] {
			return fmt.Errorf("duplicate version number %d", v.Number)
		}
		seen[v.Number] = true
		if v.Number <= last {
			return fmt.Errorf("version numbers not strictly increasing: %d after %d", v.Number, last)
		}
		last = v.Number
	}
	if active > 1 {
		return fmt.Errorf("%d active versions", active)
	}
	if draft > 1 {
		return fmt.Errorf("%d draft versions", draft)
	}
	if w.CurrentVersion != 0 && !seen[w.CurrentVersion] {
		return fmt.Errorf("current version %d does not exist", w.CurrentVersion)
	}
	if w.DraftVersion != 0 && !seen[w.DraftVersion] {
		return fmt.Errorf("draft version %d does not exist", w.DraftVersion)
	}
	return nil
}
