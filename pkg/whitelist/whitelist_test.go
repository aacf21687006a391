package whitelist

import (
	"errors"
	"testing"
	"time"
)

var (
	t0     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	roster = []string{"alice", "bob", "carol"}
	policy = Policy{DefaultRequiredApprovals: 2}
)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func mustEntry(t *testing.T, address string) Entry {
	t.Helper()
	e, err := NewEntry(address, "ethereum", "test", EntryKindAddress, "alice", t0)
	if err != nil {
		t.Fatalf("NewEntry(%s) failed: %v", address, err)
	}
	return e
}

func mustInvariants(t *testing.T, w *Whitelist) {
	t.Helper()
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

// newSubmitted creates a whitelist with one entry and version 1 pending with
// quorum 2.
func newSubmitted(t *testing.T) *Whitelist {
	t.Helper()
	w := New("treasury-payees", "payout allow-list", Scope{Kind: ScopeGlobal}, "alice", t0)
	if err := w.AddEntry(1, mustEntry(t, "0x52908400098527886E0F7030069857D2E4169EE7"), "alice", at(1)); err != nil {
		t.Fatalf("AddEntry() failed: %v", err)
	}
	if err := w.SubmitForApproval(1, 2, policy, "alice", at(2)); err != nil {
		t.Fatalf("SubmitForApproval() failed: %v", err)
	}
	return w
}

// newActive drives a fresh whitelist through the full approval flow.
func newActive(t *testing.T) *Whitelist {
	t.Helper()
	w := newSubmitted(t)
	if err := w.Approve(1, "bob", roster, at(3)); err != nil {
		t.Fatalf("Approve(bob) failed: %v", err)
	}
	if err := w.Approve(1, "carol", roster, at(4)); err != nil {
		t.Fatalf("Approve(carol) failed: %v", err)
	}
	return w
}

func TestNew_StartsWithDraftVersionOne(t *testing.T) {
	w := New("payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)

	if w.DraftVersion != 1 {
		t.Fatalf("expected draft version 1, got %d", w.DraftVersion)
	}
	if w.CurrentVersion != 0 {
		t.Fatalf("expected no current version, got %d", w.CurrentVersion)
	}
	if w.Status != StatusDraft {
		t.Fatalf("expected status draft, got %s", w.Status)
	}

	v, err := w.Version(1)
	if err != nil {
		t.Fatalf("Version(1) failed: %v", err)
	}
	if v.Status != StatusDraft {
		t.Fatalf("expected version status draft, got %s", v.Status)
	}
	if len(v.Changes) != 1 || v.Changes[0].Kind != ChangeCreated {
		t.Fatalf("expected a single created change, got %+v", v.Changes)
	}
	mustInvariants(t, w)
}

func TestSubmitForApproval_MovesDraftToPending(t *testing.T) {
	w := newSubmitted(t)

	v, _ := w.Version(1)
	if v.Status != StatusPending {
		t.Fatalf("expected pending, got %s", v.Status)
	}
	if v.RequiredApprovals != 2 {
		t.Fatalf("expected required approvals 2, got %d", v.RequiredApprovals)
	}
	if w.DraftVersion != 0 {
		t.Fatalf("expected no draft after submit, got %d", w.DraftVersion)
	}
	if w.Status != StatusPending {
		t.Fatalf("expected whitelist status pending before first activation, got %s", w.Status)
	}
	mustInvariants(t, w)
}

func TestSubmitForApproval_RejectsEmptyVersion(t *testing.T) {
	w := New("payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)

	err := w.SubmitForApproval(1, 2, policy, "alice", at(1))
	if !errors.Is(err, ErrEmptySubmission) {
		t.Fatalf("expected ErrEmptySubmission, got %v", err)
	}

	// Policy override allows it.
	err = w.SubmitForApproval(1, 2, Policy{DefaultRequiredApprovals: 2, AllowEmptySubmission: true}, "alice", at(1))
	if err != nil {
		t.Fatalf("expected empty submission to pass with policy override, got %v", err)
	}
}

// A draft seeded from the active version records no entry_added changes, so
// the zero-entry guard has to judge the snapshot itself: a remove-only
// rotation must submit, a fully drained draft must not.
func TestSubmitForApproval_RemoveOnlyDraft(t *testing.T) {
	w := New("treasury-payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)
	_ = w.AddEntry(1, mustEntry(t, "0x52908400098527886E0F7030069857D2E4169EE7"), "alice", at(1))
	_ = w.AddEntry(1, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(2))
	if err := w.SubmitForApproval(1, 2, policy, "alice", at(3)); err != nil {
		t.Fatalf("SubmitForApproval(v1) failed: %v", err)
	}
	if err := w.Approve(1, "bob", roster, at(4)); err != nil {
		t.Fatalf("Approve(bob) failed: %v", err)
	}
	if err := w.Approve(1, "carol", roster, at(5)); err != nil {
		t.Fatalf("Approve(carol) failed: %v", err)
	}

	v2, err := w.OpenNewDraft("rotate out compromised address", "alice", at(10))
	if err != nil {
		t.Fatalf("OpenNewDraft() failed: %v", err)
	}
	if len(v2.Entries) != 2 {
		t.Fatalf("expected draft seeded with 2 entries, got %d", len(v2.Entries))
	}
	if err := w.RemoveEntry(v2.Number, v2.Entries[0].ID, "alice", at(11)); err != nil {
		t.Fatalf("RemoveEntry() failed: %v", err)
	}

	if err := w.SubmitForApproval(v2.Number, 2, policy, "alice", at(12)); err != nil {
		t.Fatalf("remove-only draft with a non-empty snapshot must submit, got %v", err)
	}
	if v2.Status != StatusPending {
		t.Fatalf("expected pending, got %s", v2.Status)
	}
	mustInvariants(t, w)
}

func TestSubmitForApproval_RejectsDrainedDraft(t *testing.T) {
	w := newActive(t)

	v2, err := w.OpenNewDraft("", "alice", at(10))
	if err != nil {
		t.Fatalf("OpenNewDraft() failed: %v", err)
	}
	if err := w.RemoveEntry(v2.Number, v2.Entries[0].ID, "alice", at(11)); err != nil {
		t.Fatalf("RemoveEntry() failed: %v", err)
	}

	err = w.SubmitForApproval(v2.Number, 2, policy, "alice", at(12))
	if !errors.Is(err, ErrEmptySubmission) {
		t.Fatalf("expected ErrEmptySubmission for drained draft, got %v", err)
	}
}

func TestSubmitForApproval_QuorumResolution(t *testing.T) {
	// Explicit argument wins.
	w := New("payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)
	_ = w.AddEntry(1, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(1))
	if err := w.SubmitForApproval(1, 3, policy, "alice", at(2)); err != nil {
		t.Fatalf("SubmitForApproval() failed: %v", err)
	}
	v, _ := w.Version(1)
	if v.RequiredApprovals != 3 {
		t.Fatalf("expected explicit quorum 3, got %d", v.RequiredApprovals)
	}

	// Falls back to the policy default.
	w2 := New("payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)
	_ = w2.AddEntry(1, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(1))
	if err := w2.SubmitForApproval(1, 0, policy, "alice", at(2)); err != nil {
		t.Fatalf("SubmitForApproval() failed: %v", err)
	}
	v2, _ := w2.Version(1)
	if v2.RequiredApprovals != policy.DefaultRequiredApprovals {
		t.Fatalf("expected policy default %d, got %d", policy.DefaultRequiredApprovals, v2.RequiredApprovals)
	}

	// No quorum anywhere fails.
	w3 := New("payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)
	_ = w3.AddEntry(1, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(1))
	err := w3.SubmitForApproval(1, 0, Policy{}, "alice", at(2))
	if !errors.Is(err, ErrQuorumNotConfigured) {
		t.Fatalf("expected ErrQuorumNotConfigured, got %v", err)
	}
}

func TestSubmitForApproval_RejectsSecondPending(t *testing.T) {
	w := newSubmitted(t)

	v2, err := w.OpenNewDraft("", "alice", at(5))
	if err != nil {
		t.Fatalf("OpenNewDraft() failed: %v", err)
	}
	_ = w.AddEntry(v2.Number, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(6))

	err = w.SubmitForApproval(v2.Number, 2, policy, "alice", at(7))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition while v1 pending, got %v", err)
	}
	mustInvariants(t, w)
}

func TestApprove_QuorumActivates(t *testing.T) {
	w := newSubmitted(t)

	if err := w.Approve(1, "bob", roster, at(3)); err != nil {
		t.Fatalf("first approval failed: %v", err)
	}
	v, _ := w.Version(1)
	if v.Status != StatusPending {
		t.Fatalf("expected still pending after one approval, got %s", v.Status)
	}

	if err := w.Approve(1, "carol", roster, at(4)); err != nil {
		t.Fatalf("second approval failed: %v", err)
	}
	if v.Status != StatusActive {
		t.Fatalf("expected active after quorum, got %s", v.Status)
	}
	if w.CurrentVersion != 1 {
		t.Fatalf("expected current version 1, got %d", w.CurrentVersion)
	}
	if w.Status != StatusActive {
		t.Fatalf("expected whitelist active, got %s", w.Status)
	}
	if len(w.Entries) != 1 {
		t.Fatalf("expected live entry set copied from snapshot, got %d entries", len(w.Entries))
	}
	if v.ActivatedAt == nil || v.ApprovalCompletedAt == nil {
		t.Fatal("expected activation timestamps to be set")
	}
	mustInvariants(t, w)
}

func TestApprove_SecondVersionSupersedesFirst(t *testing.T) {
	w := newActive(t)

	v2, err := w.OpenNewDraft("rotation", "alice", at(10))
	if err != nil {
		t.Fatalf("OpenNewDraft() failed: %v", err)
	}
	if len(v2.Entries) != 1 {
		t.Fatalf("expected draft seeded with live entries, got %d", len(v2.Entries))
	}
	_ = w.AddEntry(v2.Number, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(11))
	if err := w.SubmitForApproval(v2.Number, 2, policy, "alice", at(12)); err != nil {
		t.Fatalf("SubmitForApproval(v2) failed: %v", err)
	}
	if err := w.Approve(v2.Number, "bob", roster, at(13)); err != nil {
		t.Fatalf("Approve(bob) failed: %v", err)
	}
	if err := w.Approve(v2.Number, "carol", roster, at(14)); err != nil {
		t.Fatalf("Approve(carol) failed: %v", err)
	}

	v1, _ := w.Version(1)
	if v1.Status != StatusSuperseded {
		t.Fatalf("expected v1 superseded, got %s", v1.Status)
	}
	// v1 keeps its historical snapshot.
	if len(v1.Entries) != 1 {
		t.Fatalf("expected superseded snapshot preserved, got %d entries", len(v1.Entries))
	}
	if w.CurrentVersion != 2 {
		t.Fatalf("expected current version 2, got %d", w.CurrentVersion)
	}
	if len(w.Entries) != 2 {
		t.Fatalf("expected live set from v2, got %d entries", len(w.Entries))
	}
	mustInvariants(t, w)
}

func TestFinalizedVersion_RejectsEdits(t *testing.T) {
	w := newActive(t)

	err := w.AddEntry(1, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(10))
	if !errors.Is(err, ErrImmutableVersion) {
		t.Fatalf("expected ErrImmutableVersion, got %v", err)
	}

	v, _ := w.Version(1)
	logLen := len(v.Changes)
	if appendErr := v.AppendChange(newChange(ChangeNameUpdated, "late edit", "alice", at(10))); !errors.Is(appendErr, ErrImmutableVersion) {
		t.Fatalf("expected AppendChange to fail on active version, got %v", appendErr)
	}
	if len(v.Changes) != logLen {
		t.Fatal("change log grew despite rejection")
	}
}

func TestUpdateNameAndDescription_TargetInProgressVersion(t *testing.T) {
	w := New("payees", "old", Scope{Kind: ScopeGlobal}, "alice", t0)

	if err := w.UpdateName("treasury-payees", "alice", at(1)); err != nil {
		t.Fatalf("UpdateName() failed: %v", err)
	}
	if err := w.UpdateDescription("new description", "alice", at(2)); err != nil {
		t.Fatalf("UpdateDescription() failed: %v", err)
	}
	if w.Name != "treasury-payees" || w.Description != "new description" {
		t.Fatalf("fields not updated: %q %q", w.Name, w.Description)
	}

	v, _ := w.Version(1)
	nameChanges := v.ChangesByKind(ChangeNameUpdated)
	if len(nameChanges) != 1 {
		t.Fatalf("expected 1 name_updated change, got %d", len(nameChanges))
	}
	if nameChanges[0].PrevValue != "payees" || nameChanges[0].NewValue != "treasury-payees" {
		t.Fatalf("unexpected prev/new values: %q -> %q", nameChanges[0].PrevValue, nameChanges[0].NewValue)
	}
}

func TestRemoveEntry_MissingEntryFails(t *testing.T) {
	w := New("payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)

	err := w.RemoveEntry(1, "no-such-entry", "alice", at(1))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEntryLabel_RecordsPrevAndNew(t *testing.T) {
	w := New("payees", "", Scope{Kind: ScopeGlobal}, "alice", t0)
	e := mustEntry(t, "0x52908400098527886E0F7030069857D2E4169EE7")
	_ = w.AddEntry(1, e, "alice", at(1))

	if err := w.UpdateEntryLabel(1, e.ID, "cold storage", "alice", at(2)); err != nil {
		t.Fatalf("UpdateEntryLabel() failed: %v", err)
	}

	v, _ := w.Version(1)
	got, ok := v.Entry(e.ID)
	if !ok || got.Label != "cold storage" {
		t.Fatalf("expected relabeled entry, got %+v", got)
	}
	updates := v.ChangesByKind(ChangeEntryUpdated)
	if len(updates) != 1 || updates[0].PrevValue != "test" || updates[0].NewValue != "cold storage" {
		t.Fatalf("unexpected entry_updated record: %+v", updates)
	}
}

func TestRevoke_RequiresActiveVersion(t *testing.T) {
	w := newSubmitted(t)

	err := w.Revoke("compromised", "alice", at(5))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition without active version, got %v", err)
	}
}

func TestRevoke_TerminatesActiveVersion(t *testing.T) {
	w := newActive(t)

	if err := w.Revoke("compromised signer", "alice", at(10)); err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}

	v, _ := w.Version(1)
	if v.Status != StatusRevoked {
		t.Fatalf("expected revoked, got %s", v.Status)
	}
	if w.Status != StatusRevoked {
		t.Fatalf("expected whitelist revoked, got %s", w.Status)
	}
	// CurrentVersion keeps pointing at the revoked version.
	if w.CurrentVersion != 1 {
		t.Fatalf("expected current version 1, got %d", w.CurrentVersion)
	}

	revoked := v.ChangesByKind(ChangeRevoked)
	if len(revoked) != 1 || revoked[0].Metadata["reason"] != "compromised signer" {
		t.Fatalf("expected revoked record with reason, got %+v", revoked)
	}

	// A revoked whitelist can still open a fresh draft.
	if _, err := w.OpenNewDraft("replacement", "alice", at(11)); err != nil {
		t.Fatalf("OpenNewDraft() after revoke failed: %v", err)
	}
	mustInvariants(t, w)
}

func TestOpenNewDraft_RejectsSecondDraft(t *testing.T) {
	w := newActive(t)

	if _, err := w.OpenNewDraft("", "alice", at(10)); err != nil {
		t.Fatalf("first OpenNewDraft() failed: %v", err)
	}
	_, err := w.OpenNewDraft("", "bob", at(11))
	if !errors.Is(err, ErrDraftAlreadyExists) {
		t.Fatalf("expected ErrDraftAlreadyExists, got %v", err)
	}
}

func TestVersionNumbers_NeverReused(t *testing.T) {
	w := newActive(t)

	v2, _ := w.OpenNewDraft("", "alice", at(10))
	if v2.Number != 2 {
		t.Fatalf("expected version 2, got %d", v2.Number)
	}
	_ = w.AddEntry(2, mustEntry(t, "0xde709f2102306220921060314715629080e2fb77"), "alice", at(11))
	_ = w.SubmitForApproval(2, 2, policy, "alice", at(12))
	_ = w.Approve(2, "bob", roster, at(13))
	_ = w.Approve(2, "carol", roster, at(14))

	v3, _ := w.OpenNewDraft("", "alice", at(15))
	if v3.Number != 3 {
		t.Fatalf("expected version 3 even after supersedes, got %d", v3.Number)
	}
	mustInvariants(t, w)
}
