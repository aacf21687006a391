package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/chainsafe/treasury-api/pkg/app/errors"
	"github.com/chainsafe/treasury-api/pkg/auth"
	"github.com/chainsafe/treasury-api/pkg/roster"
	"github.com/chainsafe/treasury-api/pkg/whitelist"
	"github.com/chainsafe/treasury-api/pkg/whiteliststore"
)

var testPolicy = whitelist.Policy{DefaultRequiredApprovals: 2}

func newTestService() Service {
	store := whiteliststore.NewMemoryStore()
	approvers := roster.NewStatic([]string{"alice", "bob", "carol"})
	return NewService(store, approvers, testPolicy)
}

func asPrincipal(name string) context.Context {
	return auth.WithPrincipal(context.Background(), name)
}

func createWhitelist(t *testing.T, svc Service, ctx context.Context) *whitelist.Whitelist {
	t.Helper()
	w, err := svc.Create(ctx, CreateRequest{Name: "treasury-payees", Description: "payouts"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return w
}

func TestService_Create_RequiresPrincipal(t *testing.T) {
	svc := newTestService()

	_, err := svc.Create(context.Background(), CreateRequest{Name: "payees"})
	if !apperrors.Is(err, apperrors.CategoryUnauthorized) {
		t.Fatalf("expected CategoryUnauthorized, got %v", err)
	}
}

func TestService_Create_PersistsDraft(t *testing.T) {
	svc := newTestService()
	ctx := asPrincipal("alice")

	w := createWhitelist(t, svc, ctx)
	if w.CreatedBy != "alice" {
		t.Fatalf("expected creator alice, got %s", w.CreatedBy)
	}

	got, err := svc.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.DraftVersion != 1 || got.Status != whitelist.StatusDraft {
		t.Fatalf("unexpected persisted state: draft=%d status=%s", got.DraftVersion, got.Status)
	}
}

func TestService_Create_RejectsVaultScopeWithoutVaultID(t *testing.T) {
	svc := newTestService()

	_, err := svc.Create(asPrincipal("alice"), CreateRequest{
		Name:  "vault-payees",
		Scope: whitelist.Scope{Kind: whitelist.ScopeVault},
	})
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("expected CategoryDataError, got %v", err)
	}
}

func TestService_Get_UnknownID(t *testing.T) {
	svc := newTestService()

	_, err := svc.Get(asPrincipal("alice"), "missing")
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected CategoryResourceNotFound, got %v", err)
	}
}

func TestService_FullApprovalFlow(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)

	if _, err := svc.AddEntry(alice, w.ID, AddEntryRequest{
		Address: "0x52908400098527886e0f7030069857d2e4169ee7",
		Chain:   "ethereum",
		Label:   "ops wallet",
	}); err != nil {
		t.Fatalf("AddEntry() failed: %v", err)
	}

	if _, err := svc.SubmitForApproval(alice, w.ID, 0, 0); err != nil {
		t.Fatalf("SubmitForApproval() failed: %v", err)
	}

	got, err := svc.Approve(asPrincipal("bob"), w.ID, 0)
	if err != nil {
		t.Fatalf("Approve(bob) failed: %v", err)
	}
	if got.Status != whitelist.StatusPending {
		t.Fatalf("expected pending after first approval, got %s", got.Status)
	}

	got, err = svc.Approve(asPrincipal("carol"), w.ID, 0)
	if err != nil {
		t.Fatalf("Approve(carol) failed: %v", err)
	}
	if got.Status != whitelist.StatusActive {
		t.Fatalf("expected active after quorum, got %s", got.Status)
	}
	if got.CurrentVersion != 1 {
		t.Fatalf("expected current version 1, got %d", got.CurrentVersion)
	}
	if len(got.Entries) != 1 {
		t.Fatalf("expected 1 live entry, got %d", len(got.Entries))
	}
	// Entry addresses come back checksummed.
	if got.Entries[0].Address != "0x52908400098527886E0F7030069857D2E4169EE7" {
		t.Fatalf("expected checksummed address, got %s", got.Entries[0].Address)
	}
}

func TestService_Approve_UnknownApprover(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)
	_, _ = svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0x52908400098527886e0f7030069857d2e4169ee7"})
	_, _ = svc.SubmitForApproval(alice, w.ID, 0, 0)

	_, err := svc.Approve(asPrincipal("mallory"), w.ID, 0)
	if !apperrors.Is(err, apperrors.CategoryForbidden) {
		t.Fatalf("expected CategoryForbidden, got %v", err)
	}
}

func TestService_Approve_Duplicate_Conflicts(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)
	_, _ = svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0x52908400098527886e0f7030069857d2e4169ee7"})
	_, _ = svc.SubmitForApproval(alice, w.ID, 0, 0)
	if _, err := svc.Approve(asPrincipal("bob"), w.ID, 0); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}

	_, err := svc.Approve(asPrincipal("bob"), w.ID, 0)
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected CategoryDataConflict, got %v", err)
	}
	if !errors.Is(err, whitelist.ErrDuplicateApproval) {
		t.Fatalf("expected ErrDuplicateApproval in chain, got %v", err)
	}
}

func TestService_EditActiveVersion_Locked(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)
	_, _ = svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0x52908400098527886e0f7030069857d2e4169ee7"})
	_, _ = svc.SubmitForApproval(alice, w.ID, 0, 0)
	_, _ = svc.Approve(asPrincipal("bob"), w.ID, 0)
	_, _ = svc.Approve(asPrincipal("carol"), w.ID, 0)

	_, err := svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0xde709f2102306220921060314715629080e2fb77"})
	if !apperrors.Is(err, apperrors.CategoryLocked) {
		t.Fatalf("expected CategoryLocked, got %v", err)
	}
}

func TestService_SubmitEmptyVersion_BadRequest(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)

	_, err := svc.SubmitForApproval(alice, w.ID, 0, 0)
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("expected CategoryDataError, got %v", err)
	}
	if !errors.Is(err, whitelist.ErrEmptySubmission) {
		t.Fatalf("expected ErrEmptySubmission in chain, got %v", err)
	}
}

func TestService_OpenDraft_SecondDraftConflicts(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)
	_, _ = svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0x52908400098527886e0f7030069857d2e4169ee7"})
	_, _ = svc.SubmitForApproval(alice, w.ID, 0, 0)
	_, _ = svc.Approve(asPrincipal("bob"), w.ID, 0)
	_, _ = svc.Approve(asPrincipal("carol"), w.ID, 0)

	if _, err := svc.OpenDraft(alice, w.ID, "rotation"); err != nil {
		t.Fatalf("OpenDraft() failed: %v", err)
	}
	_, err := svc.OpenDraft(alice, w.ID, "again")
	if !apperrors.Is(err, apperrors.CategoryDataConflict) {
		t.Fatalf("expected CategoryDataConflict, got %v", err)
	}
}

func TestService_Revoke_RequiresReason(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)

	_, err := svc.Revoke(alice, w.ID, "")
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("expected CategoryDataError, got %v", err)
	}
}

func TestService_List_Filters(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	_ = createWhitelist(t, svc, alice)
	if _, err := svc.Create(alice, CreateRequest{
		Name:  "vault-payees",
		Scope: whitelist.Scope{Kind: whitelist.ScopeVault, VaultID: "vault-7"},
	}); err != nil {
		t.Fatalf("Create(vault) failed: %v", err)
	}

	all, err := svc.List(alice, ListFilter{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 whitelists, got %d", len(all))
	}

	kind := whitelist.ScopeVault
	vaulted, err := svc.List(alice, ListFilter{ScopeKind: &kind})
	if err != nil {
		t.Fatalf("List(vault) failed: %v", err)
	}
	if len(vaulted) != 1 || vaulted[0].Scope.VaultID != "vault-7" {
		t.Fatalf("unexpected vault filter result: %+v", vaulted)
	}
}

func TestService_LazyExpirationOnCommand(t *testing.T) {
	store := whiteliststore.NewMemoryStore()
	approvers := roster.NewStatic([]string{"alice", "bob", "carol"})
	svc := NewService(store, approvers, testPolicy)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.(*whitelistService).nowFn = func() time.Time { return now }

	alice := asPrincipal("alice")
	expires := base.Add(time.Hour)
	w, err := svc.Create(alice, CreateRequest{Name: "payees", ExpiresAt: &expires})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	_, _ = svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0x52908400098527886e0f7030069857d2e4169ee7"})
	_, _ = svc.SubmitForApproval(alice, w.ID, 0, 0)
	_, _ = svc.Approve(asPrincipal("bob"), w.ID, 0)
	_, _ = svc.Approve(asPrincipal("carol"), w.ID, 0)

	// Past the expiration instant, the next command evaluates expiration
	// before it runs, so the edit hits an immutable expired version.
	now = base.Add(2 * time.Hour)
	_, err = svc.UpdateName(alice, w.ID, "renamed")
	if !apperrors.Is(err, apperrors.CategoryLocked) {
		t.Fatalf("expected CategoryLocked on expired whitelist, got %v", err)
	}

	got, err := svc.Get(alice, w.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != whitelist.StatusExpired {
		t.Fatalf("expected lazily-expired status persisted, got %s", got.Status)
	}
}

func TestService_SweepExpired(t *testing.T) {
	store := whiteliststore.NewMemoryStore()
	approvers := roster.NewStatic([]string{"alice", "bob", "carol"})
	svc := NewService(store, approvers, testPolicy)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.(*whitelistService).nowFn = func() time.Time { return base }

	alice := asPrincipal("alice")
	expires := base.Add(time.Hour)
	w, _ := svc.Create(alice, CreateRequest{Name: "payees", ExpiresAt: &expires})
	_, _ = svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0x52908400098527886e0f7030069857d2e4169ee7"})
	_, _ = svc.SubmitForApproval(alice, w.ID, 0, 0)
	_, _ = svc.Approve(asPrincipal("bob"), w.ID, 0)
	_, _ = svc.Approve(asPrincipal("carol"), w.ID, 0)

	// Not due yet.
	expired, err := svc.SweepExpired(context.Background(), base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("SweepExpired() failed: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected no expirations before the instant, got %d", expired)
	}

	// Due now.
	expired, err = svc.SweepExpired(context.Background(), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("SweepExpired() failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expiration, got %d", expired)
	}

	// Idempotent.
	expired, err = svc.SweepExpired(context.Background(), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("repeat SweepExpired() failed: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected repeat sweep to be a no-op, got %d", expired)
	}
}

// Concurrent edits against one whitelist must serialize: every accepted
// command lands in the change log exactly once.
func TestService_ConcurrentAddEntries(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)

	addresses := []string{
		"0x52908400098527886e0f7030069857d2e4169ee7",
		"0xde709f2102306220921060314715629080e2fb77",
		"0x27b1fdb04752bbc536007a920d24acb045561c26",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(addresses))
	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			if _, err := svc.AddEntry(alice, w.ID, AddEntryRequest{Address: addr}); err != nil {
				errCh <- err
			}
		}(addr)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent AddEntry() failed: %v", err)
	}

	got, err := svc.Get(alice, w.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	v, err := got.Version(1)
	if err != nil {
		t.Fatalf("Version(1) failed: %v", err)
	}
	if len(v.Entries) != len(addresses) {
		t.Fatalf("expected %d entries, got %d", len(addresses), len(v.Entries))
	}
	if adds := v.ChangesByKind(whitelist.ChangeEntryAdded); len(adds) != len(addresses) {
		t.Fatalf("expected %d entry_added records, got %d", len(addresses), len(adds))
	}
}

// All three approvers racing on a quorum-2 version must yield exactly two
// recorded approvals plus one rejected duplicate or late approval, and a
// single activation.
func TestService_ConcurrentApprovals(t *testing.T) {
	svc := newTestService()
	alice := asPrincipal("alice")
	w := createWhitelist(t, svc, alice)
	_, _ = svc.AddEntry(alice, w.ID, AddEntryRequest{Address: "0x52908400098527886e0f7030069857d2e4169ee7"})
	if _, err := svc.SubmitForApproval(alice, w.ID, 0, 0); err != nil {
		t.Fatalf("SubmitForApproval() failed: %v", err)
	}

	approvers := []string{"alice", "bob", "carol"}
	var wg sync.WaitGroup
	errCh := make(chan error, len(approvers))
	for _, name := range approvers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := svc.Approve(asPrincipal(name), w.ID, 0); err != nil {
				errCh <- err
			}
		}(name)
	}
	wg.Wait()
	close(errCh)

	var rejected int
	for err := range errCh {
		rejected++
		if !apperrors.Is(err, apperrors.CategoryDataConflict) {
			t.Fatalf("expected only conflict rejections, got %v", err)
		}
	}
	if rejected != 1 {
		t.Fatalf("expected exactly 1 rejected approval, got %d", rejected)
	}

	got, err := svc.Get(alice, w.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != whitelist.StatusActive || got.CurrentVersion != 1 {
		t.Fatalf("expected active v1, got status=%s current=%d", got.Status, got.CurrentVersion)
	}
	v, _ := got.Version(1)
	if len(v.ApprovedBy) != 2 {
		t.Fatalf("expected exactly 2 recorded approvals, got %v", v.ApprovedBy)
	}
}
