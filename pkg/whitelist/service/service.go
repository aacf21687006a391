// Package service implements the whitelist command and query surface. It
// serializes commands per aggregate, resolves the acting principal and the
// approval policy, and maps domain errors onto transport categories.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainsafe/treasury-api/internal/metrics"
	apperrors "github.com/chainsafe/treasury-api/pkg/app/errors"
	"github.com/chainsafe/treasury-api/pkg/auth"
	"github.com/chainsafe/treasury-api/pkg/roster"
	"github.com/chainsafe/treasury-api/pkg/whitelist"
	"github.com/chainsafe/treasury-api/pkg/whiteliststore"
)

// CreateRequest carries the fields for creating a whitelist.
type CreateRequest struct {
	Name        string
	Description string
	Scope       whitelist.Scope
	ExpiresAt   *time.Time
}

// AddEntryRequest carries the fields for adding an entry to the in-progress
// version.
type AddEntryRequest struct {
	Address string
	Chain   string
	Label   string
	Kind    whitelist.EntryKind
}

// ListFilter narrows whitelist listings.
type ListFilter struct {
	Status    *whitelist.Status
	ScopeKind *whitelist.ScopeKind
	VaultID   *string
}

// Service defines the whitelist business logic.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*whitelist.Whitelist, error)
	Get(ctx context.Context, id string) (*whitelist.Whitelist, error)
	List(ctx context.Context, filter ListFilter) ([]*whitelist.Whitelist, error)
	GetVersion(ctx context.Context, id string, number int) (*whitelist.Version, error)

	AddEntry(ctx context.Context, id string, req AddEntryRequest) (*whitelist.Whitelist, error)
	RemoveEntry(ctx context.Context, id, entryID string) (*whitelist.Whitelist, error)
	UpdateName(ctx context.Context, id, name string) (*whitelist.Whitelist, error)
	UpdateDescription(ctx context.Context, id, description string) (*whitelist.Whitelist, error)
	UpdateEntryLabel(ctx context.Context, id, entryID, label string) (*whitelist.Whitelist, error)

	SubmitForApproval(ctx context.Context, id string, versionNumber, requiredApprovals int) (*whitelist.Whitelist, error)
	Approve(ctx context.Context, id string, versionNumber int) (*whitelist.Whitelist, error)
	Revoke(ctx context.Context, id, reason string) (*whitelist.Whitelist, error)
	OpenDraft(ctx context.Context, id, comment string) (*whitelist.Whitelist, error)

	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

type whitelistService struct {
	store  whiteliststore.Store
	roster roster.Provider
	policy whitelist.Policy
	nowFn  func() time.Time

	// locks serializes commands per whitelist ID. The aggregate itself is a
	// pure state machine with no locking of its own.
	locks sync.Map
}

// NewService creates the whitelist service.
func NewService(store whiteliststore.Store, approvers roster.Provider, policy whitelist.Policy) Service {
	return &whitelistService{
		store:  store,
		roster: approvers,
		policy: policy,
		nowFn:  time.Now,
	}
}

func (s *whitelistService) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// principal resolves the acting principal placed in the context by the auth
// middleware.
func principal(ctx context.Context) (string, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return "", apperrors.UnAuthorizedError(nil, "no acting principal")
	}
	return p, nil
}

func (s *whitelistService) Create(ctx context.Context, req CreateRequest) (*whitelist.Whitelist, error) {
	return s.command(ctx, "create", func(actor string, now time.Time) (*whitelist.Whitelist, error) {
		if req.Name == "" {
			return nil, apperrors.BadRequestError(nil, "name is required")
		}
		if req.Scope.Kind == whitelist.ScopeVault && req.Scope.VaultID == "" {
			return nil, apperrors.BadRequestError(nil, "vault_id is required for vault scope")
		}
		if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
			return nil, apperrors.BadRequestError(nil, "expires_at must be in the future")
		}

		w := whitelist.New(req.Name, req.Description, req.Scope, actor, now)
		w.ExpiresAt = req.ExpiresAt
		if err := s.store.Create(ctx, w); err != nil {
			return nil, fmt.Errorf("failed to create whitelist: %w", err)
		}
		return w, nil
	})
}

func (s *whitelistService) Get(ctx context.Context, id string) (*whitelist.Whitelist, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return w, nil
}

func (s *whitelistService) List(ctx context.Context, filter ListFilter) ([]*whitelist.Whitelist, error) {
	var opts []whiteliststore.QueryOption
	if filter.Status != nil {
		opts = append(opts, whiteliststore.WithStatus(*filter.Status))
	}
	if filter.ScopeKind != nil {
		opts = append(opts, whiteliststore.WithScopeKind(*filter.ScopeKind))
	}
	if filter.VaultID != nil {
		opts = append(opts, whiteliststore.WithVaultID(*filter.VaultID))
	}

	whitelists, err := s.store.List(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelists: %w", err)
	}
	return whitelists, nil
}

func (s *whitelistService) GetVersion(ctx context.Context, id string, number int) (*whitelist.Version, error) {
	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	v, err := w.Version(number)
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

func (s *whitelistService) AddEntry(ctx context.Context, id string, req AddEntryRequest) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "add_entry", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		kind := req.Kind
		if kind == "" {
			kind = whitelist.EntryKindAddress
		}
		entry, err := whitelist.NewEntry(req.Address, req.Chain, req.Label, kind, actor, now)
		if err != nil {
			return apperrors.BadRequestError(err, err.Error())
		}

		v, err := w.InProgressVersion()
		if err != nil {
			return err
		}
		return w.AddEntry(v.Number, entry, actor, now)
	})
}

func (s *whitelistService) RemoveEntry(ctx context.Context, id, entryID string) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "remove_entry", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		v, err := w.InProgressVersion()
		if err != nil {
			return err
		}
		return w.RemoveEntry(v.Number, entryID, actor, now)
	})
}

func (s *whitelistService) UpdateEntryLabel(ctx context.Context, id, entryID, label string) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "update_entry_label", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		v, err := w.InProgressVersion()
		if err != nil {
			return err
		}
		return w.UpdateEntryLabel(v.Number, entryID, label, actor, now)
	})
}

func (s *whitelistService) UpdateName(ctx context.Context, id, name string) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "update_name", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		if name == "" {
			return apperrors.BadRequestError(nil, "name is required")
		}
		return w.UpdateName(name, actor, now)
	})
}

func (s *whitelistService) UpdateDescription(ctx context.Context, id, description string) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "update_description", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		return w.UpdateDescription(description, actor, now)
	})
}

func (s *whitelistService) SubmitForApproval(ctx context.Context, id string, versionNumber, requiredApprovals int) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "submit", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		if versionNumber == 0 {
			versionNumber = w.DraftVersion
		}
		return w.SubmitForApproval(versionNumber, requiredApprovals, s.policy, actor, now)
	})
}

func (s *whitelistService) Approve(ctx context.Context, id string, versionNumber int) (*whitelist.Whitelist, error) {
	w, err := s.mutate(ctx, "approve", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		if versionNumber == 0 {
			for _, v := range w.Versions {
				if v.Status == whitelist.StatusPending {
					versionNumber = v.Number
					break
				}
			}
		}
		if versionNumber == 0 && len(w.Versions) > 0 {
			// Nothing pending: target the latest version so the caller gets
			// a state conflict rather than a lookup failure.
			versionNumber = w.Versions[len(w.Versions)-1].Number
		}
		if !s.roster.IsApprover(actor) {
			return fmt.Errorf("%w: %s is not on the approver roster", whitelist.ErrUnauthorizedApprover, actor)
		}
		if err := w.Approve(versionNumber, actor, s.roster.Approvers(), now); err != nil {
			return err
		}
		metrics.ApprovalsTotal.Inc()
		if v, vErr := w.Version(versionNumber); vErr == nil && v.Status == whitelist.StatusActive {
			metrics.ActivationsTotal.Inc()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *whitelistService) Revoke(ctx context.Context, id, reason string) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "revoke", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		if reason == "" {
			return apperrors.BadRequestError(nil, "reason is required")
		}
		if err := w.Revoke(reason, actor, now); err != nil {
			return err
		}
		metrics.RevocationsTotal.Inc()
		return nil
	})
}

func (s *whitelistService) OpenDraft(ctx context.Context, id, comment string) (*whitelist.Whitelist, error) {
	return s.mutate(ctx, "open_draft", id, func(w *whitelist.Whitelist, actor string, now time.Time) error {
		_, err := w.OpenNewDraft(comment, actor, now)
		return err
	})
}

// SweepExpired expires every whitelist whose expiration instant has passed.
// Invoked by the background sweeper; does not require an acting principal.
func (s *whitelistService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	due, err := s.store.List(ctx, whiteliststore.WithExpiresBy(now))
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring whitelists: %w", err)
	}

	expired := 0
	for _, candidate := range due {
		mu := s.lockFor(candidate.ID)
		mu.Lock()
		err := func() error {
			w, err := s.store.Get(ctx, candidate.ID)
			if err != nil {
				return err
			}
			transitioned, err := whitelist.ExpireIfDue(w, now)
			if err != nil || !transitioned {
				return err
			}
			if err := s.store.Save(ctx, w); err != nil {
				return err
			}
			expired++
			metrics.ExpirationsTotal.Inc()
			return nil
		}()
		mu.Unlock()
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("sweeper", "expire").Inc()
			return expired, fmt.Errorf("failed to expire whitelist %s: %w", candidate.ID, err)
		}
	}
	return expired, nil
}

// command runs a non-mutating-load command with principal resolution and
// metrics.
func (s *whitelistService) command(ctx context.Context, name string, fn func(actor string, now time.Time) (*whitelist.Whitelist, error)) (*whitelist.Whitelist, error) {
	actor, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	w, err := fn(actor, s.nowFn())
	observe(name, start, err)
	if err != nil {
		return nil, mapError(err)
	}
	return w, nil
}

// mutate runs a load-mutate-save command under the aggregate's lock. The
// expiration evaluator runs before the mutation so commands never operate on
// a whitelist that is past its expiration instant.
func (s *whitelistService) mutate(ctx context.Context, name, id string, fn func(w *whitelist.Whitelist, actor string, now time.Time) error) (*whitelist.Whitelist, error) {
	actor, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	w, err := s.store.Get(ctx, id)
	if err != nil {
		observe(name, start, err)
		return nil, mapError(err)
	}

	now := s.nowFn()
	expired, err := whitelist.ExpireIfDue(w, now)
	if err != nil {
		observe(name, start, err)
		return nil, mapError(err)
	}
	if expired {
		metrics.ExpirationsTotal.Inc()
	}

	resetsBefore := countApprovalResets(w)
	if err := fn(w, actor, now); err != nil {
		if expired {
			// The lazy expiration still has to stick even though the command
			// itself was rejected.
			if saveErr := s.store.Save(ctx, w); saveErr != nil {
				observe(name, start, saveErr)
				return nil, mapError(saveErr)
			}
		}
		observe(name, start, err)
		return nil, mapError(err)
	}

	if resets := countApprovalResets(w) - resetsBefore; resets > 0 {
		metrics.ApprovalResetsTotal.Add(float64(resets))
	}

	if err := s.store.Save(ctx, w); err != nil {
		observe(name, start, err)
		return nil, fmt.Errorf("failed to save whitelist %s: %w", id, err)
	}
	observe(name, start, nil)
	return w, nil
}

func countApprovalResets(w *whitelist.Whitelist) int {
	n := 0
	for _, v := range w.Versions {
		n += len(v.ChangesByKind(whitelist.ChangeApprovalsReset))
	}
	return n
}

func observe(command string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.CommandsTotal.WithLabelValues(command, result).Inc()
	metrics.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// mapError translates domain and store errors into transport categories.
// ServiceErrors pass through untouched.
func mapError(err error) error {
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	switch {
	case errors.Is(err, whiteliststore.ErrWhitelistNotFound),
		errors.Is(err, whitelist.ErrNotFound):
		return apperrors.ResourceNotFoundError(err, err.Error())
	case errors.Is(err, whitelist.ErrImmutableVersion):
		return apperrors.LockedError(err, err.Error())
	case errors.Is(err, whitelist.ErrUnauthorizedApprover):
		return apperrors.ForbiddenError(err, err.Error())
	case errors.Is(err, whitelist.ErrDuplicateApproval),
		errors.Is(err, whitelist.ErrDraftAlreadyExists),
		errors.Is(err, whitelist.ErrInvalidTransition),
		errors.Is(err, whitelist.ErrNotPending):
		return apperrors.ConflictError(err, err.Error())
	case errors.Is(err, whitelist.ErrQuorumNotConfigured),
		errors.Is(err, whitelist.ErrEmptySubmission):
		return apperrors.BadRequestError(err, err.Error())
	default:
		return err
	}
}
