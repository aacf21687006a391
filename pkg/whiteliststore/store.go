// Package whiteliststore persists whitelist aggregates. The postgres
// implementation saves the whole aggregate transactionally; the memory
// implementation backs tests and local development.
package whiteliststore

import (
	"context"
	"errors"
	"time"

	"github.com/chainsafe/treasury-api/pkg/whitelist"
)

// ErrWhitelistNotFound is returned when a whitelist lookup finds no matching
// record.
var ErrWhitelistNotFound = errors.New("whitelist not found")

// Store defines aggregate persistence. Save must apply the whole aggregate
// atomically: a failed save leaves the stored state untouched.
type Store interface {
	Create(ctx context.Context, w *whitelist.Whitelist) error
	Get(ctx context.Context, id string) (*whitelist.Whitelist, error)
	Save(ctx context.Context, w *whitelist.Whitelist) error
	List(ctx context.Context, opts ...QueryOption) ([]*whitelist.Whitelist, error)
}

// QueryOptions defines filters for listing whitelists.
type QueryOptions struct {
	Status    *whitelist.Status
	ScopeKind *whitelist.ScopeKind
	VaultID   *string
	ExpiresBy *time.Time
}

// QueryOption is a functional option for listing whitelists.
type QueryOption func(*QueryOptions)

// WithStatus filters by whitelist status.
func WithStatus(status whitelist.Status) QueryOption {
	return func(opts *QueryOptions) {
		opts.Status = &status
	}
}

// WithScopeKind filters by scope kind (global or vault).
func WithScopeKind(kind whitelist.ScopeKind) QueryOption {
	return func(opts *QueryOptions) {
		opts.ScopeKind = &kind
	}
}

// WithVaultID filters vault-bound whitelists by vault.
func WithVaultID(vaultID string) QueryOption {
	return func(opts *QueryOptions) {
		opts.VaultID = &vaultID
	}
}

// WithExpiresBy selects whitelists whose expiration instant is set and not
// after t. Used by the expiration sweeper.
func WithExpiresBy(t time.Time) QueryOption {
	return func(opts *QueryOptions) {
		opts.ExpiresBy = &t
	}
}
