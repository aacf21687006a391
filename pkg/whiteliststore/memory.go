package whiteliststore

import (
	"context"
	"sort"
	"sync"

	"github.com/chainsafe/treasury-api/pkg/whitelist"
)

// memoryStore is a mutex-guarded in-memory implementation. It hands out deep
// copies so an aborted command can never leave the stored aggregate half
// mutated.
type memoryStore struct {
	mu         sync.RWMutex
	whitelists map[string]*whitelist.Whitelist
}

// NewMemoryStore creates an in-memory whitelist store for tests and local
// development.
func NewMemoryStore() *memoryStore {
	return &memoryStore{whitelists: make(map[string]*whitelist.Whitelist)}
}

func (s *memoryStore) Create(ctx context.Context, w *whitelist.Whitelist) error {
	return s.Save(ctx, w)
}

func (s *memoryStore) Get(_ context.Context, id string) (*whitelist.Whitelist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.whitelists[id]
	if !ok {
		return nil, ErrWhitelistNotFound
	}
	return clone(w), nil
}

func (s *memoryStore) Save(_ context.Context, w *whitelist.Whitelist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.whitelists[w.ID] = clone(w)
	return nil
}

func (s *memoryStore) List(_ context.Context, opts ...QueryOption) ([]*whitelist.Whitelist, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*whitelist.Whitelist
	for _, w := range s.whitelists {
		if options.Status != nil && w.Status != *options.Status {
			continue
		}
		if options.ScopeKind != nil && w.Scope.Kind != *options.ScopeKind {
			continue
		}
		if options.VaultID != nil && w.Scope.VaultID != *options.VaultID {
			continue
		}
		if options.ExpiresBy != nil {
			if w.ExpiresAt == nil || w.ExpiresAt.After(*options.ExpiresBy) {
				continue
			}
		}
		out = append(out, clone(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func clone(w *whitelist.Whitelist) *whitelist.Whitelist {
	cp := *w
	cp.Entries = append([]whitelist.Entry(nil), w.Entries...)
	if w.ExpiresAt != nil {
		t := *w.ExpiresAt
		cp.ExpiresAt = &t
	}
	cp.Versions = make([]*whitelist.Version, len(w.Versions))
	for i, v := range w.Versions {
		vc := *v
		vc.ApprovedBy = append([]string(nil), v.ApprovedBy...)
		vc.Entries = append([]whitelist.Entry(nil), v.Entries...)
		vc.Changes = make([]whitelist.Change, len(v.Changes))
		for j, c := range v.Changes {
			cc := c
			if c.Metadata != nil {
				cc.Metadata = make(map[string]string, len(c.Metadata))
				for k, val := range c.Metadata {
					cc.Metadata[k] = val
				}
			}
			vc.Changes[j] = cc
		}
		if v.ApprovalCompletedAt != nil {
			t := *v.ApprovalCompletedAt
			vc.ApprovalCompletedAt = &t
		}
		if v.ActivatedAt != nil {
			t := *v.ActivatedAt
			vc.ActivatedAt = &t
		}
		cp.Versions[i] = &vc
	}
	return &cp
}
