package whiteliststore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/chainsafe/treasury-api/pkg/whitelist"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates the postgres implementation of the whitelist store.
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) Create(ctx context.Context, w *whitelist.Whitelist) error {
	return s.Save(ctx, w)
}

func (s *pgStore) Get(ctx context.Context, id string) (*whitelist.Whitelist, error) {
	dao := new(WhitelistDao)
	err := s.db.NewSelect().Model(dao).Where("wl.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWhitelistNotFound
		}
		return nil, fmt.Errorf("failed to get whitelist: %w", err)
	}
	return s.load(ctx, dao)
}

func (s *pgStore) load(ctx context.Context, dao *WhitelistDao) (*whitelist.Whitelist, error) {
	var versions []VersionDao
	err := s.db.NewSelect().Model(&versions).
		Where("whitelist_id = ?", dao.ID).
		Order("number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load versions: %w", err)
	}

	var changes []ChangeDao
	err = s.db.NewSelect().Model(&changes).
		Where("whitelist_id = ?", dao.ID).
		Order("version_number ASC", "seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load changes: %w", err)
	}

	var entries []EntryDao
	err = s.db.NewSelect().Model(&entries).
		Where("whitelist_id = ?", dao.ID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	return assemble(dao, versions, changes, entries), nil
}

// Save persists the whole aggregate in one transaction. Versions are
// upserted by (whitelist_id, number); change rows are append-only and only
// inserted when new; entry snapshots are rewritten wholesale.
func (s *pgStore) Save(ctx context.Context, w *whitelist.Whitelist) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		dao := toWhitelistDao(w)
		_, err := tx.NewInsert().
			Model(dao).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("description = EXCLUDED.description").
			Set("status = EXCLUDED.status").
			Set("current_version = EXCLUDED.current_version").
			Set("draft_version = EXCLUDED.draft_version").
			Set("expires_at = EXCLUDED.expires_at").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert whitelist: %w", err)
		}

		for _, v := range w.Versions {
			vd := toVersionDao(w.ID, v)
			_, err = tx.NewInsert().
				Model(vd).
				On("CONFLICT (whitelist_id, number) DO UPDATE").
				Set("status = EXCLUDED.status").
				Set("required_approvals = EXCLUDED.required_approvals").
				Set("approved_by = EXCLUDED.approved_by").
				Set("approval_completed_at = EXCLUDED.approval_completed_at").
				Set("activated_at = EXCLUDED.activated_at").
				Set("comment = EXCLUDED.comment").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("upsert version %d: %w", v.Number, err)
			}

			if daos := toChangeDaos(w.ID, v); len(daos) > 0 {
				_, err = tx.NewInsert().
					Model(&daos).
					On("CONFLICT (id) DO NOTHING").
					Exec(ctx)
				if err != nil {
					return fmt.Errorf("append changes for version %d: %w", v.Number, err)
				}
			}
		}

		// Entry snapshots: delete and rewrite inside the same transaction.
		_, err = tx.NewDelete().
			Model((*EntryDao)(nil)).
			Where("whitelist_id = ?", w.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear entries: %w", err)
		}

		var entryDaos []*EntryDao
		entryDaos = append(entryDaos, toEntryDaos(w.ID, liveEntrySet, w.Entries)...)
		for _, v := range w.Versions {
			entryDaos = append(entryDaos, toEntryDaos(w.ID, v.Number, v.Entries)...)
		}
		if len(entryDaos) > 0 {
			_, err = tx.NewInsert().Model(&entryDaos).Exec(ctx)
			if err != nil {
				return fmt.Errorf("write entries: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save whitelist %s: %w", w.ID, err)
	}
	return nil
}

func (s *pgStore) List(ctx context.Context, opts ...QueryOption) ([]*whitelist.Whitelist, error) {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var daos []WhitelistDao
	query := s.db.NewSelect().Model(&daos).Order("created_at ASC")
	if options.Status != nil {
		query = query.Where("status = ?", string(*options.Status))
	}
	if options.ScopeKind != nil {
		query = query.Where("scope_kind = ?", string(*options.ScopeKind))
	}
	if options.VaultID != nil {
		query = query.Where("vault_id = ?", *options.VaultID)
	}
	if options.ExpiresBy != nil {
		query = query.Where("expires_at IS NOT NULL AND expires_at <= ?", *options.ExpiresBy)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list whitelists: %w", err)
	}

	out := make([]*whitelist.Whitelist, 0, len(daos))
	for i := range daos {
		w, err := s.load(ctx, &daos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
