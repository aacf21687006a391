package whiteliststore

import (
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/treasury-api/pkg/whitelist"
)

// liveEntrySet marks entry rows belonging to the whitelist's live entry set
// rather than a version snapshot.
const liveEntrySet = 0

// WhitelistDao is a data access object that maps directly to the
// 'whitelists' table in PostgreSQL.
type WhitelistDao struct {
	bun.BaseModel  `bun:"table:whitelists,alias:wl"`
	ID             string     `bun:"id,pk,type:varchar(36)"`
	Name           string     `bun:"name,notnull,type:varchar(255)"`
	Description    string     `bun:"description,type:text"`
	ScopeKind      string     `bun:"scope_kind,notnull,type:varchar(16)"`
	VaultID        *string    `bun:"vault_id,type:varchar(64)"`
	Status         string     `bun:"status,notnull,type:varchar(16)"`
	CurrentVersion int        `bun:"current_version,notnull,default:0"`
	DraftVersion   int        `bun:"draft_version,notnull,default:0"`
	ExpiresAt      *time.Time `bun:"expires_at"`
	CreatedBy      string     `bun:"created_by,type:varchar(128)"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

// VersionDao maps to the 'whitelist_versions' table.
type VersionDao struct {
	bun.BaseModel       `bun:"table:whitelist_versions,alias:wv"`
	ID                  int64      `bun:"id,pk,autoincrement"`
	WhitelistID         string     `bun:"whitelist_id,notnull,type:varchar(36)"`
	Number              int        `bun:"number,notnull"`
	Status              string     `bun:"status,notnull,type:varchar(16)"`
	CreatedBy           string     `bun:"created_by,type:varchar(128)"`
	Comment             string     `bun:"comment,type:text"`
	RequiredApprovals   int        `bun:"required_approvals,notnull,default:0"`
	ApprovedBy          []string   `bun:"approved_by,array"`
	ApprovalCompletedAt *time.Time `bun:"approval_completed_at"`
	ActivatedAt         *time.Time `bun:"activated_at"`
	CreatedAt           time.Time  `bun:"created_at,notnull"`
}

// ChangeDao maps to the 'whitelist_changes' table. Rows are append-only; Seq
// preserves log order within a version.
type ChangeDao struct {
	bun.BaseModel `bun:"table:whitelist_changes,alias:wc"`
	ID            string            `bun:"id,pk,type:varchar(36)"`
	WhitelistID   string            `bun:"whitelist_id,notnull,type:varchar(36)"`
	VersionNumber int               `bun:"version_number,notnull"`
	Seq           int               `bun:"seq,notnull"`
	Kind          string            `bun:"kind,notnull,type:varchar(32)"`
	Description   string            `bun:"description,type:text"`
	Actor         string            `bun:"actor,type:varchar(128)"`
	ActorContact  string            `bun:"actor_contact,type:varchar(255)"`
	PrevValue     string            `bun:"prev_value,type:text"`
	NewValue      string            `bun:"new_value,type:text"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Timestamp     time.Time         `bun:"timestamp,notnull"`
}

// EntryDao maps to the 'whitelist_entries' table. VersionNumber 0 holds the
// live entry set; positive numbers hold per-version snapshots.
type EntryDao struct {
	bun.BaseModel `bun:"table:whitelist_entries,alias:we"`
	ID            int64     `bun:"id,pk,autoincrement"`
	EntryID       string    `bun:"entry_id,notnull,type:varchar(36)"`
	WhitelistID   string    `bun:"whitelist_id,notnull,type:varchar(36)"`
	VersionNumber int       `bun:"version_number,notnull,default:0"`
	Address       string    `bun:"address,notnull,type:varchar(128)"`
	Chain         string    `bun:"chain,type:varchar(32)"`
	Label         string    `bun:"label,type:varchar(255)"`
	Kind          string    `bun:"kind,notnull,type:varchar(16)"`
	AddedBy       string    `bun:"added_by,type:varchar(128)"`
	AddedAt       time.Time `bun:"added_at,notnull"`
}

func toWhitelistDao(w *whitelist.Whitelist) *WhitelistDao {
	dao := &WhitelistDao{
		ID:             w.ID,
		Name:           w.Name,
		Description:    w.Description,
		ScopeKind:      string(w.Scope.Kind),
		Status:         string(w.Status),
		CurrentVersion: w.CurrentVersion,
		DraftVersion:   w.DraftVersion,
		ExpiresAt:      w.ExpiresAt,
		CreatedBy:      w.CreatedBy,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
	if w.Scope.VaultID != "" {
		vaultID := w.Scope.VaultID
		dao.VaultID = &vaultID
	}
	return dao
}

func toVersionDao(whitelistID string, v *whitelist.Version) *VersionDao {
	return &VersionDao{
		WhitelistID:         whitelistID,
		Number:              v.Number,
		Status:              string(v.Status),
		CreatedBy:           v.CreatedBy,
		Comment:             v.Comment,
		RequiredApprovals:   v.RequiredApprovals,
		ApprovedBy:          v.ApprovedBy,
		ApprovalCompletedAt: v.ApprovalCompletedAt,
		ActivatedAt:         v.ActivatedAt,
		CreatedAt:           v.CreatedAt,
	}
}

func toChangeDaos(whitelistID string, v *whitelist.Version) []*ChangeDao {
	daos := make([]*ChangeDao, 0, len(v.Changes))
	for i, c := range v.Changes {
		daos = append(daos, &ChangeDao{
			ID:            c.ID,
			WhitelistID:   whitelistID,
			VersionNumber: v.Number,
			Seq:           i,
			Kind:          string(c.Kind),
			Description:   c.Description,
			Actor:         c.Actor,
			ActorContact:  c.ActorContact,
			PrevValue:     c.PrevValue,
			NewValue:      c.NewValue,
			Metadata:      c.Metadata,
			Timestamp:     c.Timestamp,
		})
	}
	return daos
}

func toEntryDaos(whitelistID string, versionNumber int, entries []whitelist.Entry) []*EntryDao {
	daos := make([]*EntryDao, 0, len(entries))
	for _, e := range entries {
		daos = append(daos, &EntryDao{
			EntryID:       e.ID,
			WhitelistID:   whitelistID,
			VersionNumber: versionNumber,
			Address:       e.Address,
			Chain:         e.Chain,
			Label:         e.Label,
			Kind:          string(e.Kind),
			AddedBy:       e.AddedBy,
			AddedAt:       e.AddedAt,
		})
	}
	return daos
}

func toEntry(dao *EntryDao) whitelist.Entry {
	return whitelist.Entry{
		ID:      dao.EntryID,
		Address: dao.Address,
		Chain:   dao.Chain,
		Label:   dao.Label,
		Kind:    whitelist.EntryKind(dao.Kind),
		AddedBy: dao.AddedBy,
		AddedAt: dao.AddedAt,
	}
}

func toChange(dao *ChangeDao) whitelist.Change {
	return whitelist.Change{
		ID:           dao.ID,
		Kind:         whitelist.ChangeKind(dao.Kind),
		Description:  dao.Description,
		Actor:        dao.Actor,
		ActorContact: dao.ActorContact,
		Timestamp:    dao.Timestamp,
		PrevValue:    dao.PrevValue,
		NewValue:     dao.NewValue,
		Metadata:     dao.Metadata,
	}
}

// assemble reconstructs the aggregate from its row sets.
func assemble(dao *WhitelistDao, versions []VersionDao, changes []ChangeDao, entries []EntryDao) *whitelist.Whitelist {
	w := &whitelist.Whitelist{
		ID:             dao.ID,
		Name:           dao.Name,
		Description:    dao.Description,
		Scope:          whitelist.Scope{Kind: whitelist.ScopeKind(dao.ScopeKind)},
		Status:         whitelist.Status(dao.Status),
		CurrentVersion: dao.CurrentVersion,
		DraftVersion:   dao.DraftVersion,
		ExpiresAt:      dao.ExpiresAt,
		CreatedBy:      dao.CreatedBy,
		CreatedAt:      dao.CreatedAt,
		UpdatedAt:      dao.UpdatedAt,
	}
	if dao.VaultID != nil {
		w.Scope.VaultID = *dao.VaultID
	}

	byNumber := make(map[int]*whitelist.Version, len(versions))
	for i := range versions {
		vd := &versions[i]
		v := &whitelist.Version{
			Number:              vd.Number,
			Status:              whitelist.Status(vd.Status),
			CreatedBy:           vd.CreatedBy,
			Comment:             vd.Comment,
			RequiredApprovals:   vd.RequiredApprovals,
			ApprovedBy:          vd.ApprovedBy,
			ApprovalCompletedAt: vd.ApprovalCompletedAt,
			ActivatedAt:         vd.ActivatedAt,
			CreatedAt:           vd.CreatedAt,
		}
		byNumber[v.Number] = v
		w.Versions = append(w.Versions, v)
	}
	sort.Slice(w.Versions, func(i, j int) bool { return w.Versions[i].Number < w.Versions[j].Number })

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].VersionNumber != changes[j].VersionNumber {
			return changes[i].VersionNumber < changes[j].VersionNumber
		}
		return changes[i].Seq < changes[j].Seq
	})
	for i := range changes {
		cd := &changes[i]
		if v, ok := byNumber[cd.VersionNumber]; ok {
			v.Changes = append(v.Changes, toChange(cd))
		}
	}

	for i := range entries {
		ed := &entries[i]
		if ed.VersionNumber == liveEntrySet {
			w.Entries = append(w.Entries, toEntry(ed))
			continue
		}
		if v, ok := byNumber[ed.VersionNumber]; ok {
			v.Entries = append(v.Entries, toEntry(ed))
		}
	}

	return w
}
