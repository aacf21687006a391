package whitelist

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EntryKind classifies what an allow-listed target is.
type EntryKind string

const (
	EntryKindAddress  EntryKind = "address"
	EntryKindEntity   EntryKind = "entity"
	EntryKindContract EntryKind = "contract"
)

// Entry is one allow-listed target. Immutable once recorded; removal is a
// new change, not a mutation.
type Entry struct {
	ID      string
	Address string
	Chain   string
	Label   string
	Kind    EntryKind
	AddedBy string
	AddedAt time.Time
}

// NewEntry validates and normalizes an entry. Hex addresses are checksummed
// the way the rest of the stack renders EVM addresses; non-hex identifiers
// (other chains, entity references) pass through untouched.
func NewEntry(address, chain, label string, kind EntryKind, actor string, at time.Time) (Entry, error) {
	switch kind {
	case EntryKindAddress, EntryKindEntity, EntryKindContract:
	default:
		return Entry{}, fmt.Errorf("invalid entry kind %q", kind)
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return Entry{}, fmt.Errorf("entry address is required")
	}
	if strings.HasPrefix(address, "0x") {
		if !common.IsHexAddress(address) {
			return Entry{}, fmt.Errorf("invalid hex address %q", address)
		}
		address = common.HexToAddress(address).Hex()
	}

	return Entry{
		ID:      uuid.NewString(),
		Address: address,
		Chain:   chain,
		Label:   label,
		Kind:    kind,
		AddedBy: actor,
		AddedAt: at,
	}, nil
}
