// Package invalidtx loads the historical (blockId, wallet) rejection
// table consulted during block replay to suppress duplicate failure
// logging. It is immutable, read-only configuration: writing new
// entries at runtime is a non-goal (spec §6, §9).
package invalidtx

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/types"
)

type jsonEntry struct {
	BlockID uint64 `json:"blockId"`
	Wallet  string `json:"wallet"`
}

type key struct {
	blockID uint64
	wallet  types.WalletAddress
}

// Table is the loaded set of historically-known (blockId, wallet)
// BalanceTooLow rejections.
type Table struct {
	entries map[key]bool
}

// Empty returns a Table with no entries, for nodes run without an
// invalid.json file.
func Empty() *Table {
	return &Table{entries: make(map[key]bool)}
}

// Load parses path, a JSON array of {"blockId", "wallet"} objects.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read invalid tx file %s", path)
	}

	var parsed []jsonEntry
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "parse invalid tx file")
	}

	t := &Table{entries: make(map[key]bool, len(parsed))}
	for i, e := range parsed {
		wallet, err := types.WalletAddressFromString(e.Wallet)
		if err != nil {
			return nil, errors.Wrapf(err, "parse invalid tx entry %d wallet", i)
		}
		t.entries[key{blockID: e.BlockID, wallet: wallet}] = true
	}
	return t, nil
}

// IsKnownInvalid implements blockchain.InvalidTxTable.
func (t *Table) IsKnownInvalid(blockID uint64, wallet types.WalletAddress) bool {
	if t == nil {
		return false
	}
	return t.entries[key{blockID: blockID, wallet: wallet}]
}
