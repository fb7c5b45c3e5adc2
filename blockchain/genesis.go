package blockchain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/types"
)

// jsonGenesisBlock is the on-disk shape of the genesis bundle: the fully
// formed first block plus the two supplemental replay tables (checkpoints
// and banned hashes) this node consults during sync (spec §6, §9).
type jsonGenesisBlock struct {
	Timestamp    int64             `json:"timestamp"`
	Difficulty   uint8             `json:"difficulty"`
	Nonce        uint64            `json:"nonce"`
	MerkleRoot   string            `json:"merkleRoot"`
	Transactions []jsonGenesisTx   `json:"transactions"`
	Checkpoints  map[string]string `json:"checkpoints,omitempty"`
	BannedHashes []string          `json:"bannedHashes,omitempty"`
}

type jsonGenesisTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	IsFee  bool   `json:"isFee,omitempty"`
}

// FileGenesisLoader loads the genesis bundle from a JSON file on disk,
// the external collaborator named in spec §6 ("a JSON file at startup
// containing the fully formed block 1").
type FileGenesisLoader struct {
	Path string

	// populated by LoadGenesis, consulted by HeaderChain (spec §9).
	Checkpoints  map[uint64]types.Hash
	BannedHashes map[types.Hash]bool
}

// NewFileGenesisLoader returns a loader reading path.
func NewFileGenesisLoader(path string) *FileGenesisLoader {
	return &FileGenesisLoader{Path: path}
}

// LoadGenesis reads and parses the genesis file, also populating
// Checkpoints and BannedHashes as a side effect for later HeaderChain use.
func (l *FileGenesisLoader) LoadGenesis() (*types.Block, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis file")
	}

	var parsed jsonGenesisBlock
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "parse genesis file")
	}

	merkleRoot, err := parseHash(parsed.MerkleRoot)
	if err != nil {
		return nil, errors.Wrap(err, "parse genesis merkleRoot")
	}

	txs := make([]*types.Transaction, 0, len(parsed.Transactions))
	for i, t := range parsed.Transactions {
		to, err := types.WalletAddressFromString(t.To)
		if err != nil {
			return nil, errors.Wrapf(err, "parse genesis transaction %d recipient", i)
		}
		txs = append(txs, &types.Transaction{
			To:     to,
			Amount: types.Amount(t.Amount),
			IsFee:  t.IsFee,
		})
	}

	block := &types.Block{
		ID:            GenesisBlockIDConst,
		Timestamp:     time.Unix(parsed.Timestamp, 0).UTC(),
		Difficulty:    parsed.Difficulty,
		LastBlockHash: types.ZeroHash,
		MerkleRoot:    merkleRoot,
		Nonce:         parsed.Nonce,
		Transactions:  txs,
	}

	l.Checkpoints = make(map[uint64]types.Hash, len(parsed.Checkpoints))
	for idStr, hashStr := range parsed.Checkpoints {
		var id uint64
		if _, err := fmt.Sscan(idStr, &id); err != nil {
			return nil, errors.Wrapf(err, "parse checkpoint id %q", idStr)
		}
		hash, err := parseHash(hashStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse checkpoint hash for %q", idStr)
		}
		l.Checkpoints[id] = hash
	}

	l.BannedHashes = make(map[types.Hash]bool, len(parsed.BannedHashes))
	for _, hashStr := range parsed.BannedHashes {
		hash, err := parseHash(hashStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse banned hash %q", hashStr)
		}
		l.BannedHashes[hash] = true
	}

	return block, nil
}

// GenesisBlockIDConst mirrors executor.GenesisBlockID without importing
// the executor package from blockchain's leaf helper files.
const GenesisBlockIDConst = 1

func parseHash(s string) (types.Hash, error) {
	var h types.Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(decoded) != len(h) {
		return h, errors.Errorf("expected %d bytes, got %d", len(h), len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}
