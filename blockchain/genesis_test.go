package blockchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sabledatanetworks/pandanite-node/types"
)

func writeGenesisFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFileGenesisLoaderParsesBlockAndReplayTables(t *testing.T) {
	wallet := types.WalletAddress{0x01}
	checkpointHash := types.Hash{0x02}
	bannedHash := types.Hash{0x03}

	content := `{
		"timestamp": 1600000000,
		"difficulty": 8,
		"nonce": 42,
		"merkleRoot": "` + (types.Hash{0x04}).String() + `",
		"transactions": [{"to": "` + wallet.String() + `", "amount": 5000000, "isFee": true}],
		"checkpoints": {"100": "` + checkpointHash.String() + `"},
		"bannedHashes": ["` + bannedHash.String() + `"]
	}`
	loader := NewFileGenesisLoader(writeGenesisFile(t, content))

	block, err := loader.LoadGenesis()
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if block.ID != GenesisBlockIDConst || block.Difficulty != 8 || block.Nonce != 42 {
		t.Errorf("LoadGenesis: header mismatch, got %+v", block)
	}
	if !block.LastBlockHash.IsZero() {
		t.Errorf("LoadGenesis: genesis lastBlockHash must be zero, got %v", block.LastBlockHash)
	}
	if len(block.Transactions) != 1 || block.Transactions[0].To != wallet || block.Transactions[0].Amount != 5_000_000 {
		t.Fatalf("LoadGenesis: transaction mismatch, got %+v", block.Transactions)
	}
	if !block.Transactions[0].IsFee {
		t.Errorf("LoadGenesis: the foundational allocation must be marked as the block's fee transaction")
	}

	if got, ok := loader.Checkpoints[100]; !ok || got != checkpointHash {
		t.Errorf("LoadGenesis: checkpoint mismatch, got %v ok=%v", got, ok)
	}
	if !loader.BannedHashes[bannedHash] {
		t.Errorf("LoadGenesis: expected banned hash to be recorded")
	}
}

func TestFileGenesisLoaderSupportsAdditionalNonFeeAllocations(t *testing.T) {
	reward := types.WalletAddress{0x05}
	seed := types.WalletAddress{0x06}

	content := `{
		"timestamp": 0, "difficulty": 0, "nonce": 0,
		"merkleRoot": "` + (types.Hash{}).String() + `",
		"transactions": [
			{"to": "` + reward.String() + `", "amount": 5000000, "isFee": true},
			{"to": "` + seed.String() + `", "amount": 1000}
		]
	}`
	loader := NewFileGenesisLoader(writeGenesisFile(t, content))

	block, err := loader.LoadGenesis()
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if len(block.Transactions) != 2 {
		t.Fatalf("LoadGenesis: got %d transactions, want 2", len(block.Transactions))
	}
	feeCount := 0
	for _, tx := range block.Transactions {
		if tx.IsFee {
			feeCount++
		}
	}
	if feeCount != 1 {
		t.Errorf("LoadGenesis: got %d fee transactions, want exactly 1", feeCount)
	}
}

func TestFileGenesisLoaderRejectsMissingFile(t *testing.T) {
	loader := NewFileGenesisLoader(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if _, err := loader.LoadGenesis(); err == nil {
		t.Errorf("LoadGenesis: expected error for missing file")
	}
}

func TestFileGenesisLoaderRejectsBadMerkleRootHex(t *testing.T) {
	content := `{"timestamp": 0, "difficulty": 0, "nonce": 0, "merkleRoot": "not-hex"}`
	loader := NewFileGenesisLoader(writeGenesisFile(t, content))
	if _, err := loader.LoadGenesis(); err == nil {
		t.Errorf("LoadGenesis: expected error for malformed merkle root hex")
	}
}

func TestFileGenesisLoaderRejectsBadCheckpointID(t *testing.T) {
	content := `{
		"timestamp": 0, "difficulty": 0, "nonce": 0,
		"merkleRoot": "` + (types.Hash{}).String() + `",
		"checkpoints": {"not-a-number": "` + (types.Hash{0x01}).String() + `"}
	}`
	loader := NewFileGenesisLoader(writeGenesisFile(t, content))
	if _, err := loader.LoadGenesis(); err == nil {
		t.Errorf("LoadGenesis: expected error for non-numeric checkpoint id")
	}
}
