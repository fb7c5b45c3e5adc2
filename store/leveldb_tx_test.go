package store

import (
	"path/filepath"
	"testing"

	"github.com/sabledatanetworks/pandanite-node/types"
)

func openTestTxStore(t *testing.T) *LevelTxStore {
	t.Helper()
	s, err := NewLevelTxStore(filepath.Join(t.TempDir(), "txindex"))
	if err != nil {
		t.Fatalf("NewLevelTxStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLevelTxStorePutGetRoundTrip(t *testing.T) {
	s := openTestTxStore(t)
	hash := types.Hash{0x01}

	if err := s.PutBlockID(hash, 7); err != nil {
		t.Fatalf("PutBlockID: %v", err)
	}
	id, found, err := s.GetBlockID(hash)
	if err != nil {
		t.Fatalf("GetBlockID: %v", err)
	}
	if !found || id != 7 {
		t.Errorf("GetBlockID: got (%d, %v), want (7, true)", id, found)
	}
}

func TestLevelTxStoreGetMissing(t *testing.T) {
	s := openTestTxStore(t)
	_, found, err := s.GetBlockID(types.Hash{0xFF})
	if err != nil {
		t.Fatalf("GetBlockID: %v", err)
	}
	if found {
		t.Errorf("GetBlockID: expected unindexed hash to report not found")
	}
}

func TestLevelTxStoreDeleteTx(t *testing.T) {
	s := openTestTxStore(t)
	hash := types.Hash{0x01}
	if err := s.PutBlockID(hash, 1); err != nil {
		t.Fatalf("PutBlockID: %v", err)
	}
	if err := s.DeleteTx(hash); err != nil {
		t.Fatalf("DeleteTx: %v", err)
	}
	_, found, err := s.GetBlockID(hash)
	if err != nil {
		t.Fatalf("GetBlockID: %v", err)
	}
	if found {
		t.Errorf("DeleteTx: expected hash to be unindexed")
	}
}

func TestLevelTxStoreClear(t *testing.T) {
	s := openTestTxStore(t)
	hash := types.Hash{0x01}
	if err := s.PutBlockID(hash, 1); err != nil {
		t.Fatalf("PutBlockID: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	_, found, err := s.GetBlockID(hash)
	if err != nil {
		t.Fatalf("GetBlockID: %v", err)
	}
	if found {
		t.Errorf("Clear: expected store to be empty")
	}
}
