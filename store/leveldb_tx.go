package store

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/types"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelTxStore is a goleveldb-backed TxStore: key = 32-byte tx hash,
// value = u32 block id, per spec §6.
type LevelTxStore struct {
	db *leveldb.DB
}

// NewLevelTxStore opens (creating if absent) a LevelDB tx-index store at
// path.
func NewLevelTxStore(path string) (*LevelTxStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open tx store")
	}
	return &LevelTxStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelTxStore) Close() error {
	return s.db.Close()
}

// GetBlockID returns the block id that confirmed txHash, or
// (0, false, nil) if the transaction is not indexed.
func (s *LevelTxStore) GetBlockID(txHash types.Hash) (uint64, bool, error) {
	v, err := s.db.Get(txHash[:], nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "get tx index")
	}
	return uint64(binary.BigEndian.Uint32(v)), true, nil
}

// PutBlockID indexes txHash as confirmed in blockID.
func (s *LevelTxStore) PutBlockID(txHash types.Hash, blockID uint64) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(blockID))
	if err := s.db.Put(txHash[:], v, nil); err != nil {
		return errors.Wrap(err, "put tx index")
	}
	return nil
}

// DeleteTx removes txHash's index entry, used when popping a block.
func (s *LevelTxStore) DeleteTx(txHash types.Hash) error {
	if err := s.db.Delete(txHash[:], nil); err != nil {
		return errors.Wrap(err, "delete tx index")
	}
	return nil
}

// Clear drops every key in the store, used by BlockChain.ResetChain.
func (s *LevelTxStore) Clear() error {
	return clearAll(s.db)
}
