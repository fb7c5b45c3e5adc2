package store

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/types"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	blockKeyPrefix  = []byte("b:")
	walletIdxPrefix = []byte("w:")

	blockCountKey = []byte("block_count")
	totalWorkKey  = []byte("total_work")
)

// LevelBlockStore is a goleveldb-backed BlockStore: block ids map to
// serialized block bytes, with separate keys for the running block
// count and cumulative work, and a wallet→tx-hash secondary index, all
// per spec §6.
type LevelBlockStore struct {
	db *leveldb.DB
}

// NewLevelBlockStore opens (creating if absent) a LevelDB block store at
// path.
func NewLevelBlockStore(path string) (*LevelBlockStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open block store")
	}
	return &LevelBlockStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelBlockStore) Close() error {
	return s.db.Close()
}

func blockKey(id uint64) []byte {
	key := make([]byte, len(blockKeyPrefix)+4)
	copy(key, blockKeyPrefix)
	binary.BigEndian.PutUint32(key[len(blockKeyPrefix):], uint32(id))
	return key
}

// GetBlock returns the block stored at id, or (nil, false, nil) if
// absent.
func (s *LevelBlockStore) GetBlock(id uint64) (*types.Block, bool, error) {
	v, err := s.db.Get(blockKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get block")
	}
	block, err := DecodeBlock(v)
	if err != nil {
		return nil, false, errors.Wrap(err, "decode stored block")
	}
	return block, true, nil
}

// PutBlock stores block under its id.
func (s *LevelBlockStore) PutBlock(block *types.Block) error {
	if err := s.db.Put(blockKey(block.ID), EncodeBlock(block), nil); err != nil {
		return errors.Wrap(err, "put block")
	}
	return nil
}

// DeleteBlock removes the block stored at id.
func (s *LevelBlockStore) DeleteBlock(id uint64) error {
	if err := s.db.Delete(blockKey(id), nil); err != nil {
		return errors.Wrap(err, "delete block")
	}
	return nil
}

// BlockCount returns the persisted block count counter, or 0 if unset.
func (s *LevelBlockStore) BlockCount() (uint64, error) {
	v, err := s.db.Get(blockCountKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get block count")
	}
	return uint64(binary.BigEndian.Uint32(v)), nil
}

// SetBlockCount persists the block count counter.
func (s *LevelBlockStore) SetBlockCount(count uint64) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(count))
	if err := s.db.Put(blockCountKey, v, nil); err != nil {
		return errors.Wrap(err, "set block count")
	}
	return nil
}

// TotalWork returns the persisted cumulative-work counter, decoded from
// its decimal-string wire form, or 0 if unset.
func (s *LevelBlockStore) TotalWork() (*big.Int, error) {
	v, err := s.db.Get(totalWorkKey, nil)
	if err == leveldb.ErrNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get total work")
	}
	work, ok := new(big.Int).SetString(string(v), 10)
	if !ok {
		return nil, errors.New("corrupt total_work value")
	}
	return work, nil
}

// SetTotalWork persists work as a decimal string, per spec §6.
func (s *LevelBlockStore) SetTotalWork(work *big.Int) error {
	if err := s.db.Put(totalWorkKey, []byte(work.Text(10)), nil); err != nil {
		return errors.Wrap(err, "set total work")
	}
	return nil
}

func walletIndexKey(wallet types.WalletAddress) []byte {
	key := make([]byte, len(walletIdxPrefix)+types.WalletAddressSize)
	copy(key, walletIdxPrefix)
	copy(key[len(walletIdxPrefix):], wallet[:])
	return key
}

// IndexWalletTransaction appends txHash to wallet's referenced-tx list.
func (s *LevelBlockStore) IndexWalletTransaction(wallet types.WalletAddress, txHash types.Hash) error {
	hashes, err := s.WalletTransactionHashes(wallet)
	if err != nil {
		return err
	}
	hashes = append(hashes, txHash)
	return s.putWalletIndex(wallet, hashes)
}

// UnindexWalletTransaction removes txHash from wallet's referenced-tx
// list, used when popping a block during a reorg.
func (s *LevelBlockStore) UnindexWalletTransaction(wallet types.WalletAddress, txHash types.Hash) error {
	hashes, err := s.WalletTransactionHashes(wallet)
	if err != nil {
		return err
	}
	filtered := hashes[:0]
	for _, h := range hashes {
		if h != txHash {
			filtered = append(filtered, h)
		}
	}
	return s.putWalletIndex(wallet, filtered)
}

func (s *LevelBlockStore) putWalletIndex(wallet types.WalletAddress, hashes []types.Hash) error {
	buf := make([]byte, 0, len(hashes)*types.HashSize)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	key := walletIndexKey(wallet)
	if len(buf) == 0 {
		if err := s.db.Delete(key, nil); err != nil {
			return errors.Wrap(err, "delete wallet index")
		}
		return nil
	}
	if err := s.db.Put(key, buf, nil); err != nil {
		return errors.Wrap(err, "put wallet index")
	}
	return nil
}

// WalletTransactionHashes returns every tx hash referenced by blocks
// that touch wallet.
func (s *LevelBlockStore) WalletTransactionHashes(wallet types.WalletAddress) ([]types.Hash, error) {
	v, err := s.db.Get(walletIndexKey(wallet), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get wallet index")
	}
	count := len(v) / types.HashSize
	hashes := make([]types.Hash, count)
	for i := 0; i < count; i++ {
		copy(hashes[i][:], v[i*types.HashSize:(i+1)*types.HashSize])
	}
	return hashes, nil
}

// Clear drops every key in the store, used by BlockChain.ResetChain.
func (s *LevelBlockStore) Clear() error {
	return clearAll(s.db)
}

// IterateBlocks walks every stored block by ascending id.
func (s *LevelBlockStore) IterateBlocks(fn func(block *types.Block) bool) error {
	rng := util.BytesPrefix(blockKeyPrefix)
	it := s.db.NewIterator(rng, nil)
	defer closeIterator(it)

	for it.Next() {
		block, err := DecodeBlock(it.Value())
		if err != nil {
			return errors.Wrap(err, "decode stored block")
		}
		if !fn(block) {
			break
		}
	}
	return errors.Wrap(it.Error(), "iterate blocks")
}
