package store

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/types"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// nonceKeyPrefix marks a nonce entry. Balance keys are the raw 25-byte
// wallet address (per spec §6); this prefix byte can never collide with
// one since it pushes the key past WalletAddressSize.
const nonceKeyPrefix = 0xff

// LevelLedgerStore is a goleveldb-backed LedgerStore: key = 25-byte
// wallet address, value = little-endian u64 balance, exactly as spec §6
// specifies.
type LevelLedgerStore struct {
	db *leveldb.DB
}

// NewLevelLedgerStore opens (creating if absent) a LevelDB ledger store
// at path.
func NewLevelLedgerStore(path string) (*LevelLedgerStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger store")
	}
	return &LevelLedgerStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelLedgerStore) Close() error {
	return s.db.Close()
}

func balanceKey(addr types.WalletAddress) []byte {
	key := make([]byte, types.WalletAddressSize)
	copy(key, addr[:])
	return key
}

func nonceKey(addr types.WalletAddress) []byte {
	key := make([]byte, types.WalletAddressSize+1)
	key[0] = nonceKeyPrefix
	copy(key[1:], addr[:])
	return key
}

// HasWallet reports whether addr has a balance entry, distinguishing
// "exists with balance 0" from "never seen".
func (s *LevelLedgerStore) HasWallet(addr types.WalletAddress) (bool, error) {
	ok, err := s.db.Has(balanceKey(addr), nil)
	if err != nil {
		return false, errors.Wrap(err, "has wallet")
	}
	return ok, nil
}

// GetBalance returns the wallet's balance, or 0 if absent.
func (s *LevelLedgerStore) GetBalance(addr types.WalletAddress) (types.Amount, error) {
	v, err := s.db.Get(balanceKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	return types.Amount(binary.LittleEndian.Uint64(v)), nil
}

// SetBalance writes amount as the wallet's balance, auto-creating the
// wallet entry if absent.
func (s *LevelLedgerStore) SetBalance(addr types.WalletAddress, amount types.Amount) error {
	v := make([]byte, 8)
	binary.LittleEndian.PutUint64(v, uint64(amount))
	if err := s.db.Put(balanceKey(addr), v, nil); err != nil {
		return errors.Wrap(err, "set balance")
	}
	return nil
}

// GetNonce returns the wallet's next-expected nonce, or 0 if absent.
func (s *LevelLedgerStore) GetNonce(addr types.WalletAddress) (uint64, error) {
	v, err := s.db.Get(nonceKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get nonce")
	}
	return binary.LittleEndian.Uint64(v), nil
}

// SetNonce writes nonce as the wallet's next-expected nonce.
func (s *LevelLedgerStore) SetNonce(addr types.WalletAddress, nonce uint64) error {
	v := make([]byte, 8)
	binary.LittleEndian.PutUint64(v, nonce)
	if err := s.db.Put(nonceKey(addr), v, nil); err != nil {
		return errors.Wrap(err, "set nonce")
	}
	return nil
}

// Iterate walks every balance entry in key order, stopping early if fn
// returns false. It is a consistent snapshot with respect to concurrent
// single-wallet writes, per goleveldb's iterator semantics.
func (s *LevelLedgerStore) Iterate(fn func(addr types.WalletAddress, balance types.Amount) bool) error {
	rng := &util.Range{Limit: []byte{nonceKeyPrefix}}
	it := s.db.NewIterator(rng, nil)
	defer closeIterator(it)

	for it.Next() {
		key := it.Key()
		if len(key) != types.WalletAddressSize {
			continue
		}
		var addr types.WalletAddress
		copy(addr[:], key)
		balance := types.Amount(binary.LittleEndian.Uint64(it.Value()))
		if !fn(addr, balance) {
			break
		}
	}
	return errors.Wrap(it.Error(), "iterate ledger")
}

// Clear drops every key in the store, used by BlockChain.ResetChain.
func (s *LevelLedgerStore) Clear() error {
	return clearAll(s.db)
}

func clearAll(db *leveldb.DB) error {
	it := db.NewIterator(nil, nil)
	defer closeIterator(it)

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return errors.Wrap(err, "clear: iterate")
	}
	if err := db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "clear: write batch")
	}
	return nil
}

func closeIterator(it iterator.Iterator) {
	it.Release()
}
