// Package store defines the persistence contracts named in spec §6 as
// external collaborators (Ledger, BlockStore, TxStore) and a concrete
// goleveldb-backed adapter for each, so the contracts can actually be
// exercised end to end by the core subsystems.
package store

import (
	"math/big"

	"github.com/sabledatanetworks/pandanite-node/types"
)

// LedgerStore is the wallet→balance persistence contract. The in-process
// Ledger (see package ledger) is the only caller; this interface exists
// so tests can substitute an in-memory fake for the real LevelDB-backed
// adapter.
type LedgerStore interface {
	HasWallet(addr types.WalletAddress) (bool, error)
	GetBalance(addr types.WalletAddress) (types.Amount, error)
	SetBalance(addr types.WalletAddress, amount types.Amount) error
	GetNonce(addr types.WalletAddress) (uint64, error)
	SetNonce(addr types.WalletAddress, nonce uint64) error
	Iterate(fn func(addr types.WalletAddress, balance types.Amount) bool) error
	Clear() error
}

// BlockStore is the block-id→block persistence contract, plus the
// running block-count/total-work counters and the wallet→tx-hash
// secondary index named in spec §6.
type BlockStore interface {
	GetBlock(id uint64) (*types.Block, bool, error)
	PutBlock(block *types.Block) error
	DeleteBlock(id uint64) error

	BlockCount() (uint64, error)
	SetBlockCount(count uint64) error

	TotalWork() (*big.Int, error)
	SetTotalWork(work *big.Int) error

	IndexWalletTransaction(wallet types.WalletAddress, txHash types.Hash) error
	UnindexWalletTransaction(wallet types.WalletAddress, txHash types.Hash) error
	WalletTransactionHashes(wallet types.WalletAddress) ([]types.Hash, error)

	Clear() error
}

// TxStore is the tx-hash→block-id index contract.
type TxStore interface {
	GetBlockID(txHash types.Hash) (uint64, bool, error)
	PutBlockID(txHash types.Hash, blockID uint64) error
	DeleteTx(txHash types.Hash) error
	Clear() error
}
