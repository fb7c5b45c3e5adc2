// Package executor implements the pure validation/mutation functions
// over the Ledger described in spec §4.1: applying or rolling back a
// single transaction or a whole block as a two-phase operation driven by
// a reversible delta map.
package executor

import (
	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/ledger"
	"github.com/sabledatanetworks/pandanite-node/logger"
	"github.com/sabledatanetworks/pandanite-node/store"
	"github.com/sabledatanetworks/pandanite-node/types"
)

var log = logger.Executor()

// Delta is a reversible per-call map of wallet → signed balance change,
// produced by ApplyTransaction/ApplyBlock and consumed by Rollback. It
// is O(#touched wallets), not a full ledger snapshot.
type Delta map[types.WalletAddress]types.SignedDelta

// NewDelta returns an empty delta map.
func NewDelta() Delta {
	return make(Delta)
}

func (d Delta) add(wallet types.WalletAddress, amount types.SignedDelta) {
	d[wallet] += amount
}

// GenesisBlockID is the id of the chain's first block; non-fee
// transactions at this height are genesis seeding deposits rather than
// ordinary signed transfers (spec §4.1).
const GenesisBlockID = 1

// ApplyTransaction validates and applies a single transaction against
// ledger, mirroring every mutation into delta so it can be inverted by
// Rollback. minerWallet is the block's recorded miner, credited the fee
// on ordinary (non-genesis, non-fee) transactions.
func ApplyTransaction(
	tx *types.Transaction,
	minerWallet types.WalletAddress,
	ldgr *ledger.Ledger,
	delta Delta,
	blockReward types.Amount,
	blockID uint64,
) types.Status {
	if tx.IsFee {
		if tx.Amount != blockReward {
			return types.StatusIncorrectMiningFee
		}
		if err := ldgr.Deposit(tx.To, tx.Amount); err != nil {
			log.Criticalf("deposit failed applying fee tx: %+v", err)
			panic(err)
		}
		delta.add(tx.To, types.SignedDelta(tx.Amount))
		return types.StatusSuccess
	}

	if blockID == GenesisBlockID {
		if err := ldgr.Deposit(tx.To, tx.Amount); err != nil {
			log.Criticalf("deposit failed applying genesis tx: %+v", err)
			panic(err)
		}
		delta.add(tx.To, types.SignedDelta(tx.Amount))
		return types.StatusSuccess
	}

	derived := types.WalletAddressFromPublicKey(tx.SigningPublicKey)
	if derived != tx.From {
		return types.StatusWalletSignatureMismatch
	}

	exists, err := ldgr.HasWallet(tx.From)
	if err != nil {
		log.Criticalf("ledger read failed applying tx: %+v", err)
		panic(err)
	}
	if !exists {
		return types.StatusSenderDoesNotExist
	}

	balance, err := ldgr.GetBalance(tx.From)
	if err != nil {
		log.Criticalf("ledger read failed applying tx: %+v", err)
		panic(err)
	}
	if balance < tx.Amount {
		return types.StatusBalanceTooLow
	}
	remaining, ok := balance.Sub(tx.Amount)
	if !ok || remaining < tx.Fee {
		return types.StatusBalanceTooLow
	}

	total, ok := tx.Amount.Add(tx.Fee)
	if !ok {
		return types.StatusBalanceTooLow
	}

	if err := ldgr.Withdraw(tx.From, total); err != nil {
		log.Criticalf("withdraw failed applying tx: %+v", err)
		panic(err)
	}
	delta.add(tx.From, -types.SignedDelta(total))

	if err := ldgr.Deposit(tx.To, tx.Amount); err != nil {
		log.Criticalf("deposit failed applying tx: %+v", err)
		panic(err)
	}
	delta.add(tx.To, types.SignedDelta(tx.Amount))

	if err := ldgr.Deposit(minerWallet, tx.Fee); err != nil {
		log.Criticalf("fee deposit failed applying tx: %+v", err)
		panic(err)
	}
	delta.add(minerWallet, types.SignedDelta(tx.Fee))

	if err := ldgr.IncrementNonce(tx.From); err != nil {
		log.Criticalf("nonce increment failed applying tx: %+v", err)
		panic(err)
	}

	return types.StatusSuccess
}

// ApplyBlock validates and applies every transaction in block against
// ledger. The first pass detects intra-block duplicate hashes, rejects
// transactions already confirmed (txStore membership, except at
// genesis), and locates the single fee transaction's miner. The second
// pass verifies signatures and applies each transaction in order,
// returning on the first failure so the caller can roll the delta back.
// Before such a return it reverts the nonce increments of the
// transactions it had already applied, since delta does not carry them.
func ApplyBlock(
	block *types.Block,
	ldgr *ledger.Ledger,
	txStore store.TxStore,
	delta Delta,
	blockReward types.Amount,
) types.Status {
	if len(block.Transactions) > types.MaxTransactionsPerBlock {
		return types.StatusInvalidTransactionCount
	}

	seen := make(map[types.Hash]bool, len(block.Transactions))
	var miner types.WalletAddress
	feeCount := 0

	for _, tx := range block.Transactions {
		hash := tx.Hash()
		if seen[hash] {
			return types.StatusDuplicateTransaction
		}
		seen[hash] = true

		if block.ID != GenesisBlockID {
			_, confirmed, err := txStore.GetBlockID(hash)
			if err != nil {
				log.Criticalf("tx store read failed validating block: %+v", err)
				panic(err)
			}
			if confirmed {
				return types.StatusDuplicateTransaction
			}
		}

		if tx.IsFee {
			feeCount++
			miner = tx.To
		}
	}

	switch feeCount {
	case 0:
		return types.StatusNoMiningFee
	case 1:
	default:
		return types.StatusExtraMiningFee
	}

	revertNonces := func(applied []*types.Transaction) {
		for _, tx := range applied {
			if tx.IsFee || block.ID == GenesisBlockID {
				continue
			}
			if err := ldgr.DecrementNonce(tx.From); err != nil {
				log.Criticalf("nonce revert failed rejecting block: %+v", err)
				panic(err)
			}
		}
	}
	for i, tx := range block.Transactions {
		if !tx.IsFee && block.ID != GenesisBlockID {
			if err := tx.VerifySignature(); err != nil {
				revertNonces(block.Transactions[:i])
				return types.StatusInvalidSignature
			}
		}
		status := ApplyTransaction(tx, miner, ldgr, delta, blockReward, block.ID)
		if status != types.StatusSuccess {
			revertNonces(block.Transactions[:i])
			return status
		}
	}

	return types.StatusSuccess
}

// Rollback inverts every entry in delta against ledger: a positive
// signed amount (a net deposit) is withdrawn back out, a negative one
// (a net withdrawal) is deposited back in. Nonces are not part of delta:
// ApplyBlock reverts the increments of a block it rejects, and
// BlockChain.VerifyTransaction those of its dry run. After Rollback the
// ledger is bit-identical to its pre-call state. Rollback must only be called on a
// delta Executor itself produced.
func Rollback(delta Delta, ldgr *ledger.Ledger) error {
	for wallet, amount := range delta {
		inverse := amount.Invert()
		if inverse >= 0 {
			if err := ldgr.Deposit(wallet, types.Amount(inverse)); err != nil {
				return errors.Wrapf(err, "rollback deposit to %s", wallet)
			}
		} else {
			if err := ldgr.Withdraw(wallet, types.Amount(-inverse)); err != nil {
				return errors.Wrapf(err, "rollback withdraw from %s", wallet)
			}
		}
	}
	return nil
}

// RollbackBlock undoes a previously-confirmed block in place, without a
// delta: it replays each transaction's inverse in reverse order and
// unindexes non-fee transactions from txStore. Used by BlockChain.PopBlock,
// which does not retain the original block's application delta.
func RollbackBlock(
	block *types.Block,
	ldgr *ledger.Ledger,
	txStore store.TxStore,
	minerWallet types.WalletAddress,
) error {
	for i := len(block.Transactions) - 1; i >= 0; i-- {
		tx := block.Transactions[i]
		hash := tx.Hash()

		if tx.IsFee {
			if err := ldgr.RevertDeposit(tx.To, tx.Amount); err != nil {
				return errors.Wrap(err, "revert fee deposit")
			}
			continue
		}

		if block.ID == GenesisBlockID {
			if err := ldgr.RevertDeposit(tx.To, tx.Amount); err != nil {
				return errors.Wrap(err, "revert genesis deposit")
			}
			continue
		}

		if err := ldgr.RevertDeposit(minerWallet, tx.Fee); err != nil {
			return errors.Wrap(err, "revert miner fee deposit")
		}
		if err := ldgr.RevertDeposit(tx.To, tx.Amount); err != nil {
			return errors.Wrap(err, "revert transfer deposit")
		}
		total, ok := tx.Amount.Add(tx.Fee)
		if !ok {
			return errors.New("rollback: amount+fee overflow")
		}
		if err := ldgr.RevertSend(tx.From, total); err != nil {
			return errors.Wrap(err, "revert withdrawal")
		}
		if err := ldgr.DecrementNonce(tx.From); err != nil {
			return errors.Wrap(err, "revert nonce increment")
		}
		if err := txStore.DeleteTx(hash); err != nil {
			return errors.Wrap(err, "unindex transaction")
		}
	}
	return nil
}
