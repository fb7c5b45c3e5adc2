// Package ledger implements the wallet→balance store contract from
// spec §4.2, wrapping a store.LedgerStore with the ledger's own lock.
// Multi-operation atomicity is the caller's responsibility (BlockChain
// serializes all block mutations behind its own chain lock).
package ledger

import (
	"sync"

	"github.com/sabledatanetworks/pandanite-node/logger"
	"github.com/sabledatanetworks/pandanite-node/store"
	"github.com/sabledatanetworks/pandanite-node/types"
)

var log = logger.Ledger()

// Ledger is the in-process wrapper around a persistent LedgerStore. Every
// method is serialized by mtx; it guarantees per-call atomicity but not
// cross-call atomicity, per spec §5.
type Ledger struct {
	mtx   sync.Mutex
	store store.LedgerStore
}

// New wraps backing as a Ledger.
func New(backing store.LedgerStore) *Ledger {
	return &Ledger{store: backing}
}

// HasWallet reports whether wallet has ever been created (deposited
// into), distinguishing "balance 0, exists" from "never seen".
func (l *Ledger) HasWallet(wallet types.WalletAddress) (bool, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.store.HasWallet(wallet)
}

// Create explicitly materializes wallet with a zero balance if it does
// not already exist.
func (l *Ledger) Create(wallet types.WalletAddress) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	exists, err := l.store.HasWallet(wallet)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return l.store.SetBalance(wallet, 0)
}

// GetBalance returns wallet's balance, 0 if the wallet is implicit.
func (l *Ledger) GetBalance(wallet types.WalletAddress) (types.Amount, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.store.GetBalance(wallet)
}

// SetBalance overwrites wallet's balance directly, auto-creating it.
func (l *Ledger) SetBalance(wallet types.WalletAddress, amount types.Amount) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.store.SetBalance(wallet, amount)
}

// Deposit adds amount to wallet's balance, auto-creating the wallet. It
// panics on overflow: balance arithmetic overflow is fatal, per spec §7.
func (l *Ledger) Deposit(wallet types.WalletAddress, amount types.Amount) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.depositLocked(wallet, amount)
}

func (l *Ledger) depositLocked(wallet types.WalletAddress, amount types.Amount) error {
	balance, err := l.store.GetBalance(wallet)
	if err != nil {
		return err
	}
	sum, ok := balance.Add(amount)
	if !ok {
		log.Criticalf("ledger overflow depositing %d into wallet %s (balance %d)", amount, wallet, balance)
		panic("ledger balance overflow")
	}
	return l.store.SetBalance(wallet, sum)
}

// Withdraw subtracts amount from wallet's balance. It panics on
// underflow: callers (Executor) must have already checked sufficiency,
// so an underflow here indicates a validation bug, not user error.
func (l *Ledger) Withdraw(wallet types.WalletAddress, amount types.Amount) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.withdrawLocked(wallet, amount)
}

func (l *Ledger) withdrawLocked(wallet types.WalletAddress, amount types.Amount) error {
	balance, err := l.store.GetBalance(wallet)
	if err != nil {
		return err
	}
	diff, ok := balance.Sub(amount)
	if !ok {
		log.Criticalf("ledger underflow withdrawing %d from wallet %s (balance %d)", amount, wallet, balance)
		panic("ledger balance underflow")
	}
	return l.store.SetBalance(wallet, diff)
}

// RevertSend undoes a prior Withdraw by depositing amount back.
func (l *Ledger) RevertSend(wallet types.WalletAddress, amount types.Amount) error {
	return l.Deposit(wallet, amount)
}

// RevertDeposit undoes a prior Deposit by withdrawing amount back.
func (l *Ledger) RevertDeposit(wallet types.WalletAddress, amount types.Amount) error {
	return l.Withdraw(wallet, amount)
}

// Clear drops every wallet entry, used by BlockChain.ResetChain.
func (l *Ledger) Clear() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.store.Clear()
}

// State is a full balance-snapshot of the ledger.
type State map[types.WalletAddress]types.Amount

// GetState returns a consistent snapshot of every wallet's balance.
func (l *Ledger) GetState() (State, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	state := make(State)
	err := l.store.Iterate(func(addr types.WalletAddress, balance types.Amount) bool {
		state[addr] = balance
		return true
	})
	return state, err
}

// GetNonce returns the next nonce a transaction from wallet must carry.
func (l *Ledger) GetNonce(wallet types.WalletAddress) (uint64, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.store.GetNonce(wallet)
}

// IncrementNonce advances wallet's nonce by one, called once per
// confirmed non-fee transaction from that wallet.
func (l *Ledger) IncrementNonce(wallet types.WalletAddress) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	nonce, err := l.store.GetNonce(wallet)
	if err != nil {
		return err
	}
	return l.store.SetNonce(wallet, nonce+1)
}

// DecrementNonce reverses IncrementNonce, used when a block is popped.
func (l *Ledger) DecrementNonce(wallet types.WalletAddress) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	nonce, err := l.store.GetNonce(wallet)
	if err != nil {
		return err
	}
	if nonce == 0 {
		return nil
	}
	return l.store.SetNonce(wallet, nonce-1)
}
