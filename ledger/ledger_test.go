package ledger

import (
	"testing"

	"github.com/sabledatanetworks/pandanite-node/types"
)

type memLedgerStore struct {
	balances map[types.WalletAddress]types.Amount
	nonces   map[types.WalletAddress]uint64
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{
		balances: make(map[types.WalletAddress]types.Amount),
		nonces:   make(map[types.WalletAddress]uint64),
	}
}

func (s *memLedgerStore) HasWallet(addr types.WalletAddress) (bool, error) {
	_, ok := s.balances[addr]
	return ok, nil
}

func (s *memLedgerStore) GetBalance(addr types.WalletAddress) (types.Amount, error) {
	return s.balances[addr], nil
}

func (s *memLedgerStore) SetBalance(addr types.WalletAddress, amount types.Amount) error {
	s.balances[addr] = amount
	return nil
}

func (s *memLedgerStore) GetNonce(addr types.WalletAddress) (uint64, error) {
	return s.nonces[addr], nil
}

func (s *memLedgerStore) SetNonce(addr types.WalletAddress, nonce uint64) error {
	s.nonces[addr] = nonce
	return nil
}

func (s *memLedgerStore) Iterate(fn func(addr types.WalletAddress, balance types.Amount) bool) error {
	for addr, balance := range s.balances {
		if !fn(addr, balance) {
			break
		}
	}
	return nil
}

func (s *memLedgerStore) Clear() error {
	s.balances = make(map[types.WalletAddress]types.Amount)
	s.nonces = make(map[types.WalletAddress]uint64)
	return nil
}

func TestHasWalletDistinguishesImplicitFromCreated(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}

	exists, err := l.HasWallet(wallet)
	if err != nil {
		t.Fatalf("HasWallet: %v", err)
	}
	if exists {
		t.Errorf("HasWallet: unseen wallet should not exist")
	}

	if err := l.Create(wallet); err != nil {
		t.Fatalf("Create: %v", err)
	}
	exists, err = l.HasWallet(wallet)
	if err != nil {
		t.Fatalf("HasWallet: %v", err)
	}
	if !exists {
		t.Errorf("HasWallet: created wallet should exist")
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}

	if err := l.Deposit(wallet, 100); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Withdraw(wallet, 40); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	balance, err := l.GetBalance(wallet)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 60 {
		t.Errorf("GetBalance: got %d, want 60", balance)
	}
}

func TestDepositOverflowPanics(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}
	if err := l.SetBalance(wallet, ^types.Amount(0)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Deposit: expected overflow to panic")
		}
	}()
	l.Deposit(wallet, 1)
}

func TestWithdrawUnderflowPanics(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}
	if err := l.Deposit(wallet, 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("Withdraw: expected underflow to panic")
		}
	}()
	l.Withdraw(wallet, 20)
}

func TestRevertSendAndRevertDepositAreInverses(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}
	if err := l.Deposit(wallet, 100); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if err := l.Withdraw(wallet, 30); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if err := l.RevertSend(wallet, 30); err != nil {
		t.Fatalf("RevertSend: %v", err)
	}
	balance, _ := l.GetBalance(wallet)
	if balance != 100 {
		t.Errorf("RevertSend: got %d, want 100", balance)
	}

	if err := l.Deposit(wallet, 30); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.RevertDeposit(wallet, 30); err != nil {
		t.Fatalf("RevertDeposit: %v", err)
	}
	balance, _ = l.GetBalance(wallet)
	if balance != 100 {
		t.Errorf("RevertDeposit: got %d, want 100", balance)
	}
}

func TestNonceIncrementDecrement(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}

	nonce, err := l.GetNonce(wallet)
	if err != nil {
		t.Fatalf("GetNonce: %v", err)
	}
	if nonce != 0 {
		t.Errorf("GetNonce: got %d, want 0", nonce)
	}

	if err := l.IncrementNonce(wallet); err != nil {
		t.Fatalf("IncrementNonce: %v", err)
	}
	if err := l.IncrementNonce(wallet); err != nil {
		t.Fatalf("IncrementNonce: %v", err)
	}
	nonce, _ = l.GetNonce(wallet)
	if nonce != 2 {
		t.Errorf("GetNonce: got %d, want 2", nonce)
	}

	if err := l.DecrementNonce(wallet); err != nil {
		t.Fatalf("DecrementNonce: %v", err)
	}
	nonce, _ = l.GetNonce(wallet)
	if nonce != 1 {
		t.Errorf("GetNonce: got %d, want 1", nonce)
	}
}

func TestDecrementNonceFloorsAtZero(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}

	if err := l.DecrementNonce(wallet); err != nil {
		t.Fatalf("DecrementNonce: %v", err)
	}
	nonce, _ := l.GetNonce(wallet)
	if nonce != 0 {
		t.Errorf("DecrementNonce: got %d, want floor of 0", nonce)
	}
}

func TestGetStateSnapshotsAllWallets(t *testing.T) {
	l := New(newMemLedgerStore())
	a := types.WalletAddress{0x01}
	b := types.WalletAddress{0x02}

	if err := l.Deposit(a, 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Deposit(b, 20); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	state, err := l.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state[a] != 10 || state[b] != 20 {
		t.Errorf("GetState: got %v, want {a:10, b:20}", state)
	}
}

func TestClearRemovesAllWallets(t *testing.T) {
	l := New(newMemLedgerStore())
	wallet := types.WalletAddress{0x01}
	if err := l.Deposit(wallet, 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := l.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	exists, _ := l.HasWallet(wallet)
	if exists {
		t.Errorf("Clear: expected wallet to no longer exist")
	}
}
