package mempool

import (
	"testing"
	"time"

	"github.com/sabledatanetworks/pandanite-node/types"
)

type fakeChainView struct {
	status   types.Status
	balances map[types.WalletAddress]types.Amount
	nonces   map[types.WalletAddress]uint64
}

func newFakeChainView() *fakeChainView {
	return &fakeChainView{
		balances: make(map[types.WalletAddress]types.Amount),
		nonces:   make(map[types.WalletAddress]uint64),
	}
}

func (f *fakeChainView) VerifyTransaction(tx *types.Transaction) types.Status {
	return f.status
}

func (f *fakeChainView) WalletBalance(wallet types.WalletAddress) (types.Amount, error) {
	return f.balances[wallet], nil
}

func (f *fakeChainView) WalletNonce(wallet types.WalletAddress) (uint64, error) {
	return f.nonces[wallet], nil
}

func testTransfer(from types.WalletAddress, amount, fee types.Amount, nonce uint64) *types.Transaction {
	return &types.Transaction{
		From:      from,
		To:        types.WalletAddress{0x02},
		Amount:    amount,
		Fee:       fee,
		Timestamp: time.Now(),
		Nonce:     nonce,
	}
}

func TestAddTransactionRejectsExpired(t *testing.T) {
	chain := newFakeChainView()
	m := New(chain, nil)

	tx := testTransfer(types.WalletAddress{0x01}, 10, 1, 0)
	tx.Timestamp = time.Now().Add(-2 * types.TransactionExpiry)

	status := m.AddTransaction(tx)
	if status != types.StatusExpiredTransaction {
		t.Errorf("AddTransaction: got %v, want StatusExpiredTransaction", status)
	}
}

func TestAddTransactionRejectsLowFee(t *testing.T) {
	chain := newFakeChainView()
	m := New(chain, nil)

	tx := testTransfer(types.WalletAddress{0x01}, 10, 0, 0)
	status := m.AddTransaction(tx)
	if status != types.StatusTransactionFeeTooLow {
		t.Errorf("AddTransaction: got %v, want StatusTransactionFeeTooLow", status)
	}
}

func TestAddTransactionRejectsDuplicate(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 1000
	m := New(chain, nil)

	tx := testTransfer(from, 10, 1, 0)
	if status := m.AddTransaction(tx); status != types.StatusSuccess {
		t.Fatalf("AddTransaction(first): got %v, want success", status)
	}
	if status := m.AddTransaction(tx); status != types.StatusAlreadyInQueue {
		t.Errorf("AddTransaction(duplicate): got %v, want StatusAlreadyInQueue", status)
	}
}

func TestAddTransactionRejectsChainValidationFailure(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusInvalidSignature
	m := New(chain, nil)

	tx := testTransfer(types.WalletAddress{0x01}, 10, 1, 0)
	status := m.AddTransaction(tx)
	if status != types.StatusInvalidSignature {
		t.Errorf("AddTransaction: got %v, want StatusInvalidSignature", status)
	}
}

func TestAddTransactionRejectsInsufficientReservedBalance(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 10
	m := New(chain, nil)

	tx := testTransfer(from, 10, 1, 0)
	status := m.AddTransaction(tx)
	if status != types.StatusBalanceTooLow {
		t.Errorf("AddTransaction: got %v, want StatusBalanceTooLow", status)
	}
}

func TestAddTransactionReservesAgainstConcurrentAdmissions(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 100
	m := New(chain, nil)

	first := testTransfer(from, 60, 1, 0)
	if status := m.AddTransaction(first); status != types.StatusSuccess {
		t.Fatalf("AddTransaction(first): got %v, want success", status)
	}

	second := testTransfer(from, 60, 1, 1)
	status := m.AddTransaction(second)
	if status != types.StatusBalanceTooLow {
		t.Errorf("AddTransaction(second): got %v, want StatusBalanceTooLow (reserved balance exhausted)", status)
	}
}

func TestAddTransactionRejectsWrongNonce(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 1000
	chain.nonces[from] = 3
	m := New(chain, nil)

	tx := testTransfer(from, 10, 1, 0)
	status := m.AddTransaction(tx)
	if status != types.StatusInvalidNonce {
		t.Errorf("AddTransaction: got %v, want StatusInvalidNonce", status)
	}
}

func TestAddTransactionAcceptsSequentialNonces(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 1000
	m := New(chain, nil)

	for nonce := uint64(0); nonce < 3; nonce++ {
		tx := testTransfer(from, 10, 1, nonce)
		if status := m.AddTransaction(tx); status != types.StatusSuccess {
			t.Fatalf("AddTransaction(nonce %d): got %v, want success", nonce, status)
		}
	}
	if m.Len() != 3 {
		t.Errorf("Len: got %d, want 3", m.Len())
	}
}

func TestFinishBlockRemovesConfirmedAndReleasesReservation(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 1000
	m := New(chain, nil)

	tx := testTransfer(from, 60, 1, 0)
	if status := m.AddTransaction(tx); status != types.StatusSuccess {
		t.Fatalf("AddTransaction: got %v, want success", status)
	}
	if m.pendingOutgoing[from] != 61 {
		t.Fatalf("pendingOutgoing: got %d, want 61", m.pendingOutgoing[from])
	}

	m.FinishBlock(&types.Block{Transactions: []*types.Transaction{tx}})

	if m.Len() != 0 {
		t.Errorf("Len after FinishBlock: got %d, want 0", m.Len())
	}
	if _, ok := m.pendingOutgoing[from]; ok {
		t.Errorf("pendingOutgoing after FinishBlock: expected reservation to be released")
	}
}

func TestOrderedSortsByFeeDescThenHashAsc(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	a := types.WalletAddress{0x01}
	b := types.WalletAddress{0x02}
	chain.balances[a] = 1000
	chain.balances[b] = 1000
	m := New(chain, nil)

	low := testTransfer(a, 10, 1, 0)
	high := testTransfer(b, 10, 5, 0)

	if status := m.AddTransaction(low); status != types.StatusSuccess {
		t.Fatalf("AddTransaction(low): got %v, want success", status)
	}
	if status := m.AddTransaction(high); status != types.StatusSuccess {
		t.Fatalf("AddTransaction(high): got %v, want success", status)
	}

	ordered := m.Ordered()
	if len(ordered) != 2 {
		t.Fatalf("Ordered: got %d entries, want 2", len(ordered))
	}
	if ordered[0].Fee != 5 || ordered[1].Fee != 1 {
		t.Errorf("Ordered: got fees [%d, %d], want [5, 1]", ordered[0].Fee, ordered[1].Fee)
	}
}

func TestCleanupTickEvictsExpiredAndReleasesReservation(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 1000
	m := New(chain, nil)

	tx := testTransfer(from, 10, 1, 0)
	if status := m.AddTransaction(tx); status != types.StatusSuccess {
		t.Fatalf("AddTransaction: got %v, want success", status)
	}

	m.now = func() time.Time { return time.Now().Add(2 * types.TransactionExpiry) }
	m.cleanupTick()

	if m.Len() != 0 {
		t.Errorf("Len after cleanupTick: got %d, want 0", m.Len())
	}
	if _, ok := m.pendingOutgoing[from]; ok {
		t.Errorf("pendingOutgoing after cleanupTick: expected reservation to be released")
	}
}

func TestAddTransactionRejectsQueueFullWithoutReservingState(t *testing.T) {
	chain := newFakeChainView()
	chain.status = types.StatusSuccess
	from := types.WalletAddress{0x01}
	chain.balances[from] = 1000
	m := New(chain, nil)
	m.queue = newQueue()
	for i := 0; i < MaxQueueSize; i++ {
		filler := types.WalletAddress{byte(i), byte(i >> 8)}
		chain.balances[filler] = 1000
		tx := testTransfer(filler, 1, 1, 0)
		m.queue.insert(tx)
	}

	tx := testTransfer(from, 10, 1, 0)
	status := m.AddTransaction(tx)
	if status != types.StatusQueueFull {
		t.Fatalf("AddTransaction: got %v, want StatusQueueFull", status)
	}
	if _, ok := m.pendingOutgoing[from]; ok {
		t.Errorf("pendingOutgoing: rejected transaction must not reserve balance, got %v", m.pendingOutgoing[from])
	}
	if _, ok := m.nextNonce[from]; ok {
		t.Errorf("nextNonce: rejected transaction must not advance nonce, got %v", m.nextNonce[from])
	}

	retry := testTransfer(from, 10, 1, 0)
	m.queue.remove(m.queue.ordered()[0].Hash())
	if status := m.AddTransaction(retry); status != types.StatusSuccess {
		t.Errorf("AddTransaction(retry with nonce 0): got %v, want success since the rejected attempt must not have advanced nextNonce", status)
	}
}

func TestPenalizeAndIsPenalized(t *testing.T) {
	chain := newFakeChainView()
	m := New(chain, nil)

	addr := "http://peer.example"
	if m.isPenalized(addr) {
		t.Errorf("isPenalized: expected unpenalized peer to report false")
	}
	m.penalize(addr)
	if !m.isPenalized(addr) {
		t.Errorf("isPenalized: expected penalized peer to report true")
	}
}
