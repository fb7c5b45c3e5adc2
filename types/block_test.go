package types

import (
	"testing"
	"time"
)

func TestVerifyProofOfWork(t *testing.T) {
	var hash Hash
	hash[0] = 0x00
	hash[1] = 0x0f // 12 leading zero bits total

	if !VerifyProofOfWork(hash, 12) {
		t.Errorf("expected difficulty 12 to be satisfied")
	}
	if VerifyProofOfWork(hash, 13) {
		t.Errorf("expected difficulty 13 to fail")
	}
}

func TestLeadingZeroBitsAllZero(t *testing.T) {
	var hash Hash
	if !VerifyProofOfWork(hash, HashSize*8) {
		t.Errorf("all-zero hash should satisfy maximum difficulty")
	}
}

func TestBlockHeaderHashDeterministic(t *testing.T) {
	b := &Block{
		ID:         1,
		Timestamp:  time.Unix(1000, 0),
		Difficulty: 6,
		Nonce:      42,
	}
	h1 := b.HeaderHash()
	h2 := b.HeaderHash()
	if h1 != h2 {
		t.Errorf("HeaderHash must be deterministic")
	}

	b.Nonce = 43
	if b.HeaderHash() == h1 {
		t.Errorf("HeaderHash must depend on Nonce")
	}
}

func TestBlockFeeTransaction(t *testing.T) {
	fee := &Transaction{IsFee: true, To: ZeroWalletAddress}
	other := &Transaction{IsFee: false}
	b := &Block{Transactions: []*Transaction{other, fee}}

	got, ok := b.FeeTransaction()
	if !ok || got != fee {
		t.Errorf("FeeTransaction: expected to find the fee tx")
	}

	empty := &Block{Transactions: []*Transaction{other}}
	if _, ok := empty.FeeTransaction(); ok {
		t.Errorf("FeeTransaction: expected none when block has no fee tx")
	}
}
