package types

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// TransactionExpiry is the mempool admission/gossip staleness window; it
// is never applied to block validation (confirmed blocks may carry old
// timestamps).
const TransactionExpiry = 3600 * time.Second

// Transaction is a single ledger mutation: either a miner's fee/reward
// payout (IsFee) or a signed transfer from one wallet to another.
type Transaction struct {
	From      WalletAddress
	To        WalletAddress
	Amount    Amount
	Fee       Amount
	Timestamp time.Time
	Nonce     uint64
	IsFee     bool

	SigningPublicKey ed25519.PublicKey
	Signature        []byte
}

// Hash returns the canonical hash of the transaction: a deterministic
// digest of every field except the signature, so that signing and
// identity comparison never depend on signature malleability.
func (t *Transaction) Hash() Hash {
	var buf bytes.Buffer
	buf.Write(t.From[:])
	buf.Write(t.To[:])
	writeUint64(&buf, uint64(t.Amount))
	writeUint64(&buf, uint64(t.Fee))
	writeUint64(&buf, uint64(t.Timestamp.UnixNano()))
	writeUint64(&buf, t.Nonce)
	if t.IsFee {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(t.SigningPublicKey)
	return doubleSHA256(buf.Bytes())
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// IsExpired reports whether the transaction's timestamp is more than
// TransactionExpiry in the past relative to now. Only consulted during
// mempool admission and gossip, never during block validation.
func (t *Transaction) IsExpired(now time.Time) bool {
	return now.Sub(t.Timestamp) > TransactionExpiry
}

// VerifySignature checks that the signature is valid over the canonical
// hash and that the signing key actually hashes to the From address. It
// is a no-op error check for fee transactions, which carry no signature.
func (t *Transaction) VerifySignature() error {
	if t.IsFee {
		return nil
	}
	derived := WalletAddressFromPublicKey(t.SigningPublicKey)
	if derived != t.From {
		return errors.WithStack(StatusWalletSignatureMismatch)
	}
	if len(t.SigningPublicKey) != ed25519.PublicKeySize {
		return errors.WithStack(StatusInvalidSignature)
	}
	hash := t.Hash()
	if !ed25519.Verify(t.SigningPublicKey, hash[:], t.Signature) {
		return errors.WithStack(StatusInvalidSignature)
	}
	return nil
}

// Equal reports whether two transactions share the same canonical hash.
func (t *Transaction) Equal(other *Transaction) bool {
	return t.Hash() == other.Hash()
}
