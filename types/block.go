package types

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"time"
)

// MaxTransactionsPerBlock bounds the number of transactions a single
// block may carry.
const MaxTransactionsPerBlock = 25000

// Block is a single unit of the chain: one fee transaction plus zero or
// more signed transfers, sealed by a proof-of-work nonce.
type Block struct {
	ID            uint64
	Timestamp     time.Time
	Difficulty    uint8
	LastBlockHash Hash
	MerkleRoot    Hash
	Nonce         uint64
	Transactions  []*Transaction
}

// HeaderHash returns the canonical hash of the block header (every field
// but the transaction bodies, which are represented only via MerkleRoot).
// This is the value proof-of-work is measured against.
func (b *Block) HeaderHash() Hash {
	var buf bytes.Buffer
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], b.ID)
	buf.Write(idBuf[:])
	buf.WriteByte(b.Difficulty)
	buf.Write(b.LastBlockHash[:])
	buf.Write(b.MerkleRoot[:])
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], b.Nonce)
	buf.Write(nonceBuf[:])
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(b.Timestamp.UnixNano()))
	buf.Write(tsBuf[:])
	return doubleSHA256(buf.Bytes())
}

// TransactionHashes returns the canonical hash of every transaction in
// block order, the leaves fed into the merkle tree.
func (b *Block) TransactionHashes() []Hash {
	hashes := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return hashes
}

// FeeTransaction returns the block's single fee (miner reward)
// transaction and true, or (nil, false) if none is present. Callers that
// need "exactly one" must additionally check for duplicates themselves
// (see executor.ApplyBlock).
func (b *Block) FeeTransaction() (*Transaction, bool) {
	for _, tx := range b.Transactions {
		if tx.IsFee {
			return tx, true
		}
	}
	return nil, false
}

// PoWHasher computes the hash that proof-of-work difficulty is measured
// against. The concrete hashing algorithm (Pufferfish in the original
// node) is an external collaborator not designed by this package.
// BlockChain does not use this interface; its hook for substituting the
// hash is blockchain.SetPoWHasher.
type PoWHasher interface {
	Hash(header Hash, nonce uint64) Hash
}

// VerifyProofOfWork reports whether hash, interpreted as a big-endian
// unsigned integer, has at least `difficulty` leading zero bits.
func VerifyProofOfWork(hash Hash, difficulty uint8) bool {
	return leadingZeroBits(hash) >= int(difficulty)
}

func leadingZeroBits(hash Hash) int {
	n := new(big.Int).SetBytes(hash[:])
	if n.Sign() == 0 {
		return HashSize * 8
	}
	return HashSize*8 - n.BitLen()
}
