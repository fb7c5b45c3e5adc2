package store

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/types"
)

// EncodeBlock serializes a block to its on-disk wire form: a flat
// big-endian encoding of every header field followed by a length-prefixed
// transaction list, mirroring the teacher's MsgTx/MsgBlock wire encoding
// style (length-prefixed fields written directly to a buffer).
func EncodeBlock(b *types.Block) []byte {
	var buf bytes.Buffer
	writeUint64(&buf, b.ID)
	writeUint64(&buf, uint64(b.Timestamp.UnixNano()))
	buf.WriteByte(b.Difficulty)
	buf.Write(b.LastBlockHash[:])
	buf.Write(b.MerkleRoot[:])
	writeUint64(&buf, b.Nonce)
	writeUint64(&buf, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		encodeTransaction(&buf, tx)
	}
	return buf.Bytes()
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(data []byte) (*types.Block, error) {
	r := bytes.NewReader(data)
	b := &types.Block{}

	id, err := readUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode block id")
	}
	b.ID = id

	tsNano, err := readUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode block timestamp")
	}
	b.Timestamp = time.Unix(0, int64(tsNano)).UTC()

	diff, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "decode block difficulty")
	}
	b.Difficulty = diff

	if _, err := readFull(r, b.LastBlockHash[:]); err != nil {
		return nil, errors.Wrap(err, "decode last block hash")
	}
	if _, err := readFull(r, b.MerkleRoot[:]); err != nil {
		return nil, errors.Wrap(err, "decode merkle root")
	}

	nonce, err := readUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode block nonce")
	}
	b.Nonce = nonce

	txCount, err := readUint64(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode transaction count")
	}
	if txCount > types.MaxTransactionsPerBlock {
		return nil, errors.New("decode: transaction count exceeds maximum")
	}

	b.Transactions = make([]*types.Transaction, txCount)
	for i := range b.Transactions {
		tx, err := decodeTransaction(r)
		if err != nil {
			return nil, errors.Wrapf(err, "decode transaction %d", i)
		}
		b.Transactions[i] = tx
	}
	return b, nil
}

func encodeTransaction(buf *bytes.Buffer, tx *types.Transaction) {
	buf.Write(tx.From[:])
	buf.Write(tx.To[:])
	writeUint64(buf, uint64(tx.Amount))
	writeUint64(buf, uint64(tx.Fee))
	writeUint64(buf, uint64(tx.Timestamp.UnixNano()))
	writeUint64(buf, tx.Nonce)
	if tx.IsFee {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeBytes(buf, tx.SigningPublicKey)
	writeBytes(buf, tx.Signature)
}

func decodeTransaction(r *bytes.Reader) (*types.Transaction, error) {
	tx := &types.Transaction{}

	if _, err := readFull(r, tx.From[:]); err != nil {
		return nil, err
	}
	if _, err := readFull(r, tx.To[:]); err != nil {
		return nil, err
	}

	amount, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	tx.Amount = types.Amount(amount)

	fee, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	tx.Fee = types.Amount(fee)

	tsNano, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	tx.Timestamp = time.Unix(0, int64(tsNano)).UTC()

	nonce, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	tx.Nonce = nonce

	isFee, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	tx.IsFee = isFee == 1

	pubKey, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	tx.SigningPublicKey = ed25519.PublicKey(pubKey)

	sig, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	tx.Signature = sig

	return tx, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		k, err := r.Read(b[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
