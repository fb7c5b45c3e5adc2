// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160"
)

// WalletAddressSize is the fixed on-wire size of a WalletAddress: one
// version byte, a 20-byte ripemd160(sha256(pubkey)) hash, and a 4-byte
// checksum.
const WalletAddressSize = 25

const walletAddressVersion = 0x00

// WalletAddress is a fixed 25-byte identifier derived from an ed25519
// public key. It is comparable and orderable by byte value.
type WalletAddress [WalletAddressSize]byte

// ZeroWalletAddress is the all-zero address used as the lastBlockHash
// placeholder's wallet analogue and as a sentinel for "unused" fields on
// fee transactions.
var ZeroWalletAddress WalletAddress

// WalletAddressFromPublicKey derives the WalletAddress for an ed25519
// public key, in the style of a P2PKH address: version byte ||
// ripemd160(sha256(pubkey)) || checksum, where checksum is the first 4
// bytes of sha256(sha256(version || hash)).
func WalletAddressFromPublicKey(pubKey []byte) WalletAddress {
	shaHash := sha256.Sum256(pubKey)
	ripemdHasher := ripemd160.New()
	ripemdHasher.Write(shaHash[:])
	pubKeyHash := ripemdHasher.Sum(nil)

	payload := make([]byte, 0, 21)
	payload = append(payload, walletAddressVersion)
	payload = append(payload, pubKeyHash...)

	checksum := doubleSHA256(payload)[:4]

	var addr WalletAddress
	copy(addr[:21], payload)
	copy(addr[21:], checksum)
	return addr
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// Verify returns nil if addr is well-formed (matches its own checksum).
func (a WalletAddress) Verify() error {
	payload := a[:21]
	checksum := a[21:]
	want := doubleSHA256(payload)[:4]
	if !bytes.Equal(checksum, want) {
		return errors.New("wallet address checksum mismatch")
	}
	return nil
}

// IsZero reports whether addr is the all-zero sentinel address.
func (a WalletAddress) IsZero() bool {
	return a == ZeroWalletAddress
}

// Less orders addresses by raw byte value.
func (a WalletAddress) Less(other WalletAddress) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

func (a WalletAddress) String() string {
	return hex.EncodeToString(a[:])
}

// WalletAddressFromString parses the hex encoding produced by String.
func WalletAddressFromString(s string) (WalletAddress, error) {
	var addr WalletAddress
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return addr, errors.Wrap(err, "decode wallet address hex")
	}
	if len(decoded) != WalletAddressSize {
		return addr, errors.Errorf("wallet address must be %d bytes, got %d", WalletAddressSize, len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}
