// Package merkle builds the merkle tree over a block's transaction
// hashes, used to compute and verify a block's declared merkle root.
package merkle

import (
	"crypto/sha256"

	"github.com/sabledatanetworks/pandanite-node/types"
)

// ComputeRoot builds the merkle tree over leaves and returns its root. An
// empty leaf set returns the zero hash; an odd node at any level is
// duplicated to pair with itself, matching the classic Bitcoin
// construction.
func ComputeRoot(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.ZeroHash
	}
	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}

func hashPair(a, b types.Hash) types.Hash {
	buf := make([]byte, 0, types.HashSize*2)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	first := sha256.Sum256(buf)
	return sha256.Sum256(first[:])
}
