package merkle

import (
	"testing"

	"github.com/sabledatanetworks/pandanite-node/types"
)

func hashOf(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func TestComputeRootEmpty(t *testing.T) {
	if root := ComputeRoot(nil); root != types.ZeroHash {
		t.Errorf("ComputeRoot(nil): got %s, want zero hash", root)
	}
}

func TestComputeRootSingleLeaf(t *testing.T) {
	leaf := hashOf(1)
	root := ComputeRoot([]types.Hash{leaf})
	if root == types.ZeroHash {
		t.Errorf("ComputeRoot: single-leaf root should not be zero")
	}
	if root != ComputeRoot([]types.Hash{leaf}) {
		t.Errorf("ComputeRoot: must be deterministic")
	}
}

func TestComputeRootOddCountDuplicatesLast(t *testing.T) {
	leaves := []types.Hash{hashOf(1), hashOf(2), hashOf(3)}
	withDuplicate := []types.Hash{hashOf(1), hashOf(2), hashOf(3), hashOf(3)}

	if ComputeRoot(leaves) != ComputeRoot(withDuplicate) {
		t.Errorf("ComputeRoot: odd leaf count must duplicate the last leaf")
	}
}

func TestComputeRootOrderSensitive(t *testing.T) {
	a := ComputeRoot([]types.Hash{hashOf(1), hashOf(2)})
	b := ComputeRoot([]types.Hash{hashOf(2), hashOf(1)})
	if a == b {
		t.Errorf("ComputeRoot: leaf order should affect the root")
	}
}
