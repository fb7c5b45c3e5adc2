package blockchain

import (
	"testing"

	"github.com/sabledatanetworks/pandanite-node/types"
)

func TestBlockRewardAtGenesis(t *testing.T) {
	got := BlockReward(1)
	want := types.Amount(50 * types.DecimalScaleFactor)
	if got != want {
		t.Errorf("BlockReward(1): got %d, want %d", got, want)
	}
}

func TestBlockRewardHalvesAcrossInterval(t *testing.T) {
	before := BlockReward(rewardHalvingInterval - rewardHistoricalOffset - 1)
	after := BlockReward(rewardHalvingInterval - rewardHistoricalOffset)

	if after >= before {
		t.Errorf("BlockReward: expected reward to drop across the halving boundary, got before=%d after=%d", before, after)
	}
	// (2/3) of the full-precision reward, computed with the same integer math.
	wantAfter := before * 2 / 3
	if after != wantAfter {
		t.Errorf("BlockReward(after halving): got %d, want %d", after, wantAfter)
	}
}

func TestBlockRewardMonotonicNonIncreasing(t *testing.T) {
	prev := BlockReward(1)
	for _, id := range []uint64{1000, 500000, rewardHalvingInterval, 2 * rewardHalvingInterval} {
		reward := BlockReward(id)
		if reward > prev {
			t.Errorf("BlockReward(%d): got %d, expected non-increasing from previous %d", id, reward, prev)
		}
		prev = reward
	}
}
