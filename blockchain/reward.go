package blockchain

import (
	"math/big"

	"github.com/sabledatanetworks/pandanite-node/types"
)

// rewardHistoricalOffset and rewardHalvingInterval encode three
// historical reward-schedule forks baked into the live chain; their
// provenance predates this node and is not re-derived here (spec §4.3.3).
const (
	rewardHistoricalOffset = 150930
	rewardHalvingInterval  = 666666
	baseRewardCoins        = 50
)

// BlockReward returns the miner reward for block id, in the smallest
// denomination: 50 * (2/3)^floor((id+150930)/666666) coins, computed
// with exact integer arithmetic (no floating point) to avoid schedule
// drift across nodes.
func BlockReward(id uint64) types.Amount {
	k := (id + rewardHistoricalOffset) / rewardHalvingInterval

	numerator := big.NewInt(baseRewardCoins * types.DecimalScaleFactor)
	two := big.NewInt(2)
	three := big.NewInt(3)

	twoPowK := new(big.Int).Exp(two, new(big.Int).SetUint64(k), nil)
	threePowK := new(big.Int).Exp(three, new(big.Int).SetUint64(k), nil)

	numerator.Mul(numerator, twoPowK)
	result := new(big.Int).Div(numerator, threePowK)

	return types.Amount(result.Uint64())
}
