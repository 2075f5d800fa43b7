/*

Price estimation contract. The maintenance cycle sizes swaps against a
time-weighted average price so a single block cannot skew the split; the
estimator is a pure read and callers must treat an unavailable oracle as
"use the neutral default split", never as a fatal condition.

*/

package oracle

import (
	"context"
	"errors"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrOracleUnavailable is returned when the pool does not hold enough
	// observation history for the requested lookback window, e.g. a freshly
	// created pool.
	ErrOracleUnavailable = errors.New("pool observation history too short for lookback window")
)

// Estimator converts an input amount of one pair asset into the other at
// the time-weighted average price over a lookback window.
type Estimator interface {
	// EstimateAmountOut returns the estimated output amount of the pool's
	// other asset for amountIn of tokenIn, priced at the TWAP over the last
	// lookbackSeconds. No side effects.
	EstimateAmountOut(ctx context.Context, pool common.Address, tokenIn common.Address, amountIn sdkmath.Int, lookbackSeconds uint32) (sdkmath.Int, error)
}

// ObservationSource supplies the raw pool observation data the TWAP
// estimator derives prices from.
type ObservationSource interface {
	// Observe returns the pool's tick-cumulative values at each of the
	// given seconds-ago offsets. Implementations return ErrOracleUnavailable
	// when the pool's observation buffer cannot cover the oldest offset.
	Observe(ctx context.Context, pool common.Address, secondsAgos []uint32) ([]*big.Int, error)

	// PoolTokens returns the pool's canonically ordered assets.
	PoolTokens(ctx context.Context, pool common.Address) (token0, token1 common.Address, err error)
}
