package oracle

import (
	"context"
	"fmt"
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/streamlp/lpm/internal/logger"
)

// TWAP estimates output amounts from the geometric-mean price implied by a
// pool's cumulative tick observations. Averaging the log-price (the tick)
// rather than spot prices is what gives the window its manipulation
// resistance.
type TWAP struct {
	source ObservationSource
	logger zerolog.Logger
}

// NewTWAP builds a TWAP estimator over the given observation source.
func NewTWAP(source ObservationSource) *TWAP {
	return &TWAP{
		source: source,
		logger: logger.GetForComponent("twap_estimator"),
	}
}

// EstimateAmountOut implements Estimator.
func (t *TWAP) EstimateAmountOut(ctx context.Context, pool common.Address, tokenIn common.Address, amountIn sdkmath.Int, lookbackSeconds uint32) (sdkmath.Int, error) {
	if lookbackSeconds == 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("lookback window must be positive")
	}
	if !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}

	cumulatives, err := t.source.Observe(ctx, pool, []uint32{lookbackSeconds, 0})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if len(cumulatives) != 2 {
		return sdkmath.ZeroInt(), fmt.Errorf("expected 2 tick cumulatives, got %d", len(cumulatives))
	}

	avgTick := averageTick(cumulatives[0], cumulatives[1], int64(lookbackSeconds))

	token0, token1, err := t.source.PoolTokens(ctx, pool)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	var zeroForOne bool
	switch tokenIn {
	case token0:
		zeroForOne = true
	case token1:
		zeroForOne = false
	default:
		return sdkmath.ZeroInt(), fmt.Errorf("token %s is not an asset of pool %s", tokenIn.Hex(), pool.Hex())
	}

	out := amountAtTick(amountIn.BigInt(), avgTick, zeroForOne)

	t.logger.Debug().
		Str("pool", pool.Hex()).
		Int64("avgTick", avgTick).
		Str("amountIn", amountIn.String()).
		Str("amountOut", out.String()).
		Uint32("lookbackSeconds", lookbackSeconds).
		Msg("TWAP estimate computed")

	return sdkmath.NewIntFromBigInt(out), nil
}

// averageTick derives the time-weighted average tick from two cumulative
// observations, rounding toward negative infinity the way the pool's own
// accumulator math does.
func averageTick(oldCumulative, newCumulative *big.Int, window int64) int64 {
	delta := new(big.Int).Sub(newCumulative, oldCumulative)
	avg := new(big.Int).Quo(delta, big.NewInt(window))
	if delta.Sign() < 0 {
		rem := new(big.Int).Rem(delta, big.NewInt(window))
		if rem.Sign() != 0 {
			avg.Sub(avg, big.NewInt(1))
		}
	}
	return avg.Int64()
}

// amountAtTick converts amountIn at the price implied by tick. The pool
// quotes price as token1 per token0 equal to 1.0001^tick.
func amountAtTick(amountIn *big.Int, tick int64, zeroForOne bool) *big.Int {
	price := math.Pow(1.0001, float64(tick))

	amount := new(big.Float).SetInt(amountIn)
	if zeroForOne {
		amount.Mul(amount, big.NewFloat(price))
	} else {
		amount.Quo(amount, big.NewFloat(price))
	}

	out, _ := amount.Int(nil)
	return out
}
