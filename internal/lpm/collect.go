package lpm

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/streamlp/lpm/internal/oracle"
	"github.com/streamlp/lpm/internal/types"
)

// CollectFees claims the accrued trading fees of the pair's position and
// forwards them to the beneficiary, without changing liquidity. With
// convertToBase set, the paired asset's share is swapped into the base
// asset first so the beneficiary receives a single asset. Safe to call with
// zero accrued fees.
func (e *Engine) CollectFees(ctx context.Context, tokenA, tokenB common.Address, convertToBase bool) (fee0, fee1 sdkmath.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pair := types.NewPair(tokenA, tokenB)
	d, ok := e.book.Get(pair)
	if !ok || !d.Provisioned() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNotFound, pair)
	}

	fee0, fee1, err = e.exchange.Collect(ctx, d.Position)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("collecting fees for %s: %w", pair, err)
	}
	if fee0.IsZero() && fee1.IsZero() {
		e.logger.Info().Stringer("pair", pair).Msg("No fees accrued, nothing to forward")
		return fee0, fee1, nil
	}

	baseFee, otherFee := fee0, fee1
	other := pair.Token1
	if pair.Token0 != e.base {
		baseFee, otherFee = fee1, fee0
		other = pair.Token0
	}

	if convertToBase {
		if otherFee.IsPositive() {
			converted, err := e.swapWithFloor(ctx, d, other, e.base, otherFee)
			if err != nil {
				return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("converting collected fees for %s: %w", pair, err)
			}
			baseFee = baseFee.Add(converted)
		}
		if baseFee.IsPositive() {
			if err := e.exchange.Transfer(ctx, e.base, e.beneficiary, baseFee); err != nil {
				return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("forwarding fees for %s: %w", pair, err)
			}
		}
	} else {
		if baseFee.IsPositive() {
			if err := e.exchange.Transfer(ctx, e.base, e.beneficiary, baseFee); err != nil {
				return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("forwarding fees for %s: %w", pair, err)
			}
		}
		if otherFee.IsPositive() {
			if err := e.exchange.Transfer(ctx, other, e.beneficiary, otherFee); err != nil {
				return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("forwarding fees for %s: %w", pair, err)
			}
		}
	}

	e.logger.Info().
		Stringer("pair", pair).
		Str("fee0", fee0.String()).
		Str("fee1", fee1.String()).
		Bool("convertedToBase", convertToBase).
		Msg("Fees collected and forwarded to beneficiary")

	return fee0, fee1, nil
}

// RemoveDeposit withdraws the position's full liquidity, collects residual
// fees, forwards all proceeds to the beneficiary, and deletes the deposit
// record. Removing a pair that was ordered but never provisioned cancels
// the order without touching the AMM.
func (e *Engine) RemoveDeposit(ctx context.Context, tokenA, tokenB common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pair := types.NewPair(tokenA, tokenB)
	d, ok := e.book.Get(pair)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, pair)
	}

	if !d.Provisioned() {
		e.pending.Remove(pair)
		if err := e.book.Remove(pair); err != nil {
			return err
		}
		e.logger.Info().Stringer("pair", pair).Msg("Unprovisioned order cancelled")
		return nil
	}

	released0, released1, err := e.exchange.DecreaseLiquidity(ctx, d.Position, d.Liquidity)
	if err != nil {
		return fmt.Errorf("withdrawing liquidity for %s: %w", pair, err)
	}
	// Collect claims the released principal together with any residual fees.
	proceeds0, proceeds1, err := e.exchange.Collect(ctx, d.Position)
	if err != nil {
		return fmt.Errorf("collecting proceeds for %s: %w", pair, err)
	}
	if proceeds0.LT(released0) || proceeds1.LT(released1) {
		e.logger.Warn().
			Stringer("pair", pair).
			Str("released0", released0.String()).
			Str("released1", released1.String()).
			Str("collected0", proceeds0.String()).
			Str("collected1", proceeds1.String()).
			Msg("Collected less than the withdrawn principal")
	}
	if proceeds0.IsPositive() {
		if err := e.exchange.Transfer(ctx, pair.Token0, e.beneficiary, proceeds0); err != nil {
			return fmt.Errorf("forwarding proceeds for %s: %w", pair, err)
		}
	}
	if proceeds1.IsPositive() {
		if err := e.exchange.Transfer(ctx, pair.Token1, e.beneficiary, proceeds1); err != nil {
			return fmt.Errorf("forwarding proceeds for %s: %w", pair, err)
		}
	}

	// Clear any stale pending entry before the record itself.
	e.pending.Remove(pair)
	if err := e.book.Remove(pair); err != nil {
		return err
	}

	e.logger.Info().
		Stringer("pair", pair).
		Str("proceeds0", proceeds0.String()).
		Str("proceeds1", proceeds1.String()).
		Int("remainingDeposits", e.book.Count()).
		Msg("Position removed, proceeds forwarded to beneficiary")

	return nil
}

// swapWithFloor swaps through the router with a TWAP-derived minimum
// output; with insufficient oracle history the floor is waived.
func (e *Engine) swapWithFloor(ctx context.Context, d types.Deposit, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	minOut := sdkmath.ZeroInt()
	pool, err := e.exchange.PoolFor(ctx, d.Pair, d.FeeTier)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	estimate, err := e.estimator.EstimateAmountOut(ctx, pool, tokenIn, amountIn, e.lookback)
	switch {
	case errors.Is(err, oracle.ErrOracleUnavailable):
		// keep the zero floor
	case err != nil:
		return sdkmath.ZeroInt(), err
	default:
		minOut = estimate.MulRaw(int64(10_000 - e.slippageBps)).QuoRaw(10_000)
	}
	return e.exchange.Swap(ctx, tokenIn, tokenOut, amountIn, minOut)
}
