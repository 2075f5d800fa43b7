package lpm

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamlp/lpm/internal/oracle"
	"github.com/streamlp/lpm/internal/ticks"
	"github.com/streamlp/lpm/internal/types"
)

// MaintainPosition runs one maintenance cycle: redeem whatever stream-token
// balance has accrued, provision funded pending orders, and top up open
// positions. Callable by anyone, any number of times; with nothing to do it
// completes successfully as a no-op. An exchange or stream failure aborts
// the remainder of the cycle; already-provisioned pairs from this cycle
// keep their committed records and unprovisioned pending orders are
// restored for the next attempt.
func (e *Engine) MaintainPosition(ctx context.Context) (types.MaintenanceReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := e.logger.With().Str("cycle_id", cycleID).Logger()

	receipt := types.MaintenanceReceipt{
		CycleID:   cycleID,
		Timestamp: start.UTC(),
		Redeemed:  sdkmath.ZeroInt(),
	}

	err := e.runCycle(ctx, cycleLogger, &receipt)
	receipt.Duration = time.Since(start)
	receipt.Success = err == nil
	if err != nil {
		receipt.Message = err.Error()
	}
	e.record(receipt, cycleLogger)

	if err != nil {
		return receipt, fmt.Errorf("maintenance cycle %s: %w", cycleID, err)
	}
	return receipt, nil
}

func (e *Engine) runCycle(ctx context.Context, cycleLogger zerolog.Logger, receipt *types.MaintenanceReceipt) error {
	// Step 1: redeem accrued stream-token balance into the base asset.
	redeemable, err := e.stream.RedeemableBalance(ctx)
	if err != nil {
		return fmt.Errorf("reading redeemable balance: %w", err)
	}
	if redeemable.IsPositive() {
		redeemed, err := e.stream.Redeem(ctx, redeemable)
		if err != nil {
			return fmt.Errorf("redeeming stream balance: %w", err)
		}
		receipt.Redeemed = redeemed
		cycleLogger.Info().
			Str("streamAmount", redeemable.String()).
			Str("redeemed", redeemed.String()).
			Msg("Stream balance redeemed")
	}

	// The cycle always works from the actual custody balance, which also
	// picks up leftovers from previous cycles.
	available, err := e.exchange.BalanceOf(ctx, e.base)
	if err != nil {
		return fmt.Errorf("reading base asset balance: %w", err)
	}

	// Step 2: assemble this cycle's targets. Open positions are always
	// targets; each pending order joins only if its own per-target
	// allocation meets the funding floor.
	var open []types.Deposit
	for _, d := range e.book.Snapshot() {
		if d.Provisioned() {
			open = append(open, d)
		}
	}

	admit := e.pending.Len()
	for admit > 0 {
		if available.IsPositive() && available.QuoRaw(int64(len(open)+admit)).GTE(e.minFunding) {
			break
		}
		admit--
	}
	taken := 0
	drained := e.pending.Drain(func(types.Pair) bool {
		taken++
		return taken <= admit
	})

	targets := len(drained) + len(open)
	if targets == 0 || !available.IsPositive() {
		e.pending.Requeue(drained)
		cycleLogger.Info().
			Str("available", available.String()).
			Int("pendingOrders", e.pending.Len()).
			Msg("Nothing to provision this cycle")
		return nil
	}

	// Available balance is split evenly across targets; whatever a pair
	// does not consume stays in custody for the next pair or next cycle.
	allocation := available.QuoRaw(int64(targets))
	if !allocation.IsPositive() {
		e.pending.Requeue(drained)
		cycleLogger.Info().
			Str("available", available.String()).
			Int("targets", targets).
			Msg("Balance too small to allocate this cycle")
		return nil
	}
	cycleLogger.Info().
		Str("available", available.String()).
		Str("allocationPerPair", allocation.String()).
		Int("newPairs", len(drained)).
		Int("openPositions", len(open)).
		Msg("Allocating balance across targets")

	// Pending orders not yet provisioned must survive an abort.
	unprovisioned := append([]types.Pair(nil), drained...)
	defer func() {
		e.pending.Requeue(unprovisioned)
	}()

	for _, pair := range drained {
		d, ok := e.book.Get(pair)
		if !ok {
			// Ordering always registers a record, so a drained pair without
			// one indicates a bug rather than a recoverable condition.
			return fmt.Errorf("pending pair %s has no deposit record", pair)
		}
		action, err := e.provision(ctx, cycleLogger, d, allocation)
		if err != nil {
			return err
		}
		unprovisioned = unprovisioned[1:]
		receipt.Actions = append(receipt.Actions, action)
	}

	for _, d := range open {
		action, err := e.topUp(ctx, cycleLogger, d, allocation)
		if err != nil {
			return err
		}
		receipt.Actions = append(receipt.Actions, action)
	}

	return nil
}

// provision mints a brand-new position for a drained pending order.
func (e *Engine) provision(ctx context.Context, cycleLogger zerolog.Logger, d types.Deposit, allocation sdkmath.Int) (types.PairAction, error) {
	pool, err := e.exchange.PoolFor(ctx, d.Pair, e.feeTier)
	if err != nil {
		return types.PairAction{}, fmt.Errorf("resolving pool for %s: %w", d.Pair, err)
	}
	currentTick, err := e.exchange.CurrentTick(ctx, pool)
	if err != nil {
		return types.PairAction{}, fmt.Errorf("reading current tick of %s: %w", d.Pair, err)
	}

	rng := e.policy.SelectRange(currentTick, e.feeTier)
	amount0, amount1, swapIn, swapOut, err := e.allocate(ctx, cycleLogger, d.Pair, pool, rng, currentTick, allocation)
	if err != nil {
		return types.PairAction{}, err
	}

	position, liquidity, err := e.exchange.MintPosition(ctx, d.Pair, rng.FeeTier, rng.Lower, rng.Upper, amount0, amount1)
	if err != nil {
		return types.PairAction{}, fmt.Errorf("minting position for %s: %w", d.Pair, err)
	}

	d.Position = position
	d.Liquidity = liquidity
	d.TickLower = rng.Lower
	d.TickUpper = rng.Upper
	d.FeeTier = rng.FeeTier
	d.UpdatedAt = time.Now().UTC()
	e.book.Upsert(d)

	cycleLogger.Info().
		Stringer("pair", d.Pair).
		Str("position", string(position)).
		Str("liquidity", liquidity.String()).
		Int32("tickLower", rng.Lower).
		Int32("tickUpper", rng.Upper).
		Msg("New position minted")

	return types.PairAction{
		Pair:      d.Pair,
		Kind:      types.ActionMint,
		SwapIn:    swapIn,
		SwapOut:   swapOut,
		Amount0:   amount0,
		Amount1:   amount1,
		Liquidity: liquidity,
	}, nil
}

// topUp increases liquidity of an already-open position.
func (e *Engine) topUp(ctx context.Context, cycleLogger zerolog.Logger, d types.Deposit, allocation sdkmath.Int) (types.PairAction, error) {
	pool, err := e.exchange.PoolFor(ctx, d.Pair, d.FeeTier)
	if err != nil {
		return types.PairAction{}, fmt.Errorf("resolving pool for %s: %w", d.Pair, err)
	}
	currentTick, err := e.exchange.CurrentTick(ctx, pool)
	if err != nil {
		return types.PairAction{}, fmt.Errorf("reading current tick of %s: %w", d.Pair, err)
	}

	rng := ticks.Range{Lower: d.TickLower, Upper: d.TickUpper, FeeTier: d.FeeTier}
	amount0, amount1, swapIn, swapOut, err := e.allocate(ctx, cycleLogger, d.Pair, pool, rng, currentTick, allocation)
	if err != nil {
		return types.PairAction{}, err
	}

	liquidity, err := e.exchange.IncreaseLiquidity(ctx, d.Position, amount0, amount1)
	if err != nil {
		return types.PairAction{}, fmt.Errorf("increasing liquidity for %s: %w", d.Pair, err)
	}

	d.Liquidity = liquidity
	d.UpdatedAt = time.Now().UTC()
	e.book.Upsert(d)

	cycleLogger.Info().
		Stringer("pair", d.Pair).
		Str("liquidity", liquidity.String()).
		Msg("Position topped up")

	return types.PairAction{
		Pair:      d.Pair,
		Kind:      types.ActionIncrease,
		SwapIn:    swapIn,
		SwapOut:   swapOut,
		Amount0:   amount0,
		Amount1:   amount1,
		Liquidity: liquidity,
	}, nil
}

// allocate turns a base-asset allocation into the canonically ordered pair
// amounts to deposit, swapping part of the base into the paired asset. The
// TWAP estimate sets the slippage floor; with insufficient oracle history
// the configured default split applies and the floor is waived. Deposited
// amounts are the realized post-swap values, never the estimate.
func (e *Engine) allocate(ctx context.Context, cycleLogger zerolog.Logger, pair types.Pair, pool common.Address, rng ticks.Range, currentTick int32, allocation sdkmath.Int) (amount0, amount1, swapIn, swapOut sdkmath.Int, err error) {
	// The policy reports the token1 value share; the swap share is the
	// paired side's, which is the complement when the base sorts as token1.
	weight := e.policy.TargetWeight(rng, currentTick)
	if pair.Token1 == e.base {
		weight = sdkmath.LegacyOneDec().Sub(weight)
	}
	swapIn = weight.MulInt(allocation).TruncateInt()
	swapOut = sdkmath.ZeroInt()
	minOut := sdkmath.ZeroInt()

	if swapIn.IsPositive() {
		estimate, estErr := e.estimator.EstimateAmountOut(ctx, pool, e.base, swapIn, e.lookback)
		switch {
		case errors.Is(estErr, oracle.ErrOracleUnavailable):
			cycleLogger.Warn().
				Stringer("pair", pair).
				Msg("Oracle history insufficient, using default split without slippage floor")
			swapIn = e.defaultWeight.MulInt(allocation).TruncateInt()
		case estErr != nil:
			return amount0, amount1, swapIn, swapOut, fmt.Errorf("estimating swap output for %s: %w", pair, estErr)
		default:
			minOut = estimate.MulRaw(int64(10_000 - e.slippageBps)).QuoRaw(10_000)
		}
	}

	other := pair.Counterpart(e.base)
	if swapIn.IsPositive() {
		swapOut, err = e.exchange.Swap(ctx, e.base, other, swapIn, minOut)
		if err != nil {
			return amount0, amount1, swapIn, swapOut, fmt.Errorf("swapping for %s: %w", pair, err)
		}
	}

	keep := allocation.Sub(swapIn)
	if pair.Token0 == e.base {
		amount0, amount1 = keep, swapOut
	} else {
		amount0, amount1 = swapOut, keep
	}
	return amount0, amount1, swapIn, swapOut, nil
}

func (e *Engine) record(receipt types.MaintenanceReceipt, cycleLogger zerolog.Logger) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordCycle(receipt, e.book.Snapshot()); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist maintenance receipt")
	}
}
