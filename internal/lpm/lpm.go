/*

LPM is the liquidity position maintainer: the decision logic that queues
requested token pairs, reconciles redeemed stream-token balance against open
positions on each maintenance call, and manages the full lifecycle of a
position (create, top-up, fee-collect, remove). Every public operation is
permissionless and runs to completion under one lock; proceeds always flow
to the single beneficiary fixed at construction.

*/

package lpm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/streamlp/lpm/internal/dex"
	"github.com/streamlp/lpm/internal/logger"
	"github.com/streamlp/lpm/internal/oracle"
	"github.com/streamlp/lpm/internal/queue"
	"github.com/streamlp/lpm/internal/registry"
	"github.com/streamlp/lpm/internal/stream"
	"github.com/streamlp/lpm/internal/ticks"
	"github.com/streamlp/lpm/internal/types"
)

var (
	// ErrNotFound is returned when an operation references a pair with no
	// deposit record.
	ErrNotFound = registry.ErrNotFound

	// ErrAlreadyOpen is returned when a deposit is ordered for a pair that
	// already has a minted position.
	ErrAlreadyOpen = errors.New("pair already has an open position")

	// ErrAlreadyQueued is returned when a deposit is ordered for a pair
	// that is already awaiting provisioning.
	ErrAlreadyQueued = queue.ErrAlreadyQueued

	// ErrIdenticalTokens is returned when both sides of an ordered pair are
	// the same asset.
	ErrIdenticalTokens = errors.New("pair must consist of two distinct assets")

	// ErrPairMissingBaseAsset is returned when an ordered pair does not
	// contain the asset the stream token redeems into.
	ErrPairMissingBaseAsset = errors.New("pair does not contain the stream base asset")
)

// Recorder persists per-cycle maintenance accounting. Implementations must
// tolerate being called on every cycle; a nil Recorder disables persistence.
type Recorder interface {
	RecordCycle(receipt types.MaintenanceReceipt, deposits []types.Deposit) error
}

// Config holds everything an Engine needs at construction. All external
// collaborators are injected here and are immutable afterwards.
type Config struct {
	Exchange  dex.Exchange
	Stream    stream.Protocol
	Estimator oracle.Estimator
	Policy    ticks.Policy
	Recorder  Recorder // optional

	// Beneficiary receives all withdrawn fees and removed liquidity,
	// regardless of which caller triggers the action.
	Beneficiary common.Address

	// FeeTier is the fee bracket used when minting new positions.
	FeeTier uint32

	// LookbackSeconds is the TWAP window used to size swaps.
	LookbackSeconds uint32

	// SlippageBps bounds how far below the TWAP estimate a realized swap
	// output may land before the router call is rejected.
	SlippageBps uint32

	// MinFunding is the minimum available base-asset balance required
	// before a pending order is provisioned.
	MinFunding sdkmath.Int

	// DefaultPairedWeight is the paired-asset value share used when the
	// price oracle has insufficient history. Zero means an even 50/50.
	DefaultPairedWeight sdkmath.LegacyDec
}

// Engine is a single-beneficiary position maintainer. All state mutations
// are serialized behind one lock; each public operation is all-or-nothing
// from the caller's perspective.
type Engine struct {
	mu     sync.Mutex
	logger zerolog.Logger

	exchange  dex.Exchange
	stream    stream.Protocol
	estimator oracle.Estimator
	policy    ticks.Policy
	recorder  Recorder

	beneficiary   common.Address
	base          common.Address
	feeTier       uint32
	lookback      uint32
	slippageBps   uint32
	minFunding    sdkmath.Int
	defaultWeight sdkmath.LegacyDec

	book    *registry.Book
	pending *queue.PendingOrders

	cycleCount int
}

// NewEngine creates an Engine with dependency injection.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	defaultWeight := cfg.DefaultPairedWeight
	if defaultWeight.IsNil() || defaultWeight.IsZero() {
		defaultWeight = sdkmath.LegacyNewDecWithPrec(5, 1) // 0.5
	}

	minFunding := cfg.MinFunding
	if minFunding.IsNil() {
		minFunding = sdkmath.ZeroInt()
	}

	e := &Engine{
		logger:        logger.GetForComponent("lpm_core"),
		exchange:      cfg.Exchange,
		stream:        cfg.Stream,
		estimator:     cfg.Estimator,
		policy:        cfg.Policy,
		recorder:      cfg.Recorder,
		beneficiary:   cfg.Beneficiary,
		base:          cfg.Stream.BaseAsset(),
		feeTier:       cfg.FeeTier,
		lookback:      cfg.LookbackSeconds,
		slippageBps:   cfg.SlippageBps,
		minFunding:    minFunding,
		defaultWeight: defaultWeight,
		book:          registry.NewBook(),
		pending:       queue.NewPendingOrders(),
	}

	e.logger.Info().
		Str("beneficiary", e.beneficiary.Hex()).
		Str("baseAsset", e.base.Hex()).
		Uint32("feeTier", e.feeTier).
		Uint32("lookbackSeconds", e.lookback).
		Msg("Engine created with dependency injection")

	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.Exchange == nil {
		return fmt.Errorf("exchange cannot be nil")
	}
	if cfg.Stream == nil {
		return fmt.Errorf("stream protocol cannot be nil")
	}
	if cfg.Estimator == nil {
		return fmt.Errorf("price estimator cannot be nil")
	}
	if cfg.Policy == nil {
		return fmt.Errorf("tick range policy cannot be nil")
	}
	if cfg.Beneficiary == (common.Address{}) {
		return fmt.Errorf("beneficiary cannot be the zero address")
	}
	if cfg.LookbackSeconds == 0 {
		return fmt.Errorf("lookback window must be positive")
	}
	if cfg.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage tolerance must be below 100%%")
	}
	if !cfg.DefaultPairedWeight.IsNil() {
		if cfg.DefaultPairedWeight.IsNegative() || cfg.DefaultPairedWeight.GT(sdkmath.LegacyOneDec()) {
			return fmt.Errorf("default paired weight must be within [0, 1]")
		}
	}
	return nil
}

// OrderNewDeposit queues a new position request for the pair. The record is
// registered immediately; the position itself is minted by the first
// maintenance cycle with sufficient funding.
func (e *Engine) OrderNewDeposit(tokenA, tokenB common.Address) error {
	if tokenA == tokenB {
		return ErrIdenticalTokens
	}
	pair := types.NewPair(tokenA, tokenB)
	if !pair.Contains(e.base) {
		return fmt.Errorf("%w: %s", ErrPairMissingBaseAsset, pair)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.book.Get(pair); ok {
		if existing.Provisioned() {
			return fmt.Errorf("%w: %s", ErrAlreadyOpen, pair)
		}
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, pair)
	}

	if err := e.pending.Enqueue(pair); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.book.Upsert(types.Deposit{
		Pair:      pair,
		Position:  types.NoPosition,
		Liquidity: sdkmath.ZeroInt(),
		FeeTier:   e.feeTier,
		CreatedAt: now,
		UpdatedAt: now,
	})

	e.logger.Info().Stringer("pair", pair).Msg("New deposit ordered, awaiting provisioning")
	return nil
}

// GetDeposit returns the deposit record for the pair.
func (e *Engine) GetDeposit(tokenA, tokenB common.Address) (types.Deposit, error) {
	d, ok := e.book.Get(types.NewPair(tokenA, tokenB))
	if !ok {
		return types.Deposit{}, ErrNotFound
	}
	return d, nil
}

// GetDepositAmounts returns the principal currently attributable to the
// pair's position.
func (e *Engine) GetDepositAmounts(ctx context.Context, tokenA, tokenB common.Address) (types.DepositAmounts, error) {
	d, ok := e.book.Get(types.NewPair(tokenA, tokenB))
	if !ok {
		return types.DepositAmounts{}, ErrNotFound
	}
	if !d.Provisioned() {
		return types.DepositAmounts{Amount0: sdkmath.ZeroInt(), Amount1: sdkmath.ZeroInt()}, nil
	}
	amount0, amount1, err := e.exchange.PositionAmounts(ctx, d.Position)
	if err != nil {
		return types.DepositAmounts{}, err
	}
	return types.DepositAmounts{Amount0: amount0, Amount1: amount1}, nil
}

// GetNumDeposits returns the number of registered deposit records.
func (e *Engine) GetNumDeposits() int {
	return e.book.Count()
}

// Deposits returns a snapshot of all deposit records in insertion order.
func (e *Engine) Deposits() []types.Deposit {
	return e.book.Snapshot()
}

// PendingPairs returns the pairs still awaiting provisioning.
func (e *Engine) PendingPairs() []types.Pair {
	return e.pending.Keys()
}

// RunLoop runs maintenance cycles on a fixed interval until the context is
// cancelled. The first cycle runs immediately.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Dur("interval", interval).Msg("Starting maintenance loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Maintenance loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.runOnce(ctx)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context) {
	e.cycleCount++
	e.logger.Info().Int("cycle", e.cycleCount).Msg("Initiating maintenance cycle")
	if _, err := e.MaintainPosition(ctx); err != nil {
		e.logger.Error().Err(err).Int("cycle", e.cycleCount).Msg("Maintenance cycle failed; will retry next interval")
		return
	}
	e.logger.Info().Int("cycle", e.cycleCount).Msg("Maintenance cycle completed")
}
