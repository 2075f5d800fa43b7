/*

Contract for the AMM the engine trades and holds positions on. Everything
that touches asset custody goes through this interface; a failed call is
fatal to the invoking operation and is never partially applied by the
engine.

*/

package dex

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/streamlp/lpm/internal/types"
)

var (
	// ErrExternalCallFailed is returned when the AMM rejects an operation,
	// e.g. slippage exceeded or pool paused.
	ErrExternalCallFailed = errors.New("exchange call failed")

	// ErrPoolNotFound is returned when no pool exists for a pair and fee tier.
	ErrPoolNotFound = errors.New("no pool exists for pair and fee tier")
)

// CallError wraps a failed exchange call with the operation that failed.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("exchange %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return errors.Join(ErrExternalCallFailed, e.Err)
}

// Exchange is the engine's view of the AMM pool/router and of its own token
// custody on that chain. All amounts returned are realized post-effect
// values read back from the chain, never estimates.
type Exchange interface {
	// BalanceOf returns the engine account's balance of a token.
	BalanceOf(ctx context.Context, token common.Address) (sdkmath.Int, error)

	// Swap trades amountIn of tokenIn for tokenOut through the router and
	// returns the realized output amount. Fails if the realized output
	// would be below minOut.
	Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, minOut sdkmath.Int) (sdkmath.Int, error)

	// MintPosition mints a new position over the pair and returns its
	// opaque handle and initial liquidity.
	MintPosition(ctx context.Context, pair types.Pair, feeTier uint32, tickLower, tickUpper int32, amount0, amount1 sdkmath.Int) (types.PositionID, sdkmath.Int, error)

	// IncreaseLiquidity tops up an existing position and returns the
	// position's new total liquidity.
	IncreaseLiquidity(ctx context.Context, position types.PositionID, amount0, amount1 sdkmath.Int) (sdkmath.Int, error)

	// DecreaseLiquidity withdraws liquidity from a position and returns the
	// amounts released. Released amounts become owed to the engine and are
	// claimed through Collect.
	DecreaseLiquidity(ctx context.Context, position types.PositionID, liquidity sdkmath.Int) (amount0, amount1 sdkmath.Int, err error)

	// Collect claims everything the position owes the engine, accrued
	// trading fees plus any previously withdrawn principal, into the
	// engine's custody without changing liquidity.
	Collect(ctx context.Context, position types.PositionID) (fee0, fee1 sdkmath.Int, err error)

	// Transfer moves amount of token from the engine's custody to another
	// account.
	Transfer(ctx context.Context, token, to common.Address, amount sdkmath.Int) error

	// PoolFor resolves the pool backing a pair at a fee tier.
	PoolFor(ctx context.Context, pair types.Pair, feeTier uint32) (common.Address, error)

	// CurrentTick returns the pool's current tick.
	CurrentTick(ctx context.Context, pool common.Address) (int32, error)

	// PositionAmounts returns the principal currently attributable to a
	// position, split by the pair's assets.
	PositionAmounts(ctx context.Context, position types.PositionID) (amount0, amount1 sdkmath.Int, err error)
}
