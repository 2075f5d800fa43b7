/*

Per-cycle maintenance accounting. Every MaintainPosition invocation produces
one receipt describing what was redeemed, swapped and deposited, which is
logged and optionally persisted for the dashboard.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// PairActionKind describes what the maintenance cycle did for one pair.
type PairActionKind string

const (
	ActionMint     PairActionKind = "MINT"
	ActionIncrease PairActionKind = "INCREASE"
)

// PairAction records the realized effect of one pair's allocation within a
// maintenance cycle. All amounts are post-effect realized values, never
// estimates.
type PairAction struct {
	Pair      Pair           `json:"pair"`
	Kind      PairActionKind `json:"kind"`
	SwapIn    sdkmath.Int    `json:"swap_in"`
	SwapOut   sdkmath.Int    `json:"swap_out"`
	Amount0   sdkmath.Int    `json:"amount0"`
	Amount1   sdkmath.Int    `json:"amount1"`
	Liquidity sdkmath.Int    `json:"liquidity"` // position total after the action
}

// MaintenanceReceipt is the outcome of a single maintenance cycle.
type MaintenanceReceipt struct {
	CycleID   string        `json:"cycle_id"`
	Timestamp time.Time     `json:"timestamp"`
	Redeemed  sdkmath.Int   `json:"redeemed"`
	Actions   []PairAction  `json:"actions"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
}
