/*

This is the accounting record for a single concentrated-liquidity position.
One record exists per canonical pair; the record is created when a deposit is
ordered and carries a position handle once the first maintenance cycle mints
the position.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// PositionID is the opaque handle the AMM returns when a position is minted.
// It is deliberately not a raw integer so handles from different positions
// cannot be mixed up or accidentally computed with.
type PositionID string

// NoPosition is the zero handle of a deposit that has been ordered but not
// yet provisioned with a minted position.
const NoPosition PositionID = ""

// Deposit is the accounting record for one open position.
type Deposit struct {
	Pair      Pair        `json:"pair"`
	Position  PositionID  `json:"position_id"`
	Liquidity sdkmath.Int `json:"liquidity"`

	// Range and fee bracket chosen at mint time. Immutable for the life of
	// the position; changing range means remove and recreate.
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	FeeTier   uint32 `json:"fee_tier"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provisioned reports whether the deposit has a minted position behind it.
func (d Deposit) Provisioned() bool {
	return d.Position != NoPosition
}

// DepositAmounts is the current principal attributable to a position, split
// by the pair's two assets.
type DepositAmounts struct {
	Amount0 sdkmath.Int `json:"amount0"`
	Amount1 sdkmath.Int `json:"amount1"`
}
