/*

Contract for the token-stream protocol that funds the engine. The stream
token accrues continuously to the engine's account; each maintenance cycle
redeems whatever has accrued into the base asset before allocating it.

*/

package stream

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Protocol abstracts the streaming-payment protocol the engine redeems
// against. Implementations are resolved once at construction so tests can
// substitute their own.
type Protocol interface {
	// RedeemableBalance returns the stream-token amount currently held by
	// the engine's account and redeemable into the base asset.
	RedeemableBalance(ctx context.Context) (sdkmath.Int, error)

	// Redeem converts amount of the stream token into the base asset and
	// returns the base-asset amount actually received.
	Redeem(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)

	// BaseAsset returns the asset the stream token redeems into.
	BaseAsset() common.Address
}
