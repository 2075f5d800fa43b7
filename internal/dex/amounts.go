package dex

import (
	"math"
	"math/big"
)

var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// PrincipalAmounts converts a position's liquidity into the token amounts
// it currently represents, given the pool's sqrt price and the position's
// tick bounds. Below the range the position is entirely token0, above it
// entirely token1, inside it a mix determined by the current price.
func PrincipalAmounts(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (amount0, amount1 *big.Int) {
	l := new(big.Float).SetInt(liquidity)
	sp := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	sa := sqrtRatioAtTick(tickLower)
	sb := sqrtRatioAtTick(tickUpper)

	amount0f := new(big.Float)
	amount1f := new(big.Float)

	switch {
	case sp.Cmp(sa) <= 0:
		// amount0 = L * (sb - sa) / (sa * sb)
		amount0f.Quo(new(big.Float).Mul(l, new(big.Float).Sub(sb, sa)), new(big.Float).Mul(sa, sb))
	case sp.Cmp(sb) >= 0:
		// amount1 = L * (sb - sa)
		amount1f.Mul(l, new(big.Float).Sub(sb, sa))
	default:
		// amount0 = L * (sb - sp) / (sp * sb)
		amount0f.Quo(new(big.Float).Mul(l, new(big.Float).Sub(sb, sp)), new(big.Float).Mul(sp, sb))
		// amount1 = L * (sp - sa)
		amount1f.Mul(l, new(big.Float).Sub(sp, sa))
	}

	amount0, _ = amount0f.Int(nil)
	amount1, _ = amount1f.Int(nil)
	return amount0, amount1
}

// SqrtPriceX96AtTick returns the pool's sqrt price encoding for a tick.
func SqrtPriceX96AtTick(tick int32) *big.Int {
	out, _ := new(big.Float).Mul(sqrtRatioAtTick(tick), q96).Int(nil)
	return out
}

func sqrtRatioAtTick(tick int32) *big.Float {
	return big.NewFloat(math.Pow(1.0001, float64(tick)/2))
}
