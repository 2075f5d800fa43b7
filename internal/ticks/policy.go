/*

Tick range selection policy. The range and fee bracket chosen for a new
position is a strategy decision, not core engine logic, so it lives behind a
small interface the engine takes at construction.

*/

package ticks

import (
	sdkmath "cosmossdk.io/math"
)

// Uniswap V3 tick domain bounds.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Range is a position's price range and fee bracket.
type Range struct {
	Lower   int32
	Upper   int32
	FeeTier uint32
}

// Policy decides the tick range for a first mint and the target value split
// between the pair's assets for a given range.
type Policy interface {
	// SelectRange picks the range for a new position given the pool's
	// current tick and the configured fee tier.
	SelectRange(currentTick int32, feeTier uint32) Range

	// TargetWeight returns the desired value share of the pair's token1
	// side for the range, in [0, 1]. Token0 holds the remainder.
	TargetWeight(r Range, currentTick int32) sdkmath.LegacyDec
}

// SpacingForFeeTier returns the tick spacing the pool enforces for a fee
// tier. Unknown tiers fall back to the widest spacing.
func SpacingForFeeTier(feeTier uint32) int32 {
	switch feeTier {
	case 100:
		return 1
	case 500:
		return 10
	case 3000:
		return 60
	case 10000:
		return 200
	default:
		return 200
	}
}

// SymmetricPolicy places a range of WidthTicks on each side of the current
// tick, aligned to the fee tier's tick spacing. A symmetric range centers
// the position on the current price, which makes the target split an even
// 50/50 by value at mint time.
type SymmetricPolicy struct {
	WidthTicks int32
}

// DefaultWidthTicks spans roughly +-10% around the current price.
const DefaultWidthTicks int32 = 960

// NewSymmetricPolicy builds the default range policy. A non-positive width
// falls back to DefaultWidthTicks.
func NewSymmetricPolicy(widthTicks int32) *SymmetricPolicy {
	if widthTicks <= 0 {
		widthTicks = DefaultWidthTicks
	}
	return &SymmetricPolicy{WidthTicks: widthTicks}
}

func (p *SymmetricPolicy) SelectRange(currentTick int32, feeTier uint32) Range {
	spacing := SpacingForFeeTier(feeTier)

	lower := alignDown(currentTick-p.WidthTicks, spacing)
	upper := alignUp(currentTick+p.WidthTicks, spacing)

	if lower < alignUp(MinTick, spacing) {
		lower = alignUp(MinTick, spacing)
	}
	if upper > alignDown(MaxTick, spacing) {
		upper = alignDown(MaxTick, spacing)
	}
	if lower >= upper {
		upper = lower + spacing
	}

	return Range{Lower: lower, Upper: upper, FeeTier: feeTier}
}

// TargetWeight approximates the token1 value share by the current tick's
// position within the range: at the lower bound the position is all token0,
// at the upper bound all token1. Outside the range the weight clamps to 0
// or 1.
func (p *SymmetricPolicy) TargetWeight(r Range, currentTick int32) sdkmath.LegacyDec {
	if currentTick <= r.Lower {
		return sdkmath.LegacyZeroDec()
	}
	if currentTick >= r.Upper {
		return sdkmath.LegacyOneDec()
	}
	span := int64(r.Upper) - int64(r.Lower)
	offset := int64(currentTick) - int64(r.Lower)
	return sdkmath.LegacyNewDec(offset).Quo(sdkmath.LegacyNewDec(span))
}

func alignDown(tick, spacing int32) int32 {
	aligned := (tick / spacing) * spacing
	if tick < 0 && tick%spacing != 0 {
		aligned -= spacing
	}
	return aligned
}

func alignUp(tick, spacing int32) int32 {
	aligned := (tick / spacing) * spacing
	if tick > 0 && tick%spacing != 0 {
		aligned += spacing
	}
	return aligned
}
