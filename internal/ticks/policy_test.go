package ticks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymmetricPolicySelectRange(t *testing.T) {
	policy := NewSymmetricPolicy(1000)

	t.Run("AlignedToSpacing", func(t *testing.T) {
		r := policy.SelectRange(123, 3000)
		spacing := SpacingForFeeTier(3000)
		assert.Zero(t, r.Lower%spacing)
		assert.Zero(t, r.Upper%spacing)
		assert.Less(t, r.Lower, r.Upper)
		assert.Equal(t, uint32(3000), r.FeeTier)
	})

	t.Run("ContainsCurrentTick", func(t *testing.T) {
		for _, tick := range []int32{-50000, -61, 0, 61, 50000} {
			r := policy.SelectRange(tick, 500)
			assert.LessOrEqual(t, r.Lower, tick)
			assert.GreaterOrEqual(t, r.Upper, tick)
		}
	})

	t.Run("ClampsToTickDomain", func(t *testing.T) {
		r := policy.SelectRange(MaxTick-10, 10000)
		assert.LessOrEqual(t, r.Upper, MaxTick)
		assert.Less(t, r.Lower, r.Upper)

		r = policy.SelectRange(MinTick+10, 10000)
		assert.GreaterOrEqual(t, r.Lower, MinTick)
		assert.Less(t, r.Lower, r.Upper)
	})

	t.Run("NegativeTickAlignment", func(t *testing.T) {
		r := policy.SelectRange(-123, 3000)
		spacing := SpacingForFeeTier(3000)
		assert.Zero(t, r.Lower%spacing)
		assert.Zero(t, r.Upper%spacing)
		assert.LessOrEqual(t, r.Lower, int32(-123))
	})
}

func TestSymmetricPolicyTargetWeight(t *testing.T) {
	policy := NewSymmetricPolicy(0)

	r := Range{Lower: -1000, Upper: 1000, FeeTier: 3000}

	t.Run("CenteredRangeIsEvenSplit", func(t *testing.T) {
		w := policy.TargetWeight(r, 0)
		require.Equal(t, "0.5", w.String()[:3])
	})

	t.Run("ClampsOutsideRange", func(t *testing.T) {
		assert.True(t, policy.TargetWeight(r, -2000).IsZero())
		assert.True(t, policy.TargetWeight(r, 2000).Equal(policy.TargetWeight(r, 1000)))
		assert.Equal(t, "1.000000000000000000", policy.TargetWeight(r, 5000).String())
	})

	t.Run("DefaultWidthApplied", func(t *testing.T) {
		assert.Equal(t, DefaultWidthTicks, policy.WidthTicks)
	})
}
