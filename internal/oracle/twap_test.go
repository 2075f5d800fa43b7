package oracle

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	// cumulative tick at [lookback seconds ago, now]
	cumulatives []*big.Int
	token0      common.Address
	token1      common.Address
	err         error
}

func (f *fakeSource) Observe(_ context.Context, _ common.Address, secondsAgos []uint32) ([]*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cumulatives, nil
}

func (f *fakeSource) PoolTokens(_ context.Context, _ common.Address) (common.Address, common.Address, error) {
	return f.token0, f.token1, nil
}

func TestTWAPEstimateAmountOut(t *testing.T) {
	pool := common.HexToAddress("0xP00")
	token0 := common.HexToAddress("0x111")
	token1 := common.HexToAddress("0x222")

	t.Run("FlatTickIsIdentityPrice", func(t *testing.T) {
		// cumulative stays at 0: average tick 0, price exactly 1
		src := &fakeSource{
			cumulatives: []*big.Int{big.NewInt(0), big.NewInt(0)},
			token0:      token0,
			token1:      token1,
		}
		twap := NewTWAP(src)

		out, err := twap.EstimateAmountOut(context.Background(), pool, token0, sdkmath.NewInt(1_000_000), 60)
		require.NoError(t, err)
		assert.Equal(t, int64(1_000_000), out.Int64())
	})

	t.Run("PositiveTickFavorsToken0Input", func(t *testing.T) {
		// average tick 6932 over 60s: price ~ 1.0001^6932 ~ 2.0
		src := &fakeSource{
			cumulatives: []*big.Int{big.NewInt(0), big.NewInt(6932 * 60)},
			token0:      token0,
			token1:      token1,
		}
		twap := NewTWAP(src)

		out, err := twap.EstimateAmountOut(context.Background(), pool, token0, sdkmath.NewInt(1_000_000), 60)
		require.NoError(t, err)
		assert.InDelta(t, 2_000_000, float64(out.Int64()), 2_000) // within 0.1%

		// the reverse direction divides by the same price
		out, err = twap.EstimateAmountOut(context.Background(), pool, token1, sdkmath.NewInt(1_000_000), 60)
		require.NoError(t, err)
		assert.InDelta(t, 500_000, float64(out.Int64()), 500)
	})

	t.Run("NegativeDeltaRoundsTowardNegativeInfinity", func(t *testing.T) {
		// delta of -61 over 60s must average to tick -2, not -1
		src := &fakeSource{
			cumulatives: []*big.Int{big.NewInt(0), big.NewInt(-61)},
			token0:      token0,
			token1:      token1,
		}
		avg := averageTick(src.cumulatives[0], src.cumulatives[1], 60)
		assert.Equal(t, int64(-2), avg)
	})

	t.Run("InsufficientHistorySurfacesOracleUnavailable", func(t *testing.T) {
		src := &fakeSource{err: ErrOracleUnavailable}
		twap := NewTWAP(src)

		_, err := twap.EstimateAmountOut(context.Background(), pool, token0, sdkmath.NewInt(1000), 60)
		require.ErrorIs(t, err, ErrOracleUnavailable)
	})

	t.Run("ZeroAmountShortCircuits", func(t *testing.T) {
		src := &fakeSource{
			cumulatives: []*big.Int{big.NewInt(0), big.NewInt(0)},
			token0:      token0,
			token1:      token1,
		}
		twap := NewTWAP(src)

		out, err := twap.EstimateAmountOut(context.Background(), pool, token0, sdkmath.ZeroInt(), 60)
		require.NoError(t, err)
		assert.True(t, out.IsZero())
	})

	t.Run("ForeignTokenRejected", func(t *testing.T) {
		src := &fakeSource{
			cumulatives: []*big.Int{big.NewInt(0), big.NewInt(0)},
			token0:      token0,
			token1:      token1,
		}
		twap := NewTWAP(src)

		_, err := twap.EstimateAmountOut(context.Background(), pool, common.HexToAddress("0x999"), sdkmath.NewInt(1), 60)
		require.Error(t, err)
	})
}
