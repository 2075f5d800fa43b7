package lpm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamlp/lpm/internal/dex"
	"github.com/streamlp/lpm/internal/oracle"
	"github.com/streamlp/lpm/internal/ticks"
	"github.com/streamlp/lpm/internal/types"
)

var (
	baseToken   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	pairedToken = common.HexToAddress("0x2000000000000000000000000000000000000002")
	otherToken  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	// sorts after the paired tokens, so it canonicalizes as Token1
	highBaseToken = common.HexToAddress("0x9000000000000000000000000000000000000009")
	beneficiary   = common.HexToAddress("0xbe2ef1c1a2b3c4d5e6f708192a3b4c5d6e7f8091")
)

// --- Fake collaborators ---

// fakeStream models the streaming protocol: a stream-token balance that
// redeems 1:1 into the base asset held by the fake exchange.
type fakeStream struct {
	base     common.Address
	balance  sdkmath.Int
	exchange *fakeExchange
}

func (s *fakeStream) RedeemableBalance(context.Context) (sdkmath.Int, error) {
	return s.balance, nil
}

func (s *fakeStream) Redeem(_ context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.GT(s.balance) {
		return sdkmath.ZeroInt(), errors.New("redeem exceeds stream balance")
	}
	s.balance = s.balance.Sub(amount)
	s.exchange.credit(s.base, amount)
	return amount, nil
}

func (s *fakeStream) BaseAsset() common.Address { return s.base }

type fakePosition struct {
	pair      types.Pair
	liquidity sdkmath.Int
	amount0   sdkmath.Int
	amount1   sdkmath.Int

	// owed amounts claimable via Collect: accrued fees plus principal
	// released by DecreaseLiquidity
	owed0 sdkmath.Int
	owed1 sdkmath.Int
}

// fakeExchange is an in-memory AMM with a 1:1 price on every pair.
type fakeExchange struct {
	custody   map[common.Address]sdkmath.Int
	received  map[common.Address]map[common.Address]sdkmath.Int // account -> token -> amount
	positions map[types.PositionID]*fakePosition
	nextID    int
	tick      int32
	failSwap  error
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		custody:   make(map[common.Address]sdkmath.Int),
		received:  make(map[common.Address]map[common.Address]sdkmath.Int),
		positions: make(map[types.PositionID]*fakePosition),
		nextID:    1,
	}
}

func (f *fakeExchange) balance(token common.Address) sdkmath.Int {
	if b, ok := f.custody[token]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (f *fakeExchange) credit(token common.Address, amount sdkmath.Int) {
	f.custody[token] = f.balance(token).Add(amount)
}

func (f *fakeExchange) debit(token common.Address, amount sdkmath.Int) error {
	if f.balance(token).LT(amount) {
		return fmt.Errorf("insufficient custody balance of %s", token.Hex())
	}
	f.custody[token] = f.balance(token).Sub(amount)
	return nil
}

func (f *fakeExchange) receivedBy(account, token common.Address) sdkmath.Int {
	if m, ok := f.received[account]; ok {
		if b, ok := m[token]; ok {
			return b
		}
	}
	return sdkmath.ZeroInt()
}

func (f *fakeExchange) BalanceOf(_ context.Context, token common.Address) (sdkmath.Int, error) {
	return f.balance(token), nil
}

func (f *fakeExchange) Swap(_ context.Context, tokenIn, tokenOut common.Address, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	if f.failSwap != nil {
		return sdkmath.ZeroInt(), f.failSwap
	}
	if err := f.debit(tokenIn, amountIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out := amountIn // flat 1:1 price
	if out.LT(minOut) {
		return sdkmath.ZeroInt(), errors.New("slippage exceeded")
	}
	f.credit(tokenOut, out)
	return out, nil
}

func (f *fakeExchange) MintPosition(_ context.Context, pair types.Pair, _ uint32, _, _ int32, amount0, amount1 sdkmath.Int) (types.PositionID, sdkmath.Int, error) {
	if err := f.debit(pair.Token0, amount0); err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), err
	}
	if err := f.debit(pair.Token1, amount1); err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), err
	}
	id := types.PositionID(fmt.Sprintf("%d", f.nextID))
	f.nextID++
	f.positions[id] = &fakePosition{
		pair:      pair,
		liquidity: amount0.Add(amount1),
		amount0:   amount0,
		amount1:   amount1,
		owed0:     sdkmath.ZeroInt(),
		owed1:     sdkmath.ZeroInt(),
	}
	return id, f.positions[id].liquidity, nil
}

func (f *fakeExchange) IncreaseLiquidity(_ context.Context, position types.PositionID, amount0, amount1 sdkmath.Int) (sdkmath.Int, error) {
	p, ok := f.positions[position]
	if !ok {
		return sdkmath.ZeroInt(), errors.New("unknown position")
	}
	if err := f.debit(p.pair.Token0, amount0); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := f.debit(p.pair.Token1, amount1); err != nil {
		return sdkmath.ZeroInt(), err
	}
	p.amount0 = p.amount0.Add(amount0)
	p.amount1 = p.amount1.Add(amount1)
	p.liquidity = p.liquidity.Add(amount0).Add(amount1)
	return p.liquidity, nil
}

func (f *fakeExchange) DecreaseLiquidity(_ context.Context, position types.PositionID, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	p, ok := f.positions[position]
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.New("unknown position")
	}
	if liquidity.GT(p.liquidity) {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.New("liquidity exceeds position")
	}
	amount0 := p.amount0.Mul(liquidity).Quo(p.liquidity)
	amount1 := p.amount1.Mul(liquidity).Quo(p.liquidity)
	p.amount0 = p.amount0.Sub(amount0)
	p.amount1 = p.amount1.Sub(amount1)
	p.liquidity = p.liquidity.Sub(liquidity)
	p.owed0 = p.owed0.Add(amount0)
	p.owed1 = p.owed1.Add(amount1)
	return amount0, amount1, nil
}

func (f *fakeExchange) Collect(_ context.Context, position types.PositionID) (sdkmath.Int, sdkmath.Int, error) {
	p, ok := f.positions[position]
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.New("unknown position")
	}
	owed0, owed1 := p.owed0, p.owed1
	p.owed0, p.owed1 = sdkmath.ZeroInt(), sdkmath.ZeroInt()
	f.credit(p.pair.Token0, owed0)
	f.credit(p.pair.Token1, owed1)
	return owed0, owed1, nil
}

func (f *fakeExchange) Transfer(_ context.Context, token, to common.Address, amount sdkmath.Int) error {
	if err := f.debit(token, amount); err != nil {
		return err
	}
	if _, ok := f.received[to]; !ok {
		f.received[to] = make(map[common.Address]sdkmath.Int)
	}
	f.received[to][token] = f.receivedBy(to, token).Add(amount)
	return nil
}

func (f *fakeExchange) PoolFor(_ context.Context, pair types.Pair, feeTier uint32) (common.Address, error) {
	return common.BytesToAddress(append(pair.Token0.Bytes()[:10], pair.Token1.Bytes()[:10]...)), nil
}

func (f *fakeExchange) CurrentTick(context.Context, common.Address) (int32, error) {
	return f.tick, nil
}

func (f *fakeExchange) PositionAmounts(_ context.Context, position types.PositionID) (sdkmath.Int, sdkmath.Int, error) {
	p, ok := f.positions[position]
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.New("unknown position")
	}
	return p.amount0, p.amount1, nil
}

var _ dex.Exchange = (*fakeExchange)(nil)

// fakeEstimator quotes a flat 1:1 price, or reports an unavailable oracle.
type fakeEstimator struct {
	unavailable bool
}

func (f *fakeEstimator) EstimateAmountOut(_ context.Context, _ common.Address, _ common.Address, amountIn sdkmath.Int, _ uint32) (sdkmath.Int, error) {
	if f.unavailable {
		return sdkmath.ZeroInt(), oracle.ErrOracleUnavailable
	}
	return amountIn, nil
}

// --- Harness ---

type harness struct {
	engine    *Engine
	exchange  *fakeExchange
	stream    *fakeStream
	estimator *fakeEstimator
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithBase(t, baseToken)
}

func newHarnessWithBase(t *testing.T, base common.Address) *harness {
	t.Helper()

	exchange := newFakeExchange()
	str := &fakeStream{base: base, balance: sdkmath.ZeroInt(), exchange: exchange}
	estimator := &fakeEstimator{}

	engine, err := NewEngine(Config{
		Exchange:        exchange,
		Stream:          str,
		Estimator:       estimator,
		Policy:          ticks.NewSymmetricPolicy(0),
		Beneficiary:     beneficiary,
		FeeTier:         3000,
		LookbackSeconds: 60,
		SlippageBps:     50,
		MinFunding:      sdkmath.NewInt(10),
	})
	require.NoError(t, err)

	return &harness{engine: engine, exchange: exchange, stream: str, estimator: estimator}
}

func (h *harness) fund(amount int64) {
	h.stream.balance = h.stream.balance.Add(sdkmath.NewInt(amount))
}

// requireExclusive asserts that no pair is simultaneously pending and
// backed by a minted position.
func requireExclusive(t *testing.T, e *Engine) {
	t.Helper()
	for _, pair := range e.PendingPairs() {
		d, err := e.GetDeposit(pair.Token0, pair.Token1)
		require.NoError(t, err)
		require.False(t, d.Provisioned(), "pair %s is pending and provisioned", pair)
	}
}

// requireCountConsistent asserts the count always equals the enumerable keys.
func requireCountConsistent(t *testing.T, e *Engine) {
	t.Helper()
	require.Len(t, e.Deposits(), e.GetNumDeposits())
}

// --- Tests ---

func TestMaintainPositionNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// no positions, no funds: repeated calls must never fail or mutate state
	for i := 0; i < 10; i++ {
		receipt, err := h.engine.MaintainPosition(ctx)
		require.NoError(t, err)
		assert.True(t, receipt.Success)
		assert.Empty(t, receipt.Actions)
		assert.Equal(t, 0, h.engine.GetNumDeposits())
	}
}

func TestOrderNewDepositValidation(t *testing.T) {
	h := newHarness(t)

	t.Run("IdenticalTokens", func(t *testing.T) {
		err := h.engine.OrderNewDeposit(baseToken, baseToken)
		require.ErrorIs(t, err, ErrIdenticalTokens)
	})

	t.Run("PairMissingBaseAsset", func(t *testing.T) {
		err := h.engine.OrderNewDeposit(pairedToken, otherToken)
		require.ErrorIs(t, err, ErrPairMissingBaseAsset)
	})

	t.Run("DuplicateWhileQueued", func(t *testing.T) {
		require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
		// canonicalization makes the reversed order the same pair
		err := h.engine.OrderNewDeposit(pairedToken, baseToken)
		require.ErrorIs(t, err, ErrAlreadyQueued)
	})
}

func TestEndToEndLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// fund and order
	h.fund(1_000_000)
	require.Equal(t, 0, h.engine.GetNumDeposits())
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
	require.Equal(t, 1, h.engine.GetNumDeposits())
	require.Len(t, h.engine.PendingPairs(), 1)
	requireExclusive(t, h.engine)
	requireCountConsistent(t, h.engine)

	// first maintenance call mints the position and consumes the stream balance
	receipt, err := h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	require.True(t, receipt.Success)
	assert.Equal(t, int64(1_000_000), receipt.Redeemed.Int64())
	assert.True(t, h.stream.balance.IsZero(), "stream balance must be fully redeemed")

	d, err := h.engine.GetDeposit(baseToken, pairedToken)
	require.NoError(t, err)
	pair := types.NewPair(baseToken, pairedToken)
	assert.Equal(t, pair.Token0, d.Pair.Token0)
	assert.Equal(t, pair.Token1, d.Pair.Token1)
	require.True(t, d.Provisioned())
	require.True(t, d.Liquidity.IsPositive())
	assert.Empty(t, h.engine.PendingPairs(), "provisioned pair must leave the queue")
	requireExclusive(t, h.engine)
	requireCountConsistent(t, h.engine)

	// balance conservation: everything redeemed went through swap + deposit
	require.Len(t, receipt.Actions, 1)
	action := receipt.Actions[0]
	assert.Equal(t, types.ActionMint, action.Kind)
	consumed := action.SwapIn.Add(action.Amount0) // base side kept + base side swapped
	if pair.Token0 != baseToken {
		consumed = action.SwapIn.Add(action.Amount1)
	}
	assert.Equal(t, receipt.Redeemed, consumed)
	assert.True(t, h.exchange.balance(baseToken).IsZero())

	// second funded cycle strictly increases liquidity
	h.fund(1_000_000)
	receipt, err = h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	require.Len(t, receipt.Actions, 1)
	assert.Equal(t, types.ActionIncrease, receipt.Actions[0].Kind)

	d2, err := h.engine.GetDeposit(baseToken, pairedToken)
	require.NoError(t, err)
	require.Equal(t, 1, h.engine.GetNumDeposits())
	assert.True(t, d2.Liquidity.GT(d.Liquidity), "liquidity must strictly increase")

	// the position reports its principal
	amounts, err := h.engine.GetDepositAmounts(ctx, baseToken, pairedToken)
	require.NoError(t, err)
	assert.True(t, amounts.Amount0.IsPositive())
	assert.True(t, amounts.Amount1.IsPositive())

	// removal forwards all proceeds to the beneficiary and clears the record
	require.NoError(t, h.engine.RemoveDeposit(ctx, baseToken, pairedToken))
	assert.Equal(t, 0, h.engine.GetNumDeposits())
	requireCountConsistent(t, h.engine)
	assert.True(t, h.exchange.receivedBy(beneficiary, pair.Token0).IsPositive())
	assert.True(t, h.exchange.receivedBy(beneficiary, pair.Token1).IsPositive())

	// ordering again after removal works
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
	require.Equal(t, 1, h.engine.GetNumDeposits())
}

func TestDuplicateOrderAfterProvisioning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fund(1_000_000)
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
	_, err := h.engine.MaintainPosition(ctx)
	require.NoError(t, err)

	err = h.engine.OrderNewDeposit(baseToken, pairedToken)
	require.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestPendingOrderBelowFundingFloorStaysQueued(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
	h.fund(5) // below the MinFunding of 10

	receipt, err := h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Empty(t, receipt.Actions)
	require.Len(t, h.engine.PendingPairs(), 1)

	d, err := h.engine.GetDeposit(baseToken, pairedToken)
	require.NoError(t, err)
	assert.False(t, d.Provisioned())
}

func TestOracleUnavailableFallsBackToDefaultSplit(t *testing.T) {
	h := newHarness(t)
	h.estimator.unavailable = true
	ctx := context.Background()

	h.fund(1_000_000)
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))

	receipt, err := h.engine.MaintainPosition(ctx)
	require.NoError(t, err, "oracle unavailability must not abort the cycle")
	require.Len(t, receipt.Actions, 1)
	assert.True(t, receipt.Actions[0].Liquidity.IsPositive())
}

func TestSwapFailureAbortsAndRestoresQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fund(1_000_000)
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))

	h.exchange.failSwap = errors.New("pool paused")
	_, err := h.engine.MaintainPosition(ctx)
	require.Error(t, err)

	// the pending order survives the abort so a retry can pick it up
	require.Len(t, h.engine.PendingPairs(), 1)
	d, err := h.engine.GetDeposit(baseToken, pairedToken)
	require.NoError(t, err)
	assert.False(t, d.Provisioned())
	requireExclusive(t, h.engine)

	// the redeemed balance sits in custody and the retry provisions from it
	h.exchange.failSwap = nil
	_, err = h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	d, err = h.engine.GetDeposit(baseToken, pairedToken)
	require.NoError(t, err)
	assert.True(t, d.Provisioned())
}

func TestCollectFees(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*harness, types.Deposit) {
		h := newHarness(t)
		h.fund(1_000_000)
		require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
		_, err := h.engine.MaintainPosition(ctx)
		require.NoError(t, err)
		d, err := h.engine.GetDeposit(baseToken, pairedToken)
		require.NoError(t, err)
		return h, d
	}

	t.Run("NotFound", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.engine.CollectFees(ctx, baseToken, pairedToken, false)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("NotFoundWhileOnlyQueued", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
		_, _, err := h.engine.CollectFees(ctx, baseToken, pairedToken, false)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ZeroFeesIsLossFreeNoOp", func(t *testing.T) {
		h, d := setup(t)

		fee0, fee1, err := h.engine.CollectFees(ctx, baseToken, pairedToken, true)
		require.NoError(t, err)
		assert.True(t, fee0.IsZero())
		assert.True(t, fee1.IsZero())
		assert.True(t, h.exchange.receivedBy(beneficiary, baseToken).IsZero())
		assert.True(t, h.exchange.receivedBy(beneficiary, pairedToken).IsZero())

		// liquidity untouched
		after, err := h.engine.GetDeposit(baseToken, pairedToken)
		require.NoError(t, err)
		assert.True(t, after.Liquidity.Equal(d.Liquidity))
	})

	t.Run("ConvertForwardsSingleAsset", func(t *testing.T) {
		h, d := setup(t)
		p := h.exchange.positions[d.Position]
		p.owed0 = sdkmath.NewInt(700)
		p.owed1 = sdkmath.NewInt(300)

		fee0, fee1, err := h.engine.CollectFees(ctx, baseToken, pairedToken, true)
		require.NoError(t, err)
		assert.Equal(t, int64(700), fee0.Int64())
		assert.Equal(t, int64(300), fee1.Int64())

		// with a flat 1:1 price the beneficiary receives the sum in base
		assert.Equal(t, int64(1000), h.exchange.receivedBy(beneficiary, baseToken).Int64())
		assert.True(t, h.exchange.receivedBy(beneficiary, pairedToken).IsZero())
	})

	t.Run("NoConvertForwardsBothAssets", func(t *testing.T) {
		h, d := setup(t)
		p := h.exchange.positions[d.Position]
		p.owed0 = sdkmath.NewInt(700)
		p.owed1 = sdkmath.NewInt(300)

		_, _, err := h.engine.CollectFees(ctx, baseToken, pairedToken, false)
		require.NoError(t, err)

		pair := types.NewPair(baseToken, pairedToken)
		assert.Equal(t, int64(700), h.exchange.receivedBy(beneficiary, pair.Token0).Int64())
		assert.Equal(t, int64(300), h.exchange.receivedBy(beneficiary, pair.Token1).Int64())
	})
}

func TestRemoveDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.RemoveDeposit(ctx, baseToken, pairedToken)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CancelUnprovisionedOrder", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
		require.Equal(t, 1, h.engine.GetNumDeposits())

		require.NoError(t, h.engine.RemoveDeposit(ctx, baseToken, pairedToken))
		assert.Equal(t, 0, h.engine.GetNumDeposits())
		assert.Empty(t, h.engine.PendingPairs())
		requireCountConsistent(t, h.engine)
	})

	t.Run("RemovalCollectsResidualFees", func(t *testing.T) {
		h := newHarness(t)
		h.fund(1_000_000)
		require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
		_, err := h.engine.MaintainPosition(ctx)
		require.NoError(t, err)

		d, err := h.engine.GetDeposit(baseToken, pairedToken)
		require.NoError(t, err)
		p := h.exchange.positions[d.Position]
		p.owed0 = sdkmath.NewInt(11)
		p.owed1 = sdkmath.NewInt(13)
		principal0, principal1 := p.amount0, p.amount1

		require.NoError(t, h.engine.RemoveDeposit(ctx, baseToken, pairedToken))
		assert.Equal(t, 0, h.engine.GetNumDeposits())

		pair := types.NewPair(baseToken, pairedToken)
		assert.Equal(t, principal0.AddRaw(11), h.exchange.receivedBy(beneficiary, pair.Token0))
		assert.Equal(t, principal1.AddRaw(13), h.exchange.receivedBy(beneficiary, pair.Token1))
	})
}

func TestAllocationWithBaseAsToken1(t *testing.T) {
	h := newHarnessWithBase(t, highBaseToken)
	ctx := context.Background()

	pair := types.NewPair(highBaseToken, pairedToken)
	require.Equal(t, pairedToken, pair.Token0)
	require.Equal(t, highBaseToken, pair.Token1)

	// mint centered on the current tick: an even split either way
	h.fund(1_000_000)
	require.NoError(t, h.engine.OrderNewDeposit(highBaseToken, pairedToken))
	receipt, err := h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	require.Len(t, receipt.Actions, 1)
	mint := receipt.Actions[0]
	assert.Equal(t, int64(500_000), mint.SwapIn.Int64())
	assert.Equal(t, int64(500_000), mint.Amount0.Int64())
	assert.Equal(t, int64(500_000), mint.Amount1.Int64())

	// near the range top the position is almost all token1, which is the
	// base here, so nearly the whole allocation must stay unswapped
	h.exchange.tick = 900 // stored range is [-960, 960]
	h.fund(1_000_000)
	receipt, err = h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	require.Len(t, receipt.Actions, 1)
	topUp := receipt.Actions[0]
	assert.Equal(t, types.ActionIncrease, topUp.Kind)

	// token1 share is (900+960)/1920, leaving 1/32 of the allocation to swap
	assert.Equal(t, int64(31_250), topUp.SwapIn.Int64())
	assert.Equal(t, int64(31_250), topUp.Amount0.Int64())
	assert.Equal(t, int64(968_750), topUp.Amount1.Int64())
	assert.True(t, topUp.Amount1.GT(topUp.Amount0), "deposit must lean toward the token1 side the range requires")
}

func TestFundingFloorAppliesPerOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, otherToken))
	h.fund(15) // above MinFunding in aggregate, below it split two ways

	receipt, err := h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	require.Len(t, receipt.Actions, 1, "only the order whose allocation clears the floor may provision")
	assert.Equal(t, types.ActionMint, receipt.Actions[0].Kind)

	first, err := h.engine.GetDeposit(baseToken, pairedToken)
	require.NoError(t, err)
	assert.True(t, first.Provisioned())

	second, err := h.engine.GetDeposit(baseToken, otherToken)
	require.NoError(t, err)
	assert.False(t, second.Provisioned())
	require.Len(t, h.engine.PendingPairs(), 1)
	assert.Equal(t, types.NewPair(baseToken, otherToken), h.engine.PendingPairs()[0])
	requireExclusive(t, h.engine)
	requireCountConsistent(t, h.engine)
}

func TestMultiplePairsShareAllocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fund(1_000_000)
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, pairedToken))
	require.NoError(t, h.engine.OrderNewDeposit(baseToken, otherToken))
	require.Equal(t, 2, h.engine.GetNumDeposits())

	receipt, err := h.engine.MaintainPosition(ctx)
	require.NoError(t, err)
	require.Len(t, receipt.Actions, 2)
	for _, action := range receipt.Actions {
		assert.Equal(t, types.ActionMint, action.Kind)
		assert.True(t, action.Liquidity.IsPositive())
	}
	assert.Empty(t, h.engine.PendingPairs())
	requireCountConsistent(t, h.engine)
}
