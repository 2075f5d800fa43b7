package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/streamlp/lpm/internal/chain"
	"github.com/streamlp/lpm/internal/logger"
	"github.com/streamlp/lpm/internal/oracle"
	"github.com/streamlp/lpm/internal/types"
)

// txDeadline bounds how long a submitted swap or liquidity transaction may
// sit in the mempool before the pool rejects it.
const txDeadline = 5 * time.Minute

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Uniswap implements Exchange against a deployed Uniswap V3 factory, swap
// router, and nonfungible position manager. It also serves as the
// observation source for TWAP estimation, reading the pools' cumulative
// tick accumulators.
type Uniswap struct {
	client          *chain.Client
	factory         common.Address
	router          common.Address
	positionManager common.Address
	feeTier         uint32
	logger          zerolog.Logger
}

// NewUniswap builds the live exchange backend. feeTier selects the fee
// bracket swaps are routed through.
func NewUniswap(client *chain.Client, factory, router, positionManager common.Address, feeTier uint32) *Uniswap {
	return &Uniswap{
		client:          client,
		factory:         factory,
		router:          router,
		positionManager: positionManager,
		feeTier:         feeTier,
		logger:          logger.GetForComponent("uniswap_exchange"),
	}
}

var _ Exchange = (*Uniswap)(nil)
var _ oracle.ObservationSource = (*Uniswap)(nil)

// BalanceOf implements Exchange.
func (u *Uniswap) BalanceOf(ctx context.Context, token common.Address) (sdkmath.Int, error) {
	erc20, err := ERC20ABI()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	data, err := erc20.Pack("balanceOf", u.client.Account())
	if err != nil {
		return sdkmath.ZeroInt(), &CallError{Op: "balanceOf", Err: err}
	}
	out, err := u.client.Call(ctx, token, data)
	if err != nil {
		return sdkmath.ZeroInt(), &CallError{Op: "balanceOf", Err: err}
	}
	results, err := erc20.Unpack("balanceOf", out)
	if err != nil {
		return sdkmath.ZeroInt(), &CallError{Op: "balanceOf", Err: err}
	}
	return sdkmath.NewIntFromBigInt(results[0].(*big.Int)), nil
}

// Swap implements Exchange. The realized output is measured as the engine
// account's tokenOut balance difference around the router call, not the
// router's quoted value.
func (u *Uniswap) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	if err := u.ensureAllowance(ctx, tokenIn, u.router, amountIn); err != nil {
		return sdkmath.ZeroInt(), err
	}

	before, err := u.BalanceOf(ctx, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	router, err := SwapRouterABI()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               big.NewInt(int64(u.feeTier)),
		Recipient:         u.client.Account(),
		Deadline:          deadline(),
		AmountIn:          amountIn.BigInt(),
		AmountOutMinimum:  minOut.BigInt(),
		SqrtPriceLimitX96: big.NewInt(0),
	}
	data, err := router.Pack("exactInputSingle", params)
	if err != nil {
		return sdkmath.ZeroInt(), &CallError{Op: "exactInputSingle", Err: err}
	}
	if _, err := u.client.Send(ctx, u.router, data); err != nil {
		return sdkmath.ZeroInt(), &CallError{Op: "exactInputSingle", Err: err}
	}

	after, err := u.BalanceOf(ctx, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	realized := after.Sub(before)

	u.logger.Debug().
		Str("tokenIn", tokenIn.Hex()).
		Str("tokenOut", tokenOut.Hex()).
		Str("amountIn", amountIn.String()).
		Str("realizedOut", realized.String()).
		Msg("Swap executed")

	return realized, nil
}

// MintPosition implements Exchange.
func (u *Uniswap) MintPosition(ctx context.Context, pair types.Pair, feeTier uint32, tickLower, tickUpper int32, amount0, amount1 sdkmath.Int) (types.PositionID, sdkmath.Int, error) {
	if err := u.ensureAllowance(ctx, pair.Token0, u.positionManager, amount0); err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), err
	}
	if err := u.ensureAllowance(ctx, pair.Token1, u.positionManager, amount1); err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), err
	}

	manager, err := PositionManagerABI()
	if err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), err
	}
	params := struct {
		Token0         common.Address
		Token1         common.Address
		Fee            *big.Int
		TickLower      *big.Int
		TickUpper      *big.Int
		Amount0Desired *big.Int
		Amount1Desired *big.Int
		Amount0Min     *big.Int
		Amount1Min     *big.Int
		Recipient      common.Address
		Deadline       *big.Int
	}{
		Token0:         pair.Token0,
		Token1:         pair.Token1,
		Fee:            big.NewInt(int64(feeTier)),
		TickLower:      big.NewInt(int64(tickLower)),
		TickUpper:      big.NewInt(int64(tickUpper)),
		Amount0Desired: amount0.BigInt(),
		Amount1Desired: amount1.BigInt(),
		Amount0Min:     big.NewInt(0),
		Amount1Min:     big.NewInt(0),
		Recipient:      u.client.Account(),
		Deadline:       deadline(),
	}
	data, err := manager.Pack("mint", params)
	if err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), &CallError{Op: "mint", Err: err}
	}
	receipt, err := u.client.Send(ctx, u.positionManager, data)
	if err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), &CallError{Op: "mint", Err: err}
	}

	tokenID, liquidity, err := parseIncreaseLiquidity(manager, u.positionManager, receipt)
	if err != nil {
		return types.NoPosition, sdkmath.ZeroInt(), &CallError{Op: "mint", Err: err}
	}

	u.logger.Info().
		Stringer("pair", pair).
		Str("tokenId", tokenID.String()).
		Str("liquidity", liquidity.String()).
		Msg("Position minted")

	return types.PositionID(tokenID.String()), sdkmath.NewIntFromBigInt(liquidity), nil
}

// IncreaseLiquidity implements Exchange, returning the position's new total
// liquidity as reported by the position manager.
func (u *Uniswap) IncreaseLiquidity(ctx context.Context, position types.PositionID, amount0, amount1 sdkmath.Int) (sdkmath.Int, error) {
	tokenID, err := parsePositionID(position)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	state, err := u.readPosition(ctx, tokenID)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := u.ensureAllowance(ctx, state.token0, u.positionManager, amount0); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := u.ensureAllowance(ctx, state.token1, u.positionManager, amount1); err != nil {
		return sdkmath.ZeroInt(), err
	}

	manager, err := PositionManagerABI()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	params := struct {
		TokenId        *big.Int
		Amount0Desired *big.Int
		Amount1Desired *big.Int
		Amount0Min     *big.Int
		Amount1Min     *big.Int
		Deadline       *big.Int
	}{
		TokenId:        tokenID,
		Amount0Desired: amount0.BigInt(),
		Amount1Desired: amount1.BigInt(),
		Amount0Min:     big.NewInt(0),
		Amount1Min:     big.NewInt(0),
		Deadline:       deadline(),
	}
	data, err := manager.Pack("increaseLiquidity", params)
	if err != nil {
		return sdkmath.ZeroInt(), &CallError{Op: "increaseLiquidity", Err: err}
	}
	if _, err := u.client.Send(ctx, u.positionManager, data); err != nil {
		return sdkmath.ZeroInt(), &CallError{Op: "increaseLiquidity", Err: err}
	}

	state, err = u.readPosition(ctx, tokenID)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.NewIntFromBigInt(state.liquidity), nil
}

// DecreaseLiquidity implements Exchange. The released amounts stay owed on
// the position manager until claimed through Collect.
func (u *Uniswap) DecreaseLiquidity(ctx context.Context, position types.PositionID, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	tokenID, err := parsePositionID(position)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	manager, err := PositionManagerABI()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	params := struct {
		TokenId    *big.Int
		Liquidity  *big.Int
		Amount0Min *big.Int
		Amount1Min *big.Int
		Deadline   *big.Int
	}{
		TokenId:    tokenID,
		Liquidity:  liquidity.BigInt(),
		Amount0Min: big.NewInt(0),
		Amount1Min: big.NewInt(0),
		Deadline:   deadline(),
	}
	data, err := manager.Pack("decreaseLiquidity", params)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), &CallError{Op: "decreaseLiquidity", Err: err}
	}
	receipt, err := u.client.Send(ctx, u.positionManager, data)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), &CallError{Op: "decreaseLiquidity", Err: err}
	}

	amount0, amount1, err := parseDecreaseLiquidity(manager, u.positionManager, receipt)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), &CallError{Op: "decreaseLiquidity", Err: err}
	}
	return sdkmath.NewIntFromBigInt(amount0), sdkmath.NewIntFromBigInt(amount1), nil
}

// Collect implements Exchange, claiming everything the position currently
// owes the engine account.
func (u *Uniswap) Collect(ctx context.Context, position types.PositionID) (sdkmath.Int, sdkmath.Int, error) {
	tokenID, err := parsePositionID(position)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	manager, err := PositionManagerABI()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	params := struct {
		TokenId    *big.Int
		Recipient  common.Address
		Amount0Max *big.Int
		Amount1Max *big.Int
	}{
		TokenId:    tokenID,
		Recipient:  u.client.Account(),
		Amount0Max: maxUint128,
		Amount1Max: maxUint128,
	}
	data, err := manager.Pack("collect", params)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), &CallError{Op: "collect", Err: err}
	}
	receipt, err := u.client.Send(ctx, u.positionManager, data)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), &CallError{Op: "collect", Err: err}
	}

	amount0, amount1, err := parseCollect(manager, u.positionManager, receipt)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), &CallError{Op: "collect", Err: err}
	}
	return sdkmath.NewIntFromBigInt(amount0), sdkmath.NewIntFromBigInt(amount1), nil
}

// Transfer implements Exchange.
func (u *Uniswap) Transfer(ctx context.Context, token, to common.Address, amount sdkmath.Int) error {
	erc20, err := ERC20ABI()
	if err != nil {
		return err
	}
	data, err := erc20.Pack("transfer", to, amount.BigInt())
	if err != nil {
		return &CallError{Op: "transfer", Err: err}
	}
	if _, err := u.client.Send(ctx, token, data); err != nil {
		return &CallError{Op: "transfer", Err: err}
	}
	return nil
}

// PoolFor implements Exchange.
func (u *Uniswap) PoolFor(ctx context.Context, pair types.Pair, feeTier uint32) (common.Address, error) {
	factory, err := V3FactoryABI()
	if err != nil {
		return common.Address{}, err
	}
	data, err := factory.Pack("getPool", pair.Token0, pair.Token1, big.NewInt(int64(feeTier)))
	if err != nil {
		return common.Address{}, &CallError{Op: "getPool", Err: err}
	}
	out, err := u.client.Call(ctx, u.factory, data)
	if err != nil {
		return common.Address{}, &CallError{Op: "getPool", Err: err}
	}
	results, err := factory.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, &CallError{Op: "getPool", Err: err}
	}
	pool := results[0].(common.Address)
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s fee %d", ErrPoolNotFound, pair, feeTier)
	}
	return pool, nil
}

// CurrentTick implements Exchange.
func (u *Uniswap) CurrentTick(ctx context.Context, pool common.Address) (int32, error) {
	_, tick, err := u.slot0(ctx, pool)
	return tick, err
}

// PositionAmounts implements Exchange, deriving the principal from the
// position's liquidity and the pool's current price.
func (u *Uniswap) PositionAmounts(ctx context.Context, position types.PositionID) (sdkmath.Int, sdkmath.Int, error) {
	tokenID, err := parsePositionID(position)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	state, err := u.readPosition(ctx, tokenID)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	pool, err := u.PoolFor(ctx, types.NewPair(state.token0, state.token1), state.feeTier)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	sqrtPriceX96, _, err := u.slot0(ctx, pool)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	amount0, amount1 := PrincipalAmounts(state.liquidity, sqrtPriceX96, state.tickLower, state.tickUpper)
	return sdkmath.NewIntFromBigInt(amount0), sdkmath.NewIntFromBigInt(amount1), nil
}

// Observe implements oracle.ObservationSource. A pool that cannot cover the
// oldest offset reverts with "OLD"; that condition is reported as
// oracle.ErrOracleUnavailable.
func (u *Uniswap) Observe(ctx context.Context, pool common.Address, secondsAgos []uint32) ([]*big.Int, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}
	data, err := poolABI.Pack("observe", secondsAgos)
	if err != nil {
		return nil, &CallError{Op: "observe", Err: err}
	}
	out, err := u.client.Call(ctx, pool, data)
	if err != nil {
		if strings.Contains(err.Error(), "OLD") {
			return nil, oracle.ErrOracleUnavailable
		}
		return nil, &CallError{Op: "observe", Err: err}
	}
	results, err := poolABI.Unpack("observe", out)
	if err != nil {
		return nil, &CallError{Op: "observe", Err: err}
	}
	cumulatives, ok := results[0].([]*big.Int)
	if !ok {
		return nil, &CallError{Op: "observe", Err: fmt.Errorf("unexpected tick cumulative type %T", results[0])}
	}
	return cumulatives, nil
}

// PoolTokens implements oracle.ObservationSource.
func (u *Uniswap) PoolTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := u.callAddress(ctx, poolABI, pool, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := u.callAddress(ctx, poolABI, pool, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0, token1, nil
}

// --- internals ---

type positionState struct {
	token0    common.Address
	token1    common.Address
	feeTier   uint32
	tickLower int32
	tickUpper int32
	liquidity *big.Int
}

func (u *Uniswap) readPosition(ctx context.Context, tokenID *big.Int) (positionState, error) {
	manager, err := PositionManagerABI()
	if err != nil {
		return positionState{}, err
	}
	data, err := manager.Pack("positions", tokenID)
	if err != nil {
		return positionState{}, &CallError{Op: "positions", Err: err}
	}
	out, err := u.client.Call(ctx, u.positionManager, data)
	if err != nil {
		return positionState{}, &CallError{Op: "positions", Err: err}
	}
	results, err := manager.Unpack("positions", out)
	if err != nil {
		return positionState{}, &CallError{Op: "positions", Err: err}
	}
	return positionState{
		token0:    results[2].(common.Address),
		token1:    results[3].(common.Address),
		feeTier:   uint32(results[4].(*big.Int).Uint64()),
		tickLower: int32(results[5].(*big.Int).Int64()),
		tickUpper: int32(results[6].(*big.Int).Int64()),
		liquidity: results[7].(*big.Int),
	}, nil
}

func (u *Uniswap) slot0(ctx context.Context, pool common.Address) (*big.Int, int32, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, 0, err
	}
	data, err := poolABI.Pack("slot0")
	if err != nil {
		return nil, 0, &CallError{Op: "slot0", Err: err}
	}
	out, err := u.client.Call(ctx, pool, data)
	if err != nil {
		return nil, 0, &CallError{Op: "slot0", Err: err}
	}
	results, err := poolABI.Unpack("slot0", out)
	if err != nil {
		return nil, 0, &CallError{Op: "slot0", Err: err}
	}
	sqrtPriceX96 := results[0].(*big.Int)
	tick := int32(results[1].(*big.Int).Int64())
	return sqrtPriceX96, tick, nil
}

func (u *Uniswap) callAddress(ctx context.Context, contractABI abi.ABI, target common.Address, method string) (common.Address, error) {
	data, err := contractABI.Pack(method)
	if err != nil {
		return common.Address{}, &CallError{Op: method, Err: err}
	}
	out, err := u.client.Call(ctx, target, data)
	if err != nil {
		return common.Address{}, &CallError{Op: method, Err: err}
	}
	results, err := contractABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, &CallError{Op: method, Err: err}
	}
	return results[0].(common.Address), nil
}

// ensureAllowance approves the spender for an unlimited allowance when the
// current allowance cannot cover amount. One approval per token and spender
// then lasts for the engine's lifetime.
func (u *Uniswap) ensureAllowance(ctx context.Context, token, spender common.Address, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	erc20, err := ERC20ABI()
	if err != nil {
		return err
	}
	data, err := erc20.Pack("allowance", u.client.Account(), spender)
	if err != nil {
		return &CallError{Op: "allowance", Err: err}
	}
	out, err := u.client.Call(ctx, token, data)
	if err != nil {
		return &CallError{Op: "allowance", Err: err}
	}
	results, err := erc20.Unpack("allowance", out)
	if err != nil {
		return &CallError{Op: "allowance", Err: err}
	}
	if results[0].(*big.Int).Cmp(amount.BigInt()) >= 0 {
		return nil
	}

	unlimited := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	approveData, err := erc20.Pack("approve", spender, unlimited)
	if err != nil {
		return &CallError{Op: "approve", Err: err}
	}
	if _, err := u.client.Send(ctx, token, approveData); err != nil {
		return &CallError{Op: "approve", Err: err}
	}

	u.logger.Info().
		Str("token", token.Hex()).
		Str("spender", spender.Hex()).
		Msg("Token allowance granted")
	return nil
}

func parseIncreaseLiquidity(manager abi.ABI, emitter common.Address, receipt *ethtypes.Receipt) (*big.Int, *big.Int, error) {
	topic := manager.Events["IncreaseLiquidity"].ID
	for _, log := range receipt.Logs {
		if log.Address != emitter || len(log.Topics) < 2 || log.Topics[0] != topic {
			continue
		}
		tokenID := new(big.Int).SetBytes(log.Topics[1].Bytes())
		fields, err := manager.Unpack("IncreaseLiquidity", log.Data)
		if err != nil {
			return nil, nil, err
		}
		return tokenID, fields[0].(*big.Int), nil
	}
	return nil, nil, fmt.Errorf("receipt %s carries no IncreaseLiquidity event", receipt.TxHash.Hex())
}

func parseDecreaseLiquidity(manager abi.ABI, emitter common.Address, receipt *ethtypes.Receipt) (*big.Int, *big.Int, error) {
	topic := manager.Events["DecreaseLiquidity"].ID
	for _, log := range receipt.Logs {
		if log.Address != emitter || len(log.Topics) < 2 || log.Topics[0] != topic {
			continue
		}
		fields, err := manager.Unpack("DecreaseLiquidity", log.Data)
		if err != nil {
			return nil, nil, err
		}
		return fields[1].(*big.Int), fields[2].(*big.Int), nil
	}
	return nil, nil, fmt.Errorf("receipt %s carries no DecreaseLiquidity event", receipt.TxHash.Hex())
}

func parseCollect(manager abi.ABI, emitter common.Address, receipt *ethtypes.Receipt) (*big.Int, *big.Int, error) {
	topic := manager.Events["Collect"].ID
	for _, log := range receipt.Logs {
		if log.Address != emitter || len(log.Topics) < 2 || log.Topics[0] != topic {
			continue
		}
		fields, err := manager.Unpack("Collect", log.Data)
		if err != nil {
			return nil, nil, err
		}
		return fields[1].(*big.Int), fields[2].(*big.Int), nil
	}
	return nil, nil, fmt.Errorf("receipt %s carries no Collect event", receipt.TxHash.Hex())
}

func parsePositionID(position types.PositionID) (*big.Int, error) {
	tokenID, ok := new(big.Int).SetString(string(position), 10)
	if !ok {
		return nil, fmt.Errorf("position handle %q is not a token ID", position)
	}
	return tokenID, nil
}

func deadline() *big.Int {
	return big.NewInt(time.Now().Add(txDeadline).Unix())
}
