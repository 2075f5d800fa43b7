package stream

import (
	"context"
	"math/big"
	"strings"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/streamlp/lpm/internal/chain"
	"github.com/streamlp/lpm/internal/dex"
	"github.com/streamlp/lpm/internal/logger"
)

// The super token is the wrapped, streamable form of the base asset. Its
// balanceOf reflects real-time accrual from open streams; downgrade
// unwraps a held amount back into the underlying asset 1:1.
const superTokenABIJSON = `[
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "amount", "type": "uint256"}], "name": "downgrade", "outputs": [], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	superTokenABI     abi.ABI
	superTokenABIOnce sync.Once
	superTokenABIErr  error
)

func superTokenABIInstance() (abi.ABI, error) {
	superTokenABIOnce.Do(func() {
		superTokenABI, superTokenABIErr = abi.JSON(strings.NewReader(superTokenABIJSON))
	})
	return superTokenABI, superTokenABIErr
}

// SuperToken is the live Protocol implementation over a deployed streaming
// super token and its underlying base asset.
type SuperToken struct {
	client *chain.Client
	token  common.Address
	base   common.Address
	logger zerolog.Logger
}

// NewSuperToken builds the live stream protocol binding. token is the
// streamable super token, base the underlying asset it downgrades into.
func NewSuperToken(client *chain.Client, token, base common.Address) *SuperToken {
	return &SuperToken{
		client: client,
		token:  token,
		base:   base,
		logger: logger.GetForComponent("stream_protocol"),
	}
}

var _ Protocol = (*SuperToken)(nil)

// RedeemableBalance implements Protocol.
func (s *SuperToken) RedeemableBalance(ctx context.Context) (sdkmath.Int, error) {
	parsed, err := superTokenABIInstance()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	data, err := parsed.Pack("balanceOf", s.client.Account())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	out, err := s.client.Call(ctx, s.token, data)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	results, err := parsed.Unpack("balanceOf", out)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.NewIntFromBigInt(results[0].(*big.Int)), nil
}

// Redeem implements Protocol. The realized base-asset amount is measured as
// the underlying balance difference around the downgrade call.
func (s *SuperToken) Redeem(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	before, err := s.baseBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	parsed, err := superTokenABIInstance()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	data, err := parsed.Pack("downgrade", amount.BigInt())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if _, err := s.client.Send(ctx, s.token, data); err != nil {
		return sdkmath.ZeroInt(), err
	}

	after, err := s.baseBalance(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	realized := after.Sub(before)

	s.logger.Info().
		Str("requested", amount.String()).
		Str("realized", realized.String()).
		Msg("Stream balance downgraded to base asset")

	return realized, nil
}

// BaseAsset implements Protocol.
func (s *SuperToken) BaseAsset() common.Address {
	return s.base
}

func (s *SuperToken) baseBalance(ctx context.Context) (sdkmath.Int, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	data, err := erc20.Pack("balanceOf", s.client.Account())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	out, err := s.client.Call(ctx, s.base, data)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	results, err := erc20.Unpack("balanceOf", out)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.NewIntFromBigInt(results[0].(*big.Int)), nil
}
