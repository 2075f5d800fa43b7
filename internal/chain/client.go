package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/streamlp/lpm/internal/logger"
)

var (
	ErrTxReverted     = errors.New("transaction reverted on chain")
	ErrMissingSigner  = errors.New("client has no signing key configured")
	ErrInvalidKey     = errors.New("signing key is invalid")
	ErrDialFailed     = errors.New("RPC connection failed")
	ErrReceiptTimeout = errors.New("transaction receipt not available")
)

// Client wraps go-ethereum RPC with read helpers and, when a signing key is
// configured, transaction submission. A single account nonce is managed
// behind a mutex so callers can submit transactions sequentially without
// racing the pending pool.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	chainID   *big.Int
	logger    zerolog.Logger

	key  *ecdsa.PrivateKey
	from common.Address

	txMu sync.Mutex
}

// NewClient dials the RPC endpoint. privateKeyHex may be empty for a
// read-only client; any write then fails with ErrMissingSigner.
func NewClient(ctx context.Context, rpcURL, privateKeyHex string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Join(ErrDialFailed, err)
	}

	ethClient := ethclient.NewClient(rpcClient)
	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, errors.Join(ErrDialFailed, fmt.Errorf("reading chain ID: %w", err))
	}

	c := &Client{
		rpcClient: rpcClient,
		ethClient: ethClient,
		chainID:   chainID,
		logger:    logger.GetForComponent("chain_client"),
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, errors.Join(ErrInvalidKey, err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	c.logger.Info().
		Str("chainID", chainID.String()).
		Str("account", c.from.Hex()).
		Bool("readOnly", c.key == nil).
		Msg("Chain client connected")

	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Account returns the address transactions are signed from.
func (c *Client) Account() common.Address {
	return c.from
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Call performs an eth_call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ethClient.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: data,
	}, nil)
}

// Send signs, submits, and waits for a transaction carrying data to the
// target contract, returning the mined receipt. A reverted transaction is
// an error.
func (c *Client) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	if c.key == nil {
		return nil, ErrMissingSigner
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	nonce, err := c.ethClient.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("reading account nonce: %w", err)
	}
	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading gas price: %w", err)
	}
	gasLimit, err := c.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.from,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimating gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit + gasLimit/5, // headroom over the estimate
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	if err := c.ethClient.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcasting transaction: %w", err)
	}

	c.logger.Debug().
		Str("txHash", signed.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Msg("Transaction submitted, awaiting receipt")

	receipt, err := bind.WaitMined(ctx, c.ethClient, signed)
	if err != nil {
		return nil, errors.Join(ErrReceiptTimeout, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s", ErrTxReverted, signed.Hash().Hex())
	}

	c.logger.Debug().
		Str("txHash", signed.Hash().Hex()).
		Uint64("gasUsed", receipt.GasUsed).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("Transaction mined")

	return receipt, nil
}
