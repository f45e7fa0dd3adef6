// Package ethereum wraps an RPC client and the operator wallet for the few
// on-chain actions the dashboard performs directly: bridge and DEX swap
// transactions.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is an Ethereum RPC client bound to the operator wallet.
type Client struct {
	rpc        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	chainID    *big.Int
	gasLimit   uint64
	gasMul     float64
}

// NewClient dials the RPC endpoint and derives the wallet address from the
// hex-encoded private key.
func NewClient(rpcURL, privateKeyHex string, chainID int64, gasLimit int, gasMultiplier float64) (*Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum: dial RPC: %w", err)
	}

	pkHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(pkHex)
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse private key: %w", err)
	}

	return &Client{
		rpc:        rpc,
		privateKey: pk,
		wallet:     ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    big.NewInt(chainID),
		gasLimit:   uint64(gasLimit),
		gasMul:     gasMultiplier,
	}, nil
}

// WalletAddress returns the operator wallet address.
func (c *Client) WalletAddress() common.Address { return c.wallet }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.rpc.Close() }

// ETHBalance returns the wallet's current balance in wei.
func (c *Client) ETHBalance(ctx context.Context) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, c.wallet, nil)
}

// GasPrice returns the suggested gas price scaled by the configured
// multiplier.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethereum: suggest gas price: %w", err)
	}
	mul := new(big.Float).SetFloat64(c.gasMul)
	adjusted := new(big.Float).Mul(new(big.Float).SetInt(price), mul)
	result, _ := adjusted.Int(nil)
	return result, nil
}

// Nonce returns the wallet's next pending nonce.
func (c *Client) Nonce(ctx context.Context) (uint64, error) {
	return c.rpc.PendingNonceAt(ctx, c.wallet)
}

// SignAndSend signs a legacy transaction and broadcasts it, returning the
// transaction hash.
func (c *Client) SignAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	nonce, err := c.Nonce(ctx)
	if err != nil {
		return "", fmt.Errorf("ethereum: get nonce: %w", err)
	}
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.NewEIP155Signer(c.chainID)
	signed, err := types.SignTx(tx, signer, c.privateKey)
	if err != nil {
		return "", fmt.Errorf("ethereum: sign tx: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("ethereum: send tx: %w", err)
	}

	return signed.Hash().Hex(), nil
}

// CallContract performs a read-only eth_call and returns the raw result.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":   to.Hex(),
		"data": fmt.Sprintf("0x%x", data),
	}
	var result string
	if err := c.rpc.Client().CallContext(ctx, &result, "eth_call", msg, "latest"); err != nil {
		return nil, fmt.Errorf("ethereum: eth_call: %w", err)
	}
	return common.FromHex(result), nil
}
