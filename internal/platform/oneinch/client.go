// Package oneinch is the REST client for the 1inch swap aggregator, used to
// unwind leftover token balances into USDC during settlement.
package oneinch

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oneset-labs/onesetd/internal/httputil"
	"github.com/oneset-labs/onesetd/internal/platform"
)

// TxSender broadcasts a prepared transaction from the operator wallet.
type TxSender interface {
	SignAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error)
}

// Client talks to the 1inch swap API v6 for one chain.
type Client struct {
	baseURL    string
	apiKey     string
	chainID    int
	httpClient *http.Client
	retry      httputil.RetryConfig
	sender     TxSender
	logger     *slog.Logger
}

// NewClient creates a 1inch client for the given chain. sender may be nil;
// ExecuteSwap then fails with an explicit error instead of broadcasting.
func NewClient(baseURL, apiKey string, chainID int, sender TxSender, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		chainID: chainID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:  httputil.DefaultRetry,
		sender: sender,
		logger: logger.With(slog.String("component", "oneinch")),
	}
}

// Quote is the expected output amount for a swap.
type Quote struct {
	DstAmount string `json:"dstAmount"`
}

// GetQuote returns the expected destination amount for swapping amount of
// src into dst.
func (c *Client) GetQuote(ctx context.Context, src, dst, amount string) (Quote, error) {
	params := url.Values{}
	params.Set("src", src)
	params.Set("dst", dst)
	params.Set("amount", amount)

	var out Quote
	err := platform.GetJSONAuth(ctx, c.httpClient, c.retry, c.logger,
		fmt.Sprintf("%s/%d/quote?%s", c.baseURL, c.chainID, params.Encode()), c.apiKey, &out)
	if err != nil {
		return Quote{}, fmt.Errorf("oneinch: quote: %w", err)
	}
	return out, nil
}

type swapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
}

// ExecuteSwap fetches swap calldata from 1inch and broadcasts it, returning
// the transaction hash. slippagePercent is e.g. 1 for 1%.
func (c *Client) ExecuteSwap(ctx context.Context, src, dst, amount, fromAddress string, slippagePercent float64) (string, error) {
	if c.sender == nil {
		return "", fmt.Errorf("oneinch: no transaction sender bound")
	}

	params := url.Values{}
	params.Set("src", src)
	params.Set("dst", dst)
	params.Set("amount", amount)
	params.Set("from", fromAddress)
	params.Set("slippage", strconv.FormatFloat(slippagePercent, 'f', -1, 64))

	var out swapResponse
	err := platform.GetJSONAuth(ctx, c.httpClient, c.retry, c.logger,
		fmt.Sprintf("%s/%d/swap?%s", c.baseURL, c.chainID, params.Encode()), c.apiKey, &out)
	if err != nil {
		return "", fmt.Errorf("oneinch: swap calldata: %w", err)
	}

	value := new(big.Int)
	if out.Tx.Value != "" {
		if _, ok := value.SetString(out.Tx.Value, 0); !ok {
			return "", fmt.Errorf("oneinch: invalid tx value %q", out.Tx.Value)
		}
	}

	hash, err := c.sender.SignAndSend(ctx, common.HexToAddress(out.Tx.To), value, common.FromHex(out.Tx.Data))
	if err != nil {
		return "", fmt.Errorf("oneinch: broadcast: %w", err)
	}

	c.logger.InfoContext(ctx, "swap sent",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.String("tx", hash),
	)
	return hash, nil
}
