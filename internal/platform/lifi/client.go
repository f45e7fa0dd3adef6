// Package lifi is the REST client for the LI.FI bridge aggregator, used to
// move a user's deposit to the session's home chain.
package lifi

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/httputil"
	"github.com/oneset-labs/onesetd/internal/platform"
)

// defaultSlippage is the quote slippage as a fraction.
const defaultSlippage = 0.005

// TxSender broadcasts a prepared transaction from the operator wallet.
type TxSender interface {
	SignAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error)
}

// Client talks to the LI.FI quote and status APIs. Routes returned by
// BestRoute carry a prepared transaction; ExecuteSwap broadcasts it through
// the bound TxSender.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	sender     TxSender
	slippage   float64
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]txRequest // route ID -> prepared transaction
}

type txRequest struct {
	To    string
	Data  string
	Value string
}

// NewClient creates a LI.FI client. sender may be nil; ExecuteSwap then
// fails with an explicit error instead of broadcasting.
func NewClient(baseURL string, sender TxSender, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:    httputil.DefaultRetry,
		sender:   sender,
		slippage: defaultSlippage,
		logger:   logger.With(slog.String("component", "lifi")),
		pending:  make(map[string]txRequest),
	}
}

// SetSlippage overrides the default quote slippage. pct is in percent
// (e.g. 0.5 for 0.5%).
func (c *Client) SetSlippage(pct float64) {
	if pct > 0 {
		c.slippage = pct / 100
	}
}

type quoteResponse struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	ToolDetails struct {
		Name string `json:"name"`
	} `json:"toolDetails"`
	Action struct {
		FromChainID int `json:"fromChainId"`
		ToChainID   int `json:"toChainId"`
		FromToken   struct {
			Address string `json:"address"`
		} `json:"fromToken"`
		ToToken struct {
			Address string `json:"address"`
		} `json:"toToken"`
		FromAmount string `json:"fromAmount"`
	} `json:"action"`
	Estimate struct {
		ToAmount          string  `json:"toAmount"`
		ToAmountMin       string  `json:"toAmountMin"`
		ExecutionDuration float64 `json:"executionDuration"`
	} `json:"estimate"`
	TransactionRequest struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"transactionRequest"`
}

// BestRoute fetches the best bridge route for the transfer. It returns
// (nil, nil) when no route exists; a missing route is an expected outcome,
// not an error.
func (c *Client) BestRoute(ctx context.Context, fromChain, toChain int, fromToken, toToken, amount, userAddress string) (*domain.BridgeRoute, error) {
	params := url.Values{}
	params.Set("fromChain", strconv.Itoa(fromChain))
	params.Set("toChain", strconv.Itoa(toChain))
	params.Set("fromToken", fromToken)
	params.Set("toToken", toToken)
	params.Set("fromAmount", amount)
	params.Set("fromAddress", userAddress)
	params.Set("slippage", strconv.FormatFloat(c.slippage, 'f', -1, 64))

	var out quoteResponse
	err := platform.GetJSON(ctx, c.httpClient, c.retry, c.logger, c.baseURL+"/quote?"+params.Encode(), &out)
	if err != nil {
		if platform.IsNotFound(err) {
			c.logger.InfoContext(ctx, "no bridge route",
				slog.Int("from_chain", fromChain),
				slog.Int("to_chain", toChain),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("lifi: quote: %w", err)
	}
	if out.ID == "" {
		return nil, nil
	}

	c.mu.Lock()
	c.pending[out.ID] = txRequest(out.TransactionRequest)
	c.mu.Unlock()

	return &domain.BridgeRoute{
		ID:               out.ID,
		Tool:             out.ToolDetails.Name,
		FromChain:        out.Action.FromChainID,
		ToChain:          out.Action.ToChainID,
		FromToken:        out.Action.FromToken.Address,
		ToToken:          out.Action.ToToken.Address,
		FromAmount:       out.Action.FromAmount,
		ToAmount:         out.Estimate.ToAmount,
		ToAmountMin:      out.Estimate.ToAmountMin,
		EstimatedSeconds: int(out.Estimate.ExecutionDuration),
	}, nil
}

// ExecuteSwap broadcasts the prepared transaction for a previously quoted
// route and returns the transaction hash.
func (c *Client) ExecuteSwap(ctx context.Context, route *domain.BridgeRoute) (string, error) {
	if route == nil {
		return "", fmt.Errorf("lifi: nil route")
	}
	if c.sender == nil {
		return "", fmt.Errorf("lifi: no transaction sender bound")
	}

	c.mu.Lock()
	tx, ok := c.pending[route.ID]
	delete(c.pending, route.ID)
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("lifi: route %s has no prepared transaction (quote expired?)", route.ID)
	}

	value := new(big.Int)
	if tx.Value != "" {
		if _, ok := value.SetString(tx.Value, 0); !ok {
			return "", fmt.Errorf("lifi: invalid tx value %q", tx.Value)
		}
	}

	hash, err := c.sender.SignAndSend(ctx, common.HexToAddress(tx.To), value, common.FromHex(tx.Data))
	if err != nil {
		return "", fmt.Errorf("lifi: broadcast: %w", err)
	}

	c.logger.InfoContext(ctx, "bridge swap sent",
		slog.String("route_id", route.ID),
		slog.String("tool", route.Tool),
		slog.String("tx", hash),
	)
	return hash, nil
}

// BridgeStatus is the transfer state LI.FI reports for a transaction.
type BridgeStatus struct {
	Status    string `json:"status"`    // NOT_FOUND, PENDING, DONE, FAILED
	Substatus string `json:"substatus"` // finer-grained state
}

// Status returns the bridge transfer status for a transaction hash.
func (c *Client) Status(ctx context.Context, txHash string, chainID int) (BridgeStatus, error) {
	params := url.Values{}
	params.Set("txHash", txHash)
	if chainID != 0 {
		params.Set("fromChain", strconv.Itoa(chainID))
	}

	var out BridgeStatus
	err := platform.GetJSON(ctx, c.httpClient, c.retry, c.logger, c.baseURL+"/status?"+params.Encode(), &out)
	if err != nil {
		return BridgeStatus{}, fmt.Errorf("lifi: status: %w", err)
	}
	return out, nil
}
