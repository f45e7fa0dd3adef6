// Package yellow is the REST client for the Yellow state-channel clearing
// API: session lifecycle, trade intents, and final settlement.
package yellow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/oneset-labs/onesetd/internal/crypto"
	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/httputil"
)

// Client talks to the Yellow clearing API. Initialize must succeed before
// any session or trade call; the bearer token it returns authenticates all
// subsequent requests. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	auth       *crypto.HMACAuth
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a Yellow API client. auth may be nil when the endpoint
// does not require HMAC request signing.
func NewClient(baseURL string, auth *crypto.HMACAuth, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:  httputil.DefaultRetry,
		auth:   auth,
		logger: logger.With(slog.String("component", "yellow")),
	}
}

type authInitRequest struct {
	Address string `json:"address"`
}

type authInitResponse struct {
	Token string `json:"token"`
}

// Initialize authenticates the user address against the clearing API and
// stores the returned bearer token for subsequent calls.
func (c *Client) Initialize(ctx context.Context, userAddress string) error {
	var out authInitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/init", authInitRequest{Address: userAddress}, &out, false); err != nil {
		return fmt.Errorf("yellow: auth init: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("yellow: auth init: empty token")
	}

	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "authenticated", slog.String("address", userAddress))
	return nil
}

type createSessionRequest struct {
	Address         string `json:"address"`
	DepositUnits    int64  `json:"depositUnits"`
	DurationSeconds int64  `json:"durationSeconds"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	TxHash    string `json:"txHash"`
}

// CreateSession opens a trading session backed by the user's deposit and
// returns the session id and the on-chain deposit transaction.
func (c *Client) CreateSession(ctx context.Context, userAddress string, amountUnits int64, duration time.Duration) (domain.SessionReceipt, error) {
	req := createSessionRequest{
		Address:         userAddress,
		DepositUnits:    amountUnits,
		DurationSeconds: int64(duration.Seconds()),
	}
	var out createSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/create", req, &out, true); err != nil {
		return domain.SessionReceipt{}, fmt.Errorf("yellow: create session: %w", err)
	}
	return domain.SessionReceipt{SessionID: out.SessionID, TxHash: out.TxHash}, nil
}

type tradeIntentRequest struct {
	SessionID string `json:"sessionId"`
	MarketID  string `json:"marketId"`
	Side      string `json:"side"`
	SizeUnits int64  `json:"sizeUnits"`
	Timestamp int64  `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type tradeIntentResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature"`
	Nonce     uint64 `json:"nonce"`
}

// SubmitTradeIntent submits a signed trade intent for off-chain execution.
func (c *Client) SubmitTradeIntent(ctx context.Context, intent domain.TradeIntent) (domain.TradeAck, error) {
	req := tradeIntentRequest{
		SessionID: intent.SessionID,
		MarketID:  intent.Market.ID,
		Side:      string(intent.Side),
		SizeUnits: intent.SizeUnits,
		Timestamp: intent.Timestamp,
		Nonce:     intent.Nonce,
		Signature: intent.Signature,
	}
	var out tradeIntentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/trades/intent", req, &out, true); err != nil {
		return domain.TradeAck{}, fmt.Errorf("yellow: submit intent: %w", err)
	}
	return domain.TradeAck{Success: out.Success, Signature: out.Signature, Nonce: out.Nonce}, nil
}

type balanceResponse struct {
	BalanceUnits int64 `json:"balanceUnits"`
}

// GetSessionBalance returns the channel balance of a session in fixed-point
// units.
func (c *Client) GetSessionBalance(ctx context.Context, sessionID string) (int64, error) {
	path := fmt.Sprintf("/v1/sessions/%s/balance", url.PathEscape(sessionID))
	var out balanceResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return 0, fmt.Errorf("yellow: session balance: %w", err)
	}
	return out.BalanceUnits, nil
}

type settleRequest struct {
	SessionID    string            `json:"sessionId"`
	FinalBalance int64             `json:"finalBalance"`
	TotalPnL     int64             `json:"totalPnl"`
	Positions    []domain.Position `json:"positions"`
	Signature    string            `json:"signature"`
}

type settleResponse struct {
	TxHash string `json:"txHash"`
}

// Settle submits the signed final session state for on-chain settlement and
// returns the transaction hash.
func (c *Client) Settle(ctx context.Context, data domain.SettlementData) (string, error) {
	req := settleRequest{
		SessionID:    data.SessionID,
		FinalBalance: data.FinalBalance,
		TotalPnL:     data.TotalPnL,
		Positions:    data.Positions,
		Signature:    data.Signature,
	}
	var out settleResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/settle", req, &out, true); err != nil {
		return "", fmt.Errorf("yellow: settle: %w", err)
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("yellow: settle: empty tx hash")
	}
	return out.TxHash, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// doJSON sends a JSON request and decodes the JSON response into out.
// Authenticated calls fail with ErrNotInitialized until Initialize has run.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, authed bool) error {
	token := c.bearerToken()
	if authed && token == "" {
		return domain.ErrNotInitialized
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, c.logger, func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authed {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if c.auth != nil {
			for k, v := range c.auth.Headers(method, path, string(payload)) {
				req.Header.Set(k, v)
			}
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 256))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
