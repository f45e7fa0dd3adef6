package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// quoteTTL bounds how long a cached quote survives without a refresh. The
// price loop rewrites quotes every few seconds; a stale key disappearing is
// better than the dashboard trading on a dead price.
const quoteTTL = 2 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each symbol's
// quote is stored at "quote:{symbol}" with fields "price", "change24h", and
// "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetQuote stores the latest quote for a symbol.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	key := quoteKey(q.Symbol)
	fields := map[string]interface{}{
		"price":     strconv.FormatFloat(q.Price, 'f', -1, 64),
		"change24h": strconv.FormatFloat(q.Change24h, 'f', -1, 64),
		"ts":        strconv.FormatInt(q.At.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a symbol. It returns
// domain.ErrNotFound when no quote is cached.
func (pc *PriceCache) GetQuote(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	q, ok := parseQuote(symbol, vals)
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

// GetQuotes retrieves quotes for multiple symbols using a pipeline. Symbols
// without a cached quote are omitted from the result map.
func (pc *PriceCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	if len(symbols) == 0 {
		return map[string]domain.PriceQuote{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, quoteKey(sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.PriceQuote, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if q, ok := parseQuote(sym, vals); ok {
			result[sym] = q
		}
	}
	return result, nil
}

func parseQuote(symbol string, vals map[string]string) (domain.PriceQuote, bool) {
	if len(vals) == 0 {
		return domain.PriceQuote{}, false
	}
	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.PriceQuote{}, false
	}
	change, _ := strconv.ParseFloat(vals["change24h"], 64)
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, false
	}
	return domain.PriceQuote{
		Symbol:    symbol,
		Price:     price,
		Change24h: change,
		At:        time.Unix(0, tsNano),
	}, true
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
