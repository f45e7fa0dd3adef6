package domain

import "time"

// SignalDirection is the qualitative read of a market signal.
type SignalDirection string

const (
	SignalBullish SignalDirection = "bullish"
	SignalBearish SignalDirection = "bearish"
	SignalNeutral SignalDirection = "neutral"
)

// MarketSignal is one tick's worth of technical read for a single symbol.
// Signals are ephemeral: recomputed every polling cycle, never persisted.
//
// Strength is in [0,1]. RSI is the oscillator value in [0,100]. MACD is the
// momentum indicator (sign matters, magnitude is source-dependent).
type MarketSignal struct {
	Symbol    string          `json:"symbol"`
	Direction SignalDirection `json:"direction"`
	Strength  float64         `json:"strength"`
	RSI       float64         `json:"rsi"`
	MACD      float64         `json:"macd"`
	At        time.Time       `json:"at"`
}

// PriceQuote is a spot price observation for one symbol from the market-data
// provider.
type PriceQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"` // percent
	At        time.Time `json:"at"`
}
