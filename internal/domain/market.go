package domain

// Market is immutable reference data for a tradable market. The set of
// markets is fixed at startup and never mutated.
type Market struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Address  string `json:"address"` // on-chain token address
	Decimals int    `json:"decimals"`
	ChainID  int    `json:"chainId"`
}

// Markets is the fixed set of markets tradable in a session, keyed by symbol.
// Addresses are the wrapped mainnet representations of each asset.
var Markets = map[string]Market{
	"BTC": {
		ID:       "btc",
		Name:     "Bitcoin",
		Symbol:   "BTC",
		Address:  "0x2260fac5e5542a773aa44fbcff2b3cba05b67b20", // WBTC
		Decimals: 8,
		ChainID:  1,
	},
	"ETH": {
		ID:       "eth",
		Name:     "Ethereum",
		Symbol:   "ETH",
		Address:  "0xc02aaa39b223fe8d0a0e8e4f27ead9083c756cc2", // WETH
		Decimals: 18,
		ChainID:  1,
	},
	"SOL": {
		ID:       "sol",
		Name:     "Solana",
		Symbol:   "SOL",
		Address:  "0xd31a59729e6e51adf1626f7a9993eb7aff663d1f", // Portal Wrapped SOL
		Decimals: 8,
		ChainID:  1,
	},
	"ARB": {
		ID:       "arb",
		Name:     "Arbitrum",
		Symbol:   "ARB",
		Address:  "0xb50721bcf8d956c20dda5d4b2fee37e0cc87a735",
		Decimals: 18,
		ChainID:  1,
	},
}

// MarketSymbols returns the tracked symbols in a stable order.
func MarketSymbols() []string {
	return []string{"BTC", "ETH", "SOL", "ARB"}
}

// MarketBySymbol looks up a market by its ticker symbol. It returns
// ErrUnknownMarket when the symbol is not part of the fixed market set.
func MarketBySymbol(symbol string) (Market, error) {
	m, ok := Markets[symbol]
	if !ok {
		return Market{}, ErrUnknownMarket
	}
	return m, nil
}

// AllMarkets returns every market in symbol order.
func AllMarkets() []Market {
	syms := MarketSymbols()
	out := make([]Market, 0, len(syms))
	for _, s := range syms {
		out = append(out, Markets[s])
	}
	return out
}
