package domain

// SessionReceipt is the state-channel network's acknowledgement of a newly
// registered session.
type SessionReceipt struct {
	SessionID string `json:"sessionId"`
	TxHash    string `json:"transactionHash"`
}

// TradeAck is the network's response to a submitted trade intent.
type TradeAck struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature"`
	Nonce     uint64 `json:"nonce"`
}

// BridgeRoute is a cross-chain transfer path returned by the routing
// service. A nil route means no bridging is required (or none was found).
type BridgeRoute struct {
	ID               string `json:"id"`
	Tool             string `json:"tool"`
	FromChain        int    `json:"fromChain"`
	ToChain          int    `json:"toChain"`
	FromToken        string `json:"fromToken"`
	ToToken          string `json:"toToken"`
	FromAmount       string `json:"fromAmount"`
	ToAmount         string `json:"toAmount"`
	ToAmountMin      string `json:"toAmountMin"`
	EstimatedSeconds int    `json:"estimatedSeconds"`
}
