package model

import "math/big"

// Action classifies a wallet's net flow for one transaction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionSwap Action = "SWAP"
)

// PriceSource records where the inferred unit price came from.
type PriceSource int

const (
	PriceNone PriceSource = iota
	// PriceDirect means one of the wallet's own legs is the wrapped native token.
	PriceDirect
	// PriceWrap means native coin was wrapped by the transaction target.
	PriceWrap
	// PriceUnwrap means wrapped native was unwrapped by the transaction target.
	PriceUnwrap
)

func (s PriceSource) String() string {
	switch s {
	case PriceDirect:
		return "direct"
	case PriceWrap:
		return "wrap"
	case PriceUnwrap:
		return "unwrap"
	default:
		return "none"
	}
}

// Leg is one side of a trade.
type Leg struct {
	Token    string
	Symbol   string
	Decimals uint8
	// Delta is the signed raw change of the wallet balance.
	Delta *big.Int
	// Amount is |Delta| rendered in token units.
	Amount string
	// USDMicros is the USD estimate at 6 decimals, nil when unknown.
	USDMicros *big.Int
	Native    bool
}

// TradeRecord is the per-wallet result of aggregating one receipt.
type TradeRecord struct {
	Wallet      string
	Label       string
	BlockNumber uint64
	TxHash      string

	// Legs holds the incoming leg first and the outgoing leg second for
	// two-sided trades, or the single non-zero leg otherwise.
	Legs []Leg
	// ImpliedNative is the wrap/unwrap leg paired with a single-leg trade.
	ImpliedNative *Leg

	UnitPriceMicros *big.Int
	PricedSymbol    string
	PriceSource     PriceSource

	Action   Action
	Focus    string
	Contract string
}
