package model

import "github.com/holiman/uint256"

// TransferEvent is a decoded ERC-20 Transfer log.
type TransferEvent struct {
	Token string
	From  string
	To    string
	Value *uint256.Int
}

// SwapV2Event is a decoded constant-product pool Swap log.
type SwapV2Event struct {
	Pool       string
	Sender     string
	To         string
	Amount0In  *uint256.Int
	Amount1In  *uint256.Int
	Amount0Out *uint256.Int
	Amount1Out *uint256.Int
}
