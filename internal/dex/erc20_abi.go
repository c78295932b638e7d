package dex

import (
	"bytes"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens return symbol as a fixed bytes32.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// SymbolCallData returns the calldata for symbol() (0x95d89b41).
func SymbolCallData() ([]byte, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("symbol")
}

// DecimalsCallData returns the calldata for decimals() (0x313ce567).
func DecimalsCallData() ([]byte, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("decimals")
}

// IsSymbolCall reports whether calldata targets symbol().
func IsSymbolCall(data []byte) bool {
	selector, err := SymbolCallData()
	if err != nil || len(data) < 4 {
		return false
	}
	return bytes.Equal(data[:4], selector[:4])
}
