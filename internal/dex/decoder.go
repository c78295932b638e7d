package dex

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tradeScope/internal/model"
)

const wordHexLen = 64

// ZeroAddress is the canonical zero address used by mint/burn style transfers.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// DecodeTransferValue parses the right-aligned value word of a Transfer
// log. Short data is left-padded; undecodable data yields zero.
func DecodeTransferValue(data string) *uint256.Int {
	raw := strip0x(strings.TrimSpace(data))
	if len(raw) < wordHexLen {
		raw = strings.Repeat("0", wordHexLen-len(raw)) + raw
	}
	return wordToUint(raw[len(raw)-wordHexLen:])
}

// DecodeSwapV2Data splits a V2 Swap payload into amount0In, amount1In,
// amount0Out and amount1Out. The blob is left-padded to four words first,
// so a short payload zeroes the leading words.
func DecodeSwapV2Data(data string) [4]*uint256.Int {
	words := dataWords(data, 4)
	return [4]*uint256.Int{words[0], words[1], words[2], words[3]}
}

func dataWords(data string, count int) []*uint256.Int {
	raw := strip0x(strings.TrimSpace(data))
	width := count * wordHexLen
	if len(raw) < width {
		raw = strings.Repeat("0", width-len(raw)) + raw
	}
	out := make([]*uint256.Int, count)
	for i := range out {
		out[i] = wordToUint(raw[i*wordHexLen : (i+1)*wordHexLen])
	}
	return out
}

func wordToUint(word string) *uint256.Int {
	buf, err := hex.DecodeString(word)
	if err != nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).SetBytes(buf)
}

// AddressFromTopic extracts the low 20 bytes of an address-valued topic.
func AddressFromTopic(topic string) string {
	raw := strings.ToLower(strip0x(strings.TrimSpace(topic)))
	if len(raw) > 40 {
		raw = raw[len(raw)-40:]
	} else if len(raw) < 40 {
		raw = strings.Repeat("0", 40-len(raw)) + raw
	}
	return "0x" + raw
}

// TopicFromAddress returns the 32-byte zero-padded topic form of an address.
func TopicFromAddress(address string) string {
	return common.BytesToHash(common.HexToAddress(address).Bytes()).Hex()
}

// CanonicalAddress lower-cases an address and reports whether it is a
// 0x-prefixed 40 hex character address.
func CanonicalAddress(address string) (string, bool) {
	addr := strings.ToLower(strings.TrimSpace(address))
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return addr, false
	}
	return addr, true
}

// DecodeTransfer decodes a Transfer log. ok is false when the log is not a
// Transfer or lacks the indexed from/to topics.
func DecodeTransfer(log model.RawLog) (model.TransferEvent, bool) {
	if len(log.Topics) < 3 || log.Topic0() != strings.ToLower(TopicTransfer.Hex()) {
		return model.TransferEvent{}, false
	}
	return model.TransferEvent{
		Token: strings.ToLower(log.Address),
		From:  AddressFromTopic(log.Topics[1]),
		To:    AddressFromTopic(log.Topics[2]),
		Value: DecodeTransferValue(log.Data),
	}, true
}

// DecodeSwapV2 decodes a V2 pair Swap log.
func DecodeSwapV2(log model.RawLog) (model.SwapV2Event, bool) {
	if len(log.Topics) < 3 || log.Topic0() != strings.ToLower(TopicSwapV2.Hex()) {
		return model.SwapV2Event{}, false
	}
	amounts := DecodeSwapV2Data(log.Data)
	return model.SwapV2Event{
		Pool:       strings.ToLower(log.Address),
		Sender:     AddressFromTopic(log.Topics[1]),
		To:         AddressFromTopic(log.Topics[2]),
		Amount0In:  amounts[0],
		Amount1In:  amounts[1],
		Amount0Out: amounts[2],
		Amount1Out: amounts[3],
	}, true
}

// DecodeSymbol decodes a symbol() return value as a dynamic string, then as
// a bytes32. It returns "" if neither yields printable text.
func DecodeSymbol(ret []byte) string {
	if len(ret) == 0 {
		return ""
	}
	if parsed, err := erc20ABIStringInstance(); err == nil {
		if values, err := parsed.Unpack("symbol", ret); err == nil && len(values) == 1 {
			if symbol, ok := values[0].(string); ok {
				if clean := printable(symbol); clean != "" {
					return clean
				}
			}
		}
	}
	if parsed, err := erc20ABIBytes32Instance(); err == nil {
		if values, err := parsed.Unpack("symbol", ret); err == nil && len(values) == 1 {
			if symbol, ok := bytes32ToString(values[0]); ok {
				return printable(symbol)
			}
		}
	}
	return ""
}

// DecodeDecimals decodes a decimals() return value, defaulting to 18 when
// the reply is empty or out of the 0..36 range.
func DecodeDecimals(ret []byte) uint8 {
	if len(ret) == 0 {
		return DefaultDecimals
	}
	if len(ret) > 32 {
		ret = ret[:32]
	}
	value := new(uint256.Int).SetBytes(ret)
	if !value.IsUint64() || value.Uint64() > MaxDecimals {
		return DefaultDecimals
	}
	return uint8(value.Uint64())
}

// Decimal bounds for token metadata.
const (
	DefaultDecimals = 18
	MaxDecimals     = 36
)

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return strings.TrimRight(string(v[:]), "\x00"), true
	case []byte:
		return strings.TrimRight(string(v), "\x00"), true
	default:
		return "", false
	}
}

func printable(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x20 && s[i] <= 0x7e {
			b.WriteByte(s[i])
		}
	}
	return strings.TrimSpace(b.String())
}

func strip0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
