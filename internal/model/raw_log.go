package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawLog is an event log as delivered by the node, either inside a receipt
// or as a logs subscription push. Numeric fields stay hex encoded so a
// malformed field never rejects the whole log.
type RawLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex,omitempty"`
	Removed         bool     `json:"removed"`
}

// Topic0 returns the lower-cased event signature, or "" if the log has no topics.
func (l RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return strings.ToLower(l.Topics[0])
}

// Block returns the block number, 0 if it cannot be parsed.
func (l RawLog) Block() uint64 {
	return ParseQuantity(l.BlockNumber)
}

// Receipt is the subset of a transaction receipt the flow aggregator needs.
type Receipt struct {
	TransactionHash string   `json:"transactionHash"`
	BlockNumber     string   `json:"blockNumber"`
	From            string   `json:"from"`
	To              string   `json:"to"`
	Status          string   `json:"status"`
	Logs            []RawLog `json:"logs"`
}

// Block returns the receipt block number, 0 if it cannot be parsed.
func (r Receipt) Block() uint64 {
	return ParseQuantity(r.BlockNumber)
}

// ParseQuantity decodes a hex quantity such as a block number. Empty or
// malformed input yields 0.
func ParseQuantity(value string) uint64 {
	if value == "" {
		return 0
	}
	n, err := hexutil.DecodeUint64(value)
	if err != nil {
		return 0
	}
	return n
}
