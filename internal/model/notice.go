package model

// Notice kinds.
const (
	NoticeTransfer = "transfer"
	NoticeSwapV2   = "swap_v2"
)

// Notice is an observational record of a single subscription push. It is
// not attributed to a wallet and carries no price information.
type Notice struct {
	Kind        string            `json:"kind"`
	Filter      string            `json:"filter"`
	BlockNumber uint64            `json:"block_number"`
	TxHash      string            `json:"tx_hash"`
	Address     string            `json:"address"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Amounts     map[string]string `json:"amounts"`
	Removed     bool              `json:"removed"`
	ObservedAt  string            `json:"observed_at"`
}
