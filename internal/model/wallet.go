package model

// Wallet is a watched address with an optional operator label.
type Wallet struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}
