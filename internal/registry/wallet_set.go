package registry

import (
	"sort"
	"strings"

	"tradeScope/internal/dex"
	"tradeScope/internal/model"
)

// WalletSet is an immutable, canonical set of watched wallets.
type WalletSet struct {
	wallets []model.Wallet
	labels  map[string]string
}

// NewWalletSet lower-cases and validates addresses, drops invalid ones and
// keeps the last label seen for duplicates.
func NewWalletSet(wallets []model.Wallet) *WalletSet {
	labels := make(map[string]string, len(wallets))
	for _, w := range wallets {
		addr, ok := dex.CanonicalAddress(w.Address)
		if !ok {
			continue
		}
		labels[addr] = strings.TrimSpace(w.Label)
	}
	list := make([]model.Wallet, 0, len(labels))
	for addr, label := range labels {
		list = append(list, model.Wallet{Address: addr, Label: label})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Address < list[j].Address })
	return &WalletSet{wallets: list, labels: labels}
}

func (s *WalletSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.wallets)
}

// Contains reports whether addr is watched. addr must be lower case.
func (s *WalletSet) Contains(addr string) bool {
	if s == nil {
		return false
	}
	_, ok := s.labels[addr]
	return ok
}

func (s *WalletSet) Label(addr string) string {
	if s == nil {
		return ""
	}
	return s.labels[addr]
}

// Wallets returns the wallets sorted by address.
func (s *WalletSet) Wallets() []model.Wallet {
	if s == nil {
		return nil
	}
	return append([]model.Wallet(nil), s.wallets...)
}

// Topics returns the 32-byte topic form of every address, for log filters.
func (s *WalletSet) Topics() []string {
	if s == nil {
		return nil
	}
	topics := make([]string, 0, len(s.wallets))
	for _, w := range s.wallets {
		topics = append(topics, dex.TopicFromAddress(w.Address))
	}
	return topics
}

// Equal reports whether both sets hold the same addresses and labels.
func (s *WalletSet) Equal(other *WalletSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.wallets[i] != other.wallets[i] {
			return false
		}
	}
	return true
}

// Describe renders the set for logs as label(0x1234...abcd).
func (s *WalletSet) Describe() string {
	parts := make([]string, 0, s.Len())
	for _, w := range s.Wallets() {
		if w.Label != "" {
			parts = append(parts, w.Label+"("+ShortAddress(w.Address)+")")
		} else {
			parts = append(parts, ShortAddress(w.Address))
		}
	}
	return strings.Join(parts, ", ")
}

// ShortAddress abbreviates an address as 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
