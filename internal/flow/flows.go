package flow

import (
	"math/big"
	"sort"
	"strings"

	"tradeScope/internal/dex"
	"tradeScope/internal/model"
)

// Watched is the read side of the wallet registry.
type Watched interface {
	Contains(addr string) bool
	Label(addr string) string
}

// Flows is the per-receipt balance effect on watched wallets.
type Flows struct {
	// Target is the transaction's `to`, usually a router.
	Target string
	// WrapToTarget sums wrapped-native minted to Target.
	WrapToTarget *big.Int
	// UnwrapFromTarget sums wrapped-native burned from Target.
	UnwrapFromTarget *big.Int
	// Deltas maps wallet to token to signed raw change.
	Deltas map[string]map[string]*big.Int
}

// ComputeFlows decodes the Transfer logs of a receipt and accumulates the
// wrap/unwrap legs and per-wallet deltas. Other logs are ignored.
func ComputeFlows(receipt model.Receipt, wrappedNative string, watched Watched) Flows {
	wrappedNative = strings.ToLower(wrappedNative)
	flows := Flows{
		Target:           strings.ToLower(receipt.To),
		WrapToTarget:     new(big.Int),
		UnwrapFromTarget: new(big.Int),
		Deltas:           make(map[string]map[string]*big.Int),
	}

	for _, log := range receipt.Logs {
		transfer, ok := dex.DecodeTransfer(log)
		if !ok {
			continue
		}
		value := transfer.Value.ToBig()

		if transfer.Token == wrappedNative && flows.Target != "" {
			if transfer.From == dex.ZeroAddress && transfer.To == flows.Target {
				flows.WrapToTarget.Add(flows.WrapToTarget, value)
			}
			if transfer.From == flows.Target && transfer.To == dex.ZeroAddress {
				flows.UnwrapFromTarget.Add(flows.UnwrapFromTarget, value)
			}
		}

		if watched.Contains(transfer.From) {
			flows.add(transfer.From, transfer.Token, new(big.Int).Neg(value))
		}
		if watched.Contains(transfer.To) {
			flows.add(transfer.To, transfer.Token, value)
		}
	}
	return flows
}

func (f Flows) add(wallet, token string, delta *big.Int) {
	tokens, ok := f.Deltas[wallet]
	if !ok {
		tokens = make(map[string]*big.Int)
		f.Deltas[wallet] = tokens
	}
	current, ok := tokens[token]
	if !ok {
		current = new(big.Int)
		tokens[token] = current
	}
	current.Add(current, delta)
}

// Wallets returns wallets with deltas in address order.
func (f Flows) Wallets() []string {
	wallets := make([]string, 0, len(f.Deltas))
	for wallet := range f.Deltas {
		wallets = append(wallets, wallet)
	}
	sort.Strings(wallets)
	return wallets
}

type entry struct {
	token string
	delta *big.Int
}

// entries returns a wallet's non-zero deltas by descending magnitude.
func (f Flows) entries(wallet string) []entry {
	out := make([]entry, 0, len(f.Deltas[wallet]))
	for token, delta := range f.Deltas[wallet] {
		if delta.Sign() != 0 {
			out = append(out, entry{token: token, delta: delta})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].delta.CmpAbs(out[j].delta); c != 0 {
			return c > 0
		}
		return out[i].token < out[j].token
	})
	return out
}
