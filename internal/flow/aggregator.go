package flow

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"tradeScope/internal/fixedpoint"
	"tradeScope/internal/metrics"
	"tradeScope/internal/model"
)

const amountFraction = 6

// MetaResolver looks up token symbol and decimals.
type MetaResolver interface {
	Resolve(ctx context.Context, token string) (model.TokenMeta, error)
}

// Config holds chain constants and the native USD price.
type Config struct {
	WrappedNative  string
	NativeSymbol   string
	NativeDecimals uint8
	// NativePriceMicros is the native coin USD price at 6 decimals.
	NativePriceMicros *big.Int
	ChainName         string
}

// Aggregator turns receipts into per-wallet trade records.
type Aggregator struct {
	cfg      Config
	resolver MetaResolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewAggregator(cfg Config, resolver MetaResolver, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.WrappedNative = strings.ToLower(cfg.WrappedNative)
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "OKB"
	}
	if cfg.NativeDecimals == 0 {
		cfg.NativeDecimals = 18
	}
	if cfg.NativePriceMicros == nil {
		cfg.NativePriceMicros = new(big.Int)
	}
	if cfg.ChainName == "" {
		cfg.ChainName = "XLayer"
	}
	return &Aggregator{cfg: cfg, resolver: resolver, logger: logger, metrics: m}
}

// Aggregate builds one record per watched wallet with a non-zero net
// change. A wallet whose token metadata cannot be resolved is skipped.
func (a *Aggregator) Aggregate(ctx context.Context, receipt model.Receipt, txHash string, watched Watched) []model.TradeRecord {
	if txHash == "" {
		txHash = receipt.TransactionHash
	}
	flows := ComputeFlows(receipt, a.cfg.WrappedNative, watched)

	var records []model.TradeRecord
	for _, wallet := range flows.Wallets() {
		entries := flows.entries(wallet)
		if len(entries) == 0 {
			continue
		}
		record, err := a.classify(ctx, entries, flows)
		if err != nil {
			a.logger.Warn("skip wallet record",
				zap.String("wallet", wallet),
				zap.String("tx", txHash),
				zap.Error(err),
			)
			continue
		}
		record.Wallet = wallet
		record.Label = watched.Label(wallet)
		record.BlockNumber = receipt.Block()
		record.TxHash = txHash
		a.metrics.Trade(string(record.Action))
		records = append(records, record)
	}
	return records
}

func (a *Aggregator) classify(ctx context.Context, entries []entry, flows Flows) (model.TradeRecord, error) {
	var pos, neg *entry
	for i := range entries {
		if pos == nil && entries[i].delta.Sign() > 0 {
			pos = &entries[i]
		}
		if neg == nil && entries[i].delta.Sign() < 0 {
			neg = &entries[i]
		}
	}
	if pos != nil && neg != nil {
		return a.twoLeg(ctx, *pos, *neg, flows)
	}
	return a.singleLeg(ctx, entries[0], flows)
}

func (a *Aggregator) leg(ctx context.Context, e entry) (model.Leg, error) {
	meta, err := a.resolver.Resolve(ctx, e.token)
	if err != nil {
		return model.Leg{}, fmt.Errorf("token %s: %w", e.token, err)
	}
	return model.Leg{
		Token:    e.token,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
		Delta:    new(big.Int).Set(e.delta),
		Amount:   fixedpoint.FormatUnits(new(big.Int).Abs(e.delta), int(meta.Decimals), amountFraction),
		Native:   e.token == a.cfg.WrappedNative,
	}, nil
}

func (a *Aggregator) twoLeg(ctx context.Context, pos, neg entry, flows Flows) (model.TradeRecord, error) {
	in, err := a.leg(ctx, pos)
	if err != nil {
		return model.TradeRecord{}, err
	}
	out, err := a.leg(ctx, neg)
	if err != nil {
		return model.TradeRecord{}, err
	}

	price := a.cfg.NativePriceMicros
	outAbs := new(big.Int).Abs(out.Delta)
	record := model.TradeRecord{}
	var priced *model.Leg

	switch {
	case out.Native:
		record.UnitPriceMicros = fixedpoint.UnitPriceMicros(outAbs, int(out.Decimals), in.Delta, int(in.Decimals), price)
		record.PriceSource = model.PriceDirect
		record.Action, record.Focus, record.Contract = model.ActionBuy, in.Symbol, in.Token
		priced = &in
	case in.Native:
		record.UnitPriceMicros = fixedpoint.UnitPriceMicros(in.Delta, int(in.Decimals), outAbs, int(out.Decimals), price)
		record.PriceSource = model.PriceDirect
		record.Action, record.Focus, record.Contract = model.ActionSell, out.Symbol, out.Token
		priced = &out
	case flows.WrapToTarget.Sign() > 0:
		record.UnitPriceMicros = fixedpoint.UnitPriceMicros(flows.WrapToTarget, int(a.cfg.NativeDecimals), in.Delta, int(in.Decimals), price)
		record.PriceSource = model.PriceWrap
		record.Action, record.Focus, record.Contract = model.ActionBuy, in.Symbol, in.Token
		priced = &in
	case flows.UnwrapFromTarget.Sign() > 0:
		record.UnitPriceMicros = fixedpoint.UnitPriceMicros(flows.UnwrapFromTarget, int(a.cfg.NativeDecimals), outAbs, int(out.Decimals), price)
		record.PriceSource = model.PriceUnwrap
		record.Action, record.Focus, record.Contract = model.ActionSell, out.Symbol, out.Token
		priced = &out
	default:
		record.Action = model.ActionSwap
		record.Focus = in.Symbol + "/" + out.Symbol
	}
	if record.UnitPriceMicros != nil {
		record.PricedSymbol = priced.Symbol
		priced.USDMicros = fixedpoint.USDMicros(priced.Delta, int(priced.Decimals), record.UnitPriceMicros)
	}
	for _, l := range []*model.Leg{&in, &out} {
		if l.Native {
			l.USDMicros = fixedpoint.USDMicros(l.Delta, int(l.Decimals), price)
		}
	}

	record.Legs = []model.Leg{in, out}
	return record, nil
}

func (a *Aggregator) singleLeg(ctx context.Context, e entry, flows Flows) (model.TradeRecord, error) {
	l, err := a.leg(ctx, e)
	if err != nil {
		return model.TradeRecord{}, err
	}
	record := model.TradeRecord{Action: model.ActionSell, Focus: l.Symbol}
	if l.Delta.Sign() > 0 {
		record.Action = model.ActionBuy
	}

	price := a.cfg.NativePriceMicros
	var native *big.Int
	switch {
	case l.Native:
		l.USDMicros = fixedpoint.USDMicros(l.Delta, int(l.Decimals), price)
	case l.Delta.Sign() > 0 && flows.WrapToTarget.Sign() > 0:
		native = new(big.Int).Neg(flows.WrapToTarget)
		record.PriceSource = model.PriceWrap
	case l.Delta.Sign() < 0 && flows.UnwrapFromTarget.Sign() > 0:
		native = new(big.Int).Set(flows.UnwrapFromTarget)
		record.PriceSource = model.PriceUnwrap
	}

	if native != nil {
		nativeAbs := new(big.Int).Abs(native)
		record.UnitPriceMicros = fixedpoint.UnitPriceMicros(nativeAbs, int(a.cfg.NativeDecimals), new(big.Int).Abs(l.Delta), int(l.Decimals), price)
		if record.UnitPriceMicros != nil {
			record.PricedSymbol = l.Symbol
			l.USDMicros = fixedpoint.USDMicros(l.Delta, int(l.Decimals), record.UnitPriceMicros)
		}
		record.ImpliedNative = &model.Leg{
			Symbol:    a.cfg.NativeSymbol,
			Decimals:  a.cfg.NativeDecimals,
			Delta:     native,
			Amount:    fixedpoint.FormatUnits(nativeAbs, int(a.cfg.NativeDecimals), amountFraction),
			USDMicros: fixedpoint.USDMicros(nativeAbs, int(a.cfg.NativeDecimals), price),
			Native:    true,
		}
		record.Contract = l.Token
	}

	record.Legs = []model.Leg{l}
	return record, nil
}
