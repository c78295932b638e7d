package flow

import (
	"fmt"
	"html"
	"strings"

	"tradeScope/internal/fixedpoint"
	"tradeScope/internal/model"
	"tradeScope/internal/registry"
)

// Format renders a trade record as Telegram HTML.
func (a *Aggregator) Format(record model.TradeRecord) string {
	lines := []string{
		fmt.Sprintf("🔵 <b>%s %s</b> on %s", record.Action, esc(record.Focus), esc(a.cfg.ChainName)),
		walletLine(record),
		fmt.Sprintf("block <b>%d</b>", record.BlockNumber),
		fmt.Sprintf("tx <code>%s</code>", esc(record.TxHash)),
		summaryLine(record),
		"<b>Net change:</b>",
	}
	for _, l := range record.Legs {
		lines = append(lines, legLine(l))
	}
	if record.ImpliedNative != nil {
		lines = append(lines, legLine(*record.ImpliedNative))
	}
	if record.Contract != "" {
		lines = append(lines, fmt.Sprintf("Contract: <code>%s</code>", esc(record.Contract)))
	}
	return strings.Join(lines, "\n")
}

func walletLine(record model.TradeRecord) string {
	short := registry.ShortAddress(record.Wallet)
	if record.Label != "" {
		return fmt.Sprintf("👛 <b>%s</b> (<code>%s</code>)", esc(record.Label), short)
	}
	return fmt.Sprintf("👛 <code>%s</code>", short)
}

func summaryLine(record model.TradeRecord) string {
	var b strings.Builder
	b.WriteString("💠 ")
	if len(record.Legs) >= 2 {
		in, out := record.Legs[0], record.Legs[1]
		fmt.Fprintf(&b, "swapped <b>%s</b> %s ↔ <b>%s</b> %s",
			fixedpoint.GroupThousands(out.Amount), esc(out.Symbol),
			fixedpoint.GroupThousands(in.Amount), esc(in.Symbol))
	} else if len(record.Legs) == 1 {
		l := record.Legs[0]
		verb := "sent"
		if l.Delta.Sign() > 0 {
			verb = "received"
		}
		fmt.Fprintf(&b, "%s <b>%s</b> %s", verb, fixedpoint.GroupThousands(l.Amount), esc(l.Symbol))
		if n := record.ImpliedNative; n != nil {
			fmt.Fprintf(&b, " for <b>%s</b> %s", fixedpoint.GroupThousands(n.Amount), esc(n.Symbol))
		}
	}
	if record.UnitPriceMicros != nil {
		fmt.Fprintf(&b, " (@ <b>$%s</b>)", fixedpoint.GroupThousands(fixedpoint.FormatMicros(record.UnitPriceMicros)))
	}
	return b.String()
}

func legLine(l model.Leg) string {
	marker, sign := "🔴", "-"
	if l.Delta != nil && l.Delta.Sign() > 0 {
		marker, sign = "🟢", "+"
	}
	line := fmt.Sprintf("%s %s%s %s", marker, sign, l.Amount, esc(l.Symbol))
	if usd := fixedpoint.FormatUSD(l.USDMicros); usd != "" {
		line += "  (" + usd + ")"
	}
	return line
}

func esc(s string) string {
	return html.EscapeString(s)
}
