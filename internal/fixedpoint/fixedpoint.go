package fixedpoint

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceDecimals is the scale of USD prices held as integers (micro-USD).
const PriceDecimals = 6

// MaxDecimals bounds the token decimals accepted for formatting.
const MaxDecimals = 36

var (
	bigTen   = big.NewInt(10)
	pow10Tab [MaxDecimals + PriceDecimals + 1]*big.Int
)

func init() {
	pow10Tab[0] = big.NewInt(1)
	for i := 1; i < len(pow10Tab); i++ {
		pow10Tab[i] = new(big.Int).Mul(pow10Tab[i-1], bigTen)
	}
}

// Pow10 returns 10^n. The result must not be modified.
func Pow10(n int) *big.Int {
	if n >= 0 && n < len(pow10Tab) {
		return pow10Tab[n]
	}
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

func clampDecimals(decimals int) int {
	if decimals < 0 {
		return 0
	}
	if decimals > MaxDecimals {
		return MaxDecimals
	}
	return decimals
}

// FormatUnits renders a raw integer amount scaled by decimals. At most
// maxFrac fraction digits are kept, rounded half-up, and trailing zeros
// are trimmed. A negative maxFrac keeps every digit.
func FormatUnits(v *big.Int, decimals int, maxFrac int) string {
	if v == nil {
		return "0"
	}
	decimals = clampDecimals(decimals)
	neg := v.Sign() < 0
	x := new(big.Int).Abs(v)

	if maxFrac >= 0 && decimals > maxFrac {
		div := Pow10(decimals - maxFrac)
		half := new(big.Int).Quo(div, big.NewInt(2))
		x.Add(x, half).Quo(x, div)
		decimals = maxFrac
	}

	intPart, frac := new(big.Int).QuoRem(x, Pow10(decimals), new(big.Int))
	fracStr := ""
	if decimals > 0 {
		fracStr = frac.String()
		if len(fracStr) < decimals {
			fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
		}
		fracStr = strings.TrimRight(fracStr, "0")
	}
	if intPart.Sign() == 0 && fracStr == "" {
		neg = false
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(intPart.String())
	if fracStr != "" {
		b.WriteByte('.')
		b.WriteString(fracStr)
	}
	return b.String()
}

// ParseUnits converts a decimal string into a raw integer at the given
// scale. Digits beyond the scale are truncated.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Shift(int32(clampDecimals(decimals))).Truncate(0).BigInt(), nil
}

// ParsePriceMicros parses a USD price such as "190", "190.25" or "190n"
// into micro-USD. Fraction digits past the sixth are truncated.
func ParsePriceMicros(s string) (*big.Int, error) {
	value := strings.TrimSuffix(strings.TrimSpace(s), "n")
	if value == "" {
		return nil, fmt.Errorf("empty price")
	}
	for _, r := range value {
		if (r < '0' || r > '9') && r != '.' {
			return nil, fmt.Errorf("invalid price %q", s)
		}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return d.Shift(PriceDecimals).Truncate(0).BigInt(), nil
}

// UnitPriceMicros infers the micro-USD price of one whole token from a
// native leg: price × nativeRaw × 10^tokenDec / (tokenRaw × 10^nativeDec).
// It returns nil when tokenRaw is not positive.
func UnitPriceMicros(nativeRaw *big.Int, nativeDec int, tokenRaw *big.Int, tokenDec int, priceMicros *big.Int) *big.Int {
	if nativeRaw == nil || tokenRaw == nil || priceMicros == nil || tokenRaw.Sign() <= 0 {
		return nil
	}
	num := new(big.Int).Mul(priceMicros, new(big.Int).Abs(nativeRaw))
	num.Mul(num, Pow10(clampDecimals(tokenDec)))
	den := new(big.Int).Mul(tokenRaw, Pow10(clampDecimals(nativeDec)))
	return num.Quo(num, den)
}

// USDMicros values |raw| tokens at decimals using a micro-USD unit price.
func USDMicros(raw *big.Int, decimals int, priceMicros *big.Int) *big.Int {
	if raw == nil || priceMicros == nil {
		return nil
	}
	v := new(big.Int).Mul(new(big.Int).Abs(raw), priceMicros)
	return v.Quo(v, Pow10(clampDecimals(decimals)))
}

// FormatMicros renders a micro-USD value with up to six fraction digits.
func FormatMicros(micros *big.Int) string {
	return FormatUnits(micros, PriceDecimals, PriceDecimals)
}

// FormatUSD renders a micro-USD value as "$1,234.5" with at most two
// fraction digits. Only this final rendering step leaves integer math.
func FormatUSD(micros *big.Int) string {
	if micros == nil {
		return ""
	}
	d := decimal.NewFromBigInt(micros, -PriceDecimals).Round(2)
	return "$" + GroupThousands(d.String())
}

// GroupThousands inserts commas into the integer part of a decimal string.
func GroupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	if len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	if hasFrac {
		return sign + intPart + "." + frac
	}
	return sign + intPart
}
