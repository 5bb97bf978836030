package market

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals ist die Genauigkeit der nativen Währung (1 Einheit = 10^18 kleinste Einheiten).
const NativeDecimals = 18

// ParseUnits wandelt einen Dezimalstring (z.B. "0.1") in kleinste Einheiten um.
// Mehr Nachkommastellen als decimals sind ein Fehler, ebenso negative Werte.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// ParseNative ist ParseUnits mit NativeDecimals.
func ParseNative(s string) (*big.Int, error) {
	return ParseUnits(s, NativeDecimals)
}

// FormatUnits ist die Umkehrung von ParseUnits.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// FormatNative ist FormatUnits mit NativeDecimals.
func FormatNative(v *big.Int) string {
	return FormatUnits(v, NativeDecimals)
}

// unitScale liefert 10^decimals.
func unitScale(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
