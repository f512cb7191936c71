package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sizes and prices are signed as integers scaled by 10^8.
const chainDecimals = 8

var scaleX8Decimal = decimal.New(1, chainDecimals)

// ScaleToX8 truncates d*10^8 toward zero so the signed value never exceeds
// the requested size or price.
func ScaleToX8(d decimal.Decimal) string {
	return d.Mul(scaleX8Decimal).Truncate(0).String()
}

// ScaleToX8String is ScaleToX8 for a decimal string.
func ScaleToX8String(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", err
	}
	return ScaleToX8(d), nil
}

// FromChain converts a 10^8-scaled integer string back to a decimal.
func FromChain(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(-chainDecimals), nil
}
