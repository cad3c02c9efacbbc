package oracle

import (
	"github.com/shopspring/decimal"

	"synapse/internal/domain"
)

// scalePrice converts a float feed price into a scaled integer with the
// given decimal count, truncating toward zero.
func scalePrice(price float64, decimals int) (int64, error) {
	if price <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	scaled := decimal.NewFromFloat(price).Mul(decimal.New(1, int32(decimals)))
	return toScaled(scaled)
}

// scaleRatio computes base * 10^decimals / quote, truncating toward zero.
// Both inputs are already scaled, so the result keeps the same scale.
func scaleRatio(base, quote int64, decimals int) (int64, error) {
	if base <= 0 || quote <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	n := decimal.NewFromInt(base).Mul(decimal.New(1, int32(decimals)))
	q, _ := n.QuoRem(decimal.NewFromInt(quote), 0)
	return toScaled(q)
}

// toScaled truncates an integral decimal to int64, reporting overflow.
func toScaled(d decimal.Decimal) (int64, error) {
	bi := d.BigInt()
	if !bi.IsInt64() {
		return 0, domain.ErrAmountOverflow
	}
	return bi.Int64(), nil
}
