// Package risk implements the margin, PnL, and liquidation math for the
// position ledger. All functions are pure: identical inputs always produce
// identical outputs, and nothing here reads storage or the oracle.
//
// Inputs and outputs are scaled int64 amounts. Intermediate products (size ×
// price) exceed 64 bits, so the math runs on shopspring decimals and the
// result is converted back at the end; a result outside the int64 range is
// reported as domain.ErrAmountOverflow. Every division truncates toward
// zero, matching the settlement ledger this engine mirrors.
package risk

import (
	"github.com/shopspring/decimal"

	"synapse/internal/domain"
)

// DefaultPriceDecimals is the price scale of the reference oracle feed.
// The scale is always passed explicitly; this constant only seeds config
// defaults.
const DefaultPriceDecimals = 14

// bpsDivisor converts basis points to a fraction (10_000 bps = 100%).
var bpsDivisor = decimal.NewFromInt(10_000)

// RequiredMargin computes the collateral needed to hold a position of
// |size| sizeAbs at the given price and leverage:
//
//	notional = sizeAbs * price / 10^decimals   (truncated)
//	margin   = notional / leverage             (truncated)
//
// The two truncation steps are deliberate and must not be fused; fusing
// them changes results by up to one unit.
func RequiredMargin(sizeAbs, price int64, leverage uint32, decimals int) (int64, error) {
	if sizeAbs <= 0 || price <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	if leverage == 0 {
		return 0, domain.ErrInvalidLeverage
	}
	if decimals <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	notional := quoTrunc(
		decimal.NewFromInt(sizeAbs).Mul(decimal.NewFromInt(price)),
		pow10(decimals),
	)
	margin := quoTrunc(notional, decimal.NewFromInt(int64(leverage)))
	return toAmount(margin)
}

// PnL computes the signed profit or loss of a position marked at
// currentPrice. For a long (size > 0):
//
//	(currentPrice - entryPrice) * size / 10^decimals
//
// and for a short (size < 0):
//
//	(entryPrice - currentPrice) * |size| / 10^decimals
//
// both truncated toward zero.
func PnL(size, entryPrice, currentPrice int64, decimals int) (int64, error) {
	if size == 0 {
		return 0, domain.ErrPositionTooSmall
	}
	if entryPrice <= 0 || currentPrice <= 0 || decimals <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	var diff, qty decimal.Decimal
	if size > 0 {
		diff = decimal.NewFromInt(currentPrice).Sub(decimal.NewFromInt(entryPrice))
		qty = decimal.NewFromInt(size)
	} else {
		diff = decimal.NewFromInt(entryPrice).Sub(decimal.NewFromInt(currentPrice))
		qty = decimal.NewFromInt(size).Abs()
	}

	pnl := quoTrunc(diff.Mul(qty), pow10(decimals))
	return toAmount(pnl)
}

// MaintenanceRequired converts a required margin into the maintenance
// threshold: requiredMargin * marginBPS / 10_000, truncated.
func MaintenanceRequired(requiredMargin, marginBPS int64) (int64, error) {
	if requiredMargin < 0 || marginBPS < 0 {
		return 0, domain.ErrInvalidAmount
	}
	m := quoTrunc(
		decimal.NewFromInt(requiredMargin).Mul(decimal.NewFromInt(marginBPS)),
		bpsDivisor,
	)
	return toAmount(m)
}

// Liquidatable reports whether a position with the given posted collateral
// fails the maintenance-margin check at the current price. The check
// compares raw collateral against the maintenance threshold recomputed at
// the current price; unrealized PnL never enters the check (see
// PolicyIgnoresPnL).
func Liquidatable(collateral, sizeAbs, price int64, leverage uint32, marginBPS int64, decimals int) (bool, error) {
	margin, err := RequiredMargin(sizeAbs, price, leverage, decimals)
	if err != nil {
		return false, err
	}
	maintenance, err := MaintenanceRequired(margin, marginBPS)
	if err != nil {
		return false, err
	}
	return collateral < maintenance, nil
}

// PolicyIgnoresPnL documents the liquidation solvency policy: the
// maintenance check tests posted collateral only, while Close settles
// collateral plus PnL. Flipping this to an equity-based check changes
// which positions are liquidatable and must be a deliberate decision.
const PolicyIgnoresPnL = true

// Settlement returns collateral + pnl with overflow checked, the amount the
// external settlement collaborator owes (or is owed by) the position owner.
func Settlement(collateral, pnl int64) (int64, error) {
	s := decimal.NewFromInt(collateral).Add(decimal.NewFromInt(pnl))
	return toAmount(s)
}

// pow10 returns 10^n as a decimal.
func pow10(n int) decimal.Decimal {
	return decimal.New(1, int32(n))
}

// quoTrunc divides n by d truncating toward zero.
func quoTrunc(n, d decimal.Decimal) decimal.Decimal {
	q, _ := n.QuoRem(d, 0)
	return q
}

// toAmount converts an integral decimal back to int64, reporting overflow.
func toAmount(d decimal.Decimal) (int64, error) {
	bi := d.BigInt()
	if !bi.IsInt64() {
		return 0, domain.ErrAmountOverflow
	}
	return bi.Int64(), nil
}
