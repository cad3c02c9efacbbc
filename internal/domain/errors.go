package domain

import "errors"

// Operation error kinds. Callers classify with errors.Is; the HTTP layer
// maps them to status codes via ErrorCode.
var (
	ErrAlreadyInitialized      = errors.New("market already initialized")
	ErrNotInitialized          = errors.New("market not initialized")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInsufficientCollateral  = errors.New("insufficient collateral")
	ErrPositionNotFound        = errors.New("position not found")
	ErrInvalidLeverage         = errors.New("invalid leverage")
	ErrInvalidAsset            = errors.New("invalid asset")
	ErrPriceStale              = errors.New("price quote stale")
	ErrInsufficientLiquidity   = errors.New("insufficient liquidity")
	ErrPositionTooSmall        = errors.New("position too small")
	ErrMaintenanceMarginNotMet = errors.New("maintenance margin not met")
	ErrOracle                  = errors.New("oracle unavailable")
	ErrInvalidAmount           = errors.New("invalid amount")

	// ErrAmountOverflow is returned when a scaled-integer result does not
	// fit the 64-bit amount range. Kept distinct from ErrInvalidAmount so
	// overflow is never mistaken for a caller input problem.
	ErrAmountOverflow = errors.New("amount overflow")
)

// errorCodes maps each error kind to its stable wire code.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyInitialized, "ALREADY_INITIALIZED"},
	{ErrNotInitialized, "NOT_INITIALIZED"},
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrInsufficientCollateral, "INSUFFICIENT_COLLATERAL"},
	{ErrPositionNotFound, "POSITION_NOT_FOUND"},
	{ErrInvalidLeverage, "INVALID_LEVERAGE"},
	{ErrInvalidAsset, "INVALID_ASSET"},
	{ErrPriceStale, "PRICE_STALE"},
	{ErrInsufficientLiquidity, "INSUFFICIENT_LIQUIDITY"},
	{ErrPositionTooSmall, "POSITION_TOO_SMALL"},
	{ErrMaintenanceMarginNotMet, "MAINTENANCE_MARGIN_NOT_MET"},
	{ErrOracle, "ORACLE_ERROR"},
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrAmountOverflow, "AMOUNT_OVERFLOW"},
}

// ErrorCode returns the stable code for a known error kind, or "INTERNAL"
// for anything else.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL"
}
