// Package httpapi provides the HTTP REST API for the synapse position
// ledger: market administration, position lifecycle, and read endpoints.
package httpapi

// InitializeRequest configures the market. Accepted once per deployment.
type InitializeRequest struct {
	Admin                string `json:"admin"`
	Treasury             string `json:"treasury"`
	MinCollateral        int64  `json:"min_collateral"`
	MaxLeverage          uint32 `json:"max_leverage"`
	MaintenanceMarginBPS int64  `json:"maintenance_margin_bps"`
	FundingInterval      int64  `json:"funding_interval"`
	StalenessWindow      int64  `json:"staleness_window,omitempty"`
	PriceDecimals        int    `json:"price_decimals,omitempty"`
	OracleRef            string `json:"oracle_ref,omitempty"`
}

// OpenPositionRequest opens a leveraged position. Size is signed: positive
// for long, negative for short.
type OpenPositionRequest struct {
	Account    string `json:"account"`
	Asset      string `json:"asset"`
	Size       int64  `json:"size"`
	Leverage   uint32 `json:"leverage"`
	Collateral int64  `json:"collateral"`
}

// OpenPositionResponse returns the ID assigned to a new position.
type OpenPositionResponse struct {
	PositionID uint64 `json:"position_id"`
}

// ClosePositionResponse reports the realised outcome of a close.
type ClosePositionResponse struct {
	PositionID uint64 `json:"position_id"`
	Account    string `json:"account"`
	PnL        int64  `json:"pnl"`
	Settlement int64  `json:"settlement"`
	ClosePrice int64  `json:"close_price"`
}

// LiquidatePositionResponse reports a completed liquidation. The forfeited
// collateral is owed to the treasury account.
type LiquidatePositionResponse struct {
	PositionID uint64 `json:"position_id"`
	Account    string `json:"account"`
	Forfeited  int64  `json:"forfeited"`
	Treasury   string `json:"treasury"`
	MarkPrice  int64  `json:"mark_price"`
}

// AccountPositionsResponse lists every position ID an account has ever
// opened, including closed ones.
type AccountPositionsResponse struct {
	Account     string   `json:"account"`
	PositionIDs []uint64 `json:"position_ids"`
}

// OpenCountResponse reports the number of currently open positions.
type OpenCountResponse struct {
	Open uint64 `json:"open"`
}

// SetOracleRequest updates the oracle reference. Admin only.
type SetOracleRequest struct {
	Caller    string `json:"caller"`
	OracleRef string `json:"oracle_ref"`
}

// ErrorResponse is the JSON body returned for every error status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
