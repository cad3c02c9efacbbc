// Package domain defines the core types shared across the synapse position
// ledger: positions, market configuration, price quotes, and the error kinds
// every operation can return.
package domain

// Position is a single leveraged position. Monetary fields are scaled
// integers: Size is in asset base units, Collateral in collateral-token base
// units, EntryPrice in the oracle's price scale (PriceDecimals in the market
// config).
type Position struct {
	ID         uint64 `json:"id"`
	Account    string `json:"account"`
	Asset      string `json:"asset"`
	Size       int64  `json:"size"` // positive = long, negative = short
	Collateral int64  `json:"collateral"`
	EntryPrice int64  `json:"entry_price"`
	Leverage   uint32 `json:"leverage"`
	OpenedAt   int64  `json:"opened_at"` // Unix seconds
	IsOpen     bool   `json:"is_open"`
}

// Side reports "long" or "short" based on the sign of Size.
func (p *Position) Side() string {
	if p.Size < 0 {
		return "short"
	}
	return "long"
}

// MarketConfig holds the global risk parameters for a deployed market
// instance. It is written once by Initialize and read by every operation;
// only the oracle reference may change afterward.
type MarketConfig struct {
	Admin                string `json:"admin"`
	Treasury             string `json:"treasury"`
	MinCollateral        int64  `json:"min_collateral"`
	MaxLeverage          uint32 `json:"max_leverage"`
	MaintenanceMarginBPS int64  `json:"maintenance_margin_bps"` // basis points, e.g. 500 = 5%
	FundingInterval      int64  `json:"funding_interval"`       // seconds; stored, not yet applied
	StalenessWindow      int64  `json:"staleness_window"`       // seconds a quote stays acceptable
	PriceDecimals        int    `json:"price_decimals"`         // oracle price scale
	OracleRef            string `json:"oracle_ref"`
	Active               bool   `json:"active"`
}

// PriceQuote is a point-in-time oracle price for one asset. Price is scaled
// by the oracle's decimal count; Timestamp is Unix seconds.
type PriceQuote struct {
	Price     int64 `json:"price"`
	Timestamp int64 `json:"timestamp"`
}
