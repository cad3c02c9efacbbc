// Package market implements the position lifecycle controller: it composes
// the config store, the oracle gateway, the risk engine, and the position
// ledger into the open/close/liquidate operations.
package market

import (
	"context"
	"log/slog"
	"math"
	"time"

	"synapse/internal/domain"
	"synapse/internal/oracle"
	"synapse/internal/risk"
	"synapse/internal/store"
)

// DefaultStalenessWindow is how long a price quote stays acceptable for
// opening a position, in seconds. It is a policy default; deployments
// override it through InitParams.
const DefaultStalenessWindow = 360

// Market orchestrates the position lifecycle. State machine per position:
// none → open → closed; nothing leaves closed. All validation happens
// before any ledger write, and the open→closed flip goes through the
// store's MarkClosed so racing close/liquidate calls resolve to exactly
// one winner.
type Market struct {
	configs   store.ConfigStore
	positions store.PositionStore
	oracle    oracle.Oracle
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Market over the given stores and oracle gateway.
func New(configs store.ConfigStore, positions store.PositionStore, o oracle.Oracle, log *slog.Logger) *Market {
	return &Market{
		configs:   configs,
		positions: positions,
		oracle:    o,
		log:       log,
		now:       time.Now,
	}
}

// InitParams are the one-time market initialization parameters.
type InitParams struct {
	Admin                string
	Treasury             string
	MinCollateral        int64
	MaxLeverage          uint32
	MaintenanceMarginBPS int64
	FundingInterval      int64 // seconds; stored for the funding scheduler, unused here
	StalenessWindow      int64 // seconds; 0 selects DefaultStalenessWindow
	PriceDecimals        int   // 0 selects risk.DefaultPriceDecimals
	OracleRef            string
}

// CloseResult reports the outcome of a close. Settlement is collateral plus
// PnL, the amount the external settlement collaborator transfers to (or
// recovers from) the owner. The controller itself moves no funds.
type CloseResult struct {
	PositionID uint64 `json:"position_id"`
	Account    string `json:"account"`
	PnL        int64  `json:"pnl"`
	Settlement int64  `json:"settlement"`
	ClosePrice int64  `json:"close_price"`
}

// LiquidationResult reports the outcome of a liquidation. The full posted
// collateral is forfeit to the treasury; the transfer itself is external.
type LiquidationResult struct {
	PositionID uint64 `json:"position_id"`
	Account    string `json:"account"`
	Forfeited  int64  `json:"forfeited"`
	Treasury   string `json:"treasury"`
	MarkPrice  int64  `json:"mark_price"`
}

// Initialize stores the market configuration. It succeeds at most once per
// deployed instance.
func (m *Market) Initialize(ctx context.Context, p InitParams) error {
	if p.MinCollateral <= 0 {
		return domain.ErrInvalidAmount
	}
	if p.MaxLeverage == 0 {
		return domain.ErrInvalidLeverage
	}
	if p.MaintenanceMarginBPS <= 0 || p.MaintenanceMarginBPS > 10_000 {
		return domain.ErrInvalidAmount
	}

	if p.StalenessWindow == 0 {
		p.StalenessWindow = DefaultStalenessWindow
	}
	if p.PriceDecimals == 0 {
		p.PriceDecimals = risk.DefaultPriceDecimals
	}

	cfg := &domain.MarketConfig{
		Admin:                p.Admin,
		Treasury:             p.Treasury,
		MinCollateral:        p.MinCollateral,
		MaxLeverage:          p.MaxLeverage,
		MaintenanceMarginBPS: p.MaintenanceMarginBPS,
		FundingInterval:      p.FundingInterval,
		StalenessWindow:      p.StalenessWindow,
		PriceDecimals:        p.PriceDecimals,
		OracleRef:            p.OracleRef,
		Active:               true,
	}
	if err := m.configs.InitConfig(ctx, cfg); err != nil {
		return err
	}

	m.log.Info("market initialized",
		"admin", p.Admin,
		"minCollateral", p.MinCollateral,
		"maxLeverage", p.MaxLeverage,
		"maintenanceBPS", p.MaintenanceMarginBPS,
		"stalenessWindow", p.StalenessWindow,
	)
	return nil
}

// Open opens a leveraged position for account and returns its ID. All
// preconditions are checked before the first ledger write; a failure
// leaves the ledger and counters untouched.
func (m *Market) Open(ctx context.Context, account, asset string, size int64, leverage uint32, collateral int64) (uint64, error) {
	cfg, err := m.configs.Config(ctx)
	if err != nil {
		return 0, err
	}

	if asset == "" {
		return 0, domain.ErrInvalidAsset
	}
	if collateral <= 0 || size == math.MinInt64 {
		return 0, domain.ErrInvalidAmount
	}
	if collateral < cfg.MinCollateral {
		return 0, domain.ErrInsufficientCollateral
	}
	if leverage == 0 || leverage > cfg.MaxLeverage {
		return 0, domain.ErrInvalidLeverage
	}
	if size == 0 {
		return 0, domain.ErrPositionTooSmall
	}

	quote, err := m.fetchPrice(ctx, asset)
	if err != nil {
		return 0, err
	}
	now := m.now().Unix()
	if now-quote.Timestamp >= cfg.StalenessWindow {
		return 0, domain.ErrPriceStale
	}

	sizeAbs := size
	if sizeAbs < 0 {
		sizeAbs = -sizeAbs
	}
	margin, err := risk.RequiredMargin(sizeAbs, quote.Price, leverage, cfg.PriceDecimals)
	if err != nil {
		return 0, err
	}
	if collateral < margin {
		return 0, domain.ErrInsufficientCollateral
	}

	id, err := m.positions.NextID(ctx)
	if err != nil {
		return 0, err
	}
	pos := &domain.Position{
		ID:         id,
		Account:    account,
		Asset:      asset,
		Size:       size,
		Collateral: collateral,
		EntryPrice: quote.Price,
		Leverage:   leverage,
		OpenedAt:   now,
		IsOpen:     true,
	}
	if err := m.positions.Put(ctx, pos); err != nil {
		return 0, err
	}

	m.log.Info("position opened",
		"id", id,
		"account", account,
		"asset", asset,
		"side", pos.Side(),
		"size", size,
		"leverage", leverage,
		"entryPrice", quote.Price,
	)
	return id, nil
}

// Close closes an open position at the current oracle price and returns
// the settlement the external collaborator applies. Unlike Open, the quote
// is accepted regardless of age: closing stays possible when the feed lags.
func (m *Market) Close(ctx context.Context, id uint64) (*CloseResult, error) {
	cfg, err := m.configs.Config(ctx)
	if err != nil {
		return nil, err
	}

	pos, err := m.positions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pos.IsOpen {
		return nil, domain.ErrPositionNotFound
	}

	quote, err := m.fetchPrice(ctx, pos.Asset)
	if err != nil {
		return nil, err
	}

	pnl, err := risk.PnL(pos.Size, pos.EntryPrice, quote.Price, cfg.PriceDecimals)
	if err != nil {
		return nil, err
	}
	settlement, err := risk.Settlement(pos.Collateral, pnl)
	if err != nil {
		return nil, err
	}

	// The flip is last: an oracle or arithmetic failure above leaves the
	// position open. Losing a close/liquidate race surfaces here.
	if _, err := m.positions.MarkClosed(ctx, id); err != nil {
		return nil, err
	}

	m.log.Info("position closed",
		"id", id,
		"account", pos.Account,
		"pnl", pnl,
		"settlement", settlement,
		"closePrice", quote.Price,
	)
	return &CloseResult{
		PositionID: id,
		Account:    pos.Account,
		PnL:        pnl,
		Settlement: settlement,
		ClosePrice: quote.Price,
	}, nil
}

// Liquidate closes an undercollateralized position. Any caller may invoke
// it once the maintenance check fails; liquidation needs no special
// credentials. The full collateral is forfeit to the treasury and no PnL
// is computed.
func (m *Market) Liquidate(ctx context.Context, id uint64) (*LiquidationResult, error) {
	cfg, err := m.configs.Config(ctx)
	if err != nil {
		return nil, err
	}

	pos, err := m.positions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pos.IsOpen {
		return nil, domain.ErrPositionNotFound
	}

	quote, err := m.fetchPrice(ctx, pos.Asset)
	if err != nil {
		return nil, err
	}

	sizeAbs := pos.Size
	if sizeAbs < 0 {
		sizeAbs = -sizeAbs
	}
	liquidatable, err := risk.Liquidatable(pos.Collateral, sizeAbs, quote.Price,
		pos.Leverage, cfg.MaintenanceMarginBPS, cfg.PriceDecimals)
	if err != nil {
		return nil, err
	}
	if !liquidatable {
		return nil, domain.ErrMaintenanceMarginNotMet
	}

	if _, err := m.positions.MarkClosed(ctx, id); err != nil {
		return nil, err
	}

	m.log.Info("position liquidated",
		"id", id,
		"account", pos.Account,
		"forfeited", pos.Collateral,
		"markPrice", quote.Price,
	)
	return &LiquidationResult{
		PositionID: id,
		Account:    pos.Account,
		Forfeited:  pos.Collateral,
		Treasury:   cfg.Treasury,
		MarkPrice:  quote.Price,
	}, nil
}

// Position returns the position record for an ID, open or closed.
func (m *Market) Position(ctx context.Context, id uint64) (*domain.Position, error) {
	return m.positions.Get(ctx, id)
}

// AccountPositions returns the account's position IDs in open order.
// Closed positions are included; callers filter by IsOpen.
func (m *Market) AccountPositions(ctx context.Context, account string) ([]uint64, error) {
	return m.positions.ListForAccount(ctx, account)
}

// OpenPositions returns the number of currently open positions.
func (m *Market) OpenPositions(ctx context.Context) (uint64, error) {
	return m.positions.OpenCount(ctx)
}

// Config returns a snapshot of the market configuration.
func (m *Market) Config(ctx context.Context) (*domain.MarketConfig, error) {
	return m.configs.Config(ctx)
}

// SetOracleRef updates the oracle reference. Only the configured admin may
// call it.
func (m *Market) SetOracleRef(ctx context.Context, caller, ref string) error {
	cfg, err := m.configs.Config(ctx)
	if err != nil {
		return err
	}
	if caller != cfg.Admin {
		return domain.ErrUnauthorized
	}
	if err := m.configs.SetOracleRef(ctx, ref); err != nil {
		return err
	}
	m.log.Info("oracle reference updated", "caller", caller, "ref", ref)
	return nil
}

// fetchPrice looks up the asset's latest quote, mapping any gateway
// failure to the single oracle error kind callers classify on.
func (m *Market) fetchPrice(ctx context.Context, asset string) (*domain.PriceQuote, error) {
	quote, err := m.oracle.LastPrice(ctx, asset)
	if err != nil {
		m.log.Warn("oracle lookup failed", "asset", asset, "error", err)
		return nil, domain.ErrOracle
	}
	return quote, nil
}
