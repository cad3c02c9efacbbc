package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"synapse/internal/domain"
	"synapse/internal/oracle"
	"synapse/internal/store"
)

const testNow = int64(1_700_000_000)

func newTestMarket(t *testing.T) (*Market, *store.MemoryStore, *oracle.StaticOracle) {
	t.Helper()
	ms := store.NewMemoryStore()
	o := oracle.NewStaticOracle(14)
	m := New(ms, ms, o, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return time.Unix(testNow, 0) }
	return m, ms, o
}

func initTestMarket(t *testing.T, m *Market) {
	t.Helper()
	err := m.Initialize(context.Background(), InitParams{
		Admin:                "admin-1",
		Treasury:             "treasury-1",
		MinCollateral:        100_000_000,
		MaxLeverage:          10,
		MaintenanceMarginBPS: 500,
		FundingInterval:      3600,
		OracleRef:            "static/1",
	})
	if err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
}

// btcPrice is $50,000 scaled by 10^10 — the end-to-end scenario quote.
const btcPrice = int64(500_000_000_000_000)

func TestInitializeOnce(t *testing.T) {
	m, _, _ := newTestMarket(t)
	initTestMarket(t, m)

	err := m.Initialize(context.Background(), InitParams{
		Admin:                "other",
		Treasury:             "other",
		MinCollateral:        1,
		MaxLeverage:          1,
		MaintenanceMarginBPS: 1,
	})
	if !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Errorf("second Initialize: err = %v, want ErrAlreadyInitialized", err)
	}

	cfg, err := m.Config(context.Background())
	if err != nil {
		t.Fatalf("Config returned error: %v", err)
	}
	if cfg.StalenessWindow != DefaultStalenessWindow {
		t.Errorf("StalenessWindow = %d, want default %d", cfg.StalenessWindow, DefaultStalenessWindow)
	}
	if cfg.PriceDecimals != 14 {
		t.Errorf("PriceDecimals = %d, want default 14", cfg.PriceDecimals)
	}
}

func TestInitializeValidation(t *testing.T) {
	m, _, _ := newTestMarket(t)
	ctx := context.Background()

	if err := m.Initialize(ctx, InitParams{MinCollateral: 0, MaxLeverage: 10, MaintenanceMarginBPS: 500}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero min collateral: err = %v, want ErrInvalidAmount", err)
	}
	if err := m.Initialize(ctx, InitParams{MinCollateral: 1, MaxLeverage: 0, MaintenanceMarginBPS: 500}); !errors.Is(err, domain.ErrInvalidLeverage) {
		t.Errorf("zero max leverage: err = %v, want ErrInvalidLeverage", err)
	}
	if err := m.Initialize(ctx, InitParams{MinCollateral: 1, MaxLeverage: 10, MaintenanceMarginBPS: 10_001}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("bps over 100%%: err = %v, want ErrInvalidAmount", err)
	}
}

func TestOpenBeforeInitialize(t *testing.T) {
	m, _, o := newTestMarket(t)
	o.SetPrice("BTC", btcPrice, testNow)

	_, err := m.Open(context.Background(), "alice", "BTC", 1_000_000, 2, 200_000_000)
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestOpenPreconditions(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	o.SetPrice("BTC", btcPrice, testNow)
	ctx := context.Background()

	cases := []struct {
		name       string
		asset      string
		size       int64
		leverage   uint32
		collateral int64
		want       error
	}{
		{"empty asset", "", 1_000_000, 2, 200_000_000, domain.ErrInvalidAsset},
		{"collateral below minimum", "BTC", 1_000_000, 2, 99_999_999, domain.ErrInsufficientCollateral},
		{"zero leverage", "BTC", 1_000_000, 0, 200_000_000, domain.ErrInvalidLeverage},
		{"leverage above maximum", "BTC", 1_000_000, 11, 200_000_000, domain.ErrInvalidLeverage},
		{"zero size", "BTC", 0, 2, 200_000_000, domain.ErrPositionTooSmall},
		{"negative collateral", "BTC", 1_000_000, 2, -1, domain.ErrInvalidAmount},
		{"unknown asset", "DOGE", 1_000_000, 2, 200_000_000, domain.ErrOracle},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Open(ctx, "alice", tc.asset, tc.size, tc.leverage, tc.collateral)
			if !errors.Is(err, tc.want) {
				t.Errorf("Open error = %v, want %v", err, tc.want)
			}
		})
	}

	// None of the failures touched the ledger.
	n, err := m.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("OpenPositions after failed opens = %d, want 0", n)
	}
}

func TestOpenRequiresMarginBeyondMinimum(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()

	// Price high enough that required margin (25e9) exceeds the posted
	// collateral even though it clears the configured minimum.
	o.SetPrice("BTC", 5_000_000_000_000_000_000, testNow)
	_, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if !errors.Is(err, domain.ErrInsufficientCollateral) {
		t.Errorf("err = %v, want ErrInsufficientCollateral", err)
	}
}

func TestOpenStalePrice(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()

	// Exactly at the window boundary is already stale (now - ts >= window).
	o.SetPrice("BTC", btcPrice, testNow-DefaultStalenessWindow)
	_, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if !errors.Is(err, domain.ErrPriceStale) {
		t.Errorf("boundary age: err = %v, want ErrPriceStale", err)
	}

	// Ledger untouched: the next successful open still gets ID 1.
	o.SetPrice("BTC", btcPrice, testNow-DefaultStalenessWindow+1)
	id, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if err != nil {
		t.Fatalf("Open with fresh quote returned error: %v", err)
	}
	if id != 1 {
		t.Errorf("first successful open ID = %d, want 1 (no IDs burned by stale attempt)", id)
	}
}

func TestOpenCloseEndToEnd(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()
	o.SetPrice("BTC", btcPrice, testNow)

	id, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if id != 1 {
		t.Errorf("Open ID = %d, want 1", id)
	}

	pos, err := m.Position(ctx, id)
	if err != nil {
		t.Fatalf("Position returned error: %v", err)
	}
	if pos.EntryPrice != btcPrice {
		t.Errorf("EntryPrice = %d, want quote price %d", pos.EntryPrice, btcPrice)
	}
	if !pos.IsOpen || pos.Side() != "long" {
		t.Errorf("position = %+v, want open long", pos)
	}

	n, _ := m.OpenPositions(ctx)
	if n != 1 {
		t.Errorf("OpenPositions = %d, want 1", n)
	}

	// Close at the unchanged price: zero PnL, settlement == collateral.
	res, err := m.Close(ctx, id)
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if res.PnL != 0 {
		t.Errorf("PnL = %d, want 0", res.PnL)
	}
	if res.Settlement != 200_000_000 {
		t.Errorf("Settlement = %d, want 200000000", res.Settlement)
	}
	if res.Account != "alice" {
		t.Errorf("Account = %q, want %q", res.Account, "alice")
	}

	pos, err = m.Position(ctx, id)
	if err != nil {
		t.Fatalf("Position after close returned error: %v", err)
	}
	if pos.IsOpen {
		t.Error("position still open after Close")
	}

	n, _ = m.OpenPositions(ctx)
	if n != 0 {
		t.Errorf("OpenPositions after close = %d, want 0", n)
	}
}

func TestClosedIsTerminal(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()
	o.SetPrice("BTC", btcPrice, testNow)

	id, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := m.Close(ctx, id); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	if _, err := m.Close(ctx, id); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("second Close: err = %v, want ErrPositionNotFound", err)
	}
	if _, err := m.Liquidate(ctx, id); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("Liquidate after Close: err = %v, want ErrPositionNotFound", err)
	}

	n, _ := m.OpenPositions(ctx)
	if n != 0 {
		t.Errorf("OpenPositions = %d, want 0 (terminal attempts must not change state)", n)
	}
}

func TestIDsMonotonicAcrossCloses(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()
	o.SetPrice("BTC", btcPrice, testNow)

	var last uint64
	for i := 0; i < 4; i++ {
		id, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
		if err != nil {
			t.Fatalf("Open returned error: %v", err)
		}
		if id <= last {
			t.Errorf("ID %d not greater than previous %d", id, last)
		}
		last = id

		if _, err := m.Close(ctx, id); err != nil {
			t.Fatalf("Close returned error: %v", err)
		}
	}
	if last != 4 {
		t.Errorf("last ID = %d, want 4 (IDs never reused)", last)
	}

	ids, err := m.AccountPositions(ctx, "alice")
	if err != nil {
		t.Fatalf("AccountPositions returned error: %v", err)
	}
	if len(ids) != 4 {
		t.Errorf("AccountPositions length = %d, want 4 (closed positions retained)", len(ids))
	}
}

func TestPnLSignsThroughClose(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()

	entry := int64(500_000_000_000_000)
	higher := int64(550_000_000_000_000)

	o.SetPrice("BTC", entry, testNow)
	long, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if err != nil {
		t.Fatalf("Open long returned error: %v", err)
	}
	short, err := m.Open(ctx, "bob", "BTC", -1_000_000, 2, 200_000_000)
	if err != nil {
		t.Fatalf("Open short returned error: %v", err)
	}

	o.SetPrice("BTC", higher, testNow)

	longRes, err := m.Close(ctx, long)
	if err != nil {
		t.Fatalf("Close long returned error: %v", err)
	}
	if longRes.PnL <= 0 {
		t.Errorf("long PnL at higher price = %d, want > 0", longRes.PnL)
	}

	shortRes, err := m.Close(ctx, short)
	if err != nil {
		t.Fatalf("Close short returned error: %v", err)
	}
	if shortRes.PnL != -longRes.PnL {
		t.Errorf("short PnL = %d, want %d (equal magnitude, opposite sign)", shortRes.PnL, -longRes.PnL)
	}
}

func TestCloseIgnoresStaleness(t *testing.T) {
	m, _, o := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()

	o.SetPrice("BTC", btcPrice, testNow)
	id, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	// A quote far older than the staleness window still closes.
	o.SetPrice("BTC", btcPrice, testNow-10_000)
	if _, err := m.Close(ctx, id); err != nil {
		t.Errorf("Close with aged quote returned error: %v", err)
	}
}

func TestLiquidate(t *testing.T) {
	m, _, o := newTestMarket(t)
	ctx := context.Background()
	err := m.Initialize(ctx, InitParams{
		Admin:                "admin-1",
		Treasury:             "treasury-1",
		MinCollateral:        1_000_000,
		MaxLeverage:          10,
		MaintenanceMarginBPS: 500,
	})
	if err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	// Margin at entry: 1e6 * 5e14 / 1e14 / 2 = 2_500_000.
	o.SetPrice("BTC", 500_000_000_000_000, testNow)
	id, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 2_500_000)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	// Healthy at the entry price.
	if _, err := m.Liquidate(ctx, id); !errors.Is(err, domain.ErrMaintenanceMarginNotMet) {
		t.Errorf("healthy position: err = %v, want ErrMaintenanceMarginNotMet", err)
	}

	// Price up 40x: margin 1e8, maintenance 5e6 > 2.5e6 collateral.
	o.SetPrice("BTC", 20_000_000_000_000_000, testNow)
	res, err := m.Liquidate(ctx, id)
	if err != nil {
		t.Fatalf("Liquidate returned error: %v", err)
	}
	if res.Forfeited != 2_500_000 {
		t.Errorf("Forfeited = %d, want 2500000 (full collateral)", res.Forfeited)
	}
	if res.Treasury != "treasury-1" {
		t.Errorf("Treasury = %q, want %q", res.Treasury, "treasury-1")
	}

	pos, err := m.Position(ctx, id)
	if err != nil {
		t.Fatalf("Position returned error: %v", err)
	}
	if pos.IsOpen {
		t.Error("position still open after liquidation")
	}

	if _, err := m.Liquidate(ctx, id); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("second Liquidate: err = %v, want ErrPositionNotFound", err)
	}
}

func TestSetOracleRefRequiresAdmin(t *testing.T) {
	m, _, _ := newTestMarket(t)
	initTestMarket(t, m)
	ctx := context.Background()

	if err := m.SetOracleRef(ctx, "mallory", "evil/1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin SetOracleRef: err = %v, want ErrUnauthorized", err)
	}

	if err := m.SetOracleRef(ctx, "admin-1", "alpaca-crypto/1"); err != nil {
		t.Fatalf("admin SetOracleRef returned error: %v", err)
	}
	cfg, err := m.Config(ctx)
	if err != nil {
		t.Fatalf("Config returned error: %v", err)
	}
	if cfg.OracleRef != "alpaca-crypto/1" {
		t.Errorf("OracleRef = %q, want %q", cfg.OracleRef, "alpaca-crypto/1")
	}
}
