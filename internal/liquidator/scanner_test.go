package liquidator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"synapse/internal/market"
	"synapse/internal/oracle"
	"synapse/internal/store"
)

func newTestScanner(t *testing.T) (*Scanner, *market.Market, *store.MemoryStore, *oracle.StaticOracle) {
	t.Helper()
	ms := store.NewMemoryStore()
	o := oracle.NewStaticOracle(14)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := market.New(ms, ms, o, log)

	err := m.Initialize(context.Background(), market.InitParams{
		Admin:                "admin",
		Treasury:             "treasury",
		MinCollateral:        1_000_000,
		MaxLeverage:          10,
		MaintenanceMarginBPS: 500,
	})
	if err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	s := New(ms, m, 10*time.Millisecond, 600_000, log)
	return s, m, ms, o
}

func TestSweepLiquidatesOnlyUnderwater(t *testing.T) {
	s, m, ms, o := newTestScanner(t)
	ctx := context.Background()
	now := time.Now().Unix()

	// Margin for each: 1e6 * 5e14 / 1e14 / 2 = 2_500_000.
	o.SetPrice("BTC", 500_000_000_000_000, now)
	o.SetPrice("ETH", 500_000_000_000_000, now)

	// BTC posts exactly the margin, ETH posts a large cushion.
	btcID, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 2_500_000)
	if err != nil {
		t.Fatalf("Open BTC returned error: %v", err)
	}
	ethID, err := m.Open(ctx, "bob", "ETH", 1_000_000, 2, 500_000_000)
	if err != nil {
		t.Fatalf("Open ETH returned error: %v", err)
	}

	// BTC maintenance rises to 5_000_000 > 2_500_000; ETH stays healthy.
	o.SetPrice("BTC", 20_000_000_000_000_000, now)

	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	btc, err := ms.Get(ctx, btcID)
	if err != nil {
		t.Fatalf("Get BTC returned error: %v", err)
	}
	if btc.IsOpen {
		t.Error("underwater position still open after sweep")
	}

	eth, err := ms.Get(ctx, ethID)
	if err != nil {
		t.Fatalf("Get ETH returned error: %v", err)
	}
	if !eth.IsOpen {
		t.Error("healthy position was liquidated by sweep")
	}

	n, _ := ms.OpenCount(ctx)
	if n != 1 {
		t.Errorf("OpenCount after sweep = %d, want 1", n)
	}
}

func TestSweepEmptyLedger(t *testing.T) {
	s, _, _, _ := newTestScanner(t)
	if err := s.Sweep(context.Background()); err != nil {
		t.Errorf("Sweep on empty ledger returned error: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _, _ := newTestScanner(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
