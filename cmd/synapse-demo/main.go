// synapse-demo walks the full position lifecycle against an in-memory
// ledger and a seeded static oracle: initialize, open long and short,
// close one at a profit, crash the price, and liquidate the other.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"synapse/internal/market"
	"synapse/internal/oracle"
	"synapse/internal/store"
	"synapse/internal/util"
)

func main() {
	logger := util.NewLogger("warn")
	ctx := context.Background()

	ms := store.NewMemoryStore()
	feed := oracle.NewStaticOracle(14)
	m := market.New(ms, ms, feed, logger)

	err := m.Initialize(ctx, market.InitParams{
		Admin:                "demo-admin",
		Treasury:             "demo-treasury",
		MinCollateral:        100_000_000,
		MaxLeverage:          10,
		MaintenanceMarginBPS: 500,
		FundingInterval:      3600,
		OracleRef:            feed.Version(),
	})
	if err != nil {
		log.Fatalf("initialize: %v", err)
	}
	fmt.Println("market initialized: min collateral 100000000, max leverage 10x, maintenance 5%")

	// $50,000 at 10 decimals of price precision beyond the dollar.
	entry := int64(500_000_000_000_000)
	feed.SetPrice("BTC", entry, time.Now().Unix())

	longID, err := m.Open(ctx, "alice", "BTC", 1_000_000, 2, 200_000_000)
	if err != nil {
		log.Fatalf("open long: %v", err)
	}
	fmt.Printf("alice opened long #%d: size 1000000 at price %d\n", longID, entry)

	shortID, err := m.Open(ctx, "bob", "BTC", -1_000_000, 5, 150_000_000)
	if err != nil {
		log.Fatalf("open short: %v", err)
	}
	fmt.Printf("bob opened short #%d: size -1000000 at price %d\n", shortID, entry)

	open, _ := m.OpenPositions(ctx)
	fmt.Printf("open positions: %d\n", open)

	// Price rises 10%: good for alice, bad for bob.
	feed.SetPrice("BTC", entry+entry/10, time.Now().Unix())

	res, err := m.Close(ctx, longID)
	if err != nil {
		log.Fatalf("close long: %v", err)
	}
	fmt.Printf("alice closed #%d: pnl %+d, settlement %d\n", res.PositionID, res.PnL, res.Settlement)

	// Price explodes until bob's maintenance requirement outgrows his
	// posted collateral.
	feed.SetPrice("BTC", entry*4000, time.Now().Unix())

	liq, err := m.Liquidate(ctx, shortID)
	if err != nil {
		log.Fatalf("liquidate short: %v", err)
	}
	fmt.Printf("bob liquidated on #%d: forfeited %d to %s at mark %d\n",
		liq.PositionID, liq.Forfeited, liq.Treasury, liq.MarkPrice)

	open, _ = m.OpenPositions(ctx)
	fmt.Printf("open positions: %d\n", open)
}
