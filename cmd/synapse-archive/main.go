// synapse-archive exports closed positions from the sqlite ledger into
// per-year parquet files for offline analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"synapse/internal/config"
	"synapse/internal/store"
	"synapse/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config/synapse.yaml", "path to config file")
	flag.Parse()

	if p := os.Getenv("SYNAPSE_CONFIG"); p != "" && *cfgPath == "config/synapse.yaml" {
		*cfgPath = p
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)

	if cfg.Storage.Backend != "sqlite" {
		log.Fatalf("archive requires the sqlite backend, config has %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir == "" {
		log.Fatal("storage.data_dir must be set for the archive")
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer st.Close()

	closed, err := st.ListClosed(context.Background())
	if err != nil {
		log.Fatalf("listing closed positions: %v", err)
	}
	if len(closed) == 0 {
		fmt.Println("no closed positions to archive")
		return
	}

	archive := store.NewParquetArchive(cfg.Storage.DataDir)
	if err := archive.WritePositions(closed); err != nil {
		log.Fatalf("writing archive: %v", err)
	}

	logger.Info("archive written", "positions", len(closed), "dataDir", cfg.Storage.DataDir)
	fmt.Printf("archived %d closed positions to %s\n", len(closed), cfg.Storage.DataDir)
}
