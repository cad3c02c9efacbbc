package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"synapse/internal/domain"
)

// ParquetArchive writes closed positions to Parquet files on disk, one file
// per year of opening, for offline analysis. It is an export sink, not part
// of the authoritative ledger.
type ParquetArchive struct {
	DataDir string
}

// NewParquetArchive creates an archive rooted at the given data directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// PositionRecord is the Parquet schema for archived positions. OpenedAt is
// Unix milliseconds on disk (Parquet timestamps have no seconds unit); the
// ledger keeps seconds.
type PositionRecord struct {
	ID         int64  `parquet:"id"`
	Account    string `parquet:"account"`
	Asset      string `parquet:"asset"`
	Size       int64  `parquet:"size"`
	Collateral int64  `parquet:"collateral"`
	EntryPrice int64  `parquet:"entry_price"`
	Leverage   int32  `parquet:"leverage"`
	OpenedAt   int64  `parquet:"opened_at,timestamp(millisecond)"`
}

// WritePositions archives the given positions, merging with any previously
// archived records. Records are deduplicated by ID (IDs are never reused,
// so re-archiving is idempotent).
func (a *ParquetArchive) WritePositions(positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	groups := make(map[int][]PositionRecord)
	for _, p := range positions {
		year := time.Unix(p.OpenedAt, 0).UTC().Year()
		groups[year] = append(groups[year], PositionRecord{
			ID:         int64(p.ID),
			Account:    p.Account,
			Asset:      p.Asset,
			Size:       p.Size,
			Collateral: p.Collateral,
			EntryPrice: p.EntryPrice,
			Leverage:   int32(p.Leverage),
			OpenedAt:   p.OpenedAt * 1000,
		})
	}

	for year, records := range groups {
		path := a.yearPath(year)

		existing, _ := readParquetFile[PositionRecord](path)
		merged := mergePositionRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing archive for %d: %w", year, err)
		}
	}
	return nil
}

// ReadPositions reads archived positions for the given year. A missing file
// yields an empty result, not an error.
func (a *ParquetArchive) ReadPositions(year int) ([]domain.Position, error) {
	records, err := readParquetFile[PositionRecord](a.yearPath(year))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.Position, 0, len(records))
	for _, r := range records {
		out = append(out, domain.Position{
			ID:         uint64(r.ID),
			Account:    r.Account,
			Asset:      r.Asset,
			Size:       r.Size,
			Collateral: r.Collateral,
			EntryPrice: r.EntryPrice,
			Leverage:   uint32(r.Leverage),
			OpenedAt:   r.OpenedAt / 1000,
			IsOpen:     false,
		})
	}
	return out, nil
}

// yearPath returns the archive file path for a year.
// Layout: <dataDir>/positions/<YYYY>.parquet
func (a *ParquetArchive) yearPath(year int) string {
	return filepath.Join(a.DataDir, "positions", fmt.Sprintf("%d.parquet", year))
}

// mergePositionRecords deduplicates by ID, preferring incoming records.
// Results are sorted by ID.
func mergePositionRecords(existing, incoming []PositionRecord) []PositionRecord {
	seen := make(map[int64]PositionRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]PositionRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ID < merged[j].ID
	})
	return merged
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
