package store

import (
	"testing"

	"synapse/internal/domain"
)

func archivedPosition(id uint64, openedAt int64) domain.Position {
	return domain.Position{
		ID:         id,
		Account:    "alice",
		Asset:      "BTC",
		Size:       -1_000_000,
		Collateral: 150_000_000,
		EntryPrice: 500_000_000_000_000,
		Leverage:   3,
		OpenedAt:   openedAt,
		IsOpen:     false,
	}
}

func TestParquetArchiveRoundTrip(t *testing.T) {
	a := NewParquetArchive(t.TempDir())

	// 2023-11-14 and 2024-06-01 (UTC) — two year files.
	positions := []domain.Position{
		archivedPosition(1, 1_700_000_000),
		archivedPosition(2, 1_717_200_000),
	}
	if err := a.WritePositions(positions); err != nil {
		t.Fatalf("WritePositions returned error: %v", err)
	}

	got, err := a.ReadPositions(2023)
	if err != nil {
		t.Fatalf("ReadPositions returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadPositions(2023) returned %d records, want 1", len(got))
	}
	p := got[0]
	if p.ID != 1 || p.Account != "alice" || p.Size != -1_000_000 || p.Leverage != 3 {
		t.Errorf("archived position = %+v, want original values", p)
	}
	// OpenedAt survives the millisecond on-disk representation unchanged.
	if p.OpenedAt != 1_700_000_000 {
		t.Errorf("archived OpenedAt = %d, want 1700000000", p.OpenedAt)
	}
	if p.IsOpen {
		t.Error("archived position IsOpen = true, want false")
	}

	got, err = a.ReadPositions(2024)
	if err != nil {
		t.Fatalf("ReadPositions returned error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("ReadPositions(2024) = %+v, want position 2", got)
	}
}

func TestParquetArchiveMergeIsIdempotent(t *testing.T) {
	a := NewParquetArchive(t.TempDir())

	batch := []domain.Position{archivedPosition(1, 1_700_000_000)}
	if err := a.WritePositions(batch); err != nil {
		t.Fatalf("first WritePositions returned error: %v", err)
	}

	// Re-archiving the same ID plus a new one must not duplicate.
	batch = append(batch, archivedPosition(2, 1_700_000_100))
	if err := a.WritePositions(batch); err != nil {
		t.Fatalf("second WritePositions returned error: %v", err)
	}

	got, err := a.ReadPositions(2023)
	if err != nil {
		t.Fatalf("ReadPositions returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadPositions returned %d records, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("archive IDs = [%d %d], want [1 2]", got[0].ID, got[1].ID)
	}
}

func TestParquetArchiveMissingYear(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	got, err := a.ReadPositions(1999)
	if err != nil {
		t.Fatalf("ReadPositions for missing year returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadPositions for missing year = %+v, want empty", got)
	}
}
