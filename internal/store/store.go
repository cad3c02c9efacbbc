// Package store defines the persistence interfaces for the position ledger
// and market configuration, with in-memory and SQLite implementations plus
// a Parquet archive for closed positions.
package store

import (
	"context"

	"synapse/internal/domain"
)

// ConfigStore owns the market configuration. InitConfig is one-shot; after
// initialization only the oracle reference may change.
type ConfigStore interface {
	// InitConfig stores the configuration. A second call fails with
	// domain.ErrAlreadyInitialized.
	InitConfig(ctx context.Context, cfg *domain.MarketConfig) error

	// Config returns a snapshot of the configuration, or
	// domain.ErrNotInitialized before InitConfig.
	Config(ctx context.Context) (*domain.MarketConfig, error)

	// SetOracleRef updates the oracle reference.
	SetOracleRef(ctx context.Context, ref string) error
}

// PositionStore owns the authoritative position records, the per-account
// ID indices, and the open-position counter. Positions are never deleted;
// the open→closed transition is the only mutation and happens exactly once
// per position, through MarkClosed.
type PositionStore interface {
	// NextID issues a fresh position ID. IDs start at 1, strictly increase,
	// and are never reused, including across closed positions.
	NextID(ctx context.Context) (uint64, error)

	// Put inserts a new position, appends its ID to the owner's index, and
	// increments the open counter when the position is open. Inserting an
	// existing ID is an error.
	Put(ctx context.Context, p *domain.Position) error

	// Get returns the position with the given ID, or
	// domain.ErrPositionNotFound.
	Get(ctx context.Context, id uint64) (*domain.Position, error)

	// ListForAccount returns the account's position IDs in insertion order.
	// Closed positions are included; callers filter by IsOpen.
	ListForAccount(ctx context.Context, account string) ([]uint64, error)

	// OpenCount returns the number of open positions. The counter is
	// maintained incrementally by Put and MarkClosed, never by scanning.
	OpenCount(ctx context.Context) (uint64, error)

	// MarkClosed atomically flips the position to closed and decrements the
	// open counter, returning the record as it was while open. It fails
	// with domain.ErrPositionNotFound when the ID is unknown or the
	// position is already closed, so of two racing close/liquidate calls
	// exactly one succeeds.
	MarkClosed(ctx context.Context, id uint64) (*domain.Position, error)

	// ListOpen returns all open positions in ID order.
	ListOpen(ctx context.Context) ([]domain.Position, error)

	// ListClosed returns all closed positions in ID order.
	ListClosed(ctx context.Context) ([]domain.Position, error)
}
