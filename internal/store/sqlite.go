package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"synapse/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ ConfigStore = (*SQLiteStore)(nil)
var _ PositionStore = (*SQLiteStore)(nil)

// SQLiteStore implements ConfigStore and PositionStore on a SQLite
// database. The ID counter and open-position counter live in a meta table
// and are updated in the same transaction as the position writes, so a
// single logical operation commits atomically or not at all.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS market_config (
	id                     INTEGER PRIMARY KEY CHECK (id = 1),
	admin                  TEXT    NOT NULL,
	treasury               TEXT    NOT NULL,
	min_collateral         INTEGER NOT NULL,
	max_leverage           INTEGER NOT NULL,
	maintenance_margin_bps INTEGER NOT NULL,
	funding_interval       INTEGER NOT NULL,
	staleness_window       INTEGER NOT NULL,
	price_decimals         INTEGER NOT NULL,
	oracle_ref             TEXT    NOT NULL,
	active                 INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id          INTEGER PRIMARY KEY,
	account     TEXT    NOT NULL,
	asset       TEXT    NOT NULL,
	size        INTEGER NOT NULL,
	collateral  INTEGER NOT NULL,
	entry_price INTEGER NOT NULL,
	leverage    INTEGER NOT NULL,
	opened_at   INTEGER NOT NULL,
	is_open     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_account ON positions(account);
CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(is_open);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO meta (key, value) VALUES ('next_id', 0);
INSERT OR IGNORE INTO meta (key, value) VALUES ('open_count', 0);
`

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// The ledger serializes writes; a single connection avoids
	// SQLITE_BUSY between the counter and position statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// ConfigStore implementation
// ---------------------------------------------------------------------------

// InitConfig stores the configuration once.
func (s *SQLiteStore) InitConfig(ctx context.Context, cfg *domain.MarketConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM market_config`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrAlreadyInitialized
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO market_config
			(id, admin, treasury, min_collateral, max_leverage,
			 maintenance_margin_bps, funding_interval, staleness_window,
			 price_decimals, oracle_ref, active)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.Admin, cfg.Treasury, cfg.MinCollateral, cfg.MaxLeverage,
		cfg.MaintenanceMarginBPS, cfg.FundingInterval, cfg.StalenessWindow,
		cfg.PriceDecimals, cfg.OracleRef, boolToInt(cfg.Active),
	)
	if err != nil {
		return fmt.Errorf("inserting config: %w", err)
	}
	return tx.Commit()
}

// Config returns the stored configuration.
func (s *SQLiteStore) Config(ctx context.Context) (*domain.MarketConfig, error) {
	var (
		cfg    domain.MarketConfig
		active int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT admin, treasury, min_collateral, max_leverage,
		       maintenance_margin_bps, funding_interval, staleness_window,
		       price_decimals, oracle_ref, active
		FROM market_config WHERE id = 1`).Scan(
		&cfg.Admin, &cfg.Treasury, &cfg.MinCollateral, &cfg.MaxLeverage,
		&cfg.MaintenanceMarginBPS, &cfg.FundingInterval, &cfg.StalenessWindow,
		&cfg.PriceDecimals, &cfg.OracleRef, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	cfg.Active = active != 0
	return &cfg, nil
}

// SetOracleRef updates the oracle reference.
func (s *SQLiteStore) SetOracleRef(ctx context.Context, ref string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE market_config SET oracle_ref = ? WHERE id = 1`, ref)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotInitialized
	}
	return nil
}

// ---------------------------------------------------------------------------
// PositionStore implementation
// ---------------------------------------------------------------------------

// NextID increments and returns the persistent ID counter.
func (s *SQLiteStore) NextID(ctx context.Context) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = value + 1 WHERE key = 'next_id'`); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'next_id'`).Scan(&id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Put inserts a new position and bumps the open counter in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, p *domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO positions
			(id, account, asset, size, collateral, entry_price, leverage, opened_at, is_open)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(p.ID), p.Account, p.Asset, p.Size, p.Collateral,
		p.EntryPrice, p.Leverage, p.OpenedAt, boolToInt(p.IsOpen),
	)
	if err != nil {
		return fmt.Errorf("inserting position %d: %w", p.ID, err)
	}
	if p.IsOpen {
		if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = value + 1 WHERE key = 'open_count'`); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get returns the position with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id uint64) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, selectPosition+` WHERE id = ?`, int64(id))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPositionNotFound
	}
	return p, err
}

// ListForAccount returns the account's position IDs in insertion order.
// IDs are issued monotonically, so ID order is insertion order.
func (s *SQLiteStore) ListForAccount(ctx context.Context, account string) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM positions WHERE account = ? ORDER BY id`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// OpenCount returns the maintained open-position counter.
func (s *SQLiteStore) OpenCount(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'open_count'`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// MarkClosed flips the position to closed and decrements the counter in one
// transaction. The UPDATE is guarded on is_open, so a racing second caller
// matches zero rows and fails.
func (s *SQLiteStore) MarkClosed(ctx context.Context, id uint64) (*domain.Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectPosition+` WHERE id = ?`, int64(id))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.IsOpen {
		return nil, domain.ErrPositionNotFound
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE positions SET is_open = 0 WHERE id = ? AND is_open = 1`, int64(id))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrPositionNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET value = value - 1 WHERE key = 'open_count'`); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// ListOpen returns all open positions in ID order.
func (s *SQLiteStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	return s.listByState(ctx, true)
}

// ListClosed returns all closed positions in ID order.
func (s *SQLiteStore) ListClosed(ctx context.Context) ([]domain.Position, error) {
	return s.listByState(ctx, false)
}

func (s *SQLiteStore) listByState(ctx context.Context, open bool) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPosition+` WHERE is_open = ? ORDER BY id`, boolToInt(open))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Row helpers
// ---------------------------------------------------------------------------

const selectPosition = `
	SELECT id, account, asset, size, collateral, entry_price, leverage, opened_at, is_open
	FROM positions`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (*domain.Position, error) {
	var (
		p      domain.Position
		id     int64
		isOpen int
	)
	err := row.Scan(&id, &p.Account, &p.Asset, &p.Size, &p.Collateral,
		&p.EntryPrice, &p.Leverage, &p.OpenedAt, &isOpen)
	if err != nil {
		return nil, err
	}
	p.ID = uint64(id)
	p.IsOpen = isOpen != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
