// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"forex-trader/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		pair TEXT NOT NULL,
		direction TEXT NOT NULL,
		lots REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL DEFAULT 0,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		trailing_stop REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		close_reason TEXT NOT NULL DEFAULT '',
		pnl REAL NOT NULL DEFAULT 0,
		pnl_pips REAL NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		reasoning TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT '',
		simulated INTEGER NOT NULL DEFAULT 0,
		order_ids TEXT NOT NULL DEFAULT '[]',
		opened_at DATETIME NOT NULL,
		closed_at DATETIME,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair, status);
	CREATE INDEX IF NOT EXISTS idx_trades_opened ON trades(opened_at);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		pair TEXT NOT NULL,
		direction TEXT NOT NULL,
		kind TEXT NOT NULL,
		lots REAL NOT NULL,
		units REAL NOT NULL,
		limit_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		filled_units REAL NOT NULL DEFAULT 0,
		avg_fill_price REAL NOT NULL DEFAULT 0,
		trade_id TEXT NOT NULL DEFAULT '',
		error_code INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_trade ON orders(trade_id);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		component TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_ts ON activity_log(timestamp);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTrade inserts a new trade record.
func (s *SQLiteStore) CreateTrade(ctx context.Context, t *models.Trade) error {
	orderIDs, _ := json.Marshal(t.OrderIDs)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, pair, direction, lots, entry_price, exit_price,
			stop_loss, take_profit, trailing_stop, status, close_reason, pnl,
			pnl_pips, confidence, reasoning, mode, simulated, order_ids,
			opened_at, closed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, string(t.Pair), string(t.Direction), t.Lots, t.EntryPrice, t.ExitPrice,
		t.StopLoss, t.TakeProfit, t.TrailingStop, string(t.Status), string(t.CloseReason), t.PnL,
		t.PnLPips, t.Confidence, t.Reasoning, string(t.Mode), boolToInt(t.Simulated), string(orderIDs),
		t.OpenedAt, nullableTime(t.ClosedAt), time.Now())
	if err != nil {
		return fmt.Errorf("creating trade %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTrade rewrites a trade's mutable fields.
func (s *SQLiteStore) UpdateTrade(ctx context.Context, t *models.Trade) error {
	orderIDs, _ := json.Marshal(t.OrderIDs)
	_, err := s.db.ExecContext(ctx, `
		UPDATE trades SET entry_price = ?, exit_price = ?, stop_loss = ?,
			take_profit = ?, trailing_stop = ?, status = ?, close_reason = ?,
			pnl = ?, pnl_pips = ?, order_ids = ?, closed_at = ?, updated_at = ?
		WHERE id = ?
	`, t.EntryPrice, t.ExitPrice, t.StopLoss, t.TakeProfit, t.TrailingStop,
		string(t.Status), string(t.CloseReason), t.PnL, t.PnLPips, string(orderIDs),
		nullableTime(t.ClosedAt), time.Now(), t.ID)
	if err != nil {
		return fmt.Errorf("updating trade %s: %w", t.ID, err)
	}
	return nil
}

// CloseTrade persists a trade's terminal state.
func (s *SQLiteStore) CloseTrade(ctx context.Context, t *models.Trade) error {
	return s.UpdateTrade(ctx, t)
}

// GetTrade fetches one trade by id.
func (s *SQLiteStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	row := s.db.QueryRowContext(ctx, tradeSelect+` WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trade %s not found", id)
	}
	return t, err
}

// GetOpenTrades returns every trade with OPEN status.
func (s *SQLiteStore) GetOpenTrades(ctx context.Context) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, tradeSelect+` WHERE status = ? ORDER BY opened_at`, string(models.TradeOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// HasOpenTrade reports whether an open trade exists for the pair.
func (s *SQLiteStore) HasOpenTrade(ctx context.Context, pair models.Pair) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE status = ? AND pair = ?`,
		string(models.TradeOpen), string(pair)).Scan(&n)
	return n > 0, err
}

// CountOpenTrades returns the number of open trades.
func (s *SQLiteStore) CountOpenTrades(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE status = ?`, string(models.TradeOpen)).Scan(&n)
	return n, err
}

// CountTradesToday returns the number of trades opened since UTC midnight.
func (s *SQLiteStore) CountTradesToday(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE opened_at >= ?`, utcMidnight()).Scan(&n)
	return n, err
}

// RealizedPnLToday returns the summed P/L of trades closed since UTC midnight.
func (s *SQLiteStore) RealizedPnLToday(ctx context.Context) (float64, error) {
	var pnl sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(pnl) FROM trades WHERE status != ? AND closed_at >= ?`,
		string(models.TradeOpen), utcMidnight()).Scan(&pnl)
	if err != nil {
		return 0, err
	}
	return pnl.Float64, nil
}

// SaveOrder inserts an order record.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (id, pair, direction, kind, lots, units,
			limit_price, status, filled_units, avg_fill_price, trade_id,
			error_code, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, string(o.Pair), string(o.Direction), string(o.Kind), o.Lots, o.Units,
		o.LimitPrice, string(o.Status), o.FilledUnits, o.AvgFillPrice, o.TradeID,
		o.ErrorCode, o.ErrorMessage, o.CreatedAt, time.Now())
	if err != nil {
		return fmt.Errorf("saving order %d: %w", o.ID, err)
	}
	return nil
}

// UpdateOrder rewrites an order's mutable fields.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, filled_units = ?, avg_fill_price = ?,
			error_code = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, string(o.Status), o.FilledUnits, o.AvgFillPrice,
		o.ErrorCode, o.ErrorMessage, time.Now(), o.ID)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	return nil
}

// LogActivity appends one row to the activity log.
func (s *SQLiteStore) LogActivity(ctx context.Context, level, component, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (timestamp, level, component, message) VALUES (?, ?, ?, ?)`,
		time.Now(), level, component, message)
	return err
}

// GetSetting returns one setting value; missing keys return an empty string.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting upserts one setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	return err
}

// GetAllSettings returns every stored setting.
func (s *SQLiteStore) GetAllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Close shuts the database down.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const tradeSelect = `
	SELECT id, pair, direction, lots, entry_price, exit_price, stop_loss,
		take_profit, trailing_stop, status, close_reason, pnl, pnl_pips,
		confidence, reasoning, mode, simulated, order_ids, opened_at,
		closed_at, updated_at
	FROM trades`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var pair, direction, status, closeReason, mode, orderIDs string
	var simulated int
	var closedAt sql.NullTime
	err := row.Scan(&t.ID, &pair, &direction, &t.Lots, &t.EntryPrice, &t.ExitPrice,
		&t.StopLoss, &t.TakeProfit, &t.TrailingStop, &status, &closeReason,
		&t.PnL, &t.PnLPips, &t.Confidence, &t.Reasoning, &mode, &simulated,
		&orderIDs, &t.OpenedAt, &closedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Pair = models.Pair(pair)
	t.Direction = models.Direction(direction)
	t.Status = models.TradeStatus(status)
	t.CloseReason = models.CloseReason(closeReason)
	t.Mode = models.ExecutionMode(mode)
	t.Simulated = simulated != 0
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	json.Unmarshal([]byte(orderIDs), &t.OrderIDs)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func utcMidnight() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
