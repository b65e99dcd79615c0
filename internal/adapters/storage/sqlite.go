// Package storage persists orders and positions to SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/tradesim/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    source           TEXT     NOT NULL,
    datetime         DATETIME NOT NULL,
    uuid             TEXT     NOT NULL,
    create_timestamp DATETIME NOT NULL,
    event_type       TEXT     NOT NULL,
    originator_id    TEXT     NOT NULL,
    strategy_id      TEXT     NOT NULL,
    portfolio_id     TEXT,
    product_type     TEXT     NOT NULL,
    symbol           TEXT     NOT NULL,
    buy_sell         TEXT     NOT NULL,
    order_type       TEXT     NOT NULL,
    quantity         REAL     NOT NULL,
    details          TEXT     NOT NULL,
    state            TEXT     NOT NULL,
    closed           INTEGER  NOT NULL DEFAULT 0,
    booked           INTEGER  NOT NULL DEFAULT 0,
    broker_order_id  INTEGER,
    exchange_order_id INTEGER,
    fill_price       REAL,
    fill_quantity    REAL,
    commission       REAL,
    state_times      TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    source       TEXT     NOT NULL,
    strategy     TEXT     NOT NULL,
    product_type TEXT     NOT NULL,
    symbol       TEXT     NOT NULL,
    datetime     DATETIME NOT NULL,
    position     REAL     NOT NULL
);

CREATE TABLE IF NOT EXISTS positions_snapshot (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    source            TEXT     NOT NULL,
    datetime          DATETIME NOT NULL,
    strategy_id       TEXT     NOT NULL,
    product_type      TEXT     NOT NULL,
    symbol            TEXT     NOT NULL,
    current_position  REAL NOT NULL,
    start_position    REAL NOT NULL,
    net_quantity      REAL NOT NULL,
    buy_quantity      REAL NOT NULL,
    sell_quantity     REAL NOT NULL,
    buy_avg_price     REAL NOT NULL,
    sell_avg_price    REAL NOT NULL,
    buy_pnl           REAL NOT NULL,
    sell_pnl          REAL NOT NULL,
    trade_pnl         REAL NOT NULL,
    position_pnl      REAL NOT NULL,
    gross_pnl         REAL NOT NULL,
    commission        REAL NOT NULL,
    net_pnl           REAL NOT NULL,
    prior_close_price REAL,
    current_price     REAL
);

CREATE INDEX IF NOT EXISTS idx_orders_source    ON orders(source, datetime);
CREATE INDEX IF NOT EXISTS idx_positions_source ON positions(source, datetime);
CREATE INDEX IF NOT EXISTS idx_snapshot_source  ON positions_snapshot(source, datetime);
`

// SQLiteStore implements ports.Store using SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and
// applies the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// InsertOrders persists a batch of order snapshots under the source id.
func (s *SQLiteStore) InsertOrders(ctx context.Context, sourceID string, ts time.Time, orders []domain.OrderSnapshot) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.InsertOrders: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orders
			(source, datetime, uuid, create_timestamp, event_type, originator_id,
			 strategy_id, portfolio_id, product_type, symbol, buy_sell, order_type,
			 quantity, details, state, closed, booked, broker_order_id,
			 exchange_order_id, fill_price, fill_quantity, commission, state_times)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.InsertOrders: prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		details, err := json.Marshal(o.Details)
		if err != nil {
			return fmt.Errorf("storage.InsertOrders: marshal details: %w", err)
		}
		stateTimes, err := marshalStateTimes(o.StateTimes)
		if err != nil {
			return fmt.Errorf("storage.InsertOrders: marshal state times: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			sourceID, ts.UTC(), o.UUID, o.CreateTimestamp.UTC(), o.EventType,
			o.OriginatorID, o.StrategyID, o.PortfolioID, o.ProductType, o.Symbol,
			string(o.BuySell), string(o.Type), o.Quantity, string(details),
			string(o.State), boolInt(o.Closed), boolInt(o.Booked),
			nullInt(o.BrokerOrderID), nullInt(o.ExchangeOrderID),
			o.FillPrice, o.FillQuantity, o.Commission, stateTimes,
		); err != nil {
			return fmt.Errorf("storage.InsertOrders: insert %s: %w", o.UUID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.InsertOrders: commit: %w", err)
	}
	return nil
}

// InsertPositions persists long-form position rows.
func (s *SQLiteStore) InsertPositions(ctx context.Context, sourceID string, positions []domain.PositionRecord) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.InsertPositions: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (source, strategy, product_type, symbol, datetime, position)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.InsertPositions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx,
			sourceID, p.Strategy, p.ProductType, p.Symbol, p.Datetime.UTC(), p.Position,
		); err != nil {
			return fmt.Errorf("storage.InsertPositions: insert (%s, %s, %s): %w",
				p.Strategy, p.ProductType, p.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.InsertPositions: commit: %w", err)
	}
	return nil
}

// GetPositions returns the long-form position rows for a source. A nil
// ts returns all rows; otherwise only the rows at that datetime.
func (s *SQLiteStore) GetPositions(ctx context.Context, sourceID string, ts *time.Time) ([]domain.PositionRecord, error) {
	query := `SELECT strategy, product_type, symbol, datetime, position
	          FROM positions WHERE source = ?`
	args := []any{sourceID}
	if ts != nil {
		query += ` AND datetime = ?`
		args = append(args, ts.UTC())
	}
	query += ` ORDER BY strategy, product_type, symbol`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.GetPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionRecord
	for rows.Next() {
		var rec domain.PositionRecord
		var dt time.Time
		if err := rows.Scan(&rec.Strategy, &rec.ProductType, &rec.Symbol, &dt, &rec.Position); err != nil {
			return nil, fmt.Errorf("storage.GetPositions: scan row: %w", err)
		}
		rec.Datetime = dt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MaxDatetime returns the latest positions datetime for a source, nil
// when the source has no rows.
func (s *SQLiteStore) MaxDatetime(ctx context.Context, sourceID string) (*time.Time, error) {
	var dt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(datetime) FROM positions WHERE source = ?`, sourceID,
	).Scan(&dt)
	if err != nil {
		return nil, fmt.Errorf("storage.MaxDatetime: query: %w", err)
	}
	if !dt.Valid {
		return nil, nil
	}
	utc := dt.Time.UTC()
	return &utc, nil
}

// InsertPositionsSnapshot persists the full position book projection.
func (s *SQLiteStore) InsertPositionsSnapshot(ctx context.Context, sourceID string, ts time.Time, positions []domain.PositionSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.InsertPositionsSnapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions_snapshot
			(source, datetime, strategy_id, product_type, symbol, current_position,
			 start_position, net_quantity, buy_quantity, sell_quantity, buy_avg_price,
			 sell_avg_price, buy_pnl, sell_pnl, trade_pnl, position_pnl, gross_pnl,
			 commission, net_pnl, prior_close_price, current_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.InsertPositionsSnapshot: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx,
			sourceID, ts.UTC(), p.StrategyID, p.ProductType, p.Symbol,
			p.CurrentPosition, p.StartPosition, p.NetQuantity, p.BuyQuantity,
			p.SellQuantity, p.BuyAvgPrice, p.SellAvgPrice, p.BuyPnL, p.SellPnL,
			p.TradePnL, p.PositionPnL, p.GrossPnL, p.Commission, p.NetPnL,
			p.PriorClosePrice, p.CurrentPrice,
		); err != nil {
			return fmt.Errorf("storage.InsertPositionsSnapshot: insert (%s, %s, %s): %w",
				p.StrategyID, p.ProductType, p.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.InsertPositionsSnapshot: commit: %w", err)
	}
	return nil
}

// GetPositionsSnapshot returns the snapshot rows for a source at a
// datetime, ordered by key.
func (s *SQLiteStore) GetPositionsSnapshot(ctx context.Context, sourceID string, ts time.Time) ([]domain.PositionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy_id, product_type, symbol, current_position, start_position,
		       net_quantity, buy_quantity, sell_quantity, buy_avg_price, sell_avg_price,
		       buy_pnl, sell_pnl, trade_pnl, position_pnl, gross_pnl, commission,
		       net_pnl, prior_close_price, current_price
		FROM positions_snapshot
		WHERE source = ? AND datetime = ?
		ORDER BY strategy_id, product_type, symbol
	`, sourceID, ts.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.GetPositionsSnapshot: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionSnapshot
	for rows.Next() {
		var p domain.PositionSnapshot
		if err := rows.Scan(
			&p.StrategyID, &p.ProductType, &p.Symbol, &p.CurrentPosition,
			&p.StartPosition, &p.NetQuantity, &p.BuyQuantity, &p.SellQuantity,
			&p.BuyAvgPrice, &p.SellAvgPrice, &p.BuyPnL, &p.SellPnL, &p.TradePnL,
			&p.PositionPnL, &p.GrossPnL, &p.Commission, &p.NetPnL,
			&p.PriorClosePrice, &p.CurrentPrice,
		); err != nil {
			return nil, fmt.Errorf("storage.GetPositionsSnapshot: scan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetOrders returns the persisted order snapshots for a source at a
// datetime, ordered by create timestamp.
func (s *SQLiteStore) GetOrders(ctx context.Context, sourceID string, ts time.Time) ([]domain.OrderSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, create_timestamp, event_type, originator_id, strategy_id,
		       portfolio_id, product_type, symbol, buy_sell, order_type, quantity,
		       details, state, closed, booked, broker_order_id, exchange_order_id,
		       fill_price, fill_quantity, commission, state_times
		FROM orders
		WHERE source = ? AND datetime = ?
		ORDER BY create_timestamp
	`, sourceID, ts.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.GetOrders: query: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderSnapshot
	for rows.Next() {
		var o domain.OrderSnapshot
		var createTS time.Time
		var buySell, orderType, state, details, stateTimes string
		var closed, booked int
		var brokerID, exchangeID sql.NullInt64

		if err := rows.Scan(
			&o.UUID, &createTS, &o.EventType, &o.OriginatorID, &o.StrategyID,
			&o.PortfolioID, &o.ProductType, &o.Symbol, &buySell, &orderType,
			&o.Quantity, &details, &state, &closed, &booked, &brokerID,
			&exchangeID, &o.FillPrice, &o.FillQuantity, &o.Commission, &stateTimes,
		); err != nil {
			return nil, fmt.Errorf("storage.GetOrders: scan row: %w", err)
		}

		o.CreateTimestamp = createTS.UTC()
		o.BuySell = domain.Side(buySell)
		o.Type = domain.OrderType(orderType)
		o.State = domain.State(state)
		o.Closed = closed == 1
		o.Booked = booked == 1
		o.BrokerOrderID = brokerID.Int64
		o.ExchangeOrderID = exchangeID.Int64
		if err := json.Unmarshal([]byte(details), &o.Details); err != nil {
			return nil, fmt.Errorf("storage.GetOrders: unmarshal details: %w", err)
		}
		st, err := unmarshalStateTimes(stateTimes)
		if err != nil {
			return nil, fmt.Errorf("storage.GetOrders: unmarshal state times: %w", err)
		}
		o.StateTimes = st
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func marshalStateTimes(st map[domain.State]time.Time) (string, error) {
	m := make(map[string]string, len(st))
	for state, ts := range st {
		m[string(state)] = ts.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func unmarshalStateTimes(s string) (map[domain.State]time.Time, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	out := make(map[domain.State]time.Time, len(m))
	for state, raw := range m {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, err
		}
		out[domain.State(state)] = ts
	}
	return out, nil
}
