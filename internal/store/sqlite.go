package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SpiceChicken/kiwoom-stock/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// SQLiteStore persists trade records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so analysis queries can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			stock_code   TEXT NOT NULL,
			stock_name   TEXT,
			buy_price    REAL,
			buy_score    REAL,
			alpha_score  REAL,
			supply_score REAL,
			vwap_score   REAL,
			trend_score  REAL,
			buy_time     TEXT,
			buy_regime   TEXT,
			sell_price   REAL,
			profit_rate  REAL,
			sell_time    TEXT,
			sell_reason  TEXT,
			status       TEXT DEFAULT 'OPEN'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_sell_time ON trades(sell_time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertOpen(p *model.Position) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO trades
		(stock_code, stock_name, buy_price, buy_score,
		 alpha_score, supply_score, vwap_score, trend_score,
		 buy_time, buy_regime, status)
		VALUES (?,?,?,?,?,?,?,?,?,?, 'OPEN')`,
		p.Code, p.Name, p.BuyPrice, p.BuyScore,
		p.AlphaScore, p.SupplyScore, p.VwapScore, p.TrendScore,
		p.BuyTime.Format(timeLayout), p.BuyRegime,
	)
	if err != nil {
		return 0, fmt.Errorf("insert open: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateClose(id int64, sellPrice float64, sellTime time.Time, profitRate float64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE trades
		SET status = 'CLOSED', sell_price = ?, sell_time = ?, profit_rate = ?, sell_reason = ?
		WHERE id = ?`,
		sellPrice, sellTime.Format(timeLayout), profitRate, reason, id,
	)
	if err != nil {
		return fmt.Errorf("update close: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadOpen() (map[string]*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, stock_code, stock_name, buy_price, buy_score,
		alpha_score, supply_score, vwap_score, trend_score, buy_time, buy_regime
		FROM trades WHERE status = 'OPEN'`)
	if err != nil {
		return nil, fmt.Errorf("load open: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Position)
	for rows.Next() {
		p := &model.Position{Status: model.StatusOpen}
		var buyTime string
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.BuyPrice, &p.BuyScore,
			&p.AlphaScore, &p.SupplyScore, &p.VwapScore, &p.TrendScore,
			&buyTime, &p.BuyRegime); err != nil {
			return nil, fmt.Errorf("scan open row: %w", err)
		}
		if t, err := time.ParseInLocation(timeLayout, buyTime, time.Local); err == nil {
			p.BuyTime = t
		}
		p.LastPrice = p.BuyPrice
		p.CurrentScore = p.BuyScore
		out[p.Code] = p
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SumClosedProfitToday(day time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := day.Format("2006-01-02") + "%"
	var sum sql.NullFloat64
	err := s.db.QueryRow(`SELECT SUM(profit_rate) FROM trades
		WHERE status = 'CLOSED' AND sell_time LIKE ?`, prefix).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum closed profit: %w", err)
	}
	if !sum.Valid {
		return 0.0, nil
	}
	return sum.Float64, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
