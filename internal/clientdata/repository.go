// Package clientdata caches analysis service output in client_data.db.
// Full responses are kept per portfolio; prices and market caps per symbol
// outlive them so market-cap weights can be rebuilt while the service is down.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Table names in client_data.db.
const (
	TableAnalysis   = "analysis"
	TableSecurities = "securities"
)

// Freshness reports what a cache lookup found.
type Freshness int

const (
	Missing Freshness = iota
	Stale
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "missing"
	}
}

// Security is the per-symbol market data kept between analyses.
type Security struct {
	Symbol    string
	Price     float64
	MarketCap float64
	ExpiresAt time.Time
}

// Repository reads and writes cached analysis data.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// SaveAnalysis stores an analysis response under key for TTLAnalysis.
func (r *Repository) SaveAnalysis(key string, response interface{}) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis %s: %w", key, err)
	}

	expiresAt := r.now().Add(TTLAnalysis).Unix()
	_, err = r.db.Exec(`
		INSERT INTO analysis (cache_key, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, key, string(data), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store analysis %s: %w", key, err)
	}
	return nil
}

// LoadAnalysis decodes the response stored under key into dst and reports
// whether it was fresh or stale. dst is untouched when nothing is stored.
func (r *Repository) LoadAnalysis(key string, dst interface{}) (Freshness, error) {
	var data string
	var expiresAt int64
	err := r.db.QueryRow(
		"SELECT data, expires_at FROM analysis WHERE cache_key = ?", key,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return Missing, nil
	}
	if err != nil {
		return Missing, fmt.Errorf("failed to read analysis %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return Missing, fmt.Errorf("failed to decode analysis %s: %w", key, err)
	}
	if expiresAt > r.now().Unix() {
		return Fresh, nil
	}
	return Stale, nil
}

// InvalidateAnalysis drops the response stored under key. A missing key is
// not an error.
func (r *Repository) InvalidateAnalysis(key string) error {
	if _, err := r.db.Exec("DELETE FROM analysis WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to invalidate analysis %s: %w", key, err)
	}
	return nil
}

// SaveSecurities upserts price and market cap for each security in one
// transaction. Entries without a positive market cap are skipped.
func (r *Repository) SaveSecurities(securities []Security) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO securities (symbol, price, market_cap, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			market_cap = excluded.market_cap,
			expires_at = excluded.expires_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare security upsert: %w", err)
	}
	defer stmt.Close()

	expiresAt := r.now().Add(TTLSecurity).Unix()
	saved := 0
	for _, sec := range securities {
		if sec.MarketCap <= 0 {
			continue
		}
		if _, err := stmt.Exec(sec.Symbol, sec.Price, sec.MarketCap, expiresAt); err != nil {
			return 0, fmt.Errorf("failed to store security %s: %w", sec.Symbol, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit securities: %w", err)
	}
	return saved, nil
}

// LoadSecurities returns the stored securities for symbols, expired or not,
// keyed by symbol. Symbols never stored are absent from the map.
func (r *Repository) LoadSecurities(symbols []string) (map[string]Security, error) {
	result := make(map[string]Security, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	args := make([]interface{}, len(symbols))
	for i, symbol := range symbols {
		args[i] = symbol
	}

	rows, err := r.db.Query(
		"SELECT symbol, price, market_cap, expires_at FROM securities WHERE symbol IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sec Security
		var expiresAt int64
		if err := rows.Scan(&sec.Symbol, &sec.Price, &sec.MarketCap, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		sec.ExpiresAt = time.Unix(expiresAt, 0)
		result[sec.Symbol] = sec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate securities: %w", err)
	}
	return result, nil
}

// PurgeExpired removes expired analyses and securities and returns the number
// of rows removed per table.
func (r *Repository) PurgeExpired() (map[string]int64, error) {
	now := r.now().Unix()
	removed := make(map[string]int64, 2)

	for _, table := range []string{TableAnalysis, TableSecurities} {
		result, err := r.db.Exec("DELETE FROM "+table+" WHERE expires_at < ?", now)
		if err != nil {
			return removed, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("failed to count purged %s rows: %w", table, err)
		}
		removed[table] = n
	}
	return removed, nil
}
