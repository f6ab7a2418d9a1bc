// Package clientdata provides persistent caching for external API client
// responses. Data is stored as JSON blobs with expiration timestamps for
// cache-first behavior.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TTL constants, added to time.Now() when storing to calculate expires_at.
const (
	TTLCurrentPrice = 10 * time.Minute
)

// Repository provides cache operations for client data.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store saves data under the ticker with expiration = now + ttl.
func (r *Repository) Store(ticker string, data interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	_, err = r.db.Exec(
		`INSERT OR REPLACE INTO current_prices (ticker, data, expires_at) VALUES (?, ?, ?)`,
		ticker, string(jsonData), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry for %s: %w", ticker, err)
	}
	return nil
}

// GetIfFresh returns the cached data only if expires_at > now. Returns
// nil, nil when the key is missing or expired. Use Get to read stale data as
// a fallback when the upstream call fails.
func (r *Repository) GetIfFresh(ticker string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRow(
		`SELECT data FROM current_prices WHERE ticker = ? AND expires_at > ?`,
		ticker, time.Now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry for %s: %w", ticker, err)
	}
	return json.RawMessage(data), nil
}

// Get returns the cached data regardless of expiration. Returns nil, nil
// when the key was never stored.
func (r *Repository) Get(ticker string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRow(
		`SELECT data FROM current_prices WHERE ticker = ?`, ticker,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry for %s: %w", ticker, err)
	}
	return json.RawMessage(data), nil
}

// Purge removes expired entries. Called opportunistically by the scheduler.
func (r *Repository) Purge() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM current_prices WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return result.RowsAffected()
}
