// Package assets provides asset data access and price refresh functionality.
package assets

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
)

// Asset represents a tradable asset shared across portfolios.
// CurrentPrice is refreshed asynchronously by the price refresh service and is
// always read as a possibly-stale value.
type Asset struct {
	ID           int64
	Ticker       string
	Name         string
	Type         domain.AssetType
	Currency     domain.Currency
	CurrentPrice decimal.Decimal
	CreatedAt    time.Time
	LastUpdate   time.Time
}

// Repository handles asset database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new asset repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "assets").Logger(),
	}
}

const assetColumns = `id, ticker, name, type, currency, current_price, created_at, last_update`

// GetByID returns the asset with the given id, or domain.ErrNotFound.
func (r *Repository) GetByID(id int64) (*Asset, error) {
	row := r.db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset %d: %w", id, err)
	}
	return asset, nil
}

// GetByTicker returns the asset with the given ticker, or domain.ErrNotFound.
func (r *Repository) GetByTicker(ticker string) (*Asset, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	row := r.db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE ticker = ?`, ticker)
	asset, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %s: %w", ticker, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset %s: %w", ticker, err)
	}
	return asset, nil
}

// GetByIDs returns the assets with the given ids, keyed by id.
// Missing ids are absent from the map, not an error.
func (r *Repository) GetByIDs(ids []int64) (map[int64]Asset, error) {
	result := make(map[int64]Asset, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(`SELECT `+assetColumns+` FROM assets WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		result[asset.ID] = *asset
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return result, nil
}

// Upsert creates or updates an asset keyed by ticker and returns its id.
func (r *Repository) Upsert(a Asset) (int64, error) {
	a.Ticker = strings.ToUpper(strings.TrimSpace(a.Ticker))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := r.db.Exec(`
		INSERT INTO assets (ticker, name, type, currency, current_price, created_at, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			currency = excluded.currency,
			last_update = excluded.last_update`,
		a.Ticker, a.Name, string(a.Type), string(a.Currency), a.CurrentPrice.String(), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert asset %s: %w", a.Ticker, err)
	}

	var id int64
	if err := r.db.QueryRow(`SELECT id FROM assets WHERE ticker = ?`, a.Ticker).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back asset %s: %w", a.Ticker, err)
	}
	return id, nil
}

// UpdatePrice stores a freshly fetched price for the asset.
func (r *Repository) UpdatePrice(ticker string, price decimal.Decimal) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := r.db.Exec(`UPDATE assets SET current_price = ?, last_update = ? WHERE ticker = ?`,
		price.String(), now, ticker)
	if err != nil {
		return fmt.Errorf("failed to update price for %s: %w", ticker, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check price update for %s: %w", ticker, err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %s: %w", ticker, domain.ErrNotFound)
	}
	return nil
}

// ActiveTickers returns the tickers of assets that appear in at least one
// asset snapshot. These are the assets worth refreshing on a schedule.
func (r *Repository) ActiveTickers() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT a.ticker
		FROM assets a
		JOIN asset_snapshots s ON s.asset_id = a.id
		ORDER BY a.ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return tickers, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var (
		a                    Asset
		name                 sql.NullString
		typ, currency, price string
		createdAt, updatedAt string
	)

	err := row.Scan(&a.ID, &a.Ticker, &name, &typ, &currency, &price, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Name = name.String
	a.Type = domain.AssetType(typ)
	a.Currency = domain.Currency(currency)

	a.CurrentPrice, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid current_price %q: %w", price, err)
	}

	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if a.LastUpdate, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid last_update %q: %w", updatedAt, err)
	}

	return &a, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
