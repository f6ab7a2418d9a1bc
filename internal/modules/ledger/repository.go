// Package ledger provides data access for portfolio transaction entries.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
)

// Entry is one buy/sell/dividend record belonging to a portfolio and
// referencing an asset. Quantity is a magnitude; the sign of its effect on the
// position is implied by Kind.
type Entry struct {
	ID           int64
	PortfolioID  int64
	AssetID      int64
	Kind         domain.TransactionKind
	Date         time.Time
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	OtherCosts   decimal.Decimal
	Currency     domain.Currency
	Broker       string
	Consolidated bool
	CreatedAt    time.Time
	LastUpdate   time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx, so the same queries can
// run standalone or inside a consolidation transaction.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Repository handles transaction ledger database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

const entryColumns = `id, portfolio_id, asset_id, kind, transaction_date, quantity,
	unit_cost, other_costs, currency, broker, consolidated, created_at, last_update`

// EntriesForAsset returns all entries for one portfolio+asset ordered by
// transaction date ascending (entry id breaks ties).
func (r *Repository) EntriesForAsset(portfolioID, assetID int64) ([]Entry, error) {
	return entriesForAsset(r.db, portfolioID, assetID, false)
}

// EntriesForAssetTx is EntriesForAsset inside an open transaction.
func (r *Repository) EntriesForAssetTx(tx *sql.Tx, portfolioID, assetID int64) ([]Entry, error) {
	return entriesForAsset(tx, portfolioID, assetID, false)
}

// UnconsolidatedEntriesForAsset returns only entries not yet consolidated.
func (r *Repository) UnconsolidatedEntriesForAsset(portfolioID, assetID int64) ([]Entry, error) {
	return entriesForAsset(r.db, portfolioID, assetID, true)
}

func entriesForAsset(q querier, portfolioID, assetID int64, onlyUnconsolidated bool) ([]Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM transactions
		WHERE portfolio_id = ? AND asset_id = ?`
	args := []interface{}{portfolioID, assetID}

	if onlyUnconsolidated {
		query += ` AND consolidated = 0`
	}
	query += ` ORDER BY transaction_date ASC, id ASC`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// DistinctAssetsWithUnconsolidatedEntries returns the ids of assets that have
// at least one unconsolidated entry in the portfolio. This is the dirty set a
// consolidation pass recomputes.
func (r *Repository) DistinctAssetsWithUnconsolidatedEntries(portfolioID int64) ([]int64, error) {
	return distinctAssets(r.db, portfolioID, true)
}

// DistinctAssetsWithUnconsolidatedEntriesTx is the transactional variant.
func (r *Repository) DistinctAssetsWithUnconsolidatedEntriesTx(tx *sql.Tx, portfolioID int64) ([]int64, error) {
	return distinctAssets(tx, portfolioID, true)
}

// AllAssetsEverHeld returns the ids of every asset that has at least one
// entry in the portfolio, consolidated or not.
func (r *Repository) AllAssetsEverHeld(portfolioID int64) ([]int64, error) {
	return distinctAssets(r.db, portfolioID, false)
}

// AllAssetsEverHeldTx is the transactional variant.
func (r *Repository) AllAssetsEverHeldTx(tx *sql.Tx, portfolioID int64) ([]int64, error) {
	return distinctAssets(tx, portfolioID, false)
}

func distinctAssets(q querier, portfolioID int64, onlyUnconsolidated bool) ([]int64, error) {
	query := `SELECT DISTINCT asset_id FROM transactions WHERE portfolio_id = ?`
	if onlyUnconsolidated {
		query += ` AND consolidated = 0`
	}
	query += ` ORDER BY asset_id`

	rows, err := q.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct assets: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan asset id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset ids: %w", err)
	}

	return ids, nil
}

// GetByID returns one entry, or domain.ErrNotFound.
func (r *Repository) GetByID(id int64) (*Entry, error) {
	row := r.db.QueryRow(`SELECT `+entryColumns+` FROM transactions WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry %d: %w", id, err)
	}
	return entry, nil
}

// Create inserts a new ledger entry and marks the owning portfolio dirty, in
// one transaction. The new entry always starts unconsolidated.
func (r *Repository) Create(tx *sql.Tx, e Entry) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := tx.Exec(`
		INSERT INTO transactions (portfolio_id, asset_id, kind, transaction_date,
			quantity, unit_cost, other_costs, currency, broker, consolidated,
			created_at, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		e.PortfolioID, e.AssetID, string(e.Kind),
		e.Date.UTC().Format(time.RFC3339Nano),
		e.Quantity.String(), e.UnitCost.String(), e.OtherCosts.String(),
		string(e.Currency), e.Broker, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted entry id: %w", err)
	}

	if err := markPortfolioDirty(tx, e.PortfolioID); err != nil {
		return 0, err
	}

	return id, nil
}

// Update rewrites an existing entry and marks it, and the owning portfolio,
// unconsolidated.
func (r *Repository) Update(tx *sql.Tx, e Entry) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := tx.Exec(`
		UPDATE transactions
		SET asset_id = ?, kind = ?, transaction_date = ?, quantity = ?,
			unit_cost = ?, other_costs = ?, currency = ?, broker = ?,
			consolidated = 0, last_update = ?
		WHERE id = ? AND portfolio_id = ?`,
		e.AssetID, string(e.Kind), e.Date.UTC().Format(time.RFC3339Nano),
		e.Quantity.String(), e.UnitCost.String(), e.OtherCosts.String(),
		string(e.Currency), e.Broker, now, e.ID, e.PortfolioID)
	if err != nil {
		return fmt.Errorf("failed to update entry %d: %w", e.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check entry update %d: %w", e.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("entry %d: %w", e.ID, domain.ErrNotFound)
	}

	return markPortfolioDirty(tx, e.PortfolioID)
}

// Delete removes an entry. Every remaining entry of the same portfolio+asset
// is marked unconsolidated so the next pass recomputes that asset from
// scratch, and the owning portfolio is marked dirty.
func (r *Repository) Delete(tx *sql.Tx, e Entry) error {
	if _, err := tx.Exec(`DELETE FROM transactions WHERE id = ?`, e.ID); err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", e.ID, err)
	}

	_, err := tx.Exec(`
		UPDATE transactions SET consolidated = 0
		WHERE portfolio_id = ? AND asset_id = ?`,
		e.PortfolioID, e.AssetID)
	if err != nil {
		return fmt.Errorf("failed to invalidate sibling entries: %w", err)
	}

	return markPortfolioDirty(tx, e.PortfolioID)
}

// MarkConsolidatedTx flags every unconsolidated entry of the portfolio as
// consolidated. Called at the end of a successful consolidation pass, inside
// the same transaction as the snapshot writes.
func (r *Repository) MarkConsolidatedTx(tx *sql.Tx, portfolioID int64) error {
	_, err := tx.Exec(`
		UPDATE transactions SET consolidated = 1
		WHERE portfolio_id = ? AND consolidated = 0`, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to mark entries consolidated: %w", err)
	}
	return nil
}

// MarkAllUnconsolidatedTx flags every entry of the portfolio as
// unconsolidated, including already-consolidated ones. Used by forced
// reconsolidation to schedule a full recompute.
func (r *Repository) MarkAllUnconsolidatedTx(tx *sql.Tx, portfolioID int64) error {
	_, err := tx.Exec(`
		UPDATE transactions SET consolidated = 0
		WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to mark entries unconsolidated: %w", err)
	}
	return nil
}

func markPortfolioDirty(tx *sql.Tx, portfolioID int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := tx.Exec(`UPDATE portfolios SET consolidated = 0, last_update = ? WHERE id = ?`,
		now, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to mark portfolio %d dirty: %w", portfolioID, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                              Entry
		kind, date, currency           string
		quantity, unitCost, otherCosts string
		broker                         sql.NullString
		consolidated                   int
		createdAt, updatedAt           string
	)

	err := row.Scan(&e.ID, &e.PortfolioID, &e.AssetID, &kind, &date, &quantity,
		&unitCost, &otherCosts, &currency, &broker, &consolidated, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Kind = domain.TransactionKind(kind)
	e.Currency = domain.Currency(currency)
	e.Broker = broker.String
	e.Consolidated = consolidated != 0

	if e.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return nil, fmt.Errorf("invalid transaction_date %q: %w", date, err)
	}
	if e.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if e.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return nil, fmt.Errorf("invalid unit_cost %q: %w", unitCost, err)
	}
	if e.OtherCosts, err = decimal.NewFromString(otherCosts); err != nil {
		return nil, fmt.Errorf("invalid other_costs %q: %w", otherCosts, err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if e.LastUpdate, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid last_update %q: %w", updatedAt, err)
	}

	return &e, nil
}
