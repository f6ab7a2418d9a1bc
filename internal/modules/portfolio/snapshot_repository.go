package portfolio

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
)

// SnapshotRepository handles the derived asset and currency snapshot rows.
// All writes happen inside the consolidation transaction.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

const assetSnapshotColumns = `id, portfolio_id, asset_id, cache_key, currency,
	quantity, avg_buy_price, avg_buy_price_since_reset,
	avg_sell_price, avg_sell_price_since_reset,
	net_cash_flow, net_cash_flow_since_reset,
	total_dividends, total_dividends_since_reset,
	total_other_costs, total_other_costs_since_reset,
	created_at, last_update`

// ListAssetSnapshots returns the portfolio's asset snapshots, asset order.
func (r *SnapshotRepository) ListAssetSnapshots(portfolioID int64) ([]*AssetSnapshot, error) {
	return r.listAssetSnapshots(r.db, portfolioID)
}

// ListAssetSnapshotsTx is ListAssetSnapshots inside a transaction.
func (r *SnapshotRepository) ListAssetSnapshotsTx(tx *sql.Tx, portfolioID int64) ([]*AssetSnapshot, error) {
	return r.listAssetSnapshots(tx, portfolioID)
}

func (r *SnapshotRepository) listAssetSnapshots(q querier, portfolioID int64) ([]*AssetSnapshot, error) {
	rows, err := q.Query(
		`SELECT `+assetSnapshotColumns+` FROM asset_snapshots WHERE portfolio_id = ? ORDER BY asset_id ASC`,
		portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*AssetSnapshot
	for rows.Next() {
		s, err := scanAssetSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// UpsertAssetSnapshotTx writes the snapshot for (portfolio, asset), creating
// the row on first consolidation and updating it in place afterwards.
func (r *SnapshotRepository) UpsertAssetSnapshotTx(tx *sql.Tx, s *AssetSnapshot) error {
	_, err := tx.Exec(`
		INSERT INTO asset_snapshots (
			portfolio_id, asset_id, cache_key, currency,
			quantity, avg_buy_price, avg_buy_price_since_reset,
			avg_sell_price, avg_sell_price_since_reset,
			net_cash_flow, net_cash_flow_since_reset,
			total_dividends, total_dividends_since_reset,
			total_other_costs, total_other_costs_since_reset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, asset_id) DO UPDATE SET
			cache_key = excluded.cache_key,
			currency = excluded.currency,
			quantity = excluded.quantity,
			avg_buy_price = excluded.avg_buy_price,
			avg_buy_price_since_reset = excluded.avg_buy_price_since_reset,
			avg_sell_price = excluded.avg_sell_price,
			avg_sell_price_since_reset = excluded.avg_sell_price_since_reset,
			net_cash_flow = excluded.net_cash_flow,
			net_cash_flow_since_reset = excluded.net_cash_flow_since_reset,
			total_dividends = excluded.total_dividends,
			total_dividends_since_reset = excluded.total_dividends_since_reset,
			total_other_costs = excluded.total_other_costs,
			total_other_costs_since_reset = excluded.total_other_costs_since_reset,
			last_update = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		s.PortfolioID, s.AssetID, s.CacheKey, string(s.Currency),
		s.Quantity.String(), s.AvgBuyPrice.String(), s.AvgBuyPriceSinceReset.String(),
		s.AvgSellPrice.String(), s.AvgSellPriceSinceReset.String(),
		s.NetCashFlow.String(), s.NetCashFlowSinceReset.String(),
		s.TotalDividends.String(), s.TotalDividendsSinceReset.String(),
		s.TotalOtherCosts.String(), s.TotalOtherCostsSinceReset.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset snapshot (portfolio %d, asset %d): %w",
			s.PortfolioID, s.AssetID, err)
	}
	return nil
}

// DeleteAssetSnapshotsExceptTx removes snapshots for assets no longer present
// in the portfolio's ledger. keep lists the asset IDs that still have entries.
func (r *SnapshotRepository) DeleteAssetSnapshotsExceptTx(tx *sql.Tx, portfolioID int64, keep []int64) error {
	if len(keep) == 0 {
		_, err := tx.Exec(`DELETE FROM asset_snapshots WHERE portfolio_id = ?`, portfolioID)
		if err != nil {
			return fmt.Errorf("failed to delete asset snapshots: %w", err)
		}
		return nil
	}

	placeholders := strings.Repeat("?,", len(keep)-1) + "?"
	args := make([]interface{}, 0, len(keep)+1)
	args = append(args, portfolioID)
	for _, id := range keep {
		args = append(args, id)
	}
	_, err := tx.Exec(
		`DELETE FROM asset_snapshots WHERE portfolio_id = ? AND asset_id NOT IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to delete orphaned asset snapshots: %w", err)
	}
	return nil
}

const currencySnapshotColumns = `id, portfolio_id, currency, cache_key,
	net_cash_flow, net_cash_flow_since_reset,
	total_dividends, total_dividends_since_reset,
	total_other_costs, total_other_costs_since_reset,
	created_at, last_update`

// ListCurrencySnapshots returns the portfolio's currency rollups.
func (r *SnapshotRepository) ListCurrencySnapshots(portfolioID int64) ([]*CurrencySnapshot, error) {
	return r.listCurrencySnapshots(r.db, portfolioID)
}

// ListCurrencySnapshotsTx is ListCurrencySnapshots inside a transaction.
func (r *SnapshotRepository) ListCurrencySnapshotsTx(tx *sql.Tx, portfolioID int64) ([]*CurrencySnapshot, error) {
	return r.listCurrencySnapshots(tx, portfolioID)
}

func (r *SnapshotRepository) listCurrencySnapshots(q querier, portfolioID int64) ([]*CurrencySnapshot, error) {
	rows, err := q.Query(
		`SELECT `+currencySnapshotColumns+` FROM currency_snapshots WHERE portfolio_id = ? ORDER BY currency ASC`,
		portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list currency snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*CurrencySnapshot
	for rows.Next() {
		s, err := scanCurrencySnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan currency snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// UpsertCurrencySnapshotTx writes the rollup row for (portfolio, currency).
func (r *SnapshotRepository) UpsertCurrencySnapshotTx(tx *sql.Tx, s *CurrencySnapshot) error {
	_, err := tx.Exec(`
		INSERT INTO currency_snapshots (
			portfolio_id, currency, cache_key,
			net_cash_flow, net_cash_flow_since_reset,
			total_dividends, total_dividends_since_reset,
			total_other_costs, total_other_costs_since_reset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, currency) DO UPDATE SET
			cache_key = excluded.cache_key,
			net_cash_flow = excluded.net_cash_flow,
			net_cash_flow_since_reset = excluded.net_cash_flow_since_reset,
			total_dividends = excluded.total_dividends,
			total_dividends_since_reset = excluded.total_dividends_since_reset,
			total_other_costs = excluded.total_other_costs,
			total_other_costs_since_reset = excluded.total_other_costs_since_reset,
			last_update = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		s.PortfolioID, string(s.Currency), s.CacheKey,
		s.NetCashFlow.String(), s.NetCashFlowSinceReset.String(),
		s.TotalDividends.String(), s.TotalDividendsSinceReset.String(),
		s.TotalOtherCosts.String(), s.TotalOtherCostsSinceReset.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert currency snapshot (portfolio %d, %s): %w",
			s.PortfolioID, s.Currency, err)
	}
	return nil
}

// DeleteCurrencySnapshotsExceptTx removes rollups for currencies no asset
// snapshot references anymore.
func (r *SnapshotRepository) DeleteCurrencySnapshotsExceptTx(tx *sql.Tx, portfolioID int64, keep []domain.Currency) error {
	if len(keep) == 0 {
		_, err := tx.Exec(`DELETE FROM currency_snapshots WHERE portfolio_id = ?`, portfolioID)
		if err != nil {
			return fmt.Errorf("failed to delete currency snapshots: %w", err)
		}
		return nil
	}

	placeholders := strings.Repeat("?,", len(keep)-1) + "?"
	args := make([]interface{}, 0, len(keep)+1)
	args = append(args, portfolioID)
	for _, c := range keep {
		args = append(args, string(c))
	}
	_, err := tx.Exec(
		`DELETE FROM currency_snapshots WHERE portfolio_id = ? AND currency NOT IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to delete orphaned currency snapshots: %w", err)
	}
	return nil
}

func scanAssetSnapshot(row rowScanner) (*AssetSnapshot, error) {
	var s AssetSnapshot
	var currency string
	dec := [11]string{}
	var createdAt, lastUpdate string
	if err := row.Scan(
		&s.ID, &s.PortfolioID, &s.AssetID, &s.CacheKey, &currency,
		&dec[0], &dec[1], &dec[2], &dec[3], &dec[4], &dec[5],
		&dec[6], &dec[7], &dec[8], &dec[9], &dec[10],
		&createdAt, &lastUpdate,
	); err != nil {
		return nil, err
	}
	s.Currency = domain.Currency(currency)

	fields := []*decimal.Decimal{
		&s.Quantity, &s.AvgBuyPrice, &s.AvgBuyPriceSinceReset,
		&s.AvgSellPrice, &s.AvgSellPriceSinceReset,
		&s.NetCashFlow, &s.NetCashFlowSinceReset,
		&s.TotalDividends, &s.TotalDividendsSinceReset,
		&s.TotalOtherCosts, &s.TotalOtherCostsSinceReset,
	}
	for i, f := range fields {
		v, err := decimal.NewFromString(dec[i])
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", dec[i], err)
		}
		*f = v
	}

	var err error
	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if s.LastUpdate, err = time.Parse(time.RFC3339, lastUpdate); err != nil {
		return nil, fmt.Errorf("invalid last_update %q: %w", lastUpdate, err)
	}
	return &s, nil
}

func scanCurrencySnapshot(row rowScanner) (*CurrencySnapshot, error) {
	var s CurrencySnapshot
	var currency string
	dec := [6]string{}
	var createdAt, lastUpdate string
	if err := row.Scan(
		&s.ID, &s.PortfolioID, &currency, &s.CacheKey,
		&dec[0], &dec[1], &dec[2], &dec[3], &dec[4], &dec[5],
		&createdAt, &lastUpdate,
	); err != nil {
		return nil, err
	}
	s.Currency = domain.Currency(currency)

	fields := []*decimal.Decimal{
		&s.NetCashFlow, &s.NetCashFlowSinceReset,
		&s.TotalDividends, &s.TotalDividendsSinceReset,
		&s.TotalOtherCosts, &s.TotalOtherCostsSinceReset,
	}
	for i, f := range fields {
		v, err := decimal.NewFromString(dec[i])
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", dec[i], err)
		}
		*f = v
	}

	var err error
	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if s.LastUpdate, err = time.Parse(time.RFC3339, lastUpdate); err != nil {
		return nil, fmt.Errorf("invalid last_update %q: %w", lastUpdate, err)
	}
	return &s, nil
}
