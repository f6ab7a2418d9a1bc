// Package portfolio implements the position consolidation engine: the
// incremental materialization of per-asset and per-currency aggregates from
// the transaction ledger.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
)

// Portfolio is a named collection of ledger entries owned by one user.
// Consolidated is true only when every owned entry is consolidated and the
// derived snapshots are up to date.
type Portfolio struct {
	ID           int64
	OwnerID      int64
	Name         string
	Description  string
	Consolidated bool
	CreatedAt    time.Time
	LastUpdate   time.Time
}

var _ domain.Ownable = (*Portfolio)(nil)

// OwnedBy implements domain.Ownable
func (p *Portfolio) OwnedBy(userID int64) bool {
	return p.OwnerID == userID
}

// AssetSnapshot is the derived per-portfolio per-asset aggregate. One row
// exists iff the asset has at least one ledger entry in the portfolio. The
// SinceReset fields cover only entries after the most recent date at which
// the net position was exactly zero.
//
// Snapshots are written exclusively by the consolidation engine, never
// hand-edited.
type AssetSnapshot struct {
	ID          int64
	PortfolioID int64
	AssetID     int64
	CacheKey    string // consolidation epoch of the pass that wrote this row
	Currency    domain.Currency

	Quantity                  decimal.Decimal // signed net position
	AvgBuyPrice               decimal.Decimal
	AvgBuyPriceSinceReset     decimal.Decimal
	AvgSellPrice              decimal.Decimal
	AvgSellPriceSinceReset    decimal.Decimal
	NetCashFlow               decimal.Decimal // negative means net cash still invested
	NetCashFlowSinceReset     decimal.Decimal
	TotalDividends            decimal.Decimal
	TotalDividendsSinceReset  decimal.Decimal
	TotalOtherCosts           decimal.Decimal
	TotalOtherCostsSinceReset decimal.Decimal

	CreatedAt  time.Time
	LastUpdate time.Time
}

// CurrencySnapshot is the per-portfolio per-currency rollup of the asset
// snapshots sharing that currency. Fully re-derived on every consolidation
// pass.
type CurrencySnapshot struct {
	ID          int64
	PortfolioID int64
	Currency    domain.Currency
	CacheKey    string

	NetCashFlow               decimal.Decimal
	NetCashFlowSinceReset     decimal.Decimal
	TotalDividends            decimal.Decimal
	TotalDividendsSinceReset  decimal.Decimal
	TotalOtherCosts           decimal.Decimal
	TotalOtherCostsSinceReset decimal.Decimal

	CreatedAt  time.Time
	LastUpdate time.Time
}
