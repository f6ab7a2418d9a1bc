package portfolio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/assets"
	"github.com/dmelo/carteira/internal/modules/ledger"
)

// WindowResult carries the figures restricted to the current holding cycle,
// the entries after the last time the position closed out.
type WindowResult struct {
	AvgBuyPrice      decimal.Decimal `json:"avg_buy_price"`
	AvgSellPrice     decimal.Decimal `json:"avg_sell_price"`
	NetCashFlow      decimal.Decimal `json:"net_cash_flow"`
	TotalDividends   decimal.Decimal `json:"total_dividends"`
	TotalOtherCosts  decimal.Decimal `json:"total_other_costs"`
	ResultAmount     decimal.Decimal `json:"result_amount"`
	ResultPercentage decimal.Decimal `json:"result_percentage"`
}

// AssetResult is one asset's row in the portfolio report, snapshot figures
// combined with the asset's latest known price.
type AssetResult struct {
	Ticker       string           `json:"ticker"`
	Name         string           `json:"name"`
	Type         domain.AssetType `json:"type"`
	Currency     domain.Currency  `json:"currency"`
	CurrentPrice decimal.Decimal  `json:"current_price"`
	LastUpdate   time.Time        `json:"last_update"` // of the price, not the snapshot

	Quantity        decimal.Decimal `json:"quantity"`
	AvgBuyPrice     decimal.Decimal `json:"avg_buy_price"`
	AvgSellPrice    decimal.Decimal `json:"avg_sell_price"`
	NetCashFlow     decimal.Decimal `json:"net_cash_flow"`
	TotalDividends  decimal.Decimal `json:"total_dividends"`
	TotalOtherCosts decimal.Decimal `json:"total_other_costs"`

	MarketValue         decimal.Decimal `json:"market_value"`
	ResultAmount        decimal.Decimal `json:"result_amount"`
	ResultPercentage    decimal.Decimal `json:"result_percentage"`
	PortfolioPercentage decimal.Decimal `json:"portfolio_percentage"`

	SinceReset WindowResult `json:"since_reset"`
}

// CurrencySummary is the per-currency rollup line of the report.
type CurrencySummary struct {
	Currency domain.Currency `json:"currency"`

	NetCashFlow               decimal.Decimal `json:"net_cash_flow"`
	NetCashFlowSinceReset     decimal.Decimal `json:"net_cash_flow_since_reset"`
	TotalDividends            decimal.Decimal `json:"total_dividends"`
	TotalDividendsSinceReset  decimal.Decimal `json:"total_dividends_since_reset"`
	TotalOtherCosts           decimal.Decimal `json:"total_other_costs"`
	TotalOtherCostsSinceReset decimal.Decimal `json:"total_other_costs_since_reset"`

	MarketValue  decimal.Decimal `json:"market_value"`
	ResultAmount decimal.Decimal `json:"result_amount"`
}

// PortfolioReport is the full read model returned by the results endpoint.
type PortfolioReport struct {
	PortfolioID int64             `json:"portfolio_id"`
	Name        string            `json:"name"`
	Assets      []AssetResult     `json:"assets"`
	Summary     []CurrencySummary `json:"summary"`
}

// ReportService assembles portfolio reports. It consolidates lazily: a stale
// portfolio is brought up to date before its snapshots are read.
type ReportService struct {
	consolidator *Service
	repo         *Repository
	snapshots    *SnapshotRepository
	entries      *ledger.Repository
	assets       *assets.Repository
	log          zerolog.Logger
}

// NewReportService creates the report service.
func NewReportService(
	consolidator *Service,
	repo *Repository,
	snapshots *SnapshotRepository,
	entries *ledger.Repository,
	assetRepo *assets.Repository,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		consolidator: consolidator,
		repo:         repo,
		snapshots:    snapshots,
		entries:      entries,
		assets:       assetRepo,
		log:          log.With().Str("service", "report").Logger(),
	}
}

var hundred = decimal.NewFromInt(100)

// PortfolioResults consolidates the portfolio if needed and builds its report.
func (s *ReportService) PortfolioResults(portfolioID, userID int64) (*PortfolioReport, error) {
	if err := s.consolidator.Consolidate(portfolioID, userID); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}

	snapshots, err := s.snapshots.ListAssetSnapshots(portfolioID)
	if err != nil {
		return nil, err
	}

	assetIDs := make([]int64, 0, len(snapshots))
	for _, snap := range snapshots {
		assetIDs = append(assetIDs, snap.AssetID)
	}
	meta, err := s.assets.GetByIDs(assetIDs)
	if err != nil {
		return nil, err
	}

	report := &PortfolioReport{
		PortfolioID: portfolioID,
		Name:        p.Name,
		Assets:      make([]AssetResult, 0, len(snapshots)),
	}
	marketValueByCurrency := make(map[domain.Currency]decimal.Decimal)

	for _, snap := range snapshots {
		a, ok := meta[snap.AssetID]
		if !ok {
			return nil, fmt.Errorf("asset %d referenced by snapshot: %w", snap.AssetID, domain.ErrNotFound)
		}

		entries, err := s.entries.EntriesForAsset(portfolioID, snap.AssetID)
		if err != nil {
			return nil, err
		}
		buyFlow := Aggregate(entries).BuyCashFlow
		buyFlowWindow := Aggregate(SinceResetWindow(entries)).BuyCashFlow

		marketValue := snap.Quantity.Mul(a.CurrentPrice)
		result := AssetResult{
			Ticker:          a.Ticker,
			Name:            a.Name,
			Type:            a.Type,
			Currency:        snap.Currency,
			CurrentPrice:    a.CurrentPrice,
			LastUpdate:      a.LastUpdate,
			Quantity:        snap.Quantity,
			AvgBuyPrice:     snap.AvgBuyPrice,
			AvgSellPrice:    snap.AvgSellPrice,
			NetCashFlow:     snap.NetCashFlow,
			TotalDividends:  snap.TotalDividends,
			TotalOtherCosts: snap.TotalOtherCosts,
			MarketValue:     marketValue,
			ResultAmount:    snap.NetCashFlow.Add(marketValue),
			SinceReset: WindowResult{
				AvgBuyPrice:     snap.AvgBuyPriceSinceReset,
				AvgSellPrice:    snap.AvgSellPriceSinceReset,
				NetCashFlow:     snap.NetCashFlowSinceReset,
				TotalDividends:  snap.TotalDividendsSinceReset,
				TotalOtherCosts: snap.TotalOtherCostsSinceReset,
				ResultAmount:    snap.NetCashFlowSinceReset.Add(marketValue),
			},
		}
		if !buyFlow.IsZero() {
			result.ResultPercentage = result.ResultAmount.Div(buyFlow).Mul(hundred)
		}
		if !buyFlowWindow.IsZero() {
			result.SinceReset.ResultPercentage = result.SinceReset.ResultAmount.Div(buyFlowWindow).Mul(hundred)
		}

		marketValueByCurrency[snap.Currency] = marketValueByCurrency[snap.Currency].Add(marketValue)
		report.Assets = append(report.Assets, result)
	}

	// Portfolio percentage is each position's share of the market value in
	// its own currency; cross-currency shares would need FX conversion.
	for i := range report.Assets {
		total := marketValueByCurrency[report.Assets[i].Currency]
		if !total.IsZero() {
			report.Assets[i].PortfolioPercentage = report.Assets[i].MarketValue.Div(total).Mul(hundred)
		}
	}

	currencySnapshots, err := s.snapshots.ListCurrencySnapshots(portfolioID)
	if err != nil {
		return nil, err
	}
	for _, c := range currencySnapshots {
		marketValue := marketValueByCurrency[c.Currency]
		report.Summary = append(report.Summary, CurrencySummary{
			Currency:                  c.Currency,
			NetCashFlow:               c.NetCashFlow,
			NetCashFlowSinceReset:     c.NetCashFlowSinceReset,
			TotalDividends:            c.TotalDividends,
			TotalDividendsSinceReset:  c.TotalDividendsSinceReset,
			TotalOtherCosts:           c.TotalOtherCosts,
			TotalOtherCostsSinceReset: c.TotalOtherCostsSinceReset,
			MarketValue:               marketValue,
			ResultAmount:              c.NetCashFlow.Add(marketValue),
		})
	}
	return report, nil
}
