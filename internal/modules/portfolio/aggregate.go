package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/ledger"
)

// Metrics is the aggregate of a slice of ledger entries. Every field is
// derived in a single pass; callers run it twice per asset, once over the
// full history and once over the since-reset window.
type Metrics struct {
	Quantity        decimal.Decimal
	AvgBuyPrice     decimal.Decimal
	AvgSellPrice    decimal.Decimal
	NetCashFlow     decimal.Decimal
	TotalDividends  decimal.Decimal
	TotalOtherCosts decimal.Decimal

	// BuyCashFlow is the gross cash spent on buys, other costs deducted.
	// Not materialized in snapshots; the read model uses it as the
	// denominator for result percentages.
	BuyCashFlow decimal.Decimal
}

// Aggregate computes Metrics over the entries. Averages with a zero
// denominator come out as zero, never an error, so empty or dividend-only
// slices are safe.
//
// Sign conventions: a buy of quantity q at unit cost u with other costs o
// moves -(u*q + o) of cash; a sell moves +(u*q - o); a dividend pays
// (u*q - o) but does not touch NetCashFlow or Quantity.
func Aggregate(entries []ledger.Entry) Metrics {
	var (
		buyQty, sellQty   decimal.Decimal
		buyCost, sellCost decimal.Decimal
		m                 Metrics
	)

	for _, e := range entries {
		gross := e.UnitCost.Mul(e.Quantity)
		m.TotalOtherCosts = m.TotalOtherCosts.Add(e.OtherCosts)

		switch e.Kind {
		case domain.KindBuy:
			buyQty = buyQty.Add(e.Quantity)
			buyCost = buyCost.Add(gross.Add(e.OtherCosts))
			m.NetCashFlow = m.NetCashFlow.Sub(gross.Add(e.OtherCosts))
			m.BuyCashFlow = m.BuyCashFlow.Add(gross.Sub(e.OtherCosts))
		case domain.KindSell:
			sellQty = sellQty.Add(e.Quantity)
			sellCost = sellCost.Add(gross.Sub(e.OtherCosts))
			m.NetCashFlow = m.NetCashFlow.Add(gross.Sub(e.OtherCosts))
		case domain.KindDividend:
			m.TotalDividends = m.TotalDividends.Add(gross.Sub(e.OtherCosts))
		}
	}

	m.Quantity = buyQty.Sub(sellQty)
	if !buyQty.IsZero() {
		m.AvgBuyPrice = buyCost.Div(buyQty)
	}
	if !sellQty.IsZero() {
		m.AvgSellPrice = sellCost.Div(sellQty)
	}
	return m
}
