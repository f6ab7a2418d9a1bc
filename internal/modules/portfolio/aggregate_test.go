package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func priced(kind domain.TransactionKind, date string, qty, unitCost, otherCosts string) ledger.Entry {
	return ledger.Entry{
		Kind:       kind,
		Date:       day(date),
		Quantity:   dec(qty),
		UnitCost:   dec(unitCost),
		OtherCosts: dec(otherCosts),
		Currency:   domain.CurrencyBRL,
	}
}

func TestAggregate_AverageBuyPrice(t *testing.T) {
	entries := []ledger.Entry{
		priced(domain.KindBuy, "2021-01-01", "1", "168.57", "0"),
		priced(domain.KindBuy, "2021-02-01", "3", "167", "1"),
	}

	m := Aggregate(entries)
	// (168.57*1 + 167*3 + 1) / 4
	assert.True(t, m.AvgBuyPrice.Equal(dec("167.6425")), "got %s", m.AvgBuyPrice)
	assert.True(t, m.Quantity.Equal(dec("4")))
}

func TestAggregate_Empty(t *testing.T) {
	m := Aggregate(nil)
	assert.True(t, m.Quantity.IsZero())
	assert.True(t, m.AvgBuyPrice.IsZero())
	assert.True(t, m.AvgSellPrice.IsZero())
	assert.True(t, m.NetCashFlow.IsZero())
}

func TestAggregate_DividendOnly(t *testing.T) {
	entries := []ledger.Entry{
		priced(domain.KindDividend, "2021-01-01", "10", "0.55", "0.05"),
	}

	m := Aggregate(entries)
	// 10*0.55 - 0.05
	assert.True(t, m.TotalDividends.Equal(dec("5.45")), "got %s", m.TotalDividends)
	assert.True(t, m.Quantity.IsZero())
	assert.True(t, m.NetCashFlow.IsZero(), "dividends never touch cash flow")
	assert.True(t, m.AvgBuyPrice.IsZero(), "no buys means zero average, not an error")
}

func TestAggregate_NetCashFlowSigns(t *testing.T) {
	entries := []ledger.Entry{
		priced(domain.KindBuy, "2021-01-01", "10", "20", "1"),  // -201
		priced(domain.KindSell, "2021-02-01", "4", "25", "1"),  // +99
		priced(domain.KindDividend, "2021-03-01", "6", "1", "0"), // cash flow untouched
	}

	m := Aggregate(entries)
	assert.True(t, m.NetCashFlow.Equal(dec("-102")), "got %s", m.NetCashFlow)
	assert.True(t, m.Quantity.Equal(dec("6")))
	assert.True(t, m.TotalOtherCosts.Equal(dec("2")))
	assert.True(t, m.TotalDividends.Equal(dec("6")))
}

func TestAggregate_AverageSellDeductsOtherCosts(t *testing.T) {
	entries := []ledger.Entry{
		priced(domain.KindSell, "2021-01-01", "2", "50", "1"),
		priced(domain.KindSell, "2021-02-01", "2", "60", "1"),
	}

	m := Aggregate(entries)
	// (2*50 - 1 + 2*60 - 1) / 4 = 218/4
	assert.True(t, m.AvgSellPrice.Equal(dec("54.5")), "got %s", m.AvgSellPrice)
	assert.True(t, m.Quantity.Equal(dec("-4")), "oversold position stays negative")
}

func TestAggregate_BuyCashFlowDeductsOtherCosts(t *testing.T) {
	entries := []ledger.Entry{
		priced(domain.KindBuy, "2021-01-01", "10", "20", "1"),
		priced(domain.KindSell, "2021-02-01", "2", "30", "0"),
	}

	m := Aggregate(entries)
	// 10*20 - 1; sells do not contribute
	assert.True(t, m.BuyCashFlow.Equal(dec("199")), "got %s", m.BuyCashFlow)
}

func TestAggregate_FractionalQuantities(t *testing.T) {
	entries := []ledger.Entry{
		priced(domain.KindBuy, "2021-01-01", "0.375", "104.5", "0"),
		priced(domain.KindBuy, "2021-02-01", "0.625", "98.2", "0"),
	}

	m := Aggregate(entries)
	assert.True(t, m.Quantity.Equal(dec("1")))
	// (0.375*104.5 + 0.625*98.2) / 1 = 100.5625
	assert.True(t, m.AvgBuyPrice.Equal(dec("100.5625")), "got %s", m.AvgBuyPrice)
}
