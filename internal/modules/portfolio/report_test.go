package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmelo/carteira/internal/domain"
)

func newReportService(e *engine) *ReportService {
	return NewReportService(e.consolidator, e.portfolios, e.snapshots, e.entries, e.assets, zerolog.Nop())
}

func TestPortfolioResults_ComputesResultFigures(t *testing.T) {
	e := newEngine(t)
	reports := newReportService(e)
	p := e.portfolio(t, 1, "main")
	petr := e.asset(t, "PETR4", domain.CurrencyBRL)

	e.record(t, p.ID, petr, domain.KindBuy, "2021-01-01", "10", "20", "0")
	require.NoError(t, e.assets.UpdatePrice("PETR4", dec("25")))

	report, err := reports.PortfolioResults(p.ID, 1)
	require.NoError(t, err)
	require.Len(t, report.Assets, 1)

	a := report.Assets[0]
	assert.Equal(t, "PETR4", a.Ticker)
	assert.True(t, a.MarketValue.Equal(dec("250")))
	// -200 + 250
	assert.True(t, a.ResultAmount.Equal(dec("50")), "got %s", a.ResultAmount)
	// 50 / 200 * 100
	assert.True(t, a.ResultPercentage.Equal(dec("25")), "got %s", a.ResultPercentage)
	assert.True(t, a.PortfolioPercentage.Equal(dec("100")))

	require.Len(t, report.Summary, 1)
	assert.Equal(t, domain.CurrencyBRL, report.Summary[0].Currency)
	assert.True(t, report.Summary[0].ResultAmount.Equal(dec("50")))
}

// A dirty portfolio is consolidated on demand before its report is read.
func TestPortfolioResults_ConsolidatesLazily(t *testing.T) {
	e := newEngine(t)
	reports := newReportService(e)
	p := e.portfolio(t, 1, "main")
	petr := e.asset(t, "PETR4", domain.CurrencyBRL)
	e.record(t, p.ID, petr, domain.KindBuy, "2021-01-01", "10", "20", "0")

	_, err := reports.PortfolioResults(p.ID, 1)
	require.NoError(t, err)

	reloaded, err := e.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Consolidated)
}

func TestPortfolioResults_NoBuysZeroPercentage(t *testing.T) {
	e := newEngine(t)
	reports := newReportService(e)
	p := e.portfolio(t, 1, "main")
	petr := e.asset(t, "PETR4", domain.CurrencyBRL)

	e.record(t, p.ID, petr, domain.KindDividend, "2021-01-01", "10", "1", "0")

	report, err := reports.PortfolioResults(p.ID, 1)
	require.NoError(t, err)
	require.Len(t, report.Assets, 1)
	assert.True(t, report.Assets[0].ResultPercentage.IsZero(), "no buys means zero percentage, not an error")
}

func TestPortfolioResults_PermissionDenied(t *testing.T) {
	e := newEngine(t)
	reports := newReportService(e)
	p := e.portfolio(t, 1, "main")

	_, err := reports.PortfolioResults(p.ID, 2)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}
