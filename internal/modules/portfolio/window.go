package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/ledger"
)

// positionDelta is the contribution of one entry to the running net position:
// buys subtract, sells add, dividends contribute nothing. A running total of
// exactly zero therefore marks a date on which the position was fully closed.
func positionDelta(e ledger.Entry) decimal.Decimal {
	switch e.Kind {
	case domain.KindBuy:
		return e.Quantity.Neg()
	case domain.KindSell:
		return e.Quantity
	default:
		return decimal.Zero
	}
}

// ResolveResetBoundary finds the most recent date on which the cumulative net
// position of the entries reached exactly zero. Entries must be sorted by
// date ascending. The second return is false when the position never closed.
//
// The running total is evaluated once per distinct date, after every entry of
// that date has been applied, so intra-day zero crossings do not count.
func ResolveResetBoundary(entries []ledger.Entry) (time.Time, bool) {
	var boundary time.Time
	var found bool

	running := decimal.Zero
	for i, e := range entries {
		running = running.Add(positionDelta(e))

		lastOfDate := i == len(entries)-1 || !entries[i+1].Date.Equal(e.Date)
		if lastOfDate && running.IsZero() {
			boundary = e.Date
			found = true
		}
	}
	return boundary, found
}

// SinceResetWindow returns the entries strictly after the reset boundary.
// When the position never fully closed, the window is the entire history.
// Entries dated exactly on the boundary belong to the closed cycle and are
// excluded, even same-day re-entries.
func SinceResetWindow(entries []ledger.Entry) []ledger.Entry {
	boundary, found := ResolveResetBoundary(entries)
	if !found {
		return entries
	}
	for i, e := range entries {
		if e.Date.After(boundary) {
			return entries[i:]
		}
	}
	return nil
}
