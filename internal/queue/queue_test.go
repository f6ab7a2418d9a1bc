package queue

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/assets"
	carteiratesting "github.com/dmelo/carteira/internal/testing"
)

type fakeFetcher struct {
	price decimal.Decimal
}

func (f *fakeFetcher) FetchPrice(ticker string) (decimal.Decimal, domain.Currency, error) {
	return f.price, domain.CurrencyBRL, nil
}

func newAssetService(t *testing.T) (*assets.Service, *assets.Repository) {
	t.Helper()
	db, cleanup := carteiratesting.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	repo := assets.NewRepository(db.Conn(), zerolog.Nop())
	svc := assets.NewService(repo, &fakeFetcher{price: decimal.RequireFromString("41.7")}, zerolog.Nop())
	return svc, repo
}

func TestEnqueueRefresh_ProcessesJob(t *testing.T) {
	svc, repo := newAssetService(t)
	_, err := repo.Upsert(assets.Asset{
		Ticker:   "PETR4",
		Name:     "Petrobras",
		Type:     domain.AssetTypeStock,
		Currency: domain.CurrencyBRL,
	})
	require.NoError(t, err)

	m := NewManager(svc, 16, zerolog.Nop())
	m.Start()

	m.EnqueueRefresh("PETR4")
	m.Stop()

	a, err := repo.GetByTicker("PETR4")
	require.NoError(t, err)
	assert.True(t, a.CurrentPrice.Equal(decimal.RequireFromString("41.7")))
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	svc, _ := newAssetService(t)

	// Worker never started, so the buffer fills and stays full.
	m := NewManager(svc, 1, zerolog.Nop())
	m.EnqueueRefresh("PETR4")

	done := make(chan struct{})
	go func() {
		m.EnqueueRefresh("VALE3")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full buffer")
	}
}

func TestStop_Idempotent(t *testing.T) {
	svc, _ := newAssetService(t)
	m := NewManager(svc, 4, zerolog.Nop())
	m.Start()

	m.Stop()
	m.Stop()

	// Jobs after shutdown are dropped, not panicked on.
	m.EnqueueRefresh("PETR4")
	m.EnqueueRefreshAll()
}
