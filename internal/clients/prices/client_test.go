package prices

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmelo/carteira/internal/clientdata"
	"github.com/dmelo/carteira/internal/domain"
	carteiratesting "github.com/dmelo/carteira/internal/testing"
)

func chartPayload(price float64, currency string) string {
	return fmt.Sprintf(
		`{"chart":{"result":[{"meta":{"regularMarketPrice":%v,"currency":%q}}],"error":null}}`,
		price, currency)
}

func newCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, cleanup := carteiratesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return clientdata.NewRepository(db.Conn())
}

func TestFetchPrice_ParsesChartResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/PETR4.SA", r.URL.Path)
		fmt.Fprint(w, chartPayload(38.42, "BRL"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())
	price, currency, err := client.FetchPrice("PETR4.SA")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("38.42")))
	assert.Equal(t, domain.CurrencyBRL, currency)
}

func TestFetchPrice_CacheFirst(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, chartPayload(10, "BRL"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, newCacheRepo(t), zerolog.Nop())

	_, _, err := client.FetchPrice("PETR4")
	require.NoError(t, err)
	_, _, err = client.FetchPrice("PETR4")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call served from cache")
}

func TestFetchPrice_StaleFallbackOnAPIError(t *testing.T) {
	cache := newCacheRepo(t)

	// Seed an expired entry directly
	require.NoError(t, cache.Store("PETR4", map[string]string{"price": "33.5", "currency": "BRL"}, -clientdata.TTLCurrentPrice))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, cache, zerolog.Nop())
	price, currency, err := client.FetchPrice("PETR4")
	require.NoError(t, err, "stale data beats no data")
	assert.True(t, price.Equal(decimal.RequireFromString("33.5")))
	assert.Equal(t, domain.CurrencyBRL, currency)
}

func TestFetchPrice_ErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())
	_, _, err := client.FetchPrice("PETR4")
	assert.Error(t, err)
}

func TestFetchPrice_NoQuoteData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())
	_, _, err := client.FetchPrice("UNKNOWN")
	assert.Error(t, err)
}
