package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/assets"
	"github.com/dmelo/carteira/internal/modules/ledger"
	"github.com/dmelo/carteira/internal/modules/portfolio"
	carteiratesting "github.com/dmelo/carteira/internal/testing"
)

type testServer struct {
	router     *chi.Mux
	portfolios *portfolio.Repository
	entries    *ledger.Repository
	assets     *assets.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, cleanup := carteiratesting.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	portfolioRepo := portfolio.NewRepository(db.Conn(), log)
	entryRepo := ledger.NewRepository(db.Conn(), log)
	assetRepo := assets.NewRepository(db.Conn(), log)
	service := ledger.NewService(db.Conn(), entryRepo, assetRepo, nil, log)

	handler := NewHandler(service, entryRepo, assetRepo, portfolioRepo, log)
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})

	return &testServer{
		router:     router,
		portfolios: portfolioRepo,
		entries:    entryRepo,
		assets:     assetRepo,
	}
}

func (ts *testServer) request(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) seedPortfolio(t *testing.T, ownerID int64) *portfolio.Portfolio {
	t.Helper()
	p := &portfolio.Portfolio{OwnerID: ownerID, Name: "main"}
	require.NoError(t, ts.portfolios.Create(p))
	return p
}

const buyPayload = `{
	"ticker": "PETR4",
	"asset_name": "Petrobras",
	"asset_type": "STOCK",
	"kind": "BUY",
	"date": "2021-01-15",
	"quantity": "10",
	"unit_cost": "28.40",
	"other_costs": "0.30",
	"currency": "BRL",
	"broker": "clear"
}`

func TestHandleCreate_RegistersAssetAndEntry(t *testing.T) {
	ts := newTestServer(t)
	p := ts.seedPortfolio(t, 1)

	w := ts.request(t, http.MethodPost, fmt.Sprintf("/api/portfolios/%d/entries", p.ID), "1", buyPayload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	entry, err := ts.entries.GetByID(resp["id"])
	require.NoError(t, err)
	assert.Equal(t, domain.KindBuy, entry.Kind)
	assert.Equal(t, "clear", entry.Broker)

	a, err := ts.assets.GetByTicker("PETR4")
	require.NoError(t, err)
	assert.Equal(t, "Petrobras", a.Name)

	reloaded, err := ts.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Consolidated, "entry creation marks the portfolio dirty")
}

func TestHandleCreate_Authorization(t *testing.T) {
	ts := newTestServer(t)
	p := ts.seedPortfolio(t, 1)
	path := fmt.Sprintf("/api/portfolios/%d/entries", p.ID)

	w := ts.request(t, http.MethodPost, path, "", buyPayload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.request(t, http.MethodPost, path, "2", buyPayload)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.request(t, http.MethodPost, "/api/portfolios/99/entries", "1", buyPayload)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCreate_InvalidPayload(t *testing.T) {
	ts := newTestServer(t)
	p := ts.seedPortfolio(t, 1)
	path := fmt.Sprintf("/api/portfolios/%d/entries", p.ID)

	w := ts.request(t, http.MethodPost, path, "1", `{"ticker":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing ticker")

	bad := strings.Replace(buyPayload, `"BUY"`, `"SHORT"`, 1)
	w = ts.request(t, http.MethodPost, path, "1", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown kind")

	bad = strings.Replace(buyPayload, `"2021-01-15"`, `"15/01/2021"`, 1)
	w = ts.request(t, http.MethodPost, path, "1", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code, "bad date format")
}

func TestHandleUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	p := ts.seedPortfolio(t, 1)

	w := ts.request(t, http.MethodPost, fmt.Sprintf("/api/portfolios/%d/entries", p.ID), "1", buyPayload)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	entryID := resp["id"]

	updated := strings.Replace(buyPayload, `"10"`, `"12"`, 1)
	w = ts.request(t, http.MethodPut, fmt.Sprintf("/api/entries/%d", entryID), "1", updated)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	entry, err := ts.entries.GetByID(entryID)
	require.NoError(t, err)
	assert.Equal(t, "12", entry.Quantity.String())

	w = ts.request(t, http.MethodDelete, fmt.Sprintf("/api/entries/%d", entryID), "2", "")
	assert.Equal(t, http.StatusForbidden, w.Code, "only the owner deletes")

	w = ts.request(t, http.MethodDelete, fmt.Sprintf("/api/entries/%d", entryID), "1", "")
	require.Equal(t, http.StatusOK, w.Code)

	_, err = ts.entries.GetByID(entryID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
