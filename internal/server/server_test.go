package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	carteiratesting "github.com/dmelo/carteira/internal/testing"
)

func TestHandleHealth(t *testing.T) {
	portfolioDB, cleanup := carteiratesting.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)
	cacheDB, cleanupCache := carteiratesting.NewTestDB(t, "cache")
	t.Cleanup(cleanupCache)

	handler := NewHealthHandler(zerolog.Nop(), t.TempDir(), portfolioDB, cacheDB)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	handler.HandleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])

	databases, ok := resp["databases"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", databases["portfolio"])
	assert.Equal(t, "ok", databases["cache"])
}

func TestHandleHealth_UnhealthyDatabase(t *testing.T) {
	portfolioDB, cleanup := carteiratesting.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)
	cacheDB, cleanupCache := carteiratesting.NewTestDB(t, "cache")
	cleanupCache() // closed connection fails the health check

	handler := NewHealthHandler(zerolog.Nop(), t.TempDir(), portfolioDB, cacheDB)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	handler.HandleHealth(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
