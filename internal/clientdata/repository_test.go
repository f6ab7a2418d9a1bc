package clientdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	carteiratesting "github.com/dmelo/carteira/internal/testing"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := carteiratesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn())
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := newRepo(t)

	require.NoError(t, repo.Store("PETR4", map[string]string{"price": "38.42"}, time.Minute))

	data, err := repo.GetIfFresh("PETR4")
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"38.42"}`, string(data))
}

func TestGetIfFresh_MissOnExpiredOrMissing(t *testing.T) {
	repo := newRepo(t)

	data, err := repo.GetIfFresh("NOPE")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, repo.Store("PETR4", map[string]string{"price": "1"}, -time.Minute))
	data, err = repo.GetIfFresh("PETR4")
	require.NoError(t, err)
	assert.Nil(t, data, "expired entries are not fresh")
}

func TestGet_ReturnsStaleData(t *testing.T) {
	repo := newRepo(t)

	require.NoError(t, repo.Store("PETR4", map[string]string{"price": "1"}, -time.Minute))

	data, err := repo.Get("PETR4")
	require.NoError(t, err)
	assert.NotNil(t, data, "stale data stays readable as a fallback")
}

func TestPurge(t *testing.T) {
	repo := newRepo(t)

	require.NoError(t, repo.Store("OLD", map[string]string{}, -time.Minute))
	require.NoError(t, repo.Store("NEW", map[string]string{}, time.Minute))

	n, err := repo.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	data, err := repo.Get("NEW")
	require.NoError(t, err)
	assert.NotNil(t, data)
}
