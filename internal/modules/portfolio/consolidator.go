package portfolio

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmelo/carteira/internal/database"
	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/assets"
	"github.com/dmelo/carteira/internal/modules/ledger"
)

// PriceRefreshQueue accepts asynchronous price refresh requests. Enqueueing
// must never block the consolidation path.
type PriceRefreshQueue interface {
	EnqueueRefresh(ticker string)
}

// Service runs consolidation passes over portfolios.
type Service struct {
	db        *database.DB
	repo      *Repository
	snapshots *SnapshotRepository
	entries   *ledger.Repository
	assets    *assets.Repository
	queue     PriceRefreshQueue
	log       zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService creates the consolidation service. queue may be nil in tests.
func NewService(
	db *database.DB,
	repo *Repository,
	snapshots *SnapshotRepository,
	entries *ledger.Repository,
	assetRepo *assets.Repository,
	queue PriceRefreshQueue,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		snapshots: snapshots,
		entries:   entries,
		assets:    assetRepo,
		queue:     queue,
		log:       log.With().Str("service", "consolidator").Logger(),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// portfolioLock returns the mutex serializing consolidation of one portfolio.
// Concurrent passes over different portfolios proceed independently.
func (s *Service) portfolioLock(portfolioID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[portfolioID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[portfolioID] = l
	}
	return l
}

// checkOwnership loads the portfolio and verifies the caller owns it.
func (s *Service) checkOwnership(portfolioID, userID int64) (*Portfolio, error) {
	p, err := s.repo.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}
	var owned domain.Ownable = p
	if !owned.OwnedBy(userID) {
		return nil, fmt.Errorf("portfolio %d: %w", portfolioID, domain.ErrPermissionDenied)
	}
	return p, nil
}

// Consolidate brings the portfolio's snapshots up to date with its ledger.
// It is a no-op when the portfolio is already consolidated. Only assets with
// unconsolidated entries are recomputed; snapshots of clean assets are left
// byte for byte as they were. All writes of a pass commit atomically, so a
// failure leaves both the snapshots and the dirty flags untouched.
func (s *Service) Consolidate(portfolioID, userID int64) error {
	p, err := s.checkOwnership(portfolioID, userID)
	if err != nil {
		return err
	}

	lock := s.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: another pass may have run while we waited.
	p, err = s.repo.GetByID(portfolioID)
	if err != nil {
		return err
	}
	if p.Consolidated {
		s.log.Debug().Int64("portfolio_id", portfolioID).Msg("Already consolidated, skipping")
		return nil
	}

	start := time.Now()
	cacheKey := fmt.Sprintf("%d-%d", portfolioID, start.UnixNano())

	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		return s.consolidateTx(tx, portfolioID, cacheKey)
	})
	if err != nil {
		return fmt.Errorf("failed to consolidate portfolio %d: %w", portfolioID, err)
	}

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Dur("elapsed", time.Since(start)).
		Msg("Portfolio consolidated")
	return nil
}

// consolidateTx is the single-transaction body of a consolidation pass.
func (s *Service) consolidateTx(tx *sql.Tx, portfolioID int64, cacheKey string) error {
	dirtyAssets, err := s.entries.DistinctAssetsWithUnconsolidatedEntriesTx(tx, portfolioID)
	if err != nil {
		return err
	}

	// Assets whose last entry was deleted leave a stale snapshot behind.
	held, err := s.entries.AllAssetsEverHeldTx(tx, portfolioID)
	if err != nil {
		return err
	}
	if err := s.snapshots.DeleteAssetSnapshotsExceptTx(tx, portfolioID, held); err != nil {
		return err
	}

	assetMeta, err := s.assets.GetByIDs(dirtyAssets)
	if err != nil {
		return err
	}

	for _, assetID := range dirtyAssets {
		entries, err := s.entries.EntriesForAssetTx(tx, portfolioID, assetID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			// Every entry for this asset was deleted; the snapshot
			// is already gone from the sweep above.
			continue
		}

		meta, ok := assetMeta[assetID]
		if !ok {
			return fmt.Errorf("asset %d referenced by ledger: %w", assetID, domain.ErrNotFound)
		}

		full := Aggregate(entries)
		window := Aggregate(SinceResetWindow(entries))

		snapshot := &AssetSnapshot{
			PortfolioID:               portfolioID,
			AssetID:                   assetID,
			CacheKey:                  cacheKey,
			Currency:                  meta.Currency,
			Quantity:                  full.Quantity,
			AvgBuyPrice:               full.AvgBuyPrice,
			AvgBuyPriceSinceReset:     window.AvgBuyPrice,
			AvgSellPrice:              full.AvgSellPrice,
			AvgSellPriceSinceReset:    window.AvgSellPrice,
			NetCashFlow:               full.NetCashFlow,
			NetCashFlowSinceReset:     window.NetCashFlow,
			TotalDividends:            full.TotalDividends,
			TotalDividendsSinceReset:  window.TotalDividends,
			TotalOtherCosts:           full.TotalOtherCosts,
			TotalOtherCostsSinceReset: window.TotalOtherCosts,
		}
		if err := s.snapshots.UpsertAssetSnapshotTx(tx, snapshot); err != nil {
			return err
		}
	}

	if err := s.rebuildCurrencySnapshotsTx(tx, portfolioID, cacheKey); err != nil {
		return err
	}

	if err := s.entries.MarkConsolidatedTx(tx, portfolioID); err != nil {
		return err
	}
	return s.repo.SetConsolidatedTx(tx, portfolioID, true)
}

// rebuildCurrencySnapshotsTx re-derives every currency rollup from the asset
// snapshot rows now present in the transaction.
func (s *Service) rebuildCurrencySnapshotsTx(tx *sql.Tx, portfolioID int64, cacheKey string) error {
	assetSnapshots, err := s.snapshots.ListAssetSnapshotsTx(tx, portfolioID)
	if err != nil {
		return err
	}

	byCurrency := make(map[domain.Currency]*CurrencySnapshot)
	var order []domain.Currency
	for _, a := range assetSnapshots {
		c, ok := byCurrency[a.Currency]
		if !ok {
			c = &CurrencySnapshot{
				PortfolioID: portfolioID,
				Currency:    a.Currency,
				CacheKey:    cacheKey,
			}
			byCurrency[a.Currency] = c
			order = append(order, a.Currency)
		}
		c.NetCashFlow = c.NetCashFlow.Add(a.NetCashFlow)
		c.NetCashFlowSinceReset = c.NetCashFlowSinceReset.Add(a.NetCashFlowSinceReset)
		c.TotalDividends = c.TotalDividends.Add(a.TotalDividends)
		c.TotalDividendsSinceReset = c.TotalDividendsSinceReset.Add(a.TotalDividendsSinceReset)
		c.TotalOtherCosts = c.TotalOtherCosts.Add(a.TotalOtherCosts)
		c.TotalOtherCostsSinceReset = c.TotalOtherCostsSinceReset.Add(a.TotalOtherCostsSinceReset)
	}

	for _, currency := range order {
		if err := s.snapshots.UpsertCurrencySnapshotTx(tx, byCurrency[currency]); err != nil {
			return err
		}
	}
	return s.snapshots.DeleteCurrencySnapshotsExceptTx(tx, portfolioID, order)
}

// ForceReconsolidate marks the whole portfolio dirty and schedules a price
// refresh for every asset it ever held. It does not recompute anything; the
// next Consolidate call rebuilds every snapshot from scratch.
func (s *Service) ForceReconsolidate(portfolioID, userID int64) error {
	if _, err := s.checkOwnership(portfolioID, userID); err != nil {
		return err
	}

	lock := s.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		if err := s.entries.MarkAllUnconsolidatedTx(tx, portfolioID); err != nil {
			return err
		}
		return s.repo.SetConsolidatedTx(tx, portfolioID, false)
	})
	if err != nil {
		return fmt.Errorf("failed to force reconsolidation of portfolio %d: %w", portfolioID, err)
	}

	if s.queue != nil {
		held, err := s.entries.AllAssetsEverHeld(portfolioID)
		if err != nil {
			s.log.Warn().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to list assets for price refresh")
			return nil
		}
		meta, err := s.assets.GetByIDs(held)
		if err != nil {
			s.log.Warn().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to resolve tickers for price refresh")
			return nil
		}
		for _, a := range meta {
			s.queue.EnqueueRefresh(a.Ticker)
		}
	}

	s.log.Info().Int64("portfolio_id", portfolioID).Msg("Portfolio marked for full reconsolidation")
	return nil
}
