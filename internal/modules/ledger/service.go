package ledger

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dmelo/carteira/internal/database"
	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/assets"
)

// RefreshQueue schedules asynchronous price refreshes. Injected so ledger
// mutations are testable without a running worker.
type RefreshQueue interface {
	EnqueueRefresh(ticker string)
}

// Service is the thin mutation surface over the transaction ledger.
//
// Every mutation marks the affected entries and the owning portfolio dirty in
// the same database transaction, then schedules a best-effort price refresh
// for the touched asset. Authentication and field-level validation belong to
// the HTTP layer; this service only enforces ledger invariants.
type Service struct {
	db     *sql.DB
	repo   *Repository
	assets *assets.Repository
	queue  RefreshQueue
	log    zerolog.Logger
}

// NewService creates a new ledger mutation service
func NewService(db *sql.DB, repo *Repository, assetRepo *assets.Repository, queue RefreshQueue, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		assets: assetRepo,
		queue:  queue,
		log:    log.With().Str("service", "ledger").Logger(),
	}
}

// RecordEntry creates a new ledger entry and returns its id.
func (s *Service) RecordEntry(e Entry) (int64, error) {
	if err := validateEntry(e); err != nil {
		return 0, err
	}

	var id int64
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var err error
		id, err = s.repo.Create(tx, e)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.enqueueRefresh(e.AssetID)
	return id, nil
}

// UpdateEntry rewrites an existing entry.
func (s *Service) UpdateEntry(e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.Update(tx, e)
	})
	if err != nil {
		return err
	}

	s.enqueueRefresh(e.AssetID)
	return nil
}

// DeleteEntry removes an entry and invalidates the cached aggregates that
// depended on it.
func (s *Service) DeleteEntry(id int64) error {
	entry, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.Delete(tx, *entry)
	})
	if err != nil {
		return err
	}

	s.enqueueRefresh(entry.AssetID)
	return nil
}

func (s *Service) enqueueRefresh(assetID int64) {
	if s.queue == nil {
		return
	}

	asset, err := s.assets.GetByID(assetID)
	if err != nil {
		s.log.Warn().Err(err).Int64("asset_id", assetID).Msg("Cannot resolve ticker for price refresh")
		return
	}
	s.queue.EnqueueRefresh(asset.Ticker)
}

func validateEntry(e Entry) error {
	if !domain.ValidTransactionKind(e.Kind) {
		return fmt.Errorf("invalid transaction kind %q: %w", e.Kind, domain.ErrInvalidInput)
	}
	if !domain.ValidCurrency(e.Currency) {
		return fmt.Errorf("invalid currency %q: %w", e.Currency, domain.ErrInvalidInput)
	}
	if e.Quantity.IsNegative() {
		return fmt.Errorf("quantity must not be negative, got %s: %w", e.Quantity, domain.ErrInvalidInput)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("transaction date is required: %w", domain.ErrInvalidInput)
	}
	return nil
}
