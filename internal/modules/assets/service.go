package assets

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
)

// PriceFetcher fetches the current quote for a ticker from an external
// service. Implementations may serve cached values.
type PriceFetcher interface {
	FetchPrice(ticker string) (decimal.Decimal, domain.Currency, error)
}

// Service refreshes asset prices from the external quote service.
//
// Refreshes are best-effort: a fetch failure leaves the stored price stale and
// is logged, never returned. Consolidation reads current_price as a
// possibly-stale value and must not depend on a refresh having happened.
type Service struct {
	repo    *Repository
	fetcher PriceFetcher
	log     zerolog.Logger
}

// NewService creates a new asset price refresh service
func NewService(repo *Repository, fetcher PriceFetcher, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		log:     log.With().Str("service", "assets").Logger(),
	}
}

// RefreshPrice fetches and stores the current price for one ticker.
func (s *Service) RefreshPrice(ticker string) {
	price, _, err := s.fetcher.FetchPrice(ticker)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Price fetch failed, keeping stale price")
		return
	}

	if err := s.repo.UpdatePrice(ticker, price); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to store refreshed price")
		return
	}

	s.log.Debug().Str("ticker", ticker).Str("price", price.String()).Msg("Price refreshed")
}

// RefreshAllPrices refreshes every asset that currently appears in a snapshot.
func (s *Service) RefreshAllPrices() {
	tickers, err := s.repo.ActiveTickers()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list active tickers")
		return
	}

	for _, ticker := range tickers {
		s.RefreshPrice(ticker)
	}

	s.log.Info().Int("tickers", len(tickers)).Msg("Active asset prices refreshed")
}
