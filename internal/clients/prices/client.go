// Package prices provides current price fetching with persistent caching.
package prices

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/clientdata"
	"github.com/dmelo/carteira/internal/domain"
)

// Client fetches current quotes from a Yahoo-compatible chart endpoint.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new price client.
// cacheRepo is optional - if nil, caching is disabled
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "prices").Logger(),
		cacheRepo: cacheRepo,
	}
}

// cachedPrice is the structure stored in the cache
type cachedPrice struct {
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

// chartResponse mirrors the subset of the chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				Currency           string  `json:"currency"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchPrice returns the ticker's current price and quote currency, cache
// first. If the API fails, returns stale cached data if available (stale
// data > no data).
func (c *Client) FetchPrice(ticker string) (decimal.Decimal, domain.Currency, error) {
	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh(ticker)
		if err == nil && data != nil {
			if price, currency, ok := decodeCached(data); ok {
				c.log.Debug().Str("ticker", ticker).Str("price", price.String()).Msg("Cache hit")
				return price, currency, nil
			}
		}
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, ticker)
	c.log.Debug().Str("url", url).Msg("Fetching quote")

	resp, err := c.client.Get(url)
	if err != nil {
		if price, currency, ok := c.staleFromCache(ticker); ok {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("API failed, using stale cached price")
			return price, currency, nil
		}
		return decimal.Zero, "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if price, currency, ok := c.staleFromCache(ticker); ok {
			c.log.Warn().Int("status", resp.StatusCode).Str("ticker", ticker).Msg("API error, using stale cached price")
			return price, currency, nil
		}
		return decimal.Zero, "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if price, currency, ok := c.staleFromCache(ticker); ok {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to parse API response, using stale cached price")
			return price, currency, nil
		}
		return decimal.Zero, "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Chart.Error != nil {
		return decimal.Zero, "", fmt.Errorf("API error for %s: %s", ticker, result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		if price, currency, ok := c.staleFromCache(ticker); ok {
			c.log.Warn().Str("ticker", ticker).Msg("Empty API response, using stale cached price")
			return price, currency, nil
		}
		return decimal.Zero, "", fmt.Errorf("no quote data for %s", ticker)
	}

	meta := result.Chart.Result[0].Meta
	price := decimal.NewFromFloat(meta.RegularMarketPrice)
	currency := domain.Currency(meta.Currency)

	if c.cacheRepo != nil {
		cached := cachedPrice{Price: price.String(), Currency: string(currency)}
		if err := c.cacheRepo.Store(ticker, cached, clientdata.TTLCurrentPrice); err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache price")
		}
	}

	return price, currency, nil
}

// staleFromCache attempts to retrieve a price from the cache, ignoring
// expiration.
func (c *Client) staleFromCache(ticker string) (decimal.Decimal, domain.Currency, bool) {
	if c.cacheRepo == nil {
		return decimal.Zero, "", false
	}
	data, err := c.cacheRepo.Get(ticker)
	if err != nil || data == nil {
		return decimal.Zero, "", false
	}
	return decodeCached(data)
}

func decodeCached(data json.RawMessage) (decimal.Decimal, domain.Currency, bool) {
	var cached cachedPrice
	if err := json.Unmarshal(data, &cached); err != nil {
		return decimal.Zero, "", false
	}
	price, err := decimal.NewFromString(cached.Price)
	if err != nil {
		return decimal.Zero, "", false
	}
	return price, domain.Currency(cached.Currency), true
}
