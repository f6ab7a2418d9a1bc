// Package handlers provides HTTP handlers for ledger entry operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/assets"
	"github.com/dmelo/carteira/internal/modules/ledger"
	"github.com/dmelo/carteira/internal/modules/portfolio"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service    *ledger.Service
	entries    *ledger.Repository
	assets     *assets.Repository
	portfolios *portfolio.Repository
	log        zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(
	service *ledger.Service,
	entries *ledger.Repository,
	assetRepo *assets.Repository,
	portfolios *portfolio.Repository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:    service,
		entries:    entries,
		assets:     assetRepo,
		portfolios: portfolios,
		log:        log.With().Str("handler", "ledger").Logger(),
	}
}

// RegisterRoutes mounts ledger routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios/{id}/entries", h.HandleCreate)
	r.Route("/entries/{id}", func(r chi.Router) {
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
	})
}

// entryRequest is the write payload for create and update. The asset is
// addressed by ticker; unknown tickers are registered on first use.
type entryRequest struct {
	Ticker     string `json:"ticker"`
	AssetName  string `json:"asset_name"`
	AssetType  string `json:"asset_type"`
	Kind       string `json:"kind"`
	Date       string `json:"date"`
	Quantity   string `json:"quantity"`
	UnitCost   string `json:"unit_cost"`
	OtherCosts string `json:"other_costs"`
	Currency   string `json:"currency"`
	Broker     string `json:"broker"`
}

// HandleCreate handles POST /api/portfolios/{id}/entries
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	portfolioID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio id", http.StatusBadRequest)
		return
	}
	if !h.authorizePortfolio(w, portfolioID, userID) {
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	entry, err := h.buildEntry(portfolioID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.service.RecordEntry(*entry)
	if err != nil {
		h.respondError(w, err, "Failed to record entry")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

// HandleUpdate handles PUT /api/entries/{id}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid entry id", http.StatusBadRequest)
		return
	}

	existing, err := h.entries.GetByID(entryID)
	if err != nil {
		h.respondError(w, err, "Failed to load entry")
		return
	}
	if !h.authorizePortfolio(w, existing.PortfolioID, userID) {
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	entry, err := h.buildEntry(existing.PortfolioID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entry.ID = entryID

	if err := h.service.UpdateEntry(*entry); err != nil {
		h.respondError(w, err, "Failed to update entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleDelete handles DELETE /api/entries/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid entry id", http.StatusBadRequest)
		return
	}

	existing, err := h.entries.GetByID(entryID)
	if err != nil {
		h.respondError(w, err, "Failed to load entry")
		return
	}
	if !h.authorizePortfolio(w, existing.PortfolioID, userID) {
		return
	}

	if err := h.service.DeleteEntry(entryID); err != nil {
		h.respondError(w, err, "Failed to delete entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// buildEntry validates the payload and resolves the asset, registering
// unknown tickers.
func (h *Handler) buildEntry(portfolioID int64, req entryRequest) (*ledger.Entry, error) {
	if req.Ticker == "" {
		return nil, errors.New("ticker is required")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, errors.New("date must be YYYY-MM-DD")
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, errors.New("invalid quantity")
	}
	unitCost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		return nil, errors.New("invalid unit_cost")
	}
	otherCosts := decimal.Zero
	if req.OtherCosts != "" {
		if otherCosts, err = decimal.NewFromString(req.OtherCosts); err != nil {
			return nil, errors.New("invalid other_costs")
		}
	}

	assetID, err := h.assets.Upsert(assets.Asset{
		Ticker:   req.Ticker,
		Name:     req.AssetName,
		Type:     domain.AssetType(req.AssetType),
		Currency: domain.Currency(req.Currency),
	})
	if err != nil {
		return nil, err
	}

	return &ledger.Entry{
		PortfolioID: portfolioID,
		AssetID:     assetID,
		Kind:        domain.TransactionKind(req.Kind),
		Date:        date,
		Quantity:    quantity,
		UnitCost:    unitCost,
		OtherCosts:  otherCosts,
		Currency:    domain.Currency(req.Currency),
		Broker:      req.Broker,
	}, nil
}

// authorizePortfolio verifies the portfolio exists and the caller owns it,
// writing the error response otherwise.
func (h *Handler) authorizePortfolio(w http.ResponseWriter, portfolioID, userID int64) bool {
	p, err := h.portfolios.GetByID(portfolioID)
	if err != nil {
		h.respondError(w, err, "Failed to load portfolio")
		return false
	}
	if !p.OwnedBy(userID) {
		http.Error(w, "Permission denied", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrPermissionDenied):
		http.Error(w, "Permission denied", http.StatusForbidden)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func userIDFromRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		http.Error(w, "Missing X-User-ID header", http.StatusUnauthorized)
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "Invalid X-User-ID header", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
