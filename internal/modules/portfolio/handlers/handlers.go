// Package handlers provides HTTP handlers for portfolio operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dmelo/carteira/internal/domain"
	"github.com/dmelo/carteira/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	repo         *portfolio.Repository
	consolidator *portfolio.Service
	reports      *portfolio.ReportService
	log          zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	repo *portfolio.Repository,
	consolidator *portfolio.Service,
	reports *portfolio.ReportService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		repo:         repo,
		consolidator: consolidator,
		reports:      reports,
		log:          log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes mounts portfolio routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Post("/{id}/consolidate", h.HandleConsolidate)
		r.Post("/{id}/reconsolidate", h.HandleReconsolidate)
		r.Get("/{id}/results", h.HandleResults)
	})
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	portfolios, err := h.repo.ListByOwner(userID)
	if err != nil {
		h.respondError(w, err, "Failed to list portfolios")
		return
	}

	response := make([]map[string]interface{}, 0, len(portfolios))
	for _, p := range portfolios {
		response = append(response, map[string]interface{}{
			"id":           p.ID,
			"name":         p.Name,
			"description":  p.Description,
			"consolidated": p.Consolidated,
			"created_at":   p.CreatedAt,
			"last_update":  p.LastUpdate,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	p := &portfolio.Portfolio{
		OwnerID:     userID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.repo.Create(p); err != nil {
		h.respondError(w, err, "Failed to create portfolio")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": p.ID})
}

// HandleConsolidate handles POST /api/portfolios/{id}/consolidate
func (h *Handler) HandleConsolidate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	portfolioID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.consolidator.Consolidate(portfolioID, userID); err != nil {
		h.respondError(w, err, "Consolidation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consolidated"})
}

// HandleReconsolidate handles POST /api/portfolios/{id}/reconsolidate
func (h *Handler) HandleReconsolidate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	portfolioID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.consolidator.ForceReconsolidate(portfolioID, userID); err != nil {
		h.respondError(w, err, "Reconsolidation failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// HandleResults handles GET /api/portfolios/{id}/results
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	portfolioID, ok := pathID(w, r)
	if !ok {
		return
	}

	report, err := h.reports.PortfolioResults(portfolioID, userID)
	if err != nil {
		h.respondError(w, err, "Failed to build report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// respondError maps domain errors onto HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrPermissionDenied):
		http.Error(w, "Permission denied", http.StatusForbidden)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

// userIDFromRequest reads the authenticated user from the X-User-ID header.
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

// pathID parses the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
