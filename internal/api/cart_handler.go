package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/api/middleware"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
	"github.com/vladislavdragonenkov/storefront/internal/service/session"
)

// CartHandler обслуживает операции над корзиной текущего пользователя.
type CartHandler struct {
	sessions *session.Registry
	logger   *log.Entry
}

func NewCartHandler(sessions *session.Registry, logger *log.Entry) *CartHandler {
	if logger == nil {
		logger = log.WithField("component", "cart-handler")
	}
	return &CartHandler{sessions: sessions, logger: logger}
}

type AddItemRequestDTO struct {
	ProductID      string `json:"product_id"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int32  `json:"quantity"`
	Name           string `json:"name"`
	ImageRef       string `json:"image_ref"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int32 `json:"quantity"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	s := h.sessions.Get(userID)
	respondJSON(w, http.StatusOK, s.Cart.Snapshot())
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.sessions.Get(userID)
	if err := s.Cart.AddItem(req.ProductID, req.UnitPriceMinor, req.Name, req.ImageRef, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, s.Cart.Snapshot())
}

// PUT /api/v1/cart/items/{productID}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID := chi.URLParam(r, "productID")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.sessions.Get(userID)
	if err := s.Cart.SetQuantity(productID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, s.Cart.Snapshot())
}

// DELETE /api/v1/cart/items/{productID}
// Удаление отсутствующей позиции отвечает 200 с текущим снимком: операция идемпотентна.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID := chi.URLParam(r, "productID")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id is required")
		return
	}

	s := h.sessions.Get(userID)
	s.Cart.RemoveItem(productID)

	respondJSON(w, http.StatusOK, s.Cart.Snapshot())
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	s := h.sessions.Get(userID)
	s.Cart.Clear()

	respondJSON(w, http.StatusOK, s.Cart.Snapshot())
}

// GET /api/v1/cart/totals
func (h *CartHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	s := h.sessions.Get(userID)
	respondJSON(w, http.StatusOK, pricing.ComputeTotals(s.Cart.Snapshot()))
}
