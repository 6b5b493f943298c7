package api

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/api/middleware"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/session"
)

// CheckoutHandler обслуживает жизненный цикл checkout-сессии пользователя.
type CheckoutHandler struct {
	sessions *session.Registry
	timeline domain.TimelineRepository
	logger   *log.Entry
}

func NewCheckoutHandler(sessions *session.Registry, timeline domain.TimelineRepository, logger *log.Entry) *CheckoutHandler {
	if logger == nil {
		logger = log.WithField("component", "checkout-handler")
	}
	return &CheckoutHandler{sessions: sessions, timeline: timeline, logger: logger}
}

type ConfirmPaymentRequestDTO struct {
	PaymentMethod map[string]string `json:"payment_method"`
}

type AbandonRequestDTO struct {
	Reason string `json:"reason"`
}

// CheckoutSessionDTO — представление сессии для клиента. Остаток intent
// наружу не отдаётся целиком: клиенту нужен только client_secret.
type CheckoutSessionDTO struct {
	SessionID      string `json:"session_id"`
	State          string `json:"state"`
	CartRevision   int64  `json:"cart_revision"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	ClientSecret   string `json:"client_secret,omitempty"`
	OrderRef       string `json:"order_ref,omitempty"`
	RequiresAction bool   `json:"requires_action,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	LastErrorMsg   string `json:"last_error_message,omitempty"`
}

type TimelineEventDTO struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	Occurred  time.Time `json:"occurred_at"`
}

func toSessionDTO(s domain.CheckoutSession) CheckoutSessionDTO {
	return CheckoutSessionDTO{
		SessionID:      s.ID,
		State:          string(s.State),
		CartRevision:   s.CartRevisionAtStart,
		AmountMinor:    s.AmountMinor,
		Currency:       s.Currency,
		ClientSecret:   s.ClientSecret,
		OrderRef:       s.OrderRef,
		RequiresAction: s.RequiresAction,
		LastError:      string(s.LastError),
		LastErrorMsg:   s.LastErrorMessage,
	}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	s := h.sessions.Get(userID)
	checkoutSession, err := s.Checkout.Begin(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toSessionDTO(checkoutSession))
}

// POST /api/v1/checkout/confirm
func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ConfirmPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s := h.sessions.Get(userID)
	checkoutSession, err := s.Checkout.SubmitPayment(r.Context(), domain.PaymentMethodDetails(req.PaymentMethod))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toSessionDTO(checkoutSession))
}

// POST /api/v1/checkout/abandon
func (h *CheckoutHandler) AbandonCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AbandonRequestDTO
	// Тело опционально: abandon без причины тоже валиден.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "user_abandoned"
	}

	s := h.sessions.Get(userID)
	if err := s.Checkout.Abandon(req.Reason); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toSessionDTO(s.Checkout.Session()))
}

// POST /api/v1/checkout/reset
func (h *CheckoutHandler) ResetCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	s := h.sessions.Get(userID)
	if err := s.Checkout.Reset(); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toSessionDTO(s.Checkout.Session()))
}

// GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	s := h.sessions.Get(userID)
	respondJSON(w, http.StatusOK, toSessionDTO(s.Checkout.Session()))
}

// GET /api/v1/checkout/timeline?session_id=...
// Без session_id отдаётся timeline текущей сессии.
func (h *CheckoutHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if h.timeline == nil {
		respondError(w, http.StatusNotFound, "not_found", "timeline is not enabled")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = h.sessions.Get(userID).Checkout.Session().ID
	}
	if sessionID == "" {
		respondJSON(w, http.StatusOK, []TimelineEventDTO{})
		return
	}

	events, err := h.timeline.List(sessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]TimelineEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, TimelineEventDTO{
			SessionID: e.SessionID,
			Type:      e.Type,
			Reason:    e.Reason,
			Occurred:  e.Occurred,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// DELETE /api/v1/session
// Logout: прерывает активный checkout и стирает сохранённую корзину.
func (h *CheckoutHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if err := h.sessions.Evict(r.Context(), userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("failed to evict user session")
		respondError(w, http.StatusInternalServerError, "internal", "failed to end session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
