package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/storefront/internal/api/middleware"
	"github.com/vladislavdragonenkov/storefront/internal/auth"
)

// NewRouter собирает HTTP API сервиса. Все маршруты под /api/v1 требуют
// валидный JWT; health-пробы остаются открытыми.
func NewRouter(
	cartHandler *CartHandler,
	checkoutHandler *CheckoutHandler,
	jwtService *auth.JWTService,
	healthHandler http.Handler,
	requestTimeout time.Duration,
) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(chimw.Compress(5))

	if healthHandler != nil {
		r.Method(http.MethodGet, "/health", healthHandler)
	}
	r.Get("/health/live", healthLive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(jwtService))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Get("/totals", cartHandler.GetTotals)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{productID}", cartHandler.UpdateQuantity)
			r.Delete("/items/{productID}", cartHandler.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutHandler.GetCheckout)
			r.Post("/", checkoutHandler.BeginCheckout)
			r.Post("/confirm", checkoutHandler.ConfirmPayment)
			r.Post("/abandon", checkoutHandler.AbandonCheckout)
			r.Post("/reset", checkoutHandler.ResetCheckout)
			r.Get("/timeline", checkoutHandler.GetTimeline)
		})

		r.Delete("/session", checkoutHandler.Logout)
	})

	return r
}

func healthLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
