package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/artbid/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса artbid.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/balance", h.GetBalance)
			r.Get("/ledger", h.GetLedger)
			r.Post("/gift", h.Gift)
		})
	})

	r.Route("/api/auctions", func(r chi.Router) {
		r.Get("/", h.ListAuctions)
		r.Get("/{id}", h.GetAuction)
		r.Get("/{id}/bids", h.GetBids)

		r.With(h.authMiddleware.Middleware).Post("/{id}/bids", h.SubmitBid)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", h.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.adminAuth.Middleware)

			r.Post("/auctions", h.CreateAuction)
			r.Post("/auctions/{id}/open", h.OpenAuction)
			r.Post("/auctions/{id}/close", h.CloseAuction)
			r.Post("/auctions/{id}/settle", h.SettleAuction)

			r.Post("/users/{id}/coins", h.GrantCoins)
			r.Get("/users/{id}/audit", h.AuditBalance)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
