package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	router *chi.Mux
}

func NewHandler(market *MarketHandler) *Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	h := &Handler{
		router: router,
	}

	h.registerRoutes(market)
	return h
}

func (h *Handler) registerRoutes(market *MarketHandler) {
	h.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Route("/market", func(r chi.Router) {
			r.Post("/buy", market.Buy)
			r.Get("/purchases/{userID}", market.Purchases)
			r.Get("/popular-items", market.PopularItems)
		})
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
