package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"market/internal/market"
	"market/internal/model"
)

type MarketService interface {
	Purchase(ctx context.Context, userID, itemID int) error
	GetTodaysPurchases(ctx context.Context, userID int) ([]model.TodayPurchase, error)
	GetTopPopularItemsPerYear(ctx context.Context) ([]model.PopularItem, error)
}

type MarketHandler struct {
	svc MarketService
}

func NewMarketHandler(svc MarketService) *MarketHandler {
	return &MarketHandler{svc: svc}
}

type BuyRequest struct {
	UserID int `json:"user_id"`
	ItemID int `json:"item_id"`
}

func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Purchase(r.Context(), req.UserID, req.ItemID); err != nil {
		status := statusForError(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *MarketHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	purchases, err := h.svc.GetTodaysPurchases(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, purchases)
}

func (h *MarketHandler) PopularItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.GetTopPopularItemsPerYear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// statusForError maps each business failure to its own status code so
// clients can branch without parsing messages.
func statusForError(err error) int {
	switch {
	case errors.Is(err, market.ErrUserNotFound), errors.Is(err, market.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInsufficientBalance), errors.Is(err, market.ErrAlreadyPurchased):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
