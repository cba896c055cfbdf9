package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/middleware"
	"github.com/mmeshcher/artbid/internal/model"
)

type balanceResponse struct {
	Current int64 `json:"current"`
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get balance", err, zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, balanceResponse{Current: balance})
}

type ledgerEntryResponse struct {
	ID        int64  `json:"id"`
	Debit     int64  `json:"debit"`
	Credit    int64  `json:"credit"`
	Balance   int64  `json:"balance"`
	Type      string `json:"type"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toLedgerResponse(entries []model.LedgerEntry) []ledgerEntryResponse {
	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ledgerEntryResponse{
			ID:        e.ID,
			Debit:     e.Debit,
			Credit:    e.Credit,
			Balance:   e.Balance,
			Type:      string(e.Type),
			Note:      e.Note,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}

// GetLedger возвращает историю операций текущего пользователя.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	entries, err := h.service.GetLedger(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get ledger", err, zap.Int64("userID", userID))
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, toLedgerResponse(entries))
}

type giftRequest struct {
	ToUserID int64  `json:"to_user_id"`
	Amount   int64  `json:"amount"`
	Note     string `json:"note"`
}

// Gift переводит монеты текущего пользователя другому пользователю.
func (h *Handler) Gift(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req giftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToUserID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	entries, err := h.service.GiftCoins(r.Context(), userID, req.ToUserID, req.Amount, req.Note)
	if err != nil {
		h.writeError(w, "gift coins", err, zap.Int64("userID", userID), zap.Int64("to", req.ToUserID))
		return
	}

	h.writeJSON(w, http.StatusOK, toLedgerResponse(entries[:1]))
}
