package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/model"
)

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// AdminLogin выдаёт bearer-токен администратору.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, "admin login", err)
		return
	}
	if u.Role != model.RoleAdmin {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	token, exp, err := h.adminAuth.IssueToken(u.ID, u.Role)
	if err != nil {
		h.logger.Error("issue admin token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp.Format(time.RFC3339)})
}

type createAuctionRequest struct {
	ArtworkID      int64     `json:"artwork_id"`
	Title          string    `json:"title"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	StartingAmount int64     `json:"starting_amount"`
}

// CreateAuction создаёт аукцион в состоянии PENDING.
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	a, err := h.service.CreateAuction(r.Context(), model.NewAuction{
		ArtworkID:      req.ArtworkID,
		Title:          req.Title,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		StartingAmount: req.StartingAmount,
	})
	if err != nil {
		h.writeError(w, "create auction", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toAuctionResponse(a))
}

// OpenAuction открывает аукцион вручную.
func (h *Handler) OpenAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "open auction", h.service.OpenAuction)
}

// CloseAuction принудительно закрывает аукцион.
func (h *Handler) CloseAuction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "close auction", h.service.CloseAuction)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, id int64) (*model.Auction, error)) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	a, err := fn(r.Context(), id)
	if err != nil {
		h.writeError(w, op, err, zap.Int64("auctionID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

type settlementResponse struct {
	AuctionID    int64  `json:"auction_id"`
	WinnerUserID *int64 `json:"winner_user_id"`
	Amount       *int64 `json:"amount"`
	SettledAt    string `json:"settled_at"`
	Applied      bool   `json:"applied"`
}

// SettleAuction рассчитывает закрытый аукцион. Повторный вызов возвращает 200 с applied=false.
func (h *Handler) SettleAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	st, err := h.service.SettleAuction(r.Context(), id)
	if err != nil {
		h.writeError(w, "settle auction", err, zap.Int64("auctionID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, settlementResponse{
		AuctionID:    st.AuctionID,
		WinnerUserID: st.WinnerUserID,
		Amount:       st.Amount,
		SettledAt:    st.SettledAt.Format(time.RFC3339),
		Applied:      st.Applied,
	})
}

type coinsRequest struct {
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
	Note   string `json:"note"`
}

// GrantCoins зачисляет пользователю купленные или наградные монеты.
func (h *Handler) GrantCoins(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req coinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var (
		entry *model.LedgerEntry
		err   error
	)
	switch req.Kind {
	case "", "purchase":
		entry, err = h.service.PurchaseCoins(r.Context(), userID, req.Amount, req.Note)
	case "reward":
		entry, err = h.service.RewardCoins(r.Context(), userID, req.Amount, req.Note)
	default:
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, "grant coins", err, zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusCreated, toLedgerResponse([]model.LedgerEntry{*entry})[0])
}

type auditResponse struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

// AuditBalance сверяет баланс пользователя с полной суммой его журнала.
func (h *Handler) AuditBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.AuditBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, "audit balance", err, zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, http.StatusOK, auditResponse{UserID: userID, Balance: balance})
}
