package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/middleware"
	"github.com/mmeshcher/artbid/internal/model"
)

type auctionResponse struct {
	ID               int64   `json:"id"`
	ArtworkID        int64   `json:"artwork_id"`
	Title            string  `json:"title"`
	StartTime        string  `json:"start_time"`
	EndTime          string  `json:"end_time"`
	CurrentBidAmount int64   `json:"current_bid_amount"`
	CurrentBidUserID *int64  `json:"current_bid_user_id"`
	State            string  `json:"state"`
	ClosedAt         *string `json:"closed_at,omitempty"`
	SettledAt        *string `json:"settled_at,omitempty"`
}

func toAuctionResponse(a *model.Auction) auctionResponse {
	return auctionResponse{
		ID:               a.ID,
		ArtworkID:        a.ArtworkID,
		Title:            a.Title,
		StartTime:        a.StartTime.Format(time.RFC3339),
		EndTime:          a.EndTime.Format(time.RFC3339),
		CurrentBidAmount: a.CurrentBidAmount,
		CurrentBidUserID: a.CurrentBidUserID,
		State:            string(a.State),
		ClosedAt:         formatTime(a.ClosedAt),
		SettledAt:        formatTime(a.SettledAt),
	}
}

// ListAuctions возвращает аукционы, при необходимости отфильтрованные по ?state=.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	state := model.AuctionState(r.URL.Query().Get("state"))

	auctions, err := h.service.ListAuctions(r.Context(), state)
	if err != nil {
		h.writeError(w, "list auctions", err)
		return
	}

	resp := make([]auctionResponse, 0, len(auctions))
	for i := range auctions {
		resp = append(resp, toAuctionResponse(&auctions[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetAuction возвращает аукцион по идентификатору.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	a, err := h.service.GetAuction(r.Context(), id)
	if err != nil {
		h.writeError(w, "get auction", err, zap.Int64("auctionID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

type bidResponse struct {
	ID        int64  `json:"id"`
	AuctionID int64  `json:"auction_id"`
	UserID    int64  `json:"user_id"`
	Amount    int64  `json:"amount"`
	CreatedAt string `json:"created_at"`
}

func toBidResponse(b model.Bid) bidResponse {
	return bidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		UserID:    b.UserID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
}

// GetBids возвращает ставки аукциона по возрастанию суммы.
func (h *Handler) GetBids(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bids, err := h.service.GetBids(r.Context(), id)
	if err != nil {
		h.writeError(w, "get bids", err, zap.Int64("auctionID", id))
		return
	}

	resp := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, toBidResponse(b))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type bidRequest struct {
	Amount int64 `json:"amount"`
}

// SubmitBid принимает ставку текущего пользователя.
func (h *Handler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	auctionID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bid, err := h.service.SubmitBid(r.Context(), auctionID, userID, req.Amount)
	if err != nil {
		h.writeError(w, "submit bid", err,
			zap.Int64("auctionID", auctionID),
			zap.Int64("userID", userID),
			zap.Int64("amount", req.Amount),
		)
		return
	}

	h.writeJSON(w, http.StatusCreated, toBidResponse(*bid))
}
