// Package handler содержит HTTP-обработчики API сервиса artbid.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/middleware"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/repository"
	"github.com/mmeshcher/artbid/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)

	GetBalance(ctx context.Context, userID int64) (int64, error)
	GetLedger(ctx context.Context, userID int64) ([]model.LedgerEntry, error)
	GiftCoins(ctx context.Context, fromID, toID, amount int64, note string) ([]model.LedgerEntry, error)
	PurchaseCoins(ctx context.Context, userID, amount int64, note string) (*model.LedgerEntry, error)
	RewardCoins(ctx context.Context, userID, amount int64, note string) (*model.LedgerEntry, error)
	AuditBalance(ctx context.Context, userID int64) (int64, error)

	ListAuctions(ctx context.Context, state model.AuctionState) ([]model.Auction, error)
	GetAuction(ctx context.Context, id int64) (*model.Auction, error)
	GetBids(ctx context.Context, auctionID int64) ([]model.Bid, error)
	SubmitBid(ctx context.Context, auctionID, userID, amount int64) (*model.Bid, error)

	CreateAuction(ctx context.Context, n model.NewAuction) (*model.Auction, error)
	OpenAuction(ctx context.Context, id int64) (*model.Auction, error)
	CloseAuction(ctx context.Context, id int64) (*model.Auction, error)
	SettleAuction(ctx context.Context, id int64) (*model.Settlement, error)
}

// Handler реализует HTTP-обработчики API сервиса artbid.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminAuth      *middleware.AdminAuth
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, admin *middleware.AdminAuth) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminAuth:      admin,
	}
}

// statusFromError сопоставляет доменные ошибки HTTP-статусам.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, bidderrors.ErrAuctionNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, bidderrors.ErrAuctionNotOpen),
		errors.Is(err, bidderrors.ErrAuctionNotClosed),
		errors.Is(err, bidderrors.ErrBidTooLow),
		errors.Is(err, bidderrors.ErrDuplicateBidder),
		errors.Is(err, bidderrors.ErrDuplicateBidConflict),
		errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, bidderrors.ErrInsufficientBalance),
		errors.Is(err, bidderrors.ErrNegativeBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, bidderrors.ErrInvalidBid),
		errors.Is(err, bidderrors.ErrInvalidAuction),
		errors.Is(err, bidderrors.ErrInvalidEntry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	return req, req.Login != "" && req.Password != ""
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, "register user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, "login user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID)
	w.WriteHeader(http.StatusOK)
}

// Healthz сообщает, что процесс жив.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
