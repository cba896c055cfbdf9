package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/notify"
	"github.com/mmeshcher/artbid/internal/validation"
)

// SubmitBid принимает ставку пользователя.
//
// Проверки выполняются хранилищем внутри транзакции при заблокированной строке аукциона.
// Конфликт на уникальности (auction_id, amount) повторяется один раз: повтор видит новое
// состояние и обычно завершается ErrBidTooLow. Повторный конфликт возвращается как есть.
func (s *Service) SubmitBid(ctx context.Context, auctionID, userID, amount int64) (*model.Bid, error) {
	if err := validation.ValidateAmount(amount); err != nil {
		return nil, err
	}

	placed, err := s.repo.PlaceBid(ctx, auctionID, userID, amount, s.policy)
	if errors.Is(err, bidderrors.ErrDuplicateBidConflict) {
		s.logger.Debug("bid conflict, retrying",
			zap.Int64("auctionID", auctionID),
			zap.Int64("userID", userID),
			zap.Int64("amount", amount),
		)
		placed, err = s.repo.PlaceBid(ctx, auctionID, userID, amount, s.policy)
	}
	if err != nil {
		return nil, err
	}

	s.emitBidEvents(ctx, placed)
	return &placed.Bid, nil
}

func (s *Service) emitBidEvents(ctx context.Context, placed *model.PlacedBid) {
	bid := placed.Bid
	at := bid.CreatedAt
	if at.IsZero() {
		at = s.now()
	}

	uid, amount := bid.UserID, bid.Amount
	s.notify(ctx, notify.NewEvent(model.EventBidPlaced, bid.AuctionID, &uid, &amount, at))

	if placed.PreviousUserID != nil {
		prev, refunded := *placed.PreviousUserID, placed.PreviousAmount
		s.notify(ctx, notify.NewEvent(model.EventBidOutbid, bid.AuctionID, &prev, &refunded, at))
	}
}

// GetBids возвращает ставки аукциона по возрастанию суммы.
func (s *Service) GetBids(ctx context.Context, auctionID int64) ([]model.Bid, error) {
	if _, err := s.repo.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.repo.GetBids(ctx, auctionID)
}
