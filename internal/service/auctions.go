package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/notify"
	"github.com/mmeshcher/artbid/internal/validation"
)

// CreateAuction создаёт аукцион в состоянии PENDING.
func (s *Service) CreateAuction(ctx context.Context, n model.NewAuction) (*model.Auction, error) {
	if err := validation.CheckNewAuction(n); err != nil {
		return nil, err
	}
	return s.repo.CreateAuction(ctx, n)
}

// GetAuction возвращает аукцион по идентификатору.
func (s *Service) GetAuction(ctx context.Context, id int64) (*model.Auction, error) {
	return s.repo.GetAuction(ctx, id)
}

// ListAuctions возвращает аукционы в указанном состоянии. Пустое состояние означает все.
func (s *Service) ListAuctions(ctx context.Context, state model.AuctionState) ([]model.Auction, error) {
	if state != "" && !state.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", bidderrors.ErrInvalidAuction, state)
	}
	return s.repo.ListAuctions(ctx, state)
}

// OpenAuction переводит аукцион из PENDING в OPEN. Для остальных состояний ничего не делает.
func (s *Service) OpenAuction(ctx context.Context, id int64) (*model.Auction, error) {
	a, err := s.repo.OpenAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("auction open", zap.Int64("auctionID", id), zap.String("state", string(a.State)))
	return a, nil
}

// CloseAuction закрывает открытый аукцион и сразу пытается его рассчитать.
// Ошибка расчёта записывается в журнал, аукцион остаётся CLOSED до следующей попытки.
func (s *Service) CloseAuction(ctx context.Context, id int64) (*model.Auction, error) {
	a, err := s.repo.CloseAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.State != model.AuctionStateClosed {
		return a, nil
	}

	if _, err := s.SettleAuction(ctx, id); err != nil {
		return a, nil
	}

	return s.repo.GetAuction(ctx, id)
}

// SettleAuction рассчитывает закрытый аукцион ровно один раз.
// Повторный вызов для SETTLED аукциона успешен и возвращает Settlement с Applied == false.
func (s *Service) SettleAuction(ctx context.Context, id int64) (*model.Settlement, error) {
	st, err := s.repo.SettleAuction(ctx, id)
	if errors.Is(err, bidderrors.ErrAlreadySettled) {
		return s.existingSettlement(ctx, id)
	}
	if err != nil {
		s.logger.Error("failed to settle auction", zap.Int64("auctionID", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("auction settled",
		zap.Int64("auctionID", id),
		zap.Bool("has_winner", st.WinnerUserID != nil),
	)
	s.notify(ctx, notify.NewEvent(model.EventAuctionSettled, id, st.WinnerUserID, st.Amount, st.SettledAt))

	return st, nil
}

func (s *Service) existingSettlement(ctx context.Context, id int64) (*model.Settlement, error) {
	a, err := s.repo.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}

	st := &model.Settlement{AuctionID: id}
	if a.SettledAt != nil {
		st.SettledAt = *a.SettledAt
	}
	if a.CurrentBidUserID != nil {
		winner, amount := *a.CurrentBidUserID, a.CurrentBidAmount
		st.WinnerUserID = &winner
		st.Amount = &amount
	}
	return st, nil
}
