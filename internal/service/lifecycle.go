package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/repository"
)

// StartLifecycleSweeper запускает фоновый процесс смены состояний аукционов по времени.
func (s *Service) StartLifecycleSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processLifecycleBatch(ctx)
			}
		}
	}()
}

func (s *Service) processLifecycleBatch(ctx context.Context) {
	now := s.now()

	auctions, err := s.repo.GetAuctionsForLifecycle(ctx, now, s.sweepBatch)
	if err != nil {
		s.logger.Error("failed to load auctions for lifecycle", zap.Error(err))
		return
	}

	for _, a := range auctions {
		if ctx.Err() != nil {
			return
		}
		if err := s.advance(ctx, a, now); err != nil {
			s.logger.Warn("lifecycle transition failed",
				zap.Int64("auctionID", a.ID),
				zap.String("state", string(a.State)),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) advance(ctx context.Context, a repository.AuctionForLifecycle, now time.Time) error {
	switch a.State {
	case model.AuctionStatePending:
		opened, err := s.OpenAuction(ctx, a.ID)
		if err != nil {
			return err
		}
		if opened.State != model.AuctionStateOpen || opened.EndTime.After(now) {
			return nil
		}
		_, err = s.CloseAuction(ctx, a.ID)
		return err
	case model.AuctionStateOpen:
		_, err := s.CloseAuction(ctx, a.ID)
		return err
	case model.AuctionStateClosed:
		_, err := s.SettleAuction(ctx, a.ID)
		return err
	}
	return nil
}
