package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/validation"
)

// AppendEntry добавляет запись в журнал монет пользователя.
// Баланс после записи равен предыдущему + debit - credit и не может стать отрицательным.
func (s *Service) AppendEntry(ctx context.Context, userID, debit, credit int64, typ model.LedgerType, note string) (*model.LedgerEntry, error) {
	req := model.EntryRequest{UserID: userID, Debit: debit, Credit: credit, Type: typ, Note: note}
	if err := validation.CheckEntry(req); err != nil {
		return nil, err
	}

	entries, err := s.repo.AppendEntries(ctx, req)
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// GetLedger возвращает историю операций пользователя.
func (s *Service) GetLedger(ctx context.Context, userID int64) ([]model.LedgerEntry, error) {
	return s.repo.GetLedger(ctx, userID)
}

// AuditBalance сверяет баланс последней записи с полной суммой журнала.
func (s *Service) AuditBalance(ctx context.Context, userID int64) (int64, error) {
	balance, sum, err := s.repo.AuditLedger(ctx, userID)
	if err != nil {
		return 0, err
	}

	if balance != sum {
		s.logger.Error("ledger mismatch",
			zap.Int64("userID", userID),
			zap.Int64("balance", balance),
			zap.Int64("sum", sum),
		)
		return balance, fmt.Errorf("%w: balance %d, sum %d", bidderrors.ErrLedgerMismatch, balance, sum)
	}
	return balance, nil
}

// PurchaseCoins зачисляет купленные монеты.
func (s *Service) PurchaseCoins(ctx context.Context, userID, amount int64, note string) (*model.LedgerEntry, error) {
	return s.credit(ctx, userID, amount, model.LedgerDebitPurchase, note)
}

// RewardCoins зачисляет монеты в качестве награды.
func (s *Service) RewardCoins(ctx context.Context, userID, amount int64, note string) (*model.LedgerEntry, error) {
	return s.credit(ctx, userID, amount, model.LedgerDebitReward, note)
}

func (s *Service) credit(ctx context.Context, userID, amount int64, typ model.LedgerType, note string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", bidderrors.ErrInvalidEntry)
	}
	return s.AppendEntry(ctx, userID, amount, 0, typ, note)
}

// GiftCoins переводит монеты от одного пользователя другому одной транзакцией.
func (s *Service) GiftCoins(ctx context.Context, fromID, toID, amount int64, note string) ([]model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", bidderrors.ErrInvalidEntry)
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: gift to self", bidderrors.ErrInvalidEntry)
	}

	if note == "" {
		note = fmt.Sprintf("gift from user %d to user %d", fromID, toID)
	}
	return s.repo.AppendEntries(ctx,
		model.EntryRequest{UserID: fromID, Credit: amount, Type: model.LedgerCreditGift, Note: note},
		model.EntryRequest{UserID: toID, Debit: amount, Type: model.LedgerDebitGift, Note: note},
	)
}
