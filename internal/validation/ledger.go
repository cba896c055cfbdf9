package validation

import (
	"fmt"
	"math"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
)

// CheckEntry проверяет параметры записи журнала без учёта баланса.
func CheckEntry(req model.EntryRequest) error {
	if req.UserID <= 0 {
		return fmt.Errorf("%w: user id is required", bidderrors.ErrInvalidEntry)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown ledger type %q", bidderrors.ErrInvalidEntry, req.Type)
	}
	if req.Debit < 0 || req.Credit < 0 {
		return fmt.Errorf("%w: debit and credit must not be negative", bidderrors.ErrInvalidEntry)
	}
	if req.Debit == 0 && req.Credit == 0 {
		return fmt.Errorf("%w: empty entry", bidderrors.ErrInvalidEntry)
	}
	return nil
}

// NextBalance вычисляет баланс после записи: prev + debit - credit.
// Уход в минус запрещён для любого типа записи.
func NextBalance(prev, debit, credit int64) (int64, error) {
	if debit > math.MaxInt64-prev {
		return 0, fmt.Errorf("%w: balance overflow", bidderrors.ErrInvalidEntry)
	}
	next := prev + debit - credit
	if next < 0 {
		return 0, fmt.Errorf("%w: %d + %d - %d", bidderrors.ErrNegativeBalance, prev, debit, credit)
	}
	return next, nil
}
