// Package validation содержит правила проверки ставок, аукционов и записей журнала.
package validation

import (
	"fmt"
	"time"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
)

// BidCheck содержит всё, что нужно для проверки ставки внутри транзакции.
type BidCheck struct {
	Auction *model.Auction
	UserID  int64
	Amount  int64
	// Balance содержит текущий баланс участника по журналу.
	Balance int64
	Now     time.Time
	Policy  model.BidPolicy
}

// ValidateAmount проверяет, что сумма ставки положительна.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", bidderrors.ErrInvalidBid)
	}
	return nil
}

// IsOpenAt сообщает, принимает ли аукцион ставки в момент now.
// Окно полуоткрытое: [StartTime, EndTime).
func IsOpenAt(a *model.Auction, now time.Time) bool {
	if a.State != model.AuctionStateOpen {
		return false
	}
	return !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// CheckBid выполняет проверки ставки строго по порядку и останавливается на первой ошибке.
func CheckBid(c BidCheck) error {
	if err := ValidateAmount(c.Amount); err != nil {
		return err
	}
	if c.Auction == nil {
		return bidderrors.ErrAuctionNotFound
	}

	a := c.Auction
	if !IsOpenAt(a, c.Now) {
		return fmt.Errorf("%w: auction %d is %s", bidderrors.ErrAuctionNotOpen, a.ID, a.State)
	}

	if c.Amount <= a.CurrentBidAmount {
		return fmt.Errorf("%w: current bid is %d", bidderrors.ErrBidTooLow, a.CurrentBidAmount)
	}

	if c.Amount > AvailableBalance(c) {
		return fmt.Errorf("%w: need %d", bidderrors.ErrInsufficientBalance, c.Amount)
	}

	if !c.Policy.AllowSelfOutbid && a.IsLeader(c.UserID) {
		return bidderrors.ErrDuplicateBidder
	}

	return nil
}

// AvailableBalance возвращает сумму, доступную участнику для новой ставки.
// Лидер, которому разрешено перебивать себя, может использовать и свой текущий эскроу.
func AvailableBalance(c BidCheck) int64 {
	available := c.Balance
	if c.Policy.AllowSelfOutbid && c.Auction != nil && c.Auction.IsLeader(c.UserID) {
		available += c.Auction.CurrentBidAmount
	}
	return available
}
