// Package bidderrors содержит ошибки аукционов, ставок и журнала монет.
package bidderrors

import "errors"

// Ошибки аукционов.
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotOpen   = errors.New("auction is not open")
	ErrAuctionNotClosed = errors.New("auction is not closed")
	ErrInvalidAuction   = errors.New("invalid auction")
	// ErrAlreadySettled не выходит за пределы сервиса: повторный расчёт считается успехом.
	ErrAlreadySettled = errors.New("auction already settled")
)

// Ошибки ставок.
var (
	ErrInvalidBid           = errors.New("invalid bid")
	ErrBidTooLow            = errors.New("bid amount too low")
	ErrDuplicateBidder      = errors.New("bidder already leads the auction")
	ErrDuplicateBidConflict = errors.New("concurrent bid with the same amount")
)

// Ошибки журнала монет.
var (
	ErrInvalidEntry        = errors.New("invalid ledger entry")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeBalance     = errors.New("ledger balance would become negative")
	ErrLedgerMismatch      = errors.New("ledger balance does not match entries")
)
