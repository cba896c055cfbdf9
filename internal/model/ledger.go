package model

import "time"

// LedgerType описывает вид операции с монетами.
type LedgerType string

const (
	LedgerDebitGift     LedgerType = "debitGift"
	LedgerDebitPurchase LedgerType = "debitPurchase"
	LedgerDebitReward   LedgerType = "debitReward"
	LedgerDebitEvent    LedgerType = "debitEvent"
	LedgerCreditGift    LedgerType = "creditGift"
	LedgerCreditCancel  LedgerType = "creditCancel"
	LedgerCreditRevoke  LedgerType = "creditRevoke"
	LedgerCreditEscrow  LedgerType = "creditEscrow"
	LedgerCreditSpend   LedgerType = "creditSpend"
)

// Valid сообщает, является ли тип записи одним из известных.
func (t LedgerType) Valid() bool {
	switch t {
	case LedgerDebitGift, LedgerDebitPurchase, LedgerDebitReward, LedgerDebitEvent,
		LedgerCreditGift, LedgerCreditCancel, LedgerCreditRevoke, LedgerCreditEscrow, LedgerCreditSpend:
		return true
	}
	return false
}

// LedgerEntry описывает неизменяемую запись журнала монет пользователя.
// Balance хранит баланс после применения записи: предыдущий баланс + Debit - Credit.
type LedgerEntry struct {
	ID        int64
	UserID    int64
	Debit     int64
	Credit    int64
	Balance   int64
	Type      LedgerType
	Note      string
	CreatedAt time.Time
}

// EntryRequest содержит параметры новой записи журнала.
type EntryRequest struct {
	UserID int64
	Debit  int64
	Credit int64
	Type   LedgerType
	Note   string
}
