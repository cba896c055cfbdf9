// Package model содержит доменные сущности сервиса аукционов artbid.
package model

import "time"

// Роли пользователей.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User представляет зарегистрированного участника аукционов.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         string
	CreatedAt    time.Time
}

// AuctionState описывает состояние жизненного цикла аукциона.
type AuctionState string

const (
	AuctionStatePending AuctionState = "PENDING"
	AuctionStateOpen    AuctionState = "OPEN"
	AuctionStateClosed  AuctionState = "CLOSED"
	AuctionStateSettled AuctionState = "SETTLED"
)

// Valid сообщает, является ли состояние одним из известных.
func (s AuctionState) Valid() bool {
	switch s {
	case AuctionStatePending, AuctionStateOpen, AuctionStateClosed, AuctionStateSettled:
		return true
	}
	return false
}

// Auction описывает аукцион по произведению и текущую лидирующую ставку.
type Auction struct {
	ID               int64
	ArtworkID        int64
	Title            string
	StartTime        time.Time
	EndTime          time.Time
	CurrentBidAmount int64
	CurrentBidUserID *int64
	State            AuctionState
	CreatedAt        time.Time
	ClosedAt         *time.Time
	SettledAt        *time.Time
}

// HasLeader сообщает, есть ли у аукциона принятая ставка.
func (a *Auction) HasLeader() bool {
	return a.CurrentBidUserID != nil
}

// IsLeader сообщает, лидирует ли пользователь в аукционе.
func (a *Auction) IsLeader(userID int64) bool {
	return a.CurrentBidUserID != nil && *a.CurrentBidUserID == userID
}

// NewAuction содержит параметры создания аукциона.
type NewAuction struct {
	ArtworkID      int64
	Title          string
	StartTime      time.Time
	EndTime        time.Time
	StartingAmount int64
}

// Bid описывает принятую ставку. Ставки никогда не изменяются и не удаляются.
type Bid struct {
	ID        int64
	AuctionID int64
	UserID    int64
	Amount    int64
	CreatedAt time.Time
}

// BidPolicy задаёт настраиваемые правила приёма ставок.
type BidPolicy struct {
	// AllowSelfOutbid разрешает лидеру перебить собственную ставку.
	AllowSelfOutbid bool
}

// PlacedBid возвращается хранилищем после успешной ставки.
type PlacedBid struct {
	Bid Bid
	// PreviousUserID и PreviousAmount заполнены, если предыдущему лидеру вернули эскроу.
	PreviousUserID *int64
	PreviousAmount int64
}

// Settlement описывает результат расчёта по аукциону.
type Settlement struct {
	AuctionID    int64
	WinnerUserID *int64
	Amount       *int64
	SettledAt    time.Time
	// Applied ложно, если аукцион уже был рассчитан ранее и повторный вызов ничего не изменил.
	Applied bool
}
