package model

import "time"

// EventType описывает тип уведомления, уходящего во внешний диспетчер.
type EventType string

const (
	EventAuctionSettled EventType = "auction.settled"
	EventBidPlaced      EventType = "bid.placed"
	EventBidOutbid      EventType = "bid.outbid"
)

// Event описывает уведомление о событии аукциона.
// Для auction.settled UserID и Amount равны nil, если победителя нет.
type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"type"`
	AuctionID  int64     `json:"auction_id"`
	UserID     *int64    `json:"user_id"`
	Amount     *int64    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}
