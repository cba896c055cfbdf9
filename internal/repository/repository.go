// Package repository содержит хранилища аукционов, ставок и журнала монет:
// PostgreSQL для продакшена и память для локального запуска и тестов.
package repository

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mmeshcher/artbid/internal/model"
)

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
)

// AuctionForLifecycle описывает аукцион, которому пора сменить состояние.
type AuctionForLifecycle struct {
	ID    int64
	State model.AuctionState
}

// Clock возвращает текущее время. Хранилища вызывают его внутри транзакции.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func leaderIDs(a *model.Auction, userID int64) []int64 {
	if a.CurrentBidUserID == nil || *a.CurrentBidUserID == userID {
		return []int64{userID}
	}
	prev := *a.CurrentBidUserID
	if prev < userID {
		return []int64{prev, userID}
	}
	return []int64{userID, prev}
}

func escrowNote(auctionID int64) string {
	return fmt.Sprintf("escrow for auction %d", auctionID)
}

func refundNote(auctionID int64) string {
	return fmt.Sprintf("escrow refund: outbid on auction %d", auctionID)
}

func spendNote(auctionID int64) string {
	return fmt.Sprintf("auction %d settled: escrow spent", auctionID)
}

func entryUserIDs(reqs []model.EntryRequest) []int64 {
	seen := make(map[int64]struct{}, len(reqs))
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		if _, ok := seen[req.UserID]; ok {
			continue
		}
		seen[req.UserID] = struct{}{}
		ids = append(ids, req.UserID)
	}
	slices.Sort(ids)
	return ids
}
