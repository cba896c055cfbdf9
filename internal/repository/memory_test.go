package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestMemory(t *testing.T) (*MemoryRepository, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryRepository(clock.Now), clock
}

func TestMemoryRepository_CreateUserDuplicate(t *testing.T) {
	repo, _ := newTestMemory(t)
	ctx := context.Background()

	id, err := repo.CreateUser(ctx, "alice", []byte("hash"), model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = repo.CreateUser(ctx, "alice", []byte("other"), model.RoleUser)
	require.ErrorIs(t, err, ErrUserExists)

	u, err := repo.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Login)

	_, err = repo.GetUserByLogin(ctx, "bob")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryRepository_AppendEntriesIsAtomic(t *testing.T) {
	repo, _ := newTestMemory(t)
	ctx := context.Background()

	alice, err := repo.CreateUser(ctx, "alice", nil, model.RoleUser)
	require.NoError(t, err)
	bob, err := repo.CreateUser(ctx, "bob", nil, model.RoleUser)
	require.NoError(t, err)

	_, err = repo.AppendEntries(ctx, model.EntryRequest{UserID: alice, Debit: 100, Type: model.LedgerDebitPurchase})
	require.NoError(t, err)

	_, err = repo.AppendEntries(ctx,
		model.EntryRequest{UserID: bob, Debit: 50, Type: model.LedgerDebitGift},
		model.EntryRequest{UserID: alice, Credit: 500, Type: model.LedgerCreditGift},
	)
	require.ErrorIs(t, err, bidderrors.ErrNegativeBalance)

	bobBalance, err := repo.GetBalance(ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, bobBalance, "failed unit of work must not leave partial entries")

	entries, err := repo.AppendEntries(ctx,
		model.EntryRequest{UserID: alice, Credit: 30, Type: model.LedgerCreditGift},
		model.EntryRequest{UserID: bob, Debit: 30, Type: model.LedgerDebitGift},
	)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(70), entries[0].Balance)
	assert.Equal(t, int64(30), entries[1].Balance)
	assert.NotZero(t, entries[0].ID)
}

func TestMemoryRepository_PlaceBidRefundsPreviousLeader(t *testing.T) {
	repo, clock := newTestMemory(t)
	ctx := context.Background()

	u1, _ := repo.CreateUser(ctx, "u1", nil, model.RoleUser)
	u2, _ := repo.CreateUser(ctx, "u2", nil, model.RoleUser)
	for _, id := range []int64{u1, u2} {
		_, err := repo.AppendEntries(ctx, model.EntryRequest{UserID: id, Debit: 500, Type: model.LedgerDebitPurchase})
		require.NoError(t, err)
	}

	a, err := repo.CreateAuction(ctx, model.NewAuction{
		ArtworkID: 9,
		Title:     "Still life",
		StartTime: clock.t,
		EndTime:   clock.t.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = repo.PlaceBid(ctx, a.ID, u1, 100, model.BidPolicy{})
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotOpen)

	_, err = repo.OpenAuction(ctx, a.ID)
	require.NoError(t, err)

	placed, err := repo.PlaceBid(ctx, a.ID, u1, 100, model.BidPolicy{})
	require.NoError(t, err)
	assert.Nil(t, placed.PreviousUserID)

	placed, err = repo.PlaceBid(ctx, a.ID, u2, 150, model.BidPolicy{})
	require.NoError(t, err)
	require.NotNil(t, placed.PreviousUserID)
	assert.Equal(t, u1, *placed.PreviousUserID)
	assert.Equal(t, int64(100), placed.PreviousAmount)

	b1, _ := repo.GetBalance(ctx, u1)
	b2, _ := repo.GetBalance(ctx, u2)
	assert.Equal(t, int64(500), b1)
	assert.Equal(t, int64(350), b2)

	bids, err := repo.GetBids(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Less(t, bids[0].Amount, bids[1].Amount)

	got, err := repo.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.CurrentBidAmount)
	assert.True(t, got.IsLeader(u2))
}

func TestMemoryRepository_SettleOnce(t *testing.T) {
	repo, clock := newTestMemory(t)
	ctx := context.Background()

	u1, _ := repo.CreateUser(ctx, "u1", nil, model.RoleUser)
	_, err := repo.AppendEntries(ctx, model.EntryRequest{UserID: u1, Debit: 200, Type: model.LedgerDebitPurchase})
	require.NoError(t, err)

	a, err := repo.CreateAuction(ctx, model.NewAuction{
		ArtworkID: 1,
		Title:     "Portrait",
		StartTime: clock.t,
		EndTime:   clock.t.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = repo.SettleAuction(ctx, a.ID)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotClosed)

	_, err = repo.OpenAuction(ctx, a.ID)
	require.NoError(t, err)
	_, err = repo.PlaceBid(ctx, a.ID, u1, 120, model.BidPolicy{})
	require.NoError(t, err)
	_, err = repo.CloseAuction(ctx, a.ID)
	require.NoError(t, err)

	s, err := repo.SettleAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, s.Applied)
	require.NotNil(t, s.WinnerUserID)
	assert.Equal(t, u1, *s.WinnerUserID)

	_, err = repo.SettleAuction(ctx, a.ID)
	require.ErrorIs(t, err, bidderrors.ErrAlreadySettled)

	entries, err := repo.GetLedger(ctx, u1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	last := entries[2]
	assert.Equal(t, model.LedgerCreditSpend, last.Type)
	assert.Equal(t, int64(80), last.Balance)
}

func TestMemoryRepository_GetAuctionsForLifecycle(t *testing.T) {
	repo, clock := newTestMemory(t)
	ctx := context.Background()

	due, err := repo.CreateAuction(ctx, model.NewAuction{ArtworkID: 1, Title: "due", StartTime: clock.t, EndTime: clock.t.Add(time.Hour)})
	require.NoError(t, err)
	_, err = repo.CreateAuction(ctx, model.NewAuction{ArtworkID: 2, Title: "later", StartTime: clock.t.Add(time.Hour), EndTime: clock.t.Add(2 * time.Hour)})
	require.NoError(t, err)

	res, err := repo.GetAuctionsForLifecycle(ctx, clock.t, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, due.ID, res[0].ID)
	assert.Equal(t, model.AuctionStatePending, res[0].State)

	_, err = repo.OpenAuction(ctx, due.ID)
	require.NoError(t, err)

	res, err = repo.GetAuctionsForLifecycle(ctx, clock.t.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, model.AuctionStateOpen, res[0].State)
	assert.Equal(t, model.AuctionStatePending, res[1].State)
}

func TestMemoryRepository_CloseTransitions(t *testing.T) {
	repo, clock := newTestMemory(t)
	ctx := context.Background()

	a, err := repo.CreateAuction(ctx, model.NewAuction{ArtworkID: 1, Title: "x", StartTime: clock.t, EndTime: clock.t})
	require.NoError(t, err)

	_, err = repo.CloseAuction(ctx, a.ID)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotOpen)

	_, err = repo.OpenAuction(ctx, a.ID)
	require.NoError(t, err)

	closed, err := repo.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateClosed, closed.State)
	require.NotNil(t, closed.ClosedAt)

	again, err := repo.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateClosed, again.State)

	reopened, err := repo.OpenAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateClosed, reopened.State)

	_, err = repo.GetAuction(ctx, 404)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotFound)
}

func TestMemoryRepository_AuditLedgerUnderConcurrentWrites(t *testing.T) {
	repo, _ := newTestMemory(t)
	ctx := context.Background()

	id, err := repo.CreateUser(ctx, "alice", nil, model.RoleUser)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, _ = repo.AppendEntries(ctx, model.EntryRequest{UserID: id, Debit: 1, Type: model.LedgerDebitPurchase})
		}
	}()

	for {
		balance, sum, err := repo.AuditLedger(ctx, id)
		require.NoError(t, err)
		require.Equal(t, sum, balance)

		select {
		case <-done:
			balance, _, _ = repo.AuditLedger(ctx, id)
			assert.Equal(t, int64(200), balance)
			return
		default:
		}
	}
}
