package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/notify"
	"github.com/mmeshcher/artbid/internal/repository"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *Service
	repo  *repository.MemoryRepository
	clock *testClock
}

func newFixture(t *testing.T, n Notifier, policy model.BidPolicy) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := repository.NewMemoryRepository(clock.Now)
	svc := NewService(repo, n, nil, Options{
		Policy:     policy,
		BcryptCost: bcrypt.MinCost,
		Clock:      clock.Now,
	})
	return &fixture{svc: svc, repo: repo, clock: clock}
}

func (f *fixture) user(t *testing.T, login string, coins int64) int64 {
	t.Helper()
	id, err := f.svc.RegisterUser(context.Background(), login, "pw")
	require.NoError(t, err)
	if coins > 0 {
		_, err = f.svc.PurchaseCoins(context.Background(), id, coins, "top up")
		require.NoError(t, err)
	}
	return id
}

func (f *fixture) openAuction(t *testing.T, d time.Duration) *model.Auction {
	t.Helper()
	ctx := context.Background()
	a, err := f.svc.CreateAuction(ctx, model.NewAuction{
		ArtworkID: 1,
		Title:     "Nocturne",
		StartTime: f.clock.Now(),
		EndTime:   f.clock.Now().Add(d),
	})
	require.NoError(t, err)
	a, err = f.svc.OpenAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.AuctionStateOpen, a.State)
	return a
}

func assertLedgerConsistent(t *testing.T, f *fixture, userIDs ...int64) {
	t.Helper()
	for _, id := range userIDs {
		balance, err := f.svc.AuditBalance(context.Background(), id)
		require.NoError(t, err, "user %d", id)
		assert.GreaterOrEqual(t, balance, int64(0))

		entries, err := f.svc.GetLedger(context.Background(), id)
		require.NoError(t, err)
		var running int64
		for _, e := range entries {
			running += e.Debit - e.Credit
			assert.Equal(t, running, e.Balance, "entry %d of user %d", e.ID, id)
		}
	}
}

func TestScenario_OutbidAndSettle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	notifier := NewMockNotifier(ctrl)
	var events []model.Event
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, ev model.Event) { events = append(events, ev) }).
		AnyTimes()

	f := newFixture(t, notifier, model.BidPolicy{})
	ctx := context.Background()

	u1 := f.user(t, "u1", 1000)
	u2 := f.user(t, "u2", 1000)
	a := f.openAuction(t, time.Hour)
	assert.Zero(t, a.CurrentBidAmount)

	_, err := f.svc.SubmitBid(ctx, a.ID, u1, 100)
	require.NoError(t, err)

	b1, _ := f.svc.GetBalance(ctx, u1)
	assert.Equal(t, int64(900), b1)
	l1, _ := f.svc.GetLedger(ctx, u1)
	require.Len(t, l1, 2)
	assert.Equal(t, model.LedgerCreditEscrow, l1[1].Type)
	assert.Equal(t, int64(100), l1[1].Credit)

	_, err = f.svc.SubmitBid(ctx, a.ID, u2, 150)
	require.NoError(t, err)

	b1, _ = f.svc.GetBalance(ctx, u1)
	b2, _ := f.svc.GetBalance(ctx, u2)
	assert.Equal(t, int64(1000), b1, "outbid user is refunded")
	assert.Equal(t, int64(850), b2)
	l1, _ = f.svc.GetLedger(ctx, u1)
	require.Len(t, l1, 3)
	assert.Equal(t, model.LedgerDebitGift, l1[2].Type)
	assert.Equal(t, int64(100), l1[2].Debit)

	closed, err := f.svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateSettled, closed.State)

	b2, _ = f.svc.GetBalance(ctx, u2)
	assert.Equal(t, int64(850), b2, "settlement leaves the balance unchanged")
	l2, _ := f.svc.GetLedger(ctx, u2)
	last := l2[len(l2)-1]
	assert.Equal(t, model.LedgerCreditSpend, last.Type)
	assert.Equal(t, int64(150), last.Debit)
	assert.Equal(t, int64(150), last.Credit)

	require.NotEmpty(t, events)
	settled := events[len(events)-1]
	assert.Equal(t, model.EventAuctionSettled, settled.Type)
	assert.Equal(t, a.ID, settled.AuctionID)
	require.NotNil(t, settled.UserID)
	assert.Equal(t, u2, *settled.UserID)
	require.NotNil(t, settled.Amount)
	assert.Equal(t, int64(150), *settled.Amount)

	assertLedgerConsistent(t, f, u1, u2)
}

func TestScenario_ZeroBidsSettleWithoutWinner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	notifier := NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev model.Event) {
		assert.Equal(t, model.EventAuctionSettled, ev.Type)
		assert.Nil(t, ev.UserID)
		assert.Nil(t, ev.Amount)
		assert.NotEmpty(t, ev.ID)
	}).Times(1)

	f := newFixture(t, notifier, model.BidPolicy{})
	ctx := context.Background()

	a, err := f.svc.CreateAuction(ctx, model.NewAuction{
		ArtworkID: 2,
		Title:     "Empty room",
		StartTime: f.clock.Now().Add(time.Minute),
		EndTime:   f.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStatePending, a.State)

	_, err = f.svc.CloseAuction(ctx, a.ID)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotOpen)

	f.clock.Advance(time.Minute)
	a, err = f.svc.OpenAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateOpen, a.State)

	f.clock.Advance(time.Hour)
	a, err = f.svc.CloseAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStateSettled, a.State)
	assert.False(t, a.HasLeader())
}

func TestProperty_AcceptedBidsStrictlyIncrease(t *testing.T) {
	f := newFixture(t, nil, model.BidPolicy{})
	ctx := context.Background()

	users := []int64{f.user(t, "a", 10_000), f.user(t, "b", 10_000), f.user(t, "c", 10_000)}
	a := f.openAuction(t, time.Hour)

	amounts := []int64{50, 40, 60, 60, 61, 100, 99, 100, 250, 10, 251}
	for i, amount := range amounts {
		_, _ = f.svc.SubmitBid(ctx, a.ID, users[i%len(users)], amount)
	}

	bids, err := f.svc.GetBids(ctx, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	for i := 1; i < len(bids); i++ {
		assert.Greater(t, bids[i].Amount, bids[i-1].Amount)
	}

	got, err := f.svc.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, bids[len(bids)-1].Amount, got.CurrentBidAmount)

	assertLedgerConsistent(t, f, users...)
}

func TestProperty_BidBoundaries(t *testing.T) {
	f := newFixture(t, nil, model.BidPolicy{})
	ctx := context.Background()

	u1 := f.user(t, "u1", 1000)
	u2 := f.user(t, "u2", 1000)
	a := f.openAuction(t, time.Hour)

	_, err := f.svc.SubmitBid(ctx, a.ID, u1, 100)
	require.NoError(t, err)

	_, err = f.svc.SubmitBid(ctx, a.ID, u2, 100)
	require.ErrorIs(t, err, bidderrors.ErrBidTooLow)

	_, err = f.svc.SubmitBid(ctx, a.ID, u2, 101)
	require.NoError(t, err)

	_, err = f.svc.SubmitBid(ctx, a.ID, u2, 200)
	require.ErrorIs(t, err, bidderrors.ErrDuplicateBidder)

	_, err = f.svc.SubmitBid(ctx, a.ID, u1, 5000)
	require.ErrorIs(t, err, bidderrors.ErrInsufficientBalance)

	_, err = f.svc.SubmitBid(ctx, 999, u1, 500)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotFound)

	// ровно в EndTime окно уже закрыто, даже если аукцион ещё OPEN
	f.clock.Advance(time.Hour)
	_, err = f.svc.SubmitBid(ctx, a.ID, u1, 500)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotOpen)

	assertLedgerConsistent(t, f, u1, u2)
}

func TestProperty_SelfOutbidPolicy(t *testing.T) {
	f := newFixture(t, nil, model.BidPolicy{AllowSelfOutbid: true})
	ctx := context.Background()

	u1 := f.user(t, "u1", 300)
	a := f.openAuction(t, time.Hour)

	_, err := f.svc.SubmitBid(ctx, a.ID, u1, 200)
	require.NoError(t, err)

	// свободно 100, но собственный эскроу 200 тоже доступен лидеру
	_, err = f.svc.SubmitBid(ctx, a.ID, u1, 300)
	require.NoError(t, err)

	b, _ := f.svc.GetBalance(ctx, u1)
	assert.Zero(t, b)

	_, err = f.svc.SubmitBid(ctx, a.ID, u1, 301)
	require.ErrorIs(t, err, bidderrors.ErrInsufficientBalance)

	assertLedgerConsistent(t, f, u1)
}

func TestProperty_SettleIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, model.BidPolicy{})
	ctx := context.Background()

	u1 := f.user(t, "u1", 500)
	a := f.openAuction(t, time.Hour)
	_, err := f.svc.SubmitBid(ctx, a.ID, u1, 120)
	require.NoError(t, err)

	_, err = f.svc.SettleAuction(ctx, a.ID)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotClosed)

	_, err = f.repo.CloseAuction(ctx, a.ID)
	require.NoError(t, err)

	first, err := f.svc.SettleAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	ledgerAfterFirst, _ := f.svc.GetLedger(ctx, u1)
	auctionAfterFirst, _ := f.svc.GetAuction(ctx, a.ID)

	second, err := f.svc.SettleAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, first.WinnerUserID, second.WinnerUserID)
	assert.Equal(t, first.Amount, second.Amount)

	ledgerAfterSecond, _ := f.svc.GetLedger(ctx, u1)
	auctionAfterSecond, _ := f.svc.GetAuction(ctx, a.ID)
	assert.Equal(t, ledgerAfterFirst, ledgerAfterSecond)
	assert.Equal(t, auctionAfterFirst, auctionAfterSecond)

	_, err = f.svc.SubmitBid(ctx, a.ID, u1, 1000)
	require.ErrorIs(t, err, bidderrors.ErrAuctionNotOpen)
}

func TestProperty_ConcurrentEqualBids(t *testing.T) {
	f := newFixture(t, nil, model.BidPolicy{})
	ctx := context.Background()

	const bidders = 8
	users := make([]int64, bidders)
	for i := range users {
		users[i] = f.user(t, string(rune('a'+i)), 1000)
	}
	a := f.openAuction(t, time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitBid(ctx, a.ID, users[i], 300)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, bidderrors.ErrBidTooLow), errors.Is(err, bidderrors.ErrDuplicateBidConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)

	bids, err := f.svc.GetBids(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, bids, 1)

	assertLedgerConsistent(t, f, users...)
}

func TestProperty_NoOverdraft(t *testing.T) {
	f := newFixture(t, nil, model.BidPolicy{})
	ctx := context.Background()

	u1 := f.user(t, "u1", 50)
	u2 := f.user(t, "u2", 0)

	_, err := f.svc.AppendEntry(ctx, u1, 0, 51, model.LedgerCreditRevoke, "revoke")
	require.ErrorIs(t, err, bidderrors.ErrNegativeBalance)

	_, err = f.svc.GiftCoins(ctx, u2, u1, 1, "")
	require.ErrorIs(t, err, bidderrors.ErrNegativeBalance)

	entries, err := f.svc.GiftCoins(ctx, u1, u2, 50, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Zero(t, entries[0].Balance)
	assert.Equal(t, int64(50), entries[1].Balance)

	_, err = f.svc.RewardCoins(ctx, u1, 5, "streak")
	require.NoError(t, err)

	assertLedgerConsistent(t, f, u1, u2)
}

func TestLifecycleSweeperDrivesAuctions(t *testing.T) {
	f := newFixture(t, nil, model.BidPolicy{})
	ctx := context.Background()

	u1 := f.user(t, "u1", 500)
	a, err := f.svc.CreateAuction(ctx, model.NewAuction{
		ArtworkID: 3,
		Title:     "Dawn",
		StartTime: f.clock.Now(),
		EndTime:   f.clock.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	f.svc.processLifecycleBatch(ctx)
	got, _ := f.svc.GetAuction(ctx, a.ID)
	require.Equal(t, model.AuctionStateOpen, got.State)

	_, err = f.svc.SubmitBid(ctx, a.ID, u1, 200)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.svc.processLifecycleBatch(ctx)

	got, _ = f.svc.GetAuction(ctx, a.ID)
	assert.Equal(t, model.AuctionStateSettled, got.State)
	require.NotNil(t, got.SettledAt)

	b, _ := f.svc.GetBalance(ctx, u1)
	assert.Equal(t, int64(300), b)
	assertLedgerConsistent(t, f, u1)
}

func TestSubmitBidDoesNotWaitForFullEventQueue(t *testing.T) {
	// диспетчер без воркера: очередь на одно событие заполняется первой же ставкой
	d := notify.NewDispatcher(notify.NewLogPublisher(zap.NewNop()), zap.NewNop(), notify.WithQueueSize(1))
	f := newFixture(t, d, model.BidPolicy{})
	u1 := f.user(t, "u1", 500)
	u2 := f.user(t, "u2", 500)
	a := f.openAuction(t, time.Hour)

	_, err := f.svc.SubmitBid(context.Background(), a.ID, u1, 100)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	type result struct {
		bid *model.Bid
		err error
	}
	res := make(chan result, 1)
	go func() {
		b, err := f.svc.SubmitBid(ctx, a.ID, u2, 150)
		res <- result{b, err}
	}()

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, int64(150), r.bid.Amount)
	case <-time.After(2 * time.Second):
		t.Fatalf("SubmitBid blocked on a full event queue after the bid was committed")
	}

	got, err := f.svc.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLeader(u2))
}
