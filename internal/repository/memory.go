package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/validation"
)

// MemoryRepository хранит данные в памяти процесса. Каждая операция выполняется
// целиком под одной блокировкой, а изменения применяются только после всех проверок.
type MemoryRepository struct {
	mu    sync.Mutex
	clock Clock

	users   map[int64]model.User
	logins  map[string]int64
	ledgers map[int64][]model.LedgerEntry
	// key: auctionID
	auctions map[int64]model.Auction
	bids     map[int64][]model.Bid

	lastUserID    int64
	lastEntryID   int64
	lastAuctionID int64
	lastBidID     int64
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository(clock Clock) *MemoryRepository {
	return &MemoryRepository{
		clock:    clock,
		users:    make(map[int64]model.User),
		logins:   make(map[string]int64),
		ledgers:  make(map[int64][]model.LedgerEntry),
		auctions: make(map[int64]model.Auction),
		bids:     make(map[int64][]model.Bid),
	}
}

// Close ничего не делает: ресурсов нет.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, login string, passwordHash []byte, role string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.logins[login]; ok {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
	}

	r.lastUserID++
	u := model.User{
		ID:           r.lastUserID,
		Login:        login,
		PasswordHash: slices.Clone(passwordHash),
		Role:         role,
		CreatedAt:    r.clock.now(),
	}
	r.users[u.ID] = u
	r.logins[login] = u.ID

	return u.ID, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.logins[login]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.users[id]
	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) balanceLocked(userID int64) int64 {
	entries := r.ledgers[userID]
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].Balance
}

// ledgerTx накапливает записи журнала до применения, чтобы операция была атомарной.
type ledgerTx struct {
	r        *MemoryRepository
	now      time.Time
	balances map[int64]int64
	pending  []model.LedgerEntry
}

func (r *MemoryRepository) beginLedger() *ledgerTx {
	return &ledgerTx{r: r, now: r.clock.now(), balances: make(map[int64]int64)}
}

func (tx *ledgerTx) balance(userID int64) int64 {
	if b, ok := tx.balances[userID]; ok {
		return b
	}
	return tx.r.balanceLocked(userID)
}

func (tx *ledgerTx) add(req model.EntryRequest) error {
	if _, ok := tx.r.users[req.UserID]; !ok {
		return fmt.Errorf("%w: %d", ErrUserNotFound, req.UserID)
	}

	balance, err := validation.NextBalance(tx.balance(req.UserID), req.Debit, req.Credit)
	if err != nil {
		return err
	}
	tx.balances[req.UserID] = balance

	tx.pending = append(tx.pending, model.LedgerEntry{
		UserID:    req.UserID,
		Debit:     req.Debit,
		Credit:    req.Credit,
		Balance:   balance,
		Type:      req.Type,
		Note:      req.Note,
		CreatedAt: tx.now,
	})
	return nil
}

func (tx *ledgerTx) commit() []model.LedgerEntry {
	for i := range tx.pending {
		tx.r.lastEntryID++
		tx.pending[i].ID = tx.r.lastEntryID
		e := tx.pending[i]
		tx.r.ledgers[e.UserID] = append(tx.r.ledgers[e.UserID], e)
	}
	return tx.pending
}

// AppendEntries атомарно добавляет записи в журналы одного или нескольких пользователей.
func (r *MemoryRepository) AppendEntries(_ context.Context, reqs ...model.EntryRequest) ([]model.LedgerEntry, error) {
	for _, req := range reqs {
		if err := validation.CheckEntry(req); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.beginLedger()
	for _, req := range reqs {
		if err := tx.add(req); err != nil {
			return nil, err
		}
	}

	return slices.Clone(tx.commit()), nil
}

// GetBalance возвращает баланс из последней записи журнала пользователя.
func (r *MemoryRepository) GetBalance(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.balanceLocked(userID), nil
}

// AuditLedger возвращает баланс последней записи и полную сумму журнала под одной блокировкой.
func (r *MemoryRepository) AuditLedger(_ context.Context, userID int64) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum int64
	for _, e := range r.ledgers[userID] {
		sum += e.Debit - e.Credit
	}
	return r.balanceLocked(userID), sum, nil
}

// GetLedger возвращает журнал пользователя в хронологическом порядке.
func (r *MemoryRepository) GetLedger(_ context.Context, userID int64) ([]model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.ledgers[userID]), nil
}

// CreateAuction создаёт аукцион в состоянии PENDING.
func (r *MemoryRepository) CreateAuction(_ context.Context, n model.NewAuction) (*model.Auction, error) {
	if err := validation.CheckNewAuction(n); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastAuctionID++
	a := model.Auction{
		ID:               r.lastAuctionID,
		ArtworkID:        n.ArtworkID,
		Title:            n.Title,
		StartTime:        n.StartTime.UTC(),
		EndTime:          n.EndTime.UTC(),
		CurrentBidAmount: n.StartingAmount,
		State:            model.AuctionStatePending,
		CreatedAt:        r.clock.now(),
	}
	r.auctions[a.ID] = a

	return copyAuction(a), nil
}

// GetAuction возвращает аукцион по идентификатору.
func (r *MemoryRepository) GetAuction(_ context.Context, id int64) (*model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok {
		return nil, bidderrors.ErrAuctionNotFound
	}
	return copyAuction(a), nil
}

// ListAuctions возвращает аукционы в состоянии state. Пустой state означает все.
func (r *MemoryRepository) ListAuctions(_ context.Context, state model.AuctionState) ([]model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Auction
	for _, a := range r.auctions {
		if state == "" || a.State == state {
			res = append(res, *copyAuction(a))
		}
	}
	slices.SortFunc(res, func(a, b model.Auction) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return res, nil
}

// GetAuctionsForLifecycle возвращает аукционы, которым пора открыться, закрыться или пройти расчёт.
func (r *MemoryRepository) GetAuctionsForLifecycle(_ context.Context, now time.Time, limit int) ([]AuctionForLifecycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []AuctionForLifecycle
	for _, a := range r.auctions {
		due := false
		switch a.State {
		case model.AuctionStatePending:
			due = !a.StartTime.After(now)
		case model.AuctionStateOpen:
			due = !a.EndTime.After(now)
		case model.AuctionStateClosed:
			due = true
		}
		if due {
			res = append(res, AuctionForLifecycle{ID: a.ID, State: a.State})
		}
	}

	slices.SortFunc(res, func(a, b AuctionForLifecycle) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// OpenAuction переводит аукцион из PENDING в OPEN. Для остальных состояний ничего не меняет.
func (r *MemoryRepository) OpenAuction(_ context.Context, id int64) (*model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok {
		return nil, bidderrors.ErrAuctionNotFound
	}
	if a.State == model.AuctionStatePending {
		a.State = model.AuctionStateOpen
		r.auctions[id] = a
	}
	return copyAuction(a), nil
}

// CloseAuction переводит аукцион из OPEN в CLOSED. Закрытый или рассчитанный аукцион возвращается как есть.
func (r *MemoryRepository) CloseAuction(_ context.Context, id int64) (*model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok {
		return nil, bidderrors.ErrAuctionNotFound
	}

	switch a.State {
	case model.AuctionStatePending:
		return nil, fmt.Errorf("%w: auction %d has not started", bidderrors.ErrAuctionNotOpen, id)
	case model.AuctionStateOpen:
		now := r.clock.now()
		a.State = model.AuctionStateClosed
		a.ClosedAt = &now
		r.auctions[id] = a
	}
	return copyAuction(a), nil
}

// PlaceBid проверяет и сохраняет ставку атомарно: ставка, новый лидер, возврат эскроу
// прежнему лидеру и эскроу нового участника применяются вместе или не применяются вовсе.
func (r *MemoryRepository) PlaceBid(_ context.Context, auctionID, userID, amount int64, policy model.BidPolicy) (*model.PlacedBid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, bidderrors.ErrAuctionNotFound
	}
	if _, ok := r.users[userID]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}

	tx := r.beginLedger()
	err := validation.CheckBid(validation.BidCheck{
		Auction: &a,
		UserID:  userID,
		Amount:  amount,
		Balance: r.balanceLocked(userID),
		Now:     tx.now,
		Policy:  policy,
	})
	if err != nil {
		return nil, err
	}

	for _, b := range r.bids[auctionID] {
		if b.Amount == amount {
			return nil, fmt.Errorf("%w: auction %d amount %d", bidderrors.ErrDuplicateBidConflict, auctionID, amount)
		}
	}

	placed := &model.PlacedBid{}
	if a.CurrentBidUserID != nil {
		prev := *a.CurrentBidUserID
		err := tx.add(model.EntryRequest{
			UserID: prev,
			Debit:  a.CurrentBidAmount,
			Type:   model.LedgerDebitGift,
			Note:   refundNote(auctionID),
		})
		if err != nil {
			return nil, err
		}
		placed.PreviousUserID = &prev
		placed.PreviousAmount = a.CurrentBidAmount
	}

	err = tx.add(model.EntryRequest{
		UserID: userID,
		Credit: amount,
		Type:   model.LedgerCreditEscrow,
		Note:   escrowNote(auctionID),
	})
	if err != nil {
		return nil, err
	}

	tx.commit()

	r.lastBidID++
	placed.Bid = model.Bid{
		ID:        r.lastBidID,
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		CreatedAt: tx.now,
	}
	r.bids[auctionID] = append(r.bids[auctionID], placed.Bid)

	leader := userID
	a.CurrentBidAmount = amount
	a.CurrentBidUserID = &leader
	r.auctions[auctionID] = a

	return placed, nil
}

// GetBids возвращает ставки аукциона в порядке возрастания суммы.
func (r *MemoryRepository) GetBids(_ context.Context, auctionID int64) ([]model.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// суммы растут строго монотонно, поэтому порядок вставки уже отсортирован
	return slices.Clone(r.bids[auctionID]), nil
}

// SettleAuction рассчитывает закрытый аукцион: эскроу победителя превращается в трату,
// аукцион переходит в SETTLED.
func (r *MemoryRepository) SettleAuction(_ context.Context, id int64) (*model.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok {
		return nil, bidderrors.ErrAuctionNotFound
	}

	switch a.State {
	case model.AuctionStateSettled:
		return nil, bidderrors.ErrAlreadySettled
	case model.AuctionStateClosed:
	default:
		return nil, fmt.Errorf("%w: auction %d is %s", bidderrors.ErrAuctionNotClosed, id, a.State)
	}

	tx := r.beginLedger()
	s := &model.Settlement{AuctionID: id, SettledAt: tx.now, Applied: true}

	if a.CurrentBidUserID != nil {
		winner := *a.CurrentBidUserID
		amount := a.CurrentBidAmount
		err := tx.add(model.EntryRequest{
			UserID: winner,
			Debit:  amount,
			Credit: amount,
			Type:   model.LedgerCreditSpend,
			Note:   spendNote(id),
		})
		if err != nil {
			return nil, err
		}
		s.WinnerUserID = &winner
		s.Amount = &amount
	}

	tx.commit()

	settledAt := tx.now
	a.State = model.AuctionStateSettled
	a.SettledAt = &settledAt
	r.auctions[id] = a

	return s, nil
}

func copyAuction(a model.Auction) *model.Auction {
	if a.CurrentBidUserID != nil {
		v := *a.CurrentBidUserID
		a.CurrentBidUserID = &v
	}
	if a.ClosedAt != nil {
		v := *a.ClosedAt
		a.ClosedAt = &v
	}
	if a.SettledAt != nil {
		v := *a.SettledAt
		a.SettledAt = &v
	}
	return &a
}
