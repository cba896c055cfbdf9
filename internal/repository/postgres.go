package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/artbid/internal/bidderrors"
	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/validation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const auctionColumns = `id, artwork_id, title, start_time, end_time, current_bid_amount,
	current_bid_user_id, state, created_at, closed_at, settled_at`

const entryColumns = `id, user_id, debit, credit, balance, ledger_type, note, created_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	clock       Clock
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string, clock Clock) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:        pool,
		clock:       clock,
		retryDelays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сериализационных конфликтах, дедлоках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isTransient(err) || i == len(r.retryDelays) {
			break
		}

		timer := time.NewTimer(r.retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, role string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, role, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		login, passwordHash, role, r.clock.now(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.getUser(ctx, `login = $1`, login)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

func (r *PostgresRepository) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM users WHERE `+where,
		arg,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// lockUsers блокирует строки пользователей в порядке возрастания id, чтобы не ловить дедлоки.
func lockUsers(ctx context.Context, tx pgx.Tx, ids []int64) error {
	for _, id := range ids {
		var dummy int
		err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrUserNotFound, id)
			}
			return fmt.Errorf("lock user for update: %w", err)
		}
	}
	return nil
}

// latestEntry возвращает баланс и время последней записи пользователя.
// Записи одного пользователя вставляются под блокировкой его строки, поэтому порядок id совпадает с порядком журнала.
func latestEntry(ctx context.Context, q pgx.Tx, userID int64) (int64, time.Time, error) {
	var (
		balance int64
		at      time.Time
	)
	err := q.QueryRow(ctx,
		`SELECT balance, created_at FROM ledger_entries
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT 1`,
		userID,
	).Scan(&balance, &at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("select latest balance: %w", err)
	}
	return balance, at, nil
}

// entryTime не даёт времени записи уйти раньше предыдущей записи того же пользователя.
func entryTime(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// insertEntry добавляет запись в журнал. Строка пользователя уже должна быть заблокирована.
func insertEntry(ctx context.Context, tx pgx.Tx, req model.EntryRequest, now time.Time) (*model.LedgerEntry, error) {
	prev, prevAt, err := latestEntry(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	balance, err := validation.NextBalance(prev, req.Debit, req.Credit)
	if err != nil {
		return nil, err
	}

	e := model.LedgerEntry{
		UserID:    req.UserID,
		Debit:     req.Debit,
		Credit:    req.Credit,
		Balance:   balance,
		Type:      req.Type,
		Note:      req.Note,
		CreatedAt: entryTime(now, prevAt),
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (user_id, debit, credit, balance, ledger_type, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		e.UserID, e.Debit, e.Credit, e.Balance, string(e.Type), e.Note, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	return &e, nil
}

// AppendEntries атомарно добавляет записи в журналы одного или нескольких пользователей.
func (r *PostgresRepository) AppendEntries(ctx context.Context, reqs ...model.EntryRequest) ([]model.LedgerEntry, error) {
	for _, req := range reqs {
		if err := validation.CheckEntry(req); err != nil {
			return nil, err
		}
	}

	var res []model.LedgerEntry
	err := r.withRetry(ctx, func() error {
		res = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := lockUsers(ctx, tx, entryUserIDs(reqs)); err != nil {
			return err
		}

		now := r.clock.now()
		for _, req := range reqs {
			e, err := insertEntry(ctx, tx, req, now)
			if err != nil {
				return err
			}
			res = append(res, *e)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// GetBalance возвращает баланс из последней записи журнала пользователя.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE((
			SELECT balance FROM ledger_entries
			WHERE user_id = $1
			ORDER BY id DESC
			LIMIT 1), 0)`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// AuditLedger одним запросом читает баланс последней записи и полную сумму журнала.
// Оба значения берутся из одного снимка, поэтому параллельная запись не даёт ложного расхождения.
func (r *PostgresRepository) AuditLedger(ctx context.Context, userID int64) (int64, int64, error) {
	var balance, sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE((SELECT balance FROM ledger_entries WHERE user_id = $1 ORDER BY id DESC LIMIT 1), 0),
			COALESCE((SELECT SUM(debit - credit) FROM ledger_entries WHERE user_id = $1), 0)`,
		userID,
	).Scan(&balance, &sum)
	if err != nil {
		return 0, 0, fmt.Errorf("audit ledger: %w", err)
	}
	return balance, sum, nil
}

// GetLedger возвращает журнал пользователя в хронологическом порядке.
func (r *PostgresRepository) GetLedger(ctx context.Context, userID int64) ([]model.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM ledger_entries
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerEntry
	for rows.Next() {
		var (
			e          model.LedgerEntry
			ledgerType string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Debit, &e.Credit, &e.Balance, &ledgerType, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = model.LedgerType(ledgerType)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*model.Auction, error) {
	var (
		a     model.Auction
		state string
	)
	err := row.Scan(&a.ID, &a.ArtworkID, &a.Title, &a.StartTime, &a.EndTime, &a.CurrentBidAmount,
		&a.CurrentBidUserID, &state, &a.CreatedAt, &a.ClosedAt, &a.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bidderrors.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("scan auction: %w", err)
	}
	a.State = model.AuctionState(state)
	return &a, nil
}

// CreateAuction создаёт аукцион в состоянии PENDING.
func (r *PostgresRepository) CreateAuction(ctx context.Context, n model.NewAuction) (*model.Auction, error) {
	if err := validation.CheckNewAuction(n); err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO auctions (artwork_id, title, start_time, end_time, current_bid_amount, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+auctionColumns,
		n.ArtworkID, n.Title, n.StartTime.UTC(), n.EndTime.UTC(), n.StartingAmount,
		string(model.AuctionStatePending), r.clock.now(),
	)

	a, err := scanAuction(row)
	if err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	return a, nil
}

// GetAuction возвращает аукцион по идентификатору.
func (r *PostgresRepository) GetAuction(ctx context.Context, id int64) (*model.Auction, error) {
	return scanAuction(r.pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
}

// ListAuctions возвращает аукционы в состоянии state. Пустой state означает все.
func (r *PostgresRepository) ListAuctions(ctx context.Context, state model.AuctionState) ([]model.Auction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+auctionColumns+`
		 FROM auctions
		 WHERE $1 = '' OR state = $1
		 ORDER BY start_time, id`,
		string(state),
	)
	if err != nil {
		return nil, fmt.Errorf("select auctions: %w", err)
	}
	defer rows.Close()

	var res []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetAuctionsForLifecycle возвращает аукционы, которым пора открыться, закрыться или пройти расчёт.
func (r *PostgresRepository) GetAuctionsForLifecycle(ctx context.Context, now time.Time, limit int) ([]AuctionForLifecycle, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, state
		 FROM auctions
		 WHERE (state = $1 AND start_time <= $4)
		    OR (state = $2 AND end_time <= $4)
		    OR state = $3
		 ORDER BY id
		 LIMIT $5`,
		string(model.AuctionStatePending),
		string(model.AuctionStateOpen),
		string(model.AuctionStateClosed),
		now.UTC(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select auctions for lifecycle: %w", err)
	}
	defer rows.Close()

	var res []AuctionForLifecycle
	for rows.Next() {
		var (
			id    int64
			state string
		)
		if err := rows.Scan(&id, &state); err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		res = append(res, AuctionForLifecycle{ID: id, State: model.AuctionState(state)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// OpenAuction переводит аукцион из PENDING в OPEN. Для остальных состояний ничего не меняет.
func (r *PostgresRepository) OpenAuction(ctx context.Context, id int64) (*model.Auction, error) {
	var a *model.Auction
	err := r.withRetry(ctx, func() error {
		var err error
		a, err = scanAuction(r.pool.QueryRow(ctx,
			`UPDATE auctions SET state = $2
			 WHERE id = $1 AND state = $3
			 RETURNING `+auctionColumns,
			id, string(model.AuctionStateOpen), string(model.AuctionStatePending),
		))
		if errors.Is(err, bidderrors.ErrAuctionNotFound) {
			a, err = r.GetAuction(ctx, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CloseAuction переводит аукцион из OPEN в CLOSED. Закрытый или рассчитанный аукцион возвращается как есть.
func (r *PostgresRepository) CloseAuction(ctx context.Context, id int64) (*model.Auction, error) {
	var a *model.Auction
	err := r.withRetry(ctx, func() error {
		var err error
		a, err = scanAuction(r.pool.QueryRow(ctx,
			`UPDATE auctions SET state = $2, closed_at = $4
			 WHERE id = $1 AND state = $3
			 RETURNING `+auctionColumns,
			id, string(model.AuctionStateClosed), string(model.AuctionStateOpen), r.clock.now(),
		))
		if !errors.Is(err, bidderrors.ErrAuctionNotFound) {
			return err
		}

		a, err = r.GetAuction(ctx, id)
		if err != nil {
			return err
		}
		if a.State == model.AuctionStatePending {
			return fmt.Errorf("%w: auction %d has not started", bidderrors.ErrAuctionNotOpen, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// PlaceBid проверяет и сохраняет ставку в одной транзакции: блокирует аукцион и участников,
// пишет ставку, обновляет лидера, возвращает эскроу прежнему лидеру и списывает эскроу нового.
func (r *PostgresRepository) PlaceBid(ctx context.Context, auctionID, userID, amount int64, policy model.BidPolicy) (*model.PlacedBid, error) {
	placed, err := r.placeBid(ctx, auctionID, userID, amount, policy)
	if err != nil {
		return nil, bidConflict(auctionID, err)
	}
	return placed, nil
}

// bidConflict переводит дедлоки, сериализационные сбои и обрывы соединения на любом шаге ставки
// в ErrDuplicateBidConflict, который сервис повторяет один раз.
func bidConflict(auctionID int64, err error) error {
	if errors.Is(err, bidderrors.ErrDuplicateBidConflict) || !isTransient(err) {
		return err
	}
	return fmt.Errorf("%w: auction %d: %v", bidderrors.ErrDuplicateBidConflict, auctionID, err)
}

func (r *PostgresRepository) placeBid(ctx context.Context, auctionID, userID, amount int64, policy model.BidPolicy) (*model.PlacedBid, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAuction(tx.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`,
		auctionID,
	))
	if err != nil {
		return nil, err
	}

	if err := lockUsers(ctx, tx, leaderIDs(a, userID)); err != nil {
		return nil, err
	}

	balance, _, err := latestEntry(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	now := r.clock.now()
	err = validation.CheckBid(validation.BidCheck{
		Auction: a,
		UserID:  userID,
		Amount:  amount,
		Balance: balance,
		Now:     now,
		Policy:  policy,
	})
	if err != nil {
		return nil, err
	}

	bid := model.Bid{AuctionID: auctionID, UserID: userID, Amount: amount, CreatedAt: now}
	err = tx.QueryRow(ctx,
		`INSERT INTO bids (auction_id, user_id, amount, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		auctionID, userID, amount, now,
	).Scan(&bid.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: auction %d amount %d", bidderrors.ErrDuplicateBidConflict, auctionID, amount)
		}
		return nil, fmt.Errorf("insert bid: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE auctions SET current_bid_amount = $2, current_bid_user_id = $3
		 WHERE id = $1 AND state = $4 AND current_bid_amount < $2`,
		auctionID, amount, userID, string(model.AuctionStateOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("update auction leader: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("%w: auction %d changed concurrently", bidderrors.ErrDuplicateBidConflict, auctionID)
	}

	placed := &model.PlacedBid{Bid: bid}
	if a.CurrentBidUserID != nil {
		prev := *a.CurrentBidUserID
		_, err = insertEntry(ctx, tx, model.EntryRequest{
			UserID: prev,
			Debit:  a.CurrentBidAmount,
			Type:   model.LedgerDebitGift,
			Note:   refundNote(auctionID),
		}, now)
		if err != nil {
			return nil, err
		}
		placed.PreviousUserID = &prev
		placed.PreviousAmount = a.CurrentBidAmount
	}

	_, err = insertEntry(ctx, tx, model.EntryRequest{
		UserID: userID,
		Credit: amount,
		Type:   model.LedgerCreditEscrow,
		Note:   escrowNote(auctionID),
	}, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return placed, nil
}

// GetBids возвращает ставки аукциона в порядке возрастания суммы.
func (r *PostgresRepository) GetBids(ctx context.Context, auctionID int64) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, auction_id, user_id, amount, created_at
		 FROM bids
		 WHERE auction_id = $1
		 ORDER BY amount`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	var res []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SettleAuction рассчитывает закрытый аукцион: эскроу победителя превращается в трату,
// аукцион переходит в SETTLED. Всё происходит в одной транзакции.
func (r *PostgresRepository) SettleAuction(ctx context.Context, id int64) (*model.Settlement, error) {
	var s *model.Settlement
	err := r.withRetry(ctx, func() error {
		var err error
		s, err = r.settle(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) settle(ctx context.Context, id int64) (*model.Settlement, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAuction(tx.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, err
	}

	switch a.State {
	case model.AuctionStateSettled:
		return nil, bidderrors.ErrAlreadySettled
	case model.AuctionStateClosed:
	default:
		return nil, fmt.Errorf("%w: auction %d is %s", bidderrors.ErrAuctionNotClosed, id, a.State)
	}

	if a.CurrentBidUserID != nil {
		if err := lockUsers(ctx, tx, []int64{*a.CurrentBidUserID}); err != nil {
			return nil, err
		}
	}

	// время берётся после блокировки победителя, чтобы не обогнать его параллельные записи
	now := r.clock.now()
	s := &model.Settlement{AuctionID: id, SettledAt: now, Applied: true}

	if a.CurrentBidUserID != nil {
		winner := *a.CurrentBidUserID
		amount := a.CurrentBidAmount

		_, err = insertEntry(ctx, tx, model.EntryRequest{
			UserID: winner,
			Debit:  amount,
			Credit: amount,
			Type:   model.LedgerCreditSpend,
			Note:   spendNote(id),
		}, now)
		if err != nil {
			return nil, err
		}
		s.WinnerUserID = &winner
		s.Amount = &amount
	}

	tag, err := tx.Exec(ctx,
		`UPDATE auctions SET state = $2, settled_at = $4 WHERE id = $1 AND state = $3`,
		id, string(model.AuctionStateSettled), string(model.AuctionStateClosed), now,
	)
	if err != nil {
		return nil, fmt.Errorf("update auction state: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, bidderrors.ErrAlreadySettled
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return s, nil
}
