// Package service реализует бизнес-логику сервиса аукционов artbid:
// приём ставок, жизненный цикл аукционов и журнал монет.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/artbid/internal/model"
	"github.com/mmeshcher/artbid/internal/repository"
)

// ErrInvalidCredentials возвращается при неверном логине или пароле.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository описывает контракт доступа к данным, используемый сервисом.
// Каждая изменяющая операция выполняется хранилищем как одна атомарная единица работы.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	AppendEntries(ctx context.Context, reqs ...model.EntryRequest) ([]model.LedgerEntry, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	AuditLedger(ctx context.Context, userID int64) (balance, sum int64, err error)
	GetLedger(ctx context.Context, userID int64) ([]model.LedgerEntry, error)

	CreateAuction(ctx context.Context, n model.NewAuction) (*model.Auction, error)
	GetAuction(ctx context.Context, id int64) (*model.Auction, error)
	ListAuctions(ctx context.Context, state model.AuctionState) ([]model.Auction, error)
	GetAuctionsForLifecycle(ctx context.Context, now time.Time, limit int) ([]repository.AuctionForLifecycle, error)
	OpenAuction(ctx context.Context, id int64) (*model.Auction, error)
	CloseAuction(ctx context.Context, id int64) (*model.Auction, error)
	SettleAuction(ctx context.Context, id int64) (*model.Settlement, error)

	PlaceBid(ctx context.Context, auctionID, userID, amount int64, policy model.BidPolicy) (*model.PlacedBid, error)
	GetBids(ctx context.Context, auctionID int64) ([]model.Bid, error)
}

// Options задаёт настраиваемые параметры сервиса.
type Options struct {
	Policy        model.BidPolicy
	BcryptCost    int
	SweepInterval time.Duration
	SweepBatch    int
	Clock         func() time.Time
}

// Service содержит бизнес-логику сервиса аукционов.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger

	policy        model.BidPolicy
	bcryptCost    int
	sweepInterval time.Duration
	sweepBatch    int
	clock         func() time.Time
}

// NewService создаёт сервис. notifier и logger могут быть nil.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:          repo,
		notifier:      notifier,
		logger:        logger,
		policy:        opts.Policy,
		bcryptCost:    opts.BcryptCost,
		sweepInterval: opts.SweepInterval,
		sweepBatch:    opts.SweepBatch,
		clock:         opts.Clock,
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = time.Second
	}
	if s.sweepBatch <= 0 {
		s.sweepBatch = 100
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) notify(ctx context.Context, ev model.Event) {
	if s.notifier == nil {
		return
	}
	// Notify не блокирует: запись уже зафиксирована
	s.notifier.Notify(ctx, ev)
}

// RegisterUser регистрирует нового пользователя с ролью user.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	return s.createUser(ctx, login, password, model.RoleUser)
}

// RegisterAdmin регистрирует администратора. Используется при первоначальной настройке.
func (s *Service) RegisterAdmin(ctx context.Context, login, password string) (int64, error) {
	return s.createUser(ctx, login, password, model.RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, login, password, role string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateUser(ctx, login, hashed, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}
