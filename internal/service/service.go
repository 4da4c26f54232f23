package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/config"
	"github.com/worckguarddev/ton-trip-bonanza/internal/cache"
	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/internal/tracing"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// ReferralRate is the share of a purchase credited to the buyer's referrer.
var ReferralRate = decimal.RequireFromString("0.03")

const catalogCacheKey = "catalog:available"

type Service struct {
	repo   Repository
	cache  cache.Cache
	events *events.Manager
	logger *utils.Logger
	config *config.Config
	tracer trace.Tracer
	now    func() time.Time
}

type Repository interface {
	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)

	GetUser(ctx context.Context, telegramID int64, tx *gorm.DB) (*models.TelegramUser, error)
	CreateUserIfAbsent(ctx context.Context, user *models.TelegramUser, tx *gorm.DB) (bool, error)
	UpdateUserProfile(ctx context.Context, user *models.TelegramUser, tx *gorm.DB) error
	SetUserReferrer(ctx context.Context, telegramID, referrerID int64, startParam string, tx *gorm.DB) (bool, error)
	UpdateUserWallet(ctx context.Context, telegramID int64, address, chain string) (bool, error)

	GetBalance(ctx context.Context, userID int64, tx *gorm.DB) (*models.Balance, error)
	EnsureBalance(ctx context.Context, userID int64, tx *gorm.DB) error
	ApplyBalanceDelta(ctx context.Context, userID int64, delta repository.BalanceDelta, tx *gorm.DB) (bool, error)

	AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry, tx *gorm.DB) error
	ListLedgerEntries(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error)

	ListAvailableCards(ctx context.Context) ([]models.Card, error)
	GetCard(ctx context.Context, id string, tx *gorm.DB) (*models.Card, error)

	CreateUserCard(ctx context.Context, userCard *models.UserCard, tx *gorm.DB) error
	GetUserCard(ctx context.Context, id string, tx *gorm.DB) (*models.UserCard, error)
	ListUserCards(ctx context.Context, userID int64) ([]models.UserCard, error)
	SetRental(ctx context.Context, id string, userID int64, price decimal.Decimal, until time.Time) (bool, error)
	MarkWithdrawalRequested(ctx context.Context, id string, userID int64, address string, now time.Time) (bool, error)

	GetReferralByReferred(ctx context.Context, referredID int64, tx *gorm.DB) (*models.Referral, error)
	CreateReferralIfAbsent(ctx context.Context, referral *models.Referral, tx *gorm.DB) (bool, error)
	ListReferralsByReferrer(ctx context.Context, referrerID int64) ([]models.Referral, error)
	AccrueReferralBonus(ctx context.Context, referralID string, amount decimal.Decimal, tx *gorm.DB) error
	CreateReferralReward(ctx context.Context, reward *models.ReferralReward, tx *gorm.DB) (bool, error)
}

func NewService(repo Repository, cfg *config.Config, c cache.Cache, ev *events.Manager, logger *utils.Logger) *Service {
	if c == nil {
		c = cache.NewInMemoryCache()
	}
	return &Service{
		repo:   repo,
		cache:  c,
		events: ev,
		logger: logger,
		config: cfg,
		tracer: tracing.Tracer("service"),
		now:    time.Now,
	}
}

func (s *Service) Config() *config.Config {
	return s.config
}

// withTransaction runs fn inside one database transaction. Every repository
// call made by fn must receive tx.
func withTransaction(ctx context.Context, repo interface {
	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)
}, logger *utils.Logger, fn func(tx *gorm.DB) error) (err error) {
	tx, err := repo.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic occurred: %v", r)
			repo.Rollback(tx)
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		repo.Rollback(tx)
		return err
	}

	if err = repo.Commit(tx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return withTransaction(ctx, s.repo, s.logger, fn)
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, data interface{}) {
	if s.events != nil {
		s.events.Publish(ctx, eventType, data)
	}
}
