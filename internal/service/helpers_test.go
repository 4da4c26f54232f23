package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/config"
	"github.com/worckguarddev/ton-trip-bonanza/db"
	"github.com/worckguarddev/ton-trip-bonanza/internal/cache"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	svc    *Service
	admin  *AdminService
	repo   *repository.Repository
	db     *gorm.DB
	cfg    *config.Config
	cache  *cache.InMemoryCache
	logger *utils.Logger
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	logger := utils.NewLogger("error")
	database, err := db.ConnectDb(filepath.Join(t.TempDir(), "bonanza_test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if err := db.Migrate(database, true, logger); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	cfg := &config.Config{
		BotUsername:            "TestBonanzaBot",
		ReferralRewardCurrency: config.RewardCurrencyPoints,
		SBPPaymentURL:          "https://qr.example.test/pay?type=02&cur=RUB",
		CatalogCacheTTL:        time.Minute,
	}
	repo := repository.NewRepository(database, logger)
	c := cache.NewInMemoryCache()

	return &testEnv{
		svc:    NewService(repo, cfg, c, nil, logger),
		admin:  NewAdminService(repo, c, nil, logger),
		repo:   repo,
		db:     database,
		cfg:    cfg,
		cache:  c,
		logger: logger,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) seedCard(t *testing.T, title, price string) *models.Card {
	t.Helper()
	card, err := e.admin.CreateCard(context.Background(), CardInput{
		Title:  title,
		Price:  dec(price),
		Rarity: models.RarityRare,
	})
	if err != nil {
		t.Fatalf("Failed to seed card %q: %v", title, err)
	}
	return card
}

func (e *testEnv) fund(t *testing.T, userID int64, amount string) {
	t.Helper()
	if _, err := e.admin.AdjustBalance(context.Background(), userID, models.FieldSpendable, dec(amount), "test funding"); err != nil {
		t.Fatalf("Failed to fund user %d: %v", userID, err)
	}
}

func (e *testEnv) launch(t *testing.T, userID int64, startParam string) *LaunchResult {
	t.Helper()
	res, err := e.svc.RegisterLaunch(context.Background(), models.Identity{
		TelegramID: userID,
		FirstName:  "User",
	}, startParam)
	if err != nil {
		t.Fatalf("RegisterLaunch(%d, %q) failed: %v", userID, startParam, err)
	}
	return res
}

func (e *testEnv) balance(t *testing.T, userID int64) *models.Balance {
	t.Helper()
	b, err := e.svc.GetOrCreateBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetOrCreateBalance(%d) failed: %v", userID, err)
	}
	return b
}

func (e *testEnv) ownedCount(t *testing.T, userID int64) int {
	t.Helper()
	owned, err := e.svc.ListOwned(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListOwned(%d) failed: %v", userID, err)
	}
	return len(owned)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got.String())
	}
}
