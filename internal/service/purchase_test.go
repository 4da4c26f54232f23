package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"gorm.io/gorm"
)

func TestPurchase_InsufficientFundsLeavesNoTrace(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	card := env.seedCard(t, "Sochi", "500")
	env.fund(t, 1, "400")

	ledgerBefore, err := env.svc.ListLedger(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListLedger failed: %v", err)
	}

	_, err = env.svc.Purchase(ctx, 1, card.ID)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	b := env.balance(t, 1)
	assertDecimal(t, "balance", b.RubBalance, "400")
	assertDecimal(t, "total spent", b.TotalSpent, "0")
	if n := env.ownedCount(t, 1); n != 0 {
		t.Errorf("expected no ownership rows, got %d", n)
	}

	ledgerAfter, _ := env.svc.ListLedger(ctx, 1, 0)
	if len(ledgerAfter) != len(ledgerBefore) {
		t.Errorf("ledger changed on rejected purchase: %d -> %d entries", len(ledgerBefore), len(ledgerAfter))
	}
}

func TestPurchase_Success(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return now }

	card := env.seedCard(t, "Kazan", "500")
	env.fund(t, 1, "600")

	res, err := env.svc.Purchase(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	assertDecimal(t, "returned balance", res.Balance.RubBalance, "100")
	assertDecimal(t, "returned total spent", res.Balance.TotalSpent, "500")
	if res.Event.ID != res.Ownership.ID || res.Event.BuyerID != 1 {
		t.Errorf("unexpected purchase event %+v", res.Event)
	}
	assertDecimal(t, "event amount", res.Event.Amount, "500")

	b := env.balance(t, 1)
	assertDecimal(t, "stored balance", b.RubBalance, "100")
	assertDecimal(t, "stored total spent", b.TotalSpent, "500")

	owned, err := env.svc.ListOwned(ctx, 1)
	if err != nil {
		t.Fatalf("ListOwned failed: %v", err)
	}
	if len(owned) != 1 {
		t.Fatalf("expected 1 ownership row, got %d", len(owned))
	}
	if owned[0].CardID != card.ID || owned[0].CardMissing {
		t.Errorf("unexpected ownership row %+v", owned[0])
	}
	if !owned[0].PurchasedAt.Equal(now) {
		t.Errorf("expected purchase time %v, got %v", now, owned[0].PurchasedAt)
	}
	assertDecimal(t, "price paid", owned[0].PricePaid, "500")

	ledger, _ := env.svc.ListLedger(ctx, 1, 0)
	var found bool
	for _, e := range ledger {
		if e.Kind == models.LedgerPurchase && e.Reference == res.Ownership.ID {
			found = true
			assertDecimal(t, "ledger delta", e.Delta, "-500")
		}
	}
	if !found {
		t.Error("expected a purchase ledger entry")
	}
}

func TestPurchase_RepeatPurchaseAllowed(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	card := env.seedCard(t, "Baikal", "100")
	env.fund(t, 1, "250")

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Purchase(ctx, 1, card.ID); err != nil {
			t.Fatalf("purchase %d failed: %v", i+1, err)
		}
	}
	if n := env.ownedCount(t, 1); n != 2 {
		t.Errorf("expected 2 ownership rows, got %d", n)
	}
	assertDecimal(t, "balance", env.balance(t, 1).RubBalance, "50")
}

func TestPurchase_CardNotFound(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	env.fund(t, 1, "1000")

	if _, err := env.svc.Purchase(ctx, 1, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("expected ErrCardNotFound for unknown card, got %v", err)
	}

	card := env.seedCard(t, "Hidden", "100")
	off := false
	if _, err := env.admin.UpdateCard(ctx, card.ID, CardInput{
		Title:       card.Title,
		Price:       card.Price,
		Rarity:      card.Rarity,
		IsAvailable: &off,
	}); err != nil {
		t.Fatalf("UpdateCard failed: %v", err)
	}
	if _, err := env.svc.Purchase(ctx, 1, card.ID); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("expected ErrCardNotFound for unavailable card, got %v", err)
	}

	assertDecimal(t, "balance", env.balance(t, 1).RubBalance, "1000")
}

func TestPurchase_ConcurrentPurchasesNeverOverdraw(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	card := env.seedCard(t, "Altai", "300")
	env.fund(t, 1, "1000")

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Purchase(ctx, 1, card.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if succeeded != 3 || rejected != attempts-3 {
		t.Errorf("expected 3 successes and %d rejections, got %d and %d", attempts-3, succeeded, rejected)
	}

	b := env.balance(t, 1)
	assertDecimal(t, "balance", b.RubBalance, "100")
	assertDecimal(t, "total spent", b.TotalSpent, "900")
	if n := env.ownedCount(t, 1); n != succeeded {
		t.Errorf("expected %d ownership rows, got %d", succeeded, n)
	}
}

type failingOwnershipRepo struct {
	*repository.Repository
}

func (f failingOwnershipRepo) CreateUserCard(ctx context.Context, userCard *models.UserCard, tx *gorm.DB) error {
	return errors.New("disk full")
}

func TestPurchase_OwnershipFailureRollsBackDebit(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	card := env.seedCard(t, "Elbrus", "500")
	env.fund(t, 1, "600")

	broken := NewService(failingOwnershipRepo{env.repo}, env.cfg, env.cache, nil, env.logger)
	if _, err := broken.Purchase(ctx, 1, card.ID); err == nil {
		t.Fatal("expected purchase to fail")
	}

	b := env.balance(t, 1)
	assertDecimal(t, "balance", b.RubBalance, "600")
	assertDecimal(t, "total spent", b.TotalSpent, "0")
	if n := env.ownedCount(t, 1); n != 0 {
		t.Errorf("expected no ownership rows, got %d", n)
	}
}
