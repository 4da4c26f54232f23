package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
)

func TestGetOrCreateBalance_Lazy(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	existing, err := env.repo.GetBalance(ctx, 42, nil)
	if err != nil || existing != nil {
		t.Fatalf("expected no balance row yet, got %+v (%v)", existing, err)
	}

	b := env.balance(t, 42)
	for name, v := range map[string]string{
		"spendable":    b.RubBalance.String(),
		"token":        b.TonBalance.String(),
		"bonus points": b.BonusPoints.String(),
		"earned":       b.TotalEarned.String(),
		"spent":        b.TotalSpent.String(),
	} {
		if v != "0" {
			t.Errorf("%s: expected 0, got %s", name, v)
		}
	}

	if _, err := env.svc.GetOrCreateBalance(ctx, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero id, got %v", err)
	}
}

func TestAdjust(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	b, err := env.svc.Adjust(ctx, 5, models.FieldBonusPoints, dec("12.5"), models.LedgerAdjust, "")
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	assertDecimal(t, "bonus", b.BonusPoints, "12.5")
	assertDecimal(t, "earned", b.TotalEarned, "12.5")

	b, err = env.svc.Adjust(ctx, 5, models.FieldBonusPoints, dec("-2.5"), models.LedgerAdjust, "")
	if err != nil {
		t.Fatalf("Adjust failed: %v", err)
	}
	assertDecimal(t, "bonus", b.BonusPoints, "10")
	assertDecimal(t, "earned", b.TotalEarned, "12.5")

	if _, err := env.svc.Adjust(ctx, 5, models.FieldBonusPoints, dec("-10.01"), models.LedgerAdjust, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := env.svc.Adjust(ctx, 5, models.FieldToken, dec("-1"), models.LedgerAdjust, ""); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds on empty token balance, got %v", err)
	}
	assertDecimal(t, "bonus after rejects", env.balance(t, 5).BonusPoints, "10")
}

func TestTopUp(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	if _, err := env.svc.PaymentReference(5, dec("99.99")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput below minimum, got %v", err)
	}
	ref, err := env.svc.PaymentReference(5, dec("150"))
	if err != nil {
		t.Fatalf("PaymentReference failed: %v", err)
	}
	link, err := url.Parse(ref.PaymentURL)
	if err != nil {
		t.Fatalf("bad payment url %q: %v", ref.PaymentURL, err)
	}
	if got := link.Query().Get("sum"); got != "150.00" {
		t.Errorf("expected sum=150.00, got %q", got)
	}
	if link.Query().Get("cur") != "RUB" {
		t.Errorf("base query lost: %s", ref.PaymentURL)
	}

	if _, err := env.svc.ConfirmTopUp(ctx, 5, dec("50"), ref.Reference); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput below minimum, got %v", err)
	}
	b, err := env.svc.ConfirmTopUp(ctx, 5, dec("150"), ref.Reference)
	if err != nil {
		t.Fatalf("ConfirmTopUp failed: %v", err)
	}
	assertDecimal(t, "spendable", b.RubBalance, "150")

	ledger, _ := env.svc.ListLedger(ctx, 5, 10)
	if len(ledger) != 1 || ledger[0].Kind != models.LedgerTopUp || ledger[0].Reference != ref.Reference {
		t.Errorf("unexpected ledger %+v", ledger)
	}
}
