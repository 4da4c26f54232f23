package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
	"gorm.io/gorm"
)

// MinTopUp is the smallest amount accepted by the top-up flow.
var MinTopUp = decimal.NewFromInt(100)

const defaultLedgerLimit = 50

type PaymentReference struct {
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	PaymentURL string          `json:"payment_url"`
}

// GetOrCreateBalance returns the user's balance, creating the all-zero row
// on first access.
func (s *Service) GetOrCreateBalance(ctx context.Context, userID int64) (*models.Balance, error) {
	if userID <= 0 {
		return nil, invalid("user_id", "must be positive")
	}

	balance, err := s.repo.GetBalance(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}

	if err := s.repo.EnsureBalance(ctx, userID, nil); err != nil {
		return nil, err
	}
	s.logger.Infof("Created balance for user %d", userID)

	balance, err = s.repo.GetBalance(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, fmt.Errorf("balance for user %d vanished after creation", userID)
	}
	return balance, nil
}

// Adjust applies a signed delta to one balance pool. A debit that would take
// the pool below zero fails with ErrInsufficientFunds and changes nothing.
func (s *Service) Adjust(ctx context.Context, userID int64, field models.BalanceField, delta decimal.Decimal, kind models.LedgerKind, reference string) (*models.Balance, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Adjust")
	defer span.End()

	if userID <= 0 {
		return nil, invalid("user_id", "must be positive")
	}
	if _, ok := field.Column(); !ok {
		return nil, invalid("field", "unknown balance field")
	}
	delta = utils.RoundMoney(delta)
	if delta.IsZero() {
		return nil, invalid("delta", "must not be zero")
	}

	earned := decimal.Zero
	if field == models.FieldBonusPoints && delta.IsPositive() {
		earned = delta
	}

	var balance *models.Balance
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.EnsureBalance(ctx, userID, tx); err != nil {
			return err
		}

		ok, err := s.repo.ApplyBalanceDelta(ctx, userID, repository.BalanceDelta{
			Field:        field,
			Amount:       delta,
			Earned:       earned,
			RequireFunds: true,
		}, tx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}

		if err := s.repo.AppendLedgerEntry(ctx, &models.LedgerEntry{
			ID:        uuid.NewString(),
			UserID:    userID,
			Field:     field,
			Delta:     delta,
			Kind:      kind,
			Reference: reference,
			CreatedAt: s.now(),
		}, tx); err != nil {
			return err
		}

		balance, err = s.repo.GetBalance(ctx, userID, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Adjusted %s of user %d by %s (%s)", field, userID, delta.StringFixed(2), kind)
	return balance, nil
}

// PaymentReference builds the SBP payment link the user pays by hand. Nothing
// is recorded until the user confirms the payment.
func (s *Service) PaymentReference(userID int64, amount decimal.Decimal) (*PaymentReference, error) {
	amount = utils.RoundMoney(amount)
	if amount.LessThan(MinTopUp) {
		return nil, invalid("amount", fmt.Sprintf("must be at least %s", MinTopUp.String()))
	}

	link, err := url.Parse(s.config.SBPPaymentURL)
	if err != nil {
		return nil, fmt.Errorf("bad SBP_PAYMENT_URL: %w", err)
	}
	q := link.Query()
	q.Set("sum", amount.StringFixed(2))
	link.RawQuery = q.Encode()

	return &PaymentReference{
		Amount:     amount,
		Reference:  fmt.Sprintf("topup-%d-%s", userID, uuid.NewString()[:8]),
		PaymentURL: link.String(),
	}, nil
}

// ConfirmTopUp credits the spendable balance after the user asserts payment.
// Settlement is not verified.
func (s *Service) ConfirmTopUp(ctx context.Context, userID int64, amount decimal.Decimal, reference string) (*models.Balance, error) {
	amount = utils.RoundMoney(amount)
	if amount.LessThan(MinTopUp) {
		return nil, invalid("amount", fmt.Sprintf("must be at least %s", MinTopUp.String()))
	}
	return s.Adjust(ctx, userID, models.FieldSpendable, amount, models.LedgerTopUp, reference)
}

func (s *Service) ListLedger(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultLedgerLimit
	}
	return s.repo.ListLedgerEntries(ctx, userID, limit)
}
