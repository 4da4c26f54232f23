package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// PurchaseEvent identifies a completed purchase for referral propagation.
// ID is the ownership row id.
type PurchaseEvent struct {
	ID      string          `json:"id"`
	BuyerID int64           `json:"buyer_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type PurchaseResult struct {
	Ownership *models.UserCard `json:"ownership"`
	Balance   *models.Balance  `json:"balance"`
	Event     PurchaseEvent    `json:"event"`
}

// Purchase debits the card price and records ownership in one transaction.
// The debit is a conditional update, so concurrent purchases by the same user
// can never overdraw the balance. Referral propagation is left to the caller.
func (s *Service) Purchase(ctx context.Context, userID int64, cardID string) (*PurchaseResult, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Purchase")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("card.id", cardID))

	cardID = strings.TrimSpace(cardID)
	if userID <= 0 {
		return nil, invalid("user_id", "must be positive")
	}
	if cardID == "" {
		return nil, invalid("card_id", "is required")
	}

	var (
		card      *models.Card
		ownership *models.UserCard
		balance   *models.Balance
	)
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		card, err = s.repo.GetCard(ctx, cardID, tx)
		if err != nil {
			return err
		}
		if card == nil || !card.IsAvailable {
			return ErrCardNotFound
		}

		if err := s.repo.EnsureBalance(ctx, userID, tx); err != nil {
			return err
		}

		ok, err := s.repo.ApplyBalanceDelta(ctx, userID, repository.BalanceDelta{
			Field:        models.FieldSpendable,
			Amount:       card.Price.Neg(),
			Spent:        card.Price,
			RequireFunds: true,
		}, tx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}

		now := s.now()
		ownership = &models.UserCard{
			ID:               uuid.NewString(),
			UserTelegramID:   userID,
			CardID:           card.ID,
			PricePaid:        card.Price,
			PurchasedAt:      now,
			WithdrawalStatus: models.WithdrawalNone,
		}
		if err := s.repo.CreateUserCard(ctx, ownership, tx); err != nil {
			return err
		}

		if err := s.repo.AppendLedgerEntry(ctx, &models.LedgerEntry{
			ID:        uuid.NewString(),
			UserID:    userID,
			Field:     models.FieldSpendable,
			Delta:     card.Price.Neg(),
			Kind:      models.LedgerPurchase,
			Reference: ownership.ID,
			CreatedAt: now,
		}, tx); err != nil {
			return err
		}

		balance, err = s.repo.GetBalance(ctx, userID, tx)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientFunds) && !errors.Is(err, ErrCardNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Errorf("Purchase of card %s by user %d failed: %v", cardID, userID, err)
		} else {
			s.logger.Infof("Purchase of card %s by user %d rejected: %v", cardID, userID, err)
		}
		return nil, err
	}

	ownership.Card = card
	s.logger.Infof("User %d bought card %s for %s, ownership %s", userID, card.ID, card.Price.StringFixed(2), ownership.ID)

	s.publish(ctx, events.EventPurchaseCompleted, events.PurchaseCompletedData{
		PurchaseID: ownership.ID,
		BuyerID:    userID,
		CardID:     card.ID,
		CardTitle:  card.Title,
		Amount:     card.Price,
	})

	return &PurchaseResult{
		Ownership: ownership,
		Balance:   balance,
		Event: PurchaseEvent{
			ID:      ownership.ID,
			BuyerID: userID,
			Amount:  card.Price,
		},
	}, nil
}
