package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/validation"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

// ownedRow loads the ownership row and checks that userID holds it.
func (s *Service) ownedRow(ctx context.Context, userID int64, ownershipID string) (*models.UserCard, error) {
	ownershipID = strings.TrimSpace(ownershipID)
	if ownershipID == "" {
		return nil, invalid("ownership_id", "is required")
	}

	row, err := s.repo.GetUserCard(ctx, ownershipID, nil)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	if row.UserTelegramID != userID {
		s.logger.Warnf("User %d tried to act on ownership %s of user %d", userID, ownershipID, row.UserTelegramID)
		return nil, ErrNotOwner
	}
	return row, nil
}

// RentCard lists an owned card for rent at price for models.RentalPeriod.
// Cards flagged for withdrawal and cards with an unexpired rental are refused.
func (s *Service) RentCard(ctx context.Context, userID int64, ownershipID string, price decimal.Decimal) (*models.UserCard, error) {
	price = utils.RoundMoney(price)
	if !price.IsPositive() {
		return nil, invalid("rent_price", "must be positive")
	}

	row, err := s.ownedRow(ctx, userID, ownershipID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if row.IsWithdrawn {
		return nil, ErrInvalidState
	}
	if row.RentalActive(now) {
		return nil, ErrInvalidState
	}

	until := now.Add(models.RentalPeriod)
	ok, err := s.repo.SetRental(ctx, row.ID, userID, price, until)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	s.logger.Infof("User %d listed ownership %s for rent at %s until %s", userID, row.ID, price.StringFixed(2), until.Format("2006-01-02"))
	return s.repo.GetUserCard(ctx, row.ID, nil)
}

// RequestWithdrawal flags the row for a manual on-chain transfer. An empty
// address falls back to the user's linked wallet.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, ownershipID, address string) (*models.UserCard, error) {
	if strings.TrimSpace(address) == "" {
		user, err := s.repo.GetUser(ctx, userID, nil)
		if err != nil {
			return nil, err
		}
		if user != nil {
			address = user.WalletAddress
		}
	}
	address, err := validation.WalletAddress(address)
	if err != nil {
		return nil, err
	}

	row, err := s.ownedRow(ctx, userID, ownershipID)
	if err != nil {
		return nil, err
	}
	if row.IsWithdrawn {
		return nil, ErrInvalidState
	}

	ok, err := s.repo.MarkWithdrawalRequested(ctx, row.ID, userID, address, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	updated, err := s.repo.GetUserCard(ctx, row.ID, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Infof("User %d requested withdrawal of ownership %s to %s", userID, row.ID, address)
	s.publish(ctx, events.EventWithdrawalRequested, events.WithdrawalRequestedData{
		OwnershipID: row.ID,
		UserID:      userID,
		CardTitle:   cardTitle(updated),
		Address:     address,
	})
	return updated, nil
}

func cardTitle(row *models.UserCard) string {
	if row == nil || row.Card == nil {
		return ""
	}
	return row.Card.Title
}
