package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/config"
	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const referralPrefix = "ref_"

type LaunchResult struct {
	User     *models.TelegramUser `json:"user"`
	Balance  *models.Balance      `json:"balance"`
	Referral *models.Referral     `json:"referral,omitempty"`
	// Created is true on the user's first launch.
	Created bool `json:"created"`
	// Referred is true when this launch created the referral edge.
	Referred bool `json:"referred"`
}

type ReferralCredit struct {
	PurchaseID      string              `json:"purchase_id"`
	ReferrerID      int64               `json:"referrer_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Field           models.BalanceField `json:"field"`
	AlreadyRewarded bool                `json:"already_rewarded"`
}

type ReferralOverview struct {
	Link      string               `json:"link"`
	Stats     models.ReferralStats `json:"stats"`
	Referrals []models.Referral    `json:"referrals"`
}

// ParseReferralCode extracts the referrer id from a "ref_<id>" start parameter.
func ParseReferralCode(startParam string) (int64, bool) {
	startParam = strings.TrimSpace(startParam)
	if !strings.HasPrefix(startParam, referralPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(startParam, referralPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) ReferralLink(userID int64) string {
	username := "TonTripBonanza_bot"
	if s.config != nil && s.config.BotUsername != "" {
		username = s.config.BotUsername
	}
	return fmt.Sprintf("https://t.me/%s?startapp=%s%d", username, referralPrefix, userID)
}

// EnsureUser creates the user on first sight and refreshes the profile
// fields otherwise.
func (s *Service) EnsureUser(ctx context.Context, identity models.Identity) (*models.TelegramUser, bool, error) {
	if identity.TelegramID <= 0 {
		return nil, false, invalid("telegram_id", "must be positive")
	}

	user := &models.TelegramUser{
		TelegramID:   identity.TelegramID,
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		Username:     identity.Username,
		LanguageCode: identity.LanguageCode,
	}
	created, err := s.repo.CreateUserIfAbsent(ctx, user, nil)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetUser(ctx, identity.TelegramID, nil)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("user %d vanished after creation", identity.TelegramID)
	}

	if !created && profileChanged(existing, identity) {
		if err := s.repo.UpdateUserProfile(ctx, user, nil); err != nil {
			return nil, false, err
		}
		existing.FirstName = identity.FirstName
		existing.LastName = identity.LastName
		existing.Username = identity.Username
		existing.LanguageCode = identity.LanguageCode
	}

	if created {
		s.logger.Infof("New user %d (%s)", identity.TelegramID, existing.DisplayName())
	}
	return existing, created, nil
}

func profileChanged(u *models.TelegramUser, id models.Identity) bool {
	return u.FirstName != id.FirstName || u.LastName != id.LastName ||
		u.Username != id.Username || u.LanguageCode != id.LanguageCode
}

// RegisterLaunch handles an app launch: it makes sure the user and balance
// exist and, when startParam carries a referral code and the user has no
// referrer yet, records the referral edge. Repeat and self referrals are
// ignored.
func (s *Service) RegisterLaunch(ctx context.Context, identity models.Identity, startParam string) (*LaunchResult, error) {
	ctx, span := s.tracer.Start(ctx, "Service.RegisterLaunch")
	defer span.End()

	user, created, err := s.EnsureUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	result := &LaunchResult{User: user, Created: created}

	if referrerID, ok := ParseReferralCode(startParam); ok {
		span.SetAttributes(attribute.Int64("referrer.id", referrerID))
		err := s.assignReferrer(ctx, user.TelegramID, referrerID, strings.TrimSpace(startParam))
		switch {
		case err == nil:
			result.Referred = true
		case errors.Is(err, ErrAlreadyReferred), errors.Is(err, ErrSelfReferral):
			s.logger.Debugf("Referral %q for user %d ignored: %v", startParam, user.TelegramID, err)
		default:
			return nil, err
		}
	}

	if result.Balance, err = s.GetOrCreateBalance(ctx, user.TelegramID); err != nil {
		return nil, err
	}
	if result.Referral, err = s.repo.GetReferralByReferred(ctx, user.TelegramID, nil); err != nil {
		return nil, err
	}
	if result.Referred {
		if refreshed, err := s.repo.GetUser(ctx, user.TelegramID, nil); err == nil && refreshed != nil {
			result.User = refreshed
		}
	}
	return result, nil
}

func (s *Service) assignReferrer(ctx context.Context, referredID, referrerID int64, startParam string) error {
	if referredID == referrerID {
		return ErrSelfReferral
	}

	err := s.inTx(ctx, func(tx *gorm.DB) error {
		assigned, err := s.repo.SetUserReferrer(ctx, referredID, referrerID, startParam, tx)
		if err != nil {
			return err
		}
		if !assigned {
			return ErrAlreadyReferred
		}

		created, err := s.repo.CreateReferralIfAbsent(ctx, &models.Referral{
			ID:                 uuid.NewString(),
			ReferrerTelegramID: referrerID,
			ReferredTelegramID: referredID,
			StartParam:         startParam,
			BonusAmount:        decimal.Zero,
			Status:             models.ReferralPending,
		}, tx)
		if err != nil {
			return err
		}
		if !created {
			return ErrAlreadyReferred
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infof("User %d referred by %d", referredID, referrerID)
	return nil
}

func (s *Service) rewardField() models.BalanceField {
	if s.config != nil && s.config.ReferralRewardCurrency == config.RewardCurrencySameAsPurchase {
		return models.FieldSpendable
	}
	return models.FieldBonusPoints
}

// PropagateReferralBonus credits the buyer's referrer with ReferralRate of
// the purchase. The purchase id is claimed in the same transaction as the
// credit, so repeated calls for one purchase pay out once. A buyer without a
// referrer is a no-op and returns nil.
func (s *Service) PropagateReferralBonus(ctx context.Context, event PurchaseEvent) (*ReferralCredit, error) {
	ctx, span := s.tracer.Start(ctx, "Service.PropagateReferralBonus")
	defer span.End()
	span.SetAttributes(attribute.String("purchase.id", event.ID))

	if event.ID == "" || event.BuyerID <= 0 {
		return nil, invalid("event", "purchase id and buyer are required")
	}

	ownership, err := s.repo.GetUserCard(ctx, event.ID, nil)
	if err != nil {
		return nil, err
	}
	if ownership == nil || ownership.UserTelegramID != event.BuyerID {
		return nil, fmt.Errorf("purchase %s: %w", event.ID, ErrNotFound)
	}
	// the stored price is authoritative
	amount := ownership.PricePaid
	if !event.Amount.IsZero() && !event.Amount.Equal(amount) {
		s.logger.Warnf("Purchase %s reported amount %s, stored %s", event.ID, event.Amount, amount)
	}

	referral, err := s.repo.GetReferralByReferred(ctx, event.BuyerID, nil)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, nil
	}
	if referral.ReferrerTelegramID == event.BuyerID {
		s.logger.Warnf("Referral %s points at its own user %d, skipping", referral.ID, event.BuyerID)
		return nil, nil
	}

	bonus := utils.Percent(amount, ReferralRate)
	if !bonus.IsPositive() {
		return nil, nil
	}

	credit := &ReferralCredit{
		PurchaseID: event.ID,
		ReferrerID: referral.ReferrerTelegramID,
		Amount:     bonus,
		Field:      s.rewardField(),
	}

	err = s.inTx(ctx, func(tx *gorm.DB) error {
		claimed, err := s.repo.CreateReferralReward(ctx, &models.ReferralReward{
			PurchaseID: event.ID,
			ReferralID: referral.ID,
			ReferrerID: referral.ReferrerTelegramID,
			BuyerID:    event.BuyerID,
			Amount:     bonus,
			Field:      credit.Field,
			CreatedAt:  s.now(),
		}, tx)
		if err != nil {
			return err
		}
		if !claimed {
			credit.AlreadyRewarded = true
			return nil
		}

		if err := s.repo.EnsureBalance(ctx, referral.ReferrerTelegramID, tx); err != nil {
			return err
		}
		ok, err := s.repo.ApplyBalanceDelta(ctx, referral.ReferrerTelegramID, repository.BalanceDelta{
			Field:  credit.Field,
			Amount: bonus,
			Earned: bonus,
		}, tx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("balance of referrer %d not found", referral.ReferrerTelegramID)
		}

		if err := s.repo.AccrueReferralBonus(ctx, referral.ID, bonus, tx); err != nil {
			return err
		}

		return s.repo.AppendLedgerEntry(ctx, &models.LedgerEntry{
			ID:        uuid.NewString(),
			UserID:    referral.ReferrerTelegramID,
			Field:     credit.Field,
			Delta:     bonus,
			Kind:      models.LedgerReferralBonus,
			Reference: event.ID,
			CreatedAt: s.now(),
		}, tx)
	})
	if err != nil {
		s.logger.Errorf("Referral bonus for purchase %s failed: %v", event.ID, err)
		return nil, err
	}

	if credit.AlreadyRewarded {
		s.logger.Infof("Purchase %s already rewarded, skipping", event.ID)
		return credit, nil
	}

	s.logger.Infof("Credited %s %s to referrer %d for purchase %s", bonus.StringFixed(2), credit.Field, credit.ReferrerID, event.ID)
	s.publish(ctx, events.EventReferralRewarded, events.ReferralRewardedData{
		PurchaseID: event.ID,
		ReferrerID: credit.ReferrerID,
		BuyerID:    event.BuyerID,
		Amount:     bonus,
		Field:      string(credit.Field),
	})
	return credit, nil
}

func (s *Service) ListReferrals(ctx context.Context, userID int64) (*ReferralOverview, error) {
	referrals, err := s.repo.ListReferralsByReferrer(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := models.ReferralStats{TotalEarned: decimal.Zero}
	for _, r := range referrals {
		stats.Total++
		if r.Status == models.ReferralActive {
			stats.Active++
		}
		stats.TotalEarned = stats.TotalEarned.Add(r.BonusAmount)
	}

	return &ReferralOverview{
		Link:      s.ReferralLink(userID),
		Stats:     stats,
		Referrals: referrals,
	}, nil
}
