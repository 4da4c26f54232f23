package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetReferralByReferred(ctx context.Context, referredID int64, tx *gorm.DB) (*models.Referral, error) {
	var referral models.Referral
	err := r.conn(ctx, tx).First(&referral, "referred_telegram_id = ?", referredID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get referral of user %d: %w", referredID, err)
	}
	return &referral, nil
}

// CreateReferralIfAbsent relies on the unique referred column: the first edge
// wins and later inserts report false.
func (r *Repository) CreateReferralIfAbsent(ctx context.Context, referral *models.Referral, tx *gorm.DB) (bool, error) {
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(referral)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create referral: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ListReferralsByReferrer(ctx context.Context, referrerID int64) ([]models.Referral, error) {
	var referrals []models.Referral
	err := r.db.WithContext(ctx).
		Preload("ReferredUser").
		Where("referrer_telegram_id = ?", referrerID).
		Order("created_at DESC").
		Find(&referrals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals of user %d: %w", referrerID, err)
	}
	return referrals, nil
}

// AccrueReferralBonus adds amount to the edge and marks it active.
func (r *Repository) AccrueReferralBonus(ctx context.Context, referralID string, amount decimal.Decimal, tx *gorm.DB) error {
	err := r.conn(ctx, tx).
		Model(&models.Referral{}).
		Where("id = ?", referralID).
		Updates(map[string]interface{}{
			"bonus_amount": gorm.Expr("bonus_amount + ?", amount),
			"status":       models.ReferralActive,
			"updated_at":   time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to accrue referral bonus: %w", err)
	}
	return nil
}

// CreateReferralReward claims the purchase id. False means it was already
// rewarded.
func (r *Repository) CreateReferralReward(ctx context.Context, reward *models.ReferralReward, tx *gorm.DB) (bool, error) {
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(reward)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record referral reward: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
