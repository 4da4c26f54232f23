package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"gorm.io/gorm"
)

// preloadCard keeps soft-deleted definitions visible so dangling rows can be
// reported instead of silently losing their card.
func preloadCard(db *gorm.DB) *gorm.DB {
	return db.Preload("Card", func(db *gorm.DB) *gorm.DB {
		return db.Unscoped()
	})
}

func (r *Repository) CreateUserCard(ctx context.Context, userCard *models.UserCard, tx *gorm.DB) error {
	if err := r.conn(ctx, tx).Create(userCard).Error; err != nil {
		return fmt.Errorf("failed to create user card: %w", err)
	}
	return nil
}

func (r *Repository) GetUserCard(ctx context.Context, id string, tx *gorm.DB) (*models.UserCard, error) {
	var userCard models.UserCard
	err := preloadCard(r.conn(ctx, tx)).First(&userCard, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user card %s: %w", id, err)
	}
	return &userCard, nil
}

func (r *Repository) ListUserCards(ctx context.Context, userID int64) ([]models.UserCard, error) {
	var userCards []models.UserCard
	err := preloadCard(r.db.WithContext(ctx)).
		Where("user_telegram_id = ?", userID).
		Order("purchased_at DESC").
		Find(&userCards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cards of user %d: %w", userID, err)
	}
	return userCards, nil
}

func (r *Repository) CountUserCards(ctx context.Context, userID int64, cardID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserCard{}).
		Where("user_telegram_id = ? AND card_id = ?", userID, cardID).
		Count(&count).Error
	return count, err
}

// SetRental lists the row for rent. Rows already flagged for withdrawal are
// not touched.
func (r *Repository) SetRental(ctx context.Context, id string, userID int64, price decimal.Decimal, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.UserCard{}).
		Where("id = ? AND user_telegram_id = ? AND is_withdrawn = ?", id, userID, false).
		Updates(map[string]interface{}{
			"is_rented":  true,
			"rent_price": price,
			"rent_until": until,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to list card %s for rent: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
