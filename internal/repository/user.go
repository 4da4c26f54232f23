package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetUser(ctx context.Context, telegramID int64, tx *gorm.DB) (*models.TelegramUser, error) {
	var user models.TelegramUser
	err := r.conn(ctx, tx).First(&user, "telegram_id = ?", telegramID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return &user, nil
}

// CreateUserIfAbsent inserts the user unless the telegram id is already known.
func (r *Repository) CreateUserIfAbsent(ctx context.Context, user *models.TelegramUser, tx *gorm.DB) (bool, error) {
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create user %d: %w", user.TelegramID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) UpdateUserProfile(ctx context.Context, user *models.TelegramUser, tx *gorm.DB) error {
	err := r.conn(ctx, tx).
		Model(&models.TelegramUser{}).
		Where("telegram_id = ?", user.TelegramID).
		Updates(map[string]interface{}{
			"first_name":    user.FirstName,
			"last_name":     user.LastName,
			"username":      user.Username,
			"language_code": user.LanguageCode,
			"updated_at":    time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.TelegramID, err)
	}
	return nil
}

// SetUserReferrer records the referrer and launch parameter once; later calls
// leave the row alone and report false.
func (r *Repository) SetUserReferrer(ctx context.Context, telegramID, referrerID int64, startParam string, tx *gorm.DB) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.TelegramUser{}).
		Where("telegram_id = ? AND referrer_id IS NULL", telegramID).
		Updates(map[string]interface{}{
			"referrer_id": referrerID,
			"start_param": startParam,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set referrer for user %d: %w", telegramID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListUserOverviews returns users newest first with their balance, owned card
// count and invite count.
func (r *Repository) ListUserOverviews(ctx context.Context, limit, offset int) ([]models.UserOverview, error) {
	var users []models.TelegramUser
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		return []models.UserOverview{}, nil
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.TelegramID)
	}

	var balances []models.Balance
	if err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	balanceByUser := make(map[int64]models.Balance, len(balances))
	for _, b := range balances {
		balanceByUser[b.UserID] = b
	}

	type counter struct {
		UserID int64
		Total  int64
	}

	var cardCounts []counter
	err := r.db.WithContext(ctx).
		Model(&models.UserCard{}).
		Select("user_telegram_id AS user_id, COUNT(*) AS total").
		Where("user_telegram_id IN ?", ids).
		Group("user_telegram_id").
		Scan(&cardCounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}

	var referralCounts []counter
	err = r.db.WithContext(ctx).
		Model(&models.Referral{}).
		Select("referrer_telegram_id AS user_id, COUNT(*) AS total").
		Where("referrer_telegram_id IN ?", ids).
		Group("referrer_telegram_id").
		Scan(&referralCounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	cards := make(map[int64]int64, len(cardCounts))
	for _, c := range cardCounts {
		cards[c.UserID] = c.Total
	}
	referrals := make(map[int64]int64, len(referralCounts))
	for _, c := range referralCounts {
		referrals[c.UserID] = c.Total
	}

	overviews := make([]models.UserOverview, 0, len(users))
	for _, u := range users {
		balance, ok := balanceByUser[u.TelegramID]
		if !ok {
			balance = *models.NewBalance(u.TelegramID, u.CreatedAt)
		}
		overviews = append(overviews, models.UserOverview{
			User:          u,
			Balance:       balance,
			CardCount:     cards[u.TelegramID],
			ReferralCount: referrals[u.TelegramID],
		})
	}
	return overviews, nil
}
