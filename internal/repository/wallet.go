package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
)

// UpdateUserWallet stores the linked wallet; an empty address unlinks it.
func (r *Repository) UpdateUserWallet(ctx context.Context, telegramID int64, address, chain string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TelegramUser{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]interface{}{
			"wallet_address": address,
			"wallet_chain":   chain,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		r.logger.Errorf("failed to update wallet for user %d: %v", telegramID, res.Error)
		return false, fmt.Errorf("failed to update wallet: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
