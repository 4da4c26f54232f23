package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
)

// MarkWithdrawalRequested flags the row for withdrawal unless it already is.
func (r *Repository) MarkWithdrawalRequested(ctx context.Context, id string, userID int64, address string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.UserCard{}).
		Where("id = ? AND user_telegram_id = ? AND is_withdrawn = ?", id, userID, false).
		Updates(map[string]interface{}{
			"is_withdrawn":            true,
			"blockchain_address":      address,
			"withdrawal_status":       models.WithdrawalPending,
			"withdrawal_requested_at": now,
			"withdrawal_resolved_at":  nil,
		})
	if res.Error != nil {
		r.logger.Errorf("ошибка создания заявки на вывод карты %s: %v", id, res.Error)
		return false, fmt.Errorf("failed to request withdrawal: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Получает все заявки со статусом pending, самые старые первыми
func (r *Repository) ListPendingWithdrawals(ctx context.Context) ([]models.UserCard, error) {
	var userCards []models.UserCard
	err := preloadCard(r.db.WithContext(ctx)).
		Where("is_withdrawn = ? AND withdrawal_status = ?", true, models.WithdrawalPending).
		Order("withdrawal_requested_at ASC").
		Find(&userCards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending withdrawals: %w", err)
	}
	return userCards, nil
}

// ApproveWithdrawal moves a pending request to the terminal approved state.
func (r *Repository) ApproveWithdrawal(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.UserCard{}).
		Where("id = ? AND withdrawal_status = ?", id, models.WithdrawalPending).
		Updates(map[string]interface{}{
			"withdrawal_status":      models.WithdrawalApproved,
			"withdrawal_resolved_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to approve withdrawal %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RejectWithdrawal puts a pending request back to the pre-request state.
func (r *Repository) RejectWithdrawal(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.UserCard{}).
		Where("id = ? AND withdrawal_status = ?", id, models.WithdrawalPending).
		Updates(map[string]interface{}{
			"is_withdrawn":            false,
			"blockchain_address":      nil,
			"withdrawal_status":       models.WithdrawalNone,
			"withdrawal_requested_at": nil,
			"withdrawal_resolved_at":  nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to reject withdrawal %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
