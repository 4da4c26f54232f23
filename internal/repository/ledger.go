package repository

import (
	"context"
	"fmt"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry, tx *gorm.DB) error {
	if err := r.conn(ctx, tx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *Repository) ListLedgerEntries(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger for user %d: %w", userID, err)
	}
	return entries, nil
}
