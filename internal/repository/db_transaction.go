package repository

import (
	"context"

	"gorm.io/gorm"
)

func (r *Repository) BeginTransaction(ctx context.Context) (*gorm.DB, error) {
	r.logger.Debug("Starting transaction...")
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		r.logger.Errorf("Failed to start transaction: %v", tx.Error)
		return nil, tx.Error
	}
	return tx, nil
}

func (r *Repository) Commit(tx *gorm.DB) error {
	r.logger.Debug("Committing transaction...")
	if err := tx.Commit().Error; err != nil {
		r.logger.Errorf("Failed to commit transaction: %v", err)
		return err
	}
	return nil
}

func (r *Repository) Rollback(tx *gorm.DB) {
	r.logger.Warn("Rolling back transaction...")
	if err := tx.Rollback().Error; err != nil && err != gorm.ErrInvalidTransaction {
		r.logger.Errorf("Failed to roll back transaction: %v", err)
	}
}
