package repository

import (
	"context"

	"github.com/worckguarddev/ton-trip-bonanza/utils"
	"gorm.io/gorm"
)

type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// conn picks the open transaction when there is one.
func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	db := tx
	if tx == nil {
		db = r.db
	}
	return db.WithContext(ctx)
}
