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

// BalanceDelta describes one atomic change of a balance row. Amount is signed
// and applied to Field; Earned and Spent are added to the lifetime totals.
type BalanceDelta struct {
	Field  models.BalanceField
	Amount decimal.Decimal
	Earned decimal.Decimal
	Spent  decimal.Decimal
	// RequireFunds makes a debit fail instead of driving Field below zero.
	RequireFunds bool
}

func (r *Repository) GetBalance(ctx context.Context, userID int64, tx *gorm.DB) (*models.Balance, error) {
	var balance models.Balance
	err := r.conn(ctx, tx).First(&balance, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}
	return &balance, nil
}

// EnsureBalance creates the all-zero row for userID if none exists yet.
func (r *Repository) EnsureBalance(ctx context.Context, userID int64, tx *gorm.DB) error {
	err := r.conn(ctx, tx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.NewBalance(userID, time.Now())).Error
	if err != nil {
		return fmt.Errorf("failed to create balance for user %d: %w", userID, err)
	}
	return nil
}

// ApplyBalanceDelta performs the change as a single UPDATE so concurrent
// writers never lose each other's increments. It reports false when the row is
// missing or, with RequireFunds, when the funds guard rejected the debit.
func (r *Repository) ApplyBalanceDelta(ctx context.Context, userID int64, delta BalanceDelta, tx *gorm.DB) (bool, error) {
	column, ok := delta.Field.Column()
	if !ok {
		return false, fmt.Errorf("unknown balance field %q", delta.Field)
	}

	updates := map[string]interface{}{
		column:       gorm.Expr(column+" + ?", delta.Amount),
		"updated_at": time.Now(),
	}
	if !delta.Earned.IsZero() {
		updates["total_earned"] = gorm.Expr("total_earned + ?", delta.Earned)
	}
	if !delta.Spent.IsZero() {
		updates["total_spent"] = gorm.Expr("total_spent + ?", delta.Spent)
	}

	q := r.conn(ctx, tx).Model(&models.Balance{}).Where("user_id = ?", userID)
	if delta.RequireFunds && delta.Amount.IsNegative() {
		q = q.Where(column+" >= ?", delta.Amount.Neg())
	}

	res := q.Updates(updates)
	if res.Error != nil {
		r.logger.Errorf("failed to apply balance delta for user %d: %v", userID, res.Error)
		return false, fmt.Errorf("failed to update balance: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
