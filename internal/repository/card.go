package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) ListAvailableCards(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.WithContext(ctx).
		Where("is_available = ?", true).
		Order("created_at DESC").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list available cards: %w", err)
	}
	return cards, nil
}

func (r *Repository) ListAllCards(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

func (r *Repository) GetCard(ctx context.Context, id string, tx *gorm.DB) (*models.Card, error) {
	var card models.Card
	err := r.conn(ctx, tx).First(&card, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return &card, nil
}

func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

func (r *Repository) UpdateCard(ctx context.Context, card *models.Card) error {
	if err := r.db.WithContext(ctx).Save(card).Error; err != nil {
		return fmt.Errorf("failed to update card %s: %w", card.ID, err)
	}
	return nil
}

// DeleteCard soft-deletes the definition; ownership rows keep pointing at it.
func (r *Repository) DeleteCard(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Card{}, "id = ?", id)
	if res.Error != nil {
		r.logger.Errorf("ошибка удаления карты %s из БД: %v", id, res.Error)
		return false, fmt.Errorf("failed to delete card %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
