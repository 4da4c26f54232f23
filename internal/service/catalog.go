package service

import (
	"context"
	"errors"
	"time"

	"github.com/worckguarddev/ton-trip-bonanza/internal/cache"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
)

// OwnedCard is an ownership row as shown to its owner.
type OwnedCard struct {
	models.UserCard
	// CardMissing is set when the definition was deleted after purchase.
	CardMissing  bool `json:"card_missing"`
	RentalActive bool `json:"rental_active"`
}

// ListAvailable returns purchasable cards, newest first.
func (s *Service) ListAvailable(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	err := cache.GetJSON(ctx, s.cache, catalogCacheKey, &cards)
	if err == nil {
		return cards, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Warnf("catalog cache read failed: %v", err)
	}

	cards, err = s.repo.ListAvailableCards(ctx)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, s.cache, catalogCacheKey, cards, s.catalogTTL()); err != nil {
		s.logger.Warnf("catalog cache write failed: %v", err)
	}
	return cards, nil
}

func (s *Service) catalogTTL() time.Duration {
	if s.config != nil && s.config.CatalogCacheTTL > 0 {
		return s.config.CatalogCacheTTL
	}
	return 30 * time.Second
}

// ListOwned returns the user's ownership rows joined with their definitions.
// Rows whose definition is gone are returned flagged, not dropped.
func (s *Service) ListOwned(ctx context.Context, userID int64) ([]OwnedCard, error) {
	rows, err := s.repo.ListUserCards(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	owned := make([]OwnedCard, 0, len(rows))
	for _, row := range rows {
		missing := row.Card == nil || row.Card.DeletedAt.Valid
		if missing {
			s.logger.Warnf("ownership %s of user %d points at missing card %s", row.ID, userID, row.CardID)
		}
		owned = append(owned, OwnedCard{
			UserCard:     row,
			CardMissing:  missing,
			RentalActive: row.RentalActive(now),
		})
	}
	return owned, nil
}
