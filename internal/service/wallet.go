package service

import (
	"context"
	"strings"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/validation"
)

const defaultWalletChain = "ton"

// LinkWallet stores the user's connected wallet. It is used for display and
// as the default withdrawal target.
func (s *Service) LinkWallet(ctx context.Context, userID int64, address, chain string) (*models.TelegramUser, error) {
	address, err := validation.WalletAddress(address)
	if err != nil {
		return nil, err
	}
	chain = strings.ToLower(strings.TrimSpace(chain))
	if chain == "" {
		chain = defaultWalletChain
	}

	ok, err := s.repo.UpdateUserWallet(ctx, userID, address, chain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	s.logger.Infof("User %d linked %s wallet %s", userID, chain, address)
	return s.repo.GetUser(ctx, userID, nil)
}

func (s *Service) UnlinkWallet(ctx context.Context, userID int64) (*models.TelegramUser, error) {
	ok, err := s.repo.UpdateUserWallet(ctx, userID, "", "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.repo.GetUser(ctx, userID, nil)
}
