package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/cache"
	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/internal/validation"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
	"gorm.io/gorm"
)

// AdminService is the operator escape hatch. Its writes skip the user-facing
// guards: balances may go negative and withdrawals are resolved directly.
type AdminService struct {
	repo   AdminRepository
	cache  cache.Cache
	events *events.Manager
	logger *utils.Logger
	now    func() time.Time
}

type AdminRepository interface {
	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)

	GetBalance(ctx context.Context, userID int64, tx *gorm.DB) (*models.Balance, error)
	EnsureBalance(ctx context.Context, userID int64, tx *gorm.DB) error
	ApplyBalanceDelta(ctx context.Context, userID int64, delta repository.BalanceDelta, tx *gorm.DB) (bool, error)
	AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry, tx *gorm.DB) error
	ListUserOverviews(ctx context.Context, limit, offset int) ([]models.UserOverview, error)

	ListAllCards(ctx context.Context) ([]models.Card, error)
	GetCard(ctx context.Context, id string, tx *gorm.DB) (*models.Card, error)
	CreateCard(ctx context.Context, card *models.Card) error
	UpdateCard(ctx context.Context, card *models.Card) error
	DeleteCard(ctx context.Context, id string) (bool, error)

	GetUserCard(ctx context.Context, id string, tx *gorm.DB) (*models.UserCard, error)
	ListPendingWithdrawals(ctx context.Context) ([]models.UserCard, error)
	ApproveWithdrawal(ctx context.Context, id string, now time.Time) (bool, error)
	RejectWithdrawal(ctx context.Context, id string) (bool, error)
}

func NewAdminService(repo AdminRepository, c cache.Cache, ev *events.Manager, logger *utils.Logger) *AdminService {
	if c == nil {
		c = cache.NewInMemoryCache()
	}
	return &AdminService{
		repo:   repo,
		cache:  c,
		events: ev,
		logger: logger,
		now:    time.Now,
	}
}

// CardInput carries the editable fields of a card definition.
type CardInput struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=4000"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	Price       decimal.Decimal `json:"price"`
	Rarity      models.Rarity   `json:"rarity" validate:"required,oneof=common rare epic legendary"`
	IsAvailable *bool           `json:"is_available"`
	Benefits    json.RawMessage `json:"benefits"`
}

func (in *CardInput) validate() error {
	in.Title = validation.SanitizeString(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := validation.Struct(in); err != nil {
		return err
	}
	in.Price = utils.RoundMoney(in.Price)
	if !in.Price.IsPositive() {
		return invalid("price", "must be positive")
	}
	if len(in.Benefits) > 0 && !json.Valid(in.Benefits) {
		return invalid("benefits", "must be valid JSON")
	}
	return nil
}

func (in *CardInput) apply(card *models.Card) {
	card.Title = in.Title
	card.Description = in.Description
	card.ImageURL = in.ImageURL
	card.Price = in.Price
	card.Rarity = in.Rarity
	if in.IsAvailable != nil {
		card.IsAvailable = *in.IsAvailable
	}
	if len(in.Benefits) > 0 {
		card.Benefits = models.JSON(in.Benefits)
	}
}

// AdjustBalance adds delta to the named pool without any funds check.
func (a *AdminService) AdjustBalance(ctx context.Context, userID int64, field models.BalanceField, delta decimal.Decimal, reason string) (*models.Balance, error) {
	if userID <= 0 {
		return nil, invalid("user_id", "must be positive")
	}
	if _, ok := field.Column(); !ok {
		return nil, invalid("field", "unknown balance field")
	}
	delta = utils.RoundMoney(delta)
	if delta.IsZero() {
		return nil, invalid("delta", "must not be zero")
	}

	earned := decimal.Zero
	if field == models.FieldBonusPoints && delta.IsPositive() {
		earned = delta
	}

	var balance *models.Balance
	err := withTransaction(ctx, a.repo, a.logger, func(tx *gorm.DB) error {
		if err := a.repo.EnsureBalance(ctx, userID, tx); err != nil {
			return err
		}
		ok, err := a.repo.ApplyBalanceDelta(ctx, userID, repository.BalanceDelta{
			Field:  field,
			Amount: delta,
			Earned: earned,
		}, tx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if err := a.repo.AppendLedgerEntry(ctx, &models.LedgerEntry{
			ID:        uuid.NewString(),
			UserID:    userID,
			Field:     field,
			Delta:     delta,
			Kind:      models.LedgerAdminAdjust,
			Reference: reason,
			CreatedAt: a.now(),
		}, tx); err != nil {
			return err
		}
		balance, err = a.repo.GetBalance(ctx, userID, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.logger.Warnf("ADMIN: adjusted %s of user %d by %s (%s)", field, userID, delta.StringFixed(2), reason)
	return balance, nil
}

func (a *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]models.UserOverview, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return a.repo.ListUserOverviews(ctx, limit, offset)
}

func (a *AdminService) ListAllCards(ctx context.Context) ([]models.Card, error) {
	return a.repo.ListAllCards(ctx)
}

func (a *AdminService) CreateCard(ctx context.Context, in CardInput) (*models.Card, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	card := &models.Card{ID: uuid.NewString(), IsAvailable: true}
	in.apply(card)
	if err := a.repo.CreateCard(ctx, card); err != nil {
		return nil, err
	}

	a.invalidateCatalog(ctx)
	a.logger.Infof("ADMIN: created card %s %q", card.ID, card.Title)
	return card, nil
}

func (a *AdminService) UpdateCard(ctx context.Context, id string, in CardInput) (*models.Card, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	card, err := a.repo.GetCard(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}

	in.apply(card)
	if err := a.repo.UpdateCard(ctx, card); err != nil {
		return nil, err
	}

	a.invalidateCatalog(ctx)
	a.logger.Infof("ADMIN: updated card %s", card.ID)
	return card, nil
}

// DeleteCard removes the definition from the catalog. Existing ownership rows
// stay and are reported as pointing at a missing card.
func (a *AdminService) DeleteCard(ctx context.Context, id string) error {
	ok, err := a.repo.DeleteCard(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCardNotFound
	}

	a.invalidateCatalog(ctx)
	a.logger.Infof("ADMIN: deleted card %s", id)
	return nil
}

func (a *AdminService) invalidateCatalog(ctx context.Context) {
	if err := a.cache.Delete(ctx, catalogCacheKey); err != nil {
		a.logger.Warnf("failed to invalidate catalog cache: %v", err)
	}
}

// ListWithdrawalRequests returns pending requests, oldest first.
func (a *AdminService) ListWithdrawalRequests(ctx context.Context) ([]models.UserCard, error) {
	return a.repo.ListPendingWithdrawals(ctx)
}

// ApproveWithdrawal records the terminal approved state. The flag and target
// address stay on the row.
func (a *AdminService) ApproveWithdrawal(ctx context.Context, ownershipID string) (*models.UserCard, error) {
	return a.resolveWithdrawal(ctx, ownershipID, true)
}

// RejectWithdrawal clears the flag and address; ownership is untouched.
func (a *AdminService) RejectWithdrawal(ctx context.Context, ownershipID string) (*models.UserCard, error) {
	return a.resolveWithdrawal(ctx, ownershipID, false)
}

func (a *AdminService) resolveWithdrawal(ctx context.Context, ownershipID string, approve bool) (*models.UserCard, error) {
	row, err := a.repo.GetUserCard(ctx, ownershipID, nil)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	if row.WithdrawalStatus != models.WithdrawalPending {
		return nil, ErrInvalidState
	}

	var ok bool
	if approve {
		ok, err = a.repo.ApproveWithdrawal(ctx, row.ID, a.now())
	} else {
		ok, err = a.repo.RejectWithdrawal(ctx, row.ID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	updated, err := a.repo.GetUserCard(ctx, row.ID, nil)
	if err != nil {
		return nil, err
	}

	a.logger.Infof("ADMIN: withdrawal %s of user %d resolved, approved=%t", row.ID, row.UserTelegramID, approve)
	if a.events != nil {
		a.events.Publish(ctx, events.EventWithdrawalResolved, events.WithdrawalResolvedData{
			OwnershipID: row.ID,
			UserID:      row.UserTelegramID,
			CardTitle:   cardTitle(updated),
			Approved:    approve,
		})
	}
	return updated, nil
}
