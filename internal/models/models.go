package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// JSON is an opaque structured payload stored as text.
type JSON json.RawMessage

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return errors.New("unsupported JSON column type")
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], data...)
	return nil
}

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// BalanceField names one of the three spendable pools of a Balance.
type BalanceField string

const (
	FieldSpendable   BalanceField = "spendable"
	FieldToken       BalanceField = "token"
	FieldBonusPoints BalanceField = "bonus_points"
)

// Column maps the field to its column in user_balances.
func (f BalanceField) Column() (string, bool) {
	switch f {
	case FieldSpendable:
		return "rub_balance", true
	case FieldToken:
		return "ton_balance", true
	case FieldBonusPoints:
		return "bonus_points", true
	}
	return "", false
}

type TelegramUser struct {
	TelegramID    int64     `gorm:"primaryKey;autoIncrement:false" json:"telegram_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name,omitempty"`
	Username      string    `json:"username,omitempty"`
	LanguageCode  string    `json:"language_code,omitempty"`
	StartParam    string    `json:"start_param,omitempty"`
	ReferrerID    *int64    `gorm:"index" json:"referrer_id,omitempty"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	WalletChain   string    `json:"wallet_chain,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u *TelegramUser) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Balance struct {
	UserID      int64           `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RubBalance  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"rub_balance"`
	TonBalance  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"ton_balance"`
	BonusPoints decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"bonus_points"`
	TotalEarned decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_earned"`
	TotalSpent  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_spent"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Balance) TableName() string {
	return "user_balances"
}

func NewBalance(userID int64, now time.Time) *Balance {
	return &Balance{
		UserID:      userID,
		RubBalance:  decimal.Zero,
		TonBalance:  decimal.Zero,
		BonusPoints: decimal.Zero,
		TotalEarned: decimal.Zero,
		TotalSpent:  decimal.Zero,
		UpdatedAt:   now,
	}
}

// AfterFind drops float noise some drivers hand back for numeric columns.
func (b *Balance) AfterFind(tx *gorm.DB) error {
	b.RubBalance = b.RubBalance.Round(2)
	b.TonBalance = b.TonBalance.Round(2)
	b.BonusPoints = b.BonusPoints.Round(2)
	b.TotalEarned = b.TotalEarned.Round(2)
	b.TotalSpent = b.TotalSpent.Round(2)
	return nil
}

// Get returns the value of the named pool.
func (b *Balance) Get(field BalanceField) decimal.Decimal {
	switch field {
	case FieldSpendable:
		return b.RubBalance
	case FieldToken:
		return b.TonBalance
	case FieldBonusPoints:
		return b.BonusPoints
	}
	return decimal.Zero
}

type Card struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title       string          `gorm:"not null" json:"title"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Price       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"price"`
	Rarity      Rarity          `gorm:"type:varchar(16);not null" json:"rarity"`
	IsAvailable bool            `gorm:"not null;index" json:"is_available"`
	Benefits    JSON            `gorm:"type:text" json:"benefits,omitempty"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Card) TableName() string {
	return "bonus_cards"
}

type WithdrawalStatus string

const (
	WithdrawalNone     WithdrawalStatus = ""
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
)

// RentalPeriod is how long a rent listing stays active.
const RentalPeriod = 30 * 24 * time.Hour

// UserCard is one purchase event. Its ID doubles as the purchase event id.
type UserCard struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserTelegramID int64           `gorm:"not null;index" json:"user_telegram_id"`
	CardID         string          `gorm:"type:varchar(36);not null;index" json:"card_id"`
	Card           *Card           `gorm:"foreignKey:CardID" json:"card,omitempty"`
	PricePaid      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"price_paid"`
	PurchasedAt    time.Time       `gorm:"not null" json:"purchased_at"`

	IsRented  bool                `gorm:"not null;default:false" json:"is_rented"`
	RentPrice decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"rent_price"`
	RentUntil *time.Time          `json:"rent_until,omitempty"`

	IsWithdrawn           bool             `gorm:"not null;default:false;index" json:"is_withdrawn"`
	BlockchainAddress     *string          `json:"blockchain_address,omitempty"`
	WithdrawalStatus      WithdrawalStatus `gorm:"type:varchar(16);not null;default:'';index" json:"withdrawal_status"`
	WithdrawalRequestedAt *time.Time       `json:"withdrawal_requested_at,omitempty"`
	WithdrawalResolvedAt  *time.Time       `json:"withdrawal_resolved_at,omitempty"`
}

// RentalActive reports whether the rent listing is still inside its window at now.
func (uc *UserCard) RentalActive(now time.Time) bool {
	return uc.IsRented && uc.RentUntil != nil && now.Before(*uc.RentUntil)
}

// PendingWithdrawal reports the derived "pending request" view of the row.
func (uc *UserCard) PendingWithdrawal() bool {
	return uc.IsWithdrawn && uc.BlockchainAddress != nil && *uc.BlockchainAddress != "" &&
		uc.WithdrawalStatus == WithdrawalPending
}

type ReferralStatus string

const (
	ReferralPending ReferralStatus = "pending"
	ReferralActive  ReferralStatus = "active"
)

type Referral struct {
	ID                 string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ReferrerTelegramID int64           `gorm:"not null;index;uniqueIndex:idx_referrer_referred" json:"referrer_telegram_id"`
	ReferredTelegramID int64           `gorm:"not null;uniqueIndex;uniqueIndex:idx_referrer_referred" json:"referred_telegram_id"`
	StartParam         string          `json:"start_param"`
	BonusAmount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"bonus_amount"`
	Status             ReferralStatus  `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	ReferredUser *TelegramUser `gorm:"foreignKey:ReferredTelegramID;references:TelegramID" json:"referred_user,omitempty"`
}

func (r *Referral) AfterFind(tx *gorm.DB) error {
	r.BonusAmount = r.BonusAmount.Round(2)
	return nil
}

// ReferralReward marks a purchase event as already credited to a referrer.
type ReferralReward struct {
	PurchaseID string          `gorm:"primaryKey;type:varchar(36)" json:"purchase_id"`
	ReferralID string          `gorm:"type:varchar(36);not null;index" json:"referral_id"`
	ReferrerID int64           `gorm:"not null;index" json:"referrer_id"`
	BuyerID    int64           `gorm:"not null" json:"buyer_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Field      BalanceField    `gorm:"type:varchar(16);not null" json:"field"`
	CreatedAt  time.Time       `json:"created_at"`
}

type LedgerKind string

const (
	LedgerPurchase      LedgerKind = "purchase"
	LedgerReferralBonus LedgerKind = "referral_bonus"
	LedgerTopUp         LedgerKind = "top_up"
	LedgerAdjust        LedgerKind = "adjust"
	LedgerAdminAdjust   LedgerKind = "admin_adjust"
)

type LedgerEntry struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    int64           `gorm:"not null;index" json:"user_id"`
	Field     BalanceField    `gorm:"type:varchar(16);not null" json:"field"`
	Delta     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"delta"`
	Kind      LedgerKind      `gorm:"type:varchar(32);not null" json:"kind"`
	Reference string          `gorm:"index" json:"reference,omitempty"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
}

// Identity is what the session collaborator knows about the acting user.
type Identity struct {
	TelegramID   int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// UserOverview is the admin listing row for one user.
type UserOverview struct {
	User          TelegramUser `json:"user"`
	Balance       Balance      `json:"balance"`
	CardCount     int64        `json:"card_count"`
	ReferralCount int64        `json:"referral_count"`
}

type ReferralStats struct {
	Total       int64           `json:"total"`
	Active      int64           `json:"active"`
	TotalEarned decimal.Decimal `json:"total_earned"`
}
