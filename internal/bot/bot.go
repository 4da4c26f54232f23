package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/worckguarddev/ton-trip-bonanza/config"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

// sender is the part of tgbotapi.BotAPI the handlers talk to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	API        *tgbotapi.BotAPI
	sender     sender
	service    *service.Service
	admin      *service.AdminService
	logger     *utils.Logger
	userStates map[int64]string
	stateMutex *sync.Mutex
	config     *config.Config
}

func NewBot(
	api *tgbotapi.BotAPI,
	svc *service.Service,
	admin *service.AdminService,
	logger *utils.Logger,
	config *config.Config,
) *Bot {
	return &Bot{
		API:        api,
		sender:     api,
		service:    svc,
		admin:      admin,
		logger:     logger,
		userStates: make(map[int64]string),
		stateMutex: &sync.Mutex{},
		config:     config,
	}
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Starting bot...")
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.API.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.API.StopReceivingUpdates()
			b.logger.Info("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.logger.Debugf("Received update: %d", update.UpdateID)
			if update.CallbackQuery != nil {
				b.handleCallbackQuery(ctx, update.CallbackQuery)
				continue
			}
			if update.Message != nil && update.Message.From != nil {
				b.HandleUpdate(ctx, update)
			}
		}
	}
}

const (
	btnBalance   = "💰 Баланс"
	btnReferrals = "👥 Рефералы"
	btnMyCards   = "🎴 Мои карты"
	btnWallet    = "🔗 Привязать кошелёк"
)

func GetMainMenu() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBalance),
			tgbotapi.NewKeyboardButton(btnMyCards),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnReferrals),
			tgbotapi.NewKeyboardButton(btnWallet),
		),
	)
}

// miniAppKeyboard links to the Mini App, or is nil when no URL is configured.
func (b *Bot) miniAppKeyboard() interface{} {
	if b.config.MiniAppURL == "" {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🚀 Открыть TonTrip Bonanza", b.config.MiniAppURL),
		),
	)
}
