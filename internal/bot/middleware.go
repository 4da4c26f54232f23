package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
)

func identityFrom(u *tgbotapi.User) models.Identity {
	return models.Identity{
		TelegramID:   u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.UserName,
		LanguageCode: u.LanguageCode,
	}
}

// withUserCheck makes sure the sender has a user row before the handler runs.
func (b *Bot) withUserCheck(handler func(context.Context, tgbotapi.Update, *models.TelegramUser)) func(context.Context, tgbotapi.Update) {
	return func(ctx context.Context, update tgbotapi.Update) {
		user, created, err := b.service.EnsureUser(ctx, identityFrom(update.Message.From))
		if err != nil {
			b.logger.Errorf("Failed to ensure user %d: %v", update.Message.From.ID, err)
			b.sendMessage(update.Message.Chat.ID, "Произошла ошибка. Попробуйте позже.", nil)
			return
		}
		if created {
			b.logger.Infof("New user %d registered from bot", user.TelegramID)
		}

		handler(ctx, update, user)
	}
}
