package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.withUserCheck(func(ctx context.Context, update tgbotapi.Update, user *models.TelegramUser) {
		msg := update.Message
		chatID := msg.Chat.ID
		userID := user.TelegramID

		b.logger.Infof("Processing message from user %d: %s", userID, msg.Text)

		if b.getUserState(userID) == stateAwaitingWallet && !msg.IsCommand() {
			b.handleWalletInput(ctx, chatID, user, msg.Text)
			return
		}

		switch {
		case msg.IsCommand() && msg.Command() == "start":
			b.handleStart(ctx, chatID, msg, msg.CommandArguments())
		case msg.Text == btnBalance || msg.Command() == "balance":
			b.handleBalanceRequest(ctx, chatID, user)
		case msg.Text == btnReferrals || msg.Command() == "ref":
			b.handleReferralsRequest(ctx, chatID, user)
		case msg.Text == btnMyCards || msg.Command() == "cards":
			b.handleCardsRequest(ctx, chatID, user)
		case msg.Text == btnWallet:
			b.setState(userID, stateAwaitingWallet)
			b.sendMessage(chatID, "Отправьте адрес вашего TON-кошелька:", tgbotapi.NewRemoveKeyboard(true))
		case msg.Command() == "withdrawals" && b.isAdmin(userID):
			b.handleWithdrawalRequests(ctx, chatID)
		default:
			b.setState(userID, stateDefault)
			b.sendMessage(chatID, "Неизвестная команда. Используйте меню.", GetMainMenu())
		}
	})(ctx, update)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64, msg *tgbotapi.Message, payload string) {
	res, err := b.service.RegisterLaunch(ctx, identityFrom(msg.From), strings.TrimSpace(payload))
	if err != nil {
		b.logger.Errorf("Failed to register launch of user %d: %v", msg.From.ID, err)
		b.sendMessage(chatID, "Произошла ошибка. Попробуйте позже.", GetMainMenu())
		return
	}

	text := fmt.Sprintf("Добро пожаловать в TonTrip Bonanza, %s!\n\nПокупайте бонусные карты путешествий и приглашайте друзей.",
		escapeMarkdown(res.User.DisplayName()))
	if res.Referred {
		text += "\n\n🤝 Вы пришли по приглашению друга."
	}
	text += fmt.Sprintf("\n\nВаша реферальная ссылка:\n%s", escapeMarkdown(b.service.ReferralLink(res.User.TelegramID)))
	b.sendMessage(chatID, text, GetMainMenu())
	if kb := b.miniAppKeyboard(); kb != nil {
		b.sendMessage(chatID, "Каталог карт доступен в приложении:", kb)
	}
}

func formatBalance(balance *models.Balance) string {
	return fmt.Sprintf(
		"💰 *Ваш баланс*\n\n"+
			"RUB: `%s`\n"+
			"TON: `%s`\n"+
			"Бонусные баллы: `%s`\n\n"+
			"Всего заработано: `%s`\n"+
			"Всего потрачено: `%s`",
		balance.RubBalance.StringFixed(2),
		balance.TonBalance.StringFixed(2),
		balance.BonusPoints.StringFixed(2),
		balance.TotalEarned.StringFixed(2),
		balance.TotalSpent.StringFixed(2),
	)
}

func (b *Bot) handleBalanceRequest(ctx context.Context, chatID int64, user *models.TelegramUser) {
	balance, err := b.service.GetOrCreateBalance(ctx, user.TelegramID)
	if err != nil {
		b.logger.Errorf("Failed to get balance of user %d: %v", user.TelegramID, err)
		b.sendMessage(chatID, "Не удалось получить баланс. Попробуйте позже.", GetMainMenu())
		return
	}
	b.sendMessage(chatID, formatBalance(balance), GetMainMenu())
}

func formatReferrals(overview *service.ReferralOverview) string {
	var sb strings.Builder
	sb.WriteString("👥 *Реферальная программа*\n\n")
	sb.WriteString(fmt.Sprintf("Ваша ссылка:\n%s\n\n", escapeMarkdown(overview.Link)))
	sb.WriteString(fmt.Sprintf("Приглашено: %d (активных: %d)\n", overview.Stats.Total, overview.Stats.Active))
	sb.WriteString(fmt.Sprintf("Заработано: `%s`", overview.Stats.TotalEarned.StringFixed(2)))
	return sb.String()
}

func (b *Bot) handleReferralsRequest(ctx context.Context, chatID int64, user *models.TelegramUser) {
	overview, err := b.service.ListReferrals(ctx, user.TelegramID)
	if err != nil {
		b.logger.Errorf("Failed to list referrals of user %d: %v", user.TelegramID, err)
		b.sendMessage(chatID, "Не удалось получить список рефералов.", GetMainMenu())
		return
	}
	b.sendMessage(chatID, formatReferrals(overview), GetMainMenu())
}

func (b *Bot) handleCardsRequest(ctx context.Context, chatID int64, user *models.TelegramUser) {
	owned, err := b.service.ListOwned(ctx, user.TelegramID)
	if err != nil {
		b.logger.Errorf("Failed to list cards of user %d: %v", user.TelegramID, err)
		b.sendMessage(chatID, "Не удалось получить список карт.", GetMainMenu())
		return
	}
	if len(owned) == 0 {
		b.sendMessage(chatID, "У вас пока нет карт.", b.miniAppKeyboard())
		return
	}

	var sb strings.Builder
	sb.WriteString("🎴 *Ваши карты*\n\n")
	for _, c := range owned {
		title := "карта удалена"
		if !c.CardMissing && c.Card != nil {
			title = escapeMarkdown(c.Card.Title)
		}
		sb.WriteString(fmt.Sprintf("• %s за `%s`", title, c.PricePaid.StringFixed(2)))
		switch {
		case c.WithdrawalStatus == models.WithdrawalPending:
			sb.WriteString(" (ожидает вывода)")
		case c.WithdrawalStatus == models.WithdrawalApproved:
			sb.WriteString(" (выведена)")
		case c.RentalActive:
			sb.WriteString(" (в аренде)")
		}
		sb.WriteString("\n")
	}
	b.sendMessage(chatID, sb.String(), GetMainMenu())
}

func (b *Bot) handleWalletInput(ctx context.Context, chatID int64, user *models.TelegramUser, text string) {
	_, err := b.service.LinkWallet(ctx, user.TelegramID, text, "")
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			b.sendMessage(chatID, "❌ Неверный адрес кошелька. Попробуйте ещё раз:", nil)
			return
		}
		b.logger.Errorf("Failed to link wallet of user %d: %v", user.TelegramID, err)
		b.setState(user.TelegramID, stateDefault)
		b.sendMessage(chatID, "Ошибка сохранения кошелька. Попробуйте позже.", GetMainMenu())
		return
	}

	b.setState(user.TelegramID, stateDefault)
	b.sendMessage(chatID, "✅ Кошелёк привязан!", GetMainMenu())
}
