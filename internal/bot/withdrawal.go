package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
)

const withdrawalsPerPage = 5

// Префиксы callback-данных админских кнопок
const (
	cbWithdrawPage    = "admin_withdraw_page"
	cbApprove         = "approve_withdrawal"
	cbConfirmApprove  = "confirm_approve_withdrawal"
	cbReject          = "reject_withdrawal"
	cbCancelAction    = "admin_cancel_action"
	callbackSeparator = ":"
)

// parseCallback splits "action:arg" callback data.
func parseCallback(data string) (action, arg string, err error) {
	action, arg, found := strings.Cut(data, callbackSeparator)
	switch action {
	case cbCancelAction:
		return action, "", nil
	case cbWithdrawPage:
		if !found {
			return "", "", fmt.Errorf("callback %q: missing page", data)
		}
		if _, err := strconv.Atoi(arg); err != nil {
			return "", "", fmt.Errorf("callback %q: bad page: %w", data, err)
		}
		return action, arg, nil
	case cbApprove, cbConfirmApprove, cbReject:
		if !found || arg == "" {
			return "", "", fmt.Errorf("callback %q: missing ownership id", data)
		}
		return action, arg, nil
	}
	return "", "", fmt.Errorf("unknown callback %q", data)
}

func withdrawalKeyboard(ownershipID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Одобрить", cbApprove+callbackSeparator+ownershipID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", cbReject+callbackSeparator+ownershipID),
		),
	)
}

func formatWithdrawal(row models.UserCard) string {
	title := "карта удалена"
	if row.Card != nil && row.Card.DeletedAt.Time.IsZero() {
		title = escapeMarkdown(row.Card.Title)
	}
	address := ""
	if row.BlockchainAddress != nil {
		address = *row.BlockchainAddress
	}
	return fmt.Sprintf(
		"🆔 `%s`\n👤 Пользователь: `%d`\n🎴 Карта: %s\n🧾 Адрес: `%s`\n",
		row.ID, row.UserTelegramID, title, address,
	)
}

// --- Логика вывода для админа ---

func (b *Bot) handleWithdrawalRequests(ctx context.Context, chatID int64) {
	rows, err := b.admin.ListWithdrawalRequests(ctx)
	if err != nil {
		b.logger.Errorf("Failed to get pending withdrawals: %v", err)
		b.sendMessage(chatID, "❌ Ошибка получения запросов на вывод", nil)
		return
	}
	if len(rows) == 0 {
		b.sendMessage(chatID, "ℹ️ Нет ожидающих запросов на вывод.", nil)
		return
	}
	b.sendWithdrawalsPage(chatID, rows, 0)
}

// withdrawalsPage renders one page of the queue. Out of range pages fall back
// to the first one.
func withdrawalsPage(rows []models.UserCard, page int) (string, tgbotapi.InlineKeyboardMarkup) {
	start := page * withdrawalsPerPage
	if page < 0 || start >= len(rows) {
		start = 0
		page = 0
	}
	end := start + withdrawalsPerPage
	if end > len(rows) {
		end = len(rows)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Запросы на вывод (страница %d из %d):\n\n", page+1, (len(rows)-1)/withdrawalsPerPage+1))

	keyboardRows := make([][]tgbotapi.InlineKeyboardButton, 0, end-start+1)
	for i := start; i < end; i++ {
		sb.WriteString(formatWithdrawal(rows[i]))
		sb.WriteString("\n")
		keyboardRows = append(keyboardRows, withdrawalKeyboard(rows[i].ID).InlineKeyboard[0])
	}

	if len(rows) > withdrawalsPerPage {
		paginationRow := make([]tgbotapi.InlineKeyboardButton, 0, 2)
		if page > 0 {
			paginationRow = append(paginationRow, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("%s:%d", cbWithdrawPage, page-1)))
		}
		if end < len(rows) {
			paginationRow = append(paginationRow, tgbotapi.NewInlineKeyboardButtonData("Вперед ➡️", fmt.Sprintf("%s:%d", cbWithdrawPage, page+1)))
		}
		if len(paginationRow) > 0 {
			keyboardRows = append(keyboardRows, paginationRow)
		}
	}
	return sb.String(), tgbotapi.NewInlineKeyboardMarkup(keyboardRows...)
}

func (b *Bot) sendWithdrawalsPage(chatID int64, rows []models.UserCard, page int) {
	text, keyboard := withdrawalsPage(rows, page)
	b.sendMessage(chatID, text, keyboard)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if !b.isAdmin(callback.From.ID) {
		b.answerCallback(callback.ID, "Это действие доступно только администратору.")
		return
	}

	action, arg, err := parseCallback(callback.Data)
	if err != nil {
		b.logger.Errorf("Invalid callback data: %v", err)
		b.answerCallback(callback.ID, "Ошибка: неверные данные кнопки.")
		return
	}

	var chatID int64
	var messageID int
	if callback.Message != nil {
		chatID = callback.Message.Chat.ID
		messageID = callback.Message.MessageID
	}

	switch action {
	case cbWithdrawPage:
		page, _ := strconv.Atoi(arg)
		rows, err := b.admin.ListWithdrawalRequests(ctx)
		if err != nil {
			b.logger.Errorf("Failed to get pending withdrawals: %v", err)
			b.answerCallback(callback.ID, "❌ Ошибка получения запросов")
			return
		}
		if len(rows) == 0 {
			b.answerCallback(callback.ID, "ℹ️ Очередь пуста")
			return
		}
		b.sendWithdrawalsPage(chatID, rows, page)
		b.answerCallback(callback.ID, "")

	case cbApprove:
		confirmText := "Вы уверены, что хотите одобрить этот вывод? Это действие необратимо."
		confirmKeyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Да, одобрить", cbConfirmApprove+callbackSeparator+arg),
				tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", cbCancelAction),
			),
		)
		if _, err := b.sender.Send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, confirmText, confirmKeyboard)); err != nil {
			b.logger.Errorf("Failed to edit message: %v", err)
		}
		b.answerCallback(callback.ID, "")

	case cbConfirmApprove, cbReject:
		approve := action == cbConfirmApprove
		b.resolveWithdrawal(ctx, callback, arg, approve)

	case cbCancelAction:
		if _, err := b.sender.Send(tgbotapi.NewEditMessageText(chatID, messageID, "❌ Действие отменено.")); err != nil {
			b.logger.Errorf("Failed to edit message: %v", err)
		}
		b.answerCallback(callback.ID, "")
	}
}

// resolveWithdrawal approves or rejects the request. The user is notified by
// the withdrawal.resolved subscriber.
func (b *Bot) resolveWithdrawal(ctx context.Context, callback *tgbotapi.CallbackQuery, ownershipID string, approve bool) {
	var err error
	if approve {
		_, err = b.admin.ApproveWithdrawal(ctx, ownershipID)
	} else {
		_, err = b.admin.RejectWithdrawal(ctx, ownershipID)
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		b.answerCallback(callback.ID, "❌ Заявка не найдена")
		return
	case errors.Is(err, service.ErrInvalidState):
		b.answerCallback(callback.ID, "ℹ️ Заявка уже обработана")
		return
	case err != nil:
		b.logger.Errorf("Ошибка обработки вывода %s: %v", ownershipID, err)
		b.answerCallback(callback.ID, "❌ Ошибка обработки вывода")
		return
	}

	if callback.Message != nil {
		b.sender.Request(tgbotapi.NewDeleteMessage(callback.Message.Chat.ID, callback.Message.MessageID))
	}
	if approve {
		b.answerCallback(callback.ID, "✅ Вывод одобрен")
	} else {
		b.answerCallback(callback.ID, "❌ Вывод отклонён")
	}
}
