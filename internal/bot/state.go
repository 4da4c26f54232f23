package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Константы состояний пользователя
const (
	stateDefault        = ""
	stateAwaitingWallet = "awaiting_wallet"
)

// sendMessage - унифицированная функция для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string, replyMarkup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Errorf("Failed to send message to %d: %v", chatID, err)
	}
}

func (b *Bot) answerCallback(callbackID string, text string) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Errorf("Failed to answer callback: %v", err)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.config.IsAdmin(userID)
}

// --- Функции для управления состоянием ---

func (b *Bot) setState(userID int64, state string) {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	if state == stateDefault {
		delete(b.userStates, userID)
	} else {
		b.userStates[userID] = state
	}
	b.logger.Debugf("Set state for user %d: %s", userID, state)
}

func (b *Bot) getUserState(userID int64) string {
	b.stateMutex.Lock()
	defer b.stateMutex.Unlock()
	return b.userStates[userID]
}
