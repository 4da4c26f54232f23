package bot

import (
	"context"
	"fmt"

	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
)

// RegisterEventHandlers subscribes the bot's notifications to the service
// events.
func (b *Bot) RegisterEventHandlers(m *events.Manager) {
	m.Subscribe(events.EventReferralRewarded, b.onReferralRewarded)
	m.Subscribe(events.EventWithdrawalRequested, b.onWithdrawalRequested)
	m.Subscribe(events.EventWithdrawalResolved, b.onWithdrawalResolved)
}

func rewardUnit(field string) string {
	switch models.BalanceField(field) {
	case models.FieldSpendable:
		return "RUB"
	case models.FieldToken:
		return "TON"
	}
	return "баллов"
}

func (b *Bot) onReferralRewarded(_ context.Context, event events.Event) error {
	data, ok := event.Data.(events.ReferralRewardedData)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Data, event.Type)
	}
	b.logger.Infof("NOTIFY: referral bonus for user %d, purchase %s", data.ReferrerID, data.PurchaseID)
	b.sendMessage(data.ReferrerID, fmt.Sprintf(
		"🎉 Ваш друг совершил покупку!\n\nВам начислено `%s` %s.",
		data.Amount.StringFixed(2), rewardUnit(data.Field),
	), nil)
	return nil
}

func (b *Bot) onWithdrawalRequested(_ context.Context, event events.Event) error {
	data, ok := event.Data.(events.WithdrawalRequestedData)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Data, event.Type)
	}
	if b.config.AdminChatID == 0 {
		b.logger.Warnf("NOTIFY: ADMIN_CHAT_ID is not set, withdrawal %s not announced", data.OwnershipID)
		return nil
	}

	msg := fmt.Sprintf(
		"🆕 Новый запрос на вывод\n\n"+
			"🆔 `%s`\n"+
			"👤 *Пользователь:* `%d`\n"+
			"🎴 *Карта:* %s\n"+
			"🧾 *Адрес:* `%s`",
		data.OwnershipID, data.UserID, escapeMarkdown(data.CardTitle), data.Address,
	)
	b.logger.Infof("NOTIFY: sending withdrawal %s to admin chat %d", data.OwnershipID, b.config.AdminChatID)
	b.sendMessage(b.config.AdminChatID, msg, withdrawalKeyboard(data.OwnershipID))
	return nil
}

func (b *Bot) onWithdrawalResolved(_ context.Context, event events.Event) error {
	data, ok := event.Data.(events.WithdrawalResolvedData)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Data, event.Type)
	}

	title := escapeMarkdown(data.CardTitle)
	var msg string
	if data.Approved {
		msg = fmt.Sprintf("✅ Вывод карты «%s» одобрен. Перевод будет выполнен в ближайшее время.", title)
	} else {
		msg = fmt.Sprintf("❌ Запрос на вывод карты «%s» отклонён. Карта осталась в вашей коллекции.", title)
	}
	b.sendMessage(data.UserID, msg, nil)
	return nil
}
