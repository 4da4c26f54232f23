package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/config"
	"github.com/worckguarddev/ton-trip-bonanza/db"
	"github.com/worckguarddev/ton-trip-bonanza/internal/cache"
	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

const testAdminChat = int64(777)

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) sentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

type testBot struct {
	bot    *Bot
	sender *fakeSender
	svc    *service.Service
	admin  *service.AdminService
	events *events.Manager
}

func setupTestBot(t *testing.T) *testBot {
	t.Helper()

	logger := utils.NewLogger("error")
	database, err := db.ConnectDb(filepath.Join(t.TempDir(), "bot_test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := db.Migrate(database, true, logger); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	cfg := &config.Config{
		AdminChatID:            testAdminChat,
		BotUsername:            "TestBonanzaBot",
		ReferralRewardCurrency: config.RewardCurrencyPoints,
		CatalogCacheTTL:        time.Minute,
	}
	ev := events.NewManager(true, logger)
	repo := repository.NewRepository(database, logger)
	c := cache.NewInMemoryCache()
	svc := service.NewService(repo, cfg, c, ev, logger)
	admin := service.NewAdminService(repo, c, ev, logger)

	sender := &fakeSender{}
	b := &Bot{
		sender:     sender,
		service:    svc,
		admin:      admin,
		logger:     logger,
		userStates: make(map[int64]string),
		stateMutex: &sync.Mutex{},
		config:     cfg,
	}
	b.RegisterEventHandlers(ev)
	t.Cleanup(ev.Shutdown)

	return &testBot{bot: b, sender: sender, svc: svc, admin: admin, events: ev}
}

func command(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Иван"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmdLen := len(text)
		if i := strings.IndexByte(text, ' '); i >= 0 {
			cmdLen = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	}
	return tgbotapi.Update{Message: msg}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data       string
		wantAction string
		wantArg    string
		wantErr    bool
	}{
		{"approve_withdrawal:abc", cbApprove, "abc", false},
		{"confirm_approve_withdrawal:abc", cbConfirmApprove, "abc", false},
		{"reject_withdrawal:abc", cbReject, "abc", false},
		{"admin_withdraw_page:2", cbWithdrawPage, "2", false},
		{"admin_cancel_action", cbCancelAction, "", false},
		{"admin_withdraw_page:two", "", "", true},
		{"approve_withdrawal:", "", "", true},
		{"approve_withdrawal", "", "", true},
		{"contact_user:1", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, arg, err := parseCallback(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q %q", action, arg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if action != tt.wantAction || arg != tt.wantArg {
				t.Errorf("got (%q, %q), want (%q, %q)", action, arg, tt.wantAction, tt.wantArg)
			}
		})
	}
}

func TestWithdrawalsPage(t *testing.T) {
	rows := make([]models.UserCard, 7)
	for i := range rows {
		rows[i] = models.UserCard{ID: string(rune('a' + i)), UserTelegramID: int64(i + 1)}
	}

	text, kb := withdrawalsPage(rows, 0)
	if !strings.Contains(text, "страница 1 из 2") {
		t.Errorf("unexpected header: %s", text)
	}
	// five request rows plus pagination
	if len(kb.InlineKeyboard) != 6 {
		t.Fatalf("expected 6 keyboard rows, got %d", len(kb.InlineKeyboard))
	}

	text, kb = withdrawalsPage(rows, 1)
	if !strings.Contains(text, "страница 2 из 2") {
		t.Errorf("unexpected header: %s", text)
	}
	if len(kb.InlineKeyboard) != 3 {
		t.Fatalf("expected 3 keyboard rows, got %d", len(kb.InlineKeyboard))
	}

	text, _ = withdrawalsPage(rows, 10)
	if !strings.Contains(text, "страница 1 из 2") {
		t.Errorf("out of range page should fall back to the first: %s", text)
	}
}

func TestHandleStartWithReferral(t *testing.T) {
	tb := setupTestBot(t)
	ctx := context.Background()

	tb.bot.HandleUpdate(ctx, command(10, "/start"))
	tb.bot.HandleUpdate(ctx, command(11, "/start ref_10"))

	overview, err := tb.svc.ListReferrals(ctx, 10)
	if err != nil {
		t.Fatalf("ListReferrals: %v", err)
	}
	if overview.Stats.Total != 1 {
		t.Fatalf("expected 1 referral, got %d", overview.Stats.Total)
	}

	msgs := tb.sender.sentTo(11)
	if len(msgs) == 0 || !strings.Contains(msgs[0], "по приглашению") {
		t.Errorf("expected referred welcome, got %v", msgs)
	}
}

func TestHandleBalanceAndWalletFlow(t *testing.T) {
	tb := setupTestBot(t)
	ctx := context.Background()

	tb.bot.HandleUpdate(ctx, command(20, btnBalance))
	msgs := tb.sender.sentTo(20)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "RUB: `0.00`") {
		t.Fatalf("unexpected balance reply: %v", msgs)
	}

	tb.bot.HandleUpdate(ctx, command(20, btnWallet))
	if tb.bot.getUserState(20) != stateAwaitingWallet {
		t.Fatalf("expected wallet state")
	}

	tb.bot.HandleUpdate(ctx, command(20, "bad"))
	if tb.bot.getUserState(20) != stateAwaitingWallet {
		t.Fatalf("invalid address must keep the wallet state")
	}

	tb.bot.HandleUpdate(ctx, command(20, "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"))
	if tb.bot.getUserState(20) != stateDefault {
		t.Fatalf("expected state reset after linking")
	}

	user, err := tb.svc.LinkWallet(ctx, 20, "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t", "")
	if err != nil {
		t.Fatalf("LinkWallet: %v", err)
	}
	if user.WalletChain != "ton" {
		t.Errorf("expected ton chain, got %q", user.WalletChain)
	}
}

func TestWithdrawalNotificationsAndAdminCallbacks(t *testing.T) {
	tb := setupTestBot(t)
	ctx := context.Background()

	tb.bot.HandleUpdate(ctx, command(30, "/start"))
	card, err := tb.admin.CreateCard(ctx, service.CardInput{
		Title:  "Байкал",
		Price:  decimal.NewFromInt(100),
		Rarity: models.RarityEpic,
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if _, err := tb.admin.AdjustBalance(ctx, 30, models.FieldSpendable, decimal.NewFromInt(100), "seed"); err != nil {
		t.Fatalf("AdjustBalance: %v", err)
	}
	res, err := tb.svc.Purchase(ctx, 30, card.ID)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := tb.svc.RequestWithdrawal(ctx, 30, res.Ownership.ID, "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"); err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	tb.events.Wait()

	adminMsgs := tb.sender.sentTo(testAdminChat)
	if len(adminMsgs) != 1 || !strings.Contains(adminMsgs[0], res.Ownership.ID) {
		t.Fatalf("expected admin notification, got %v", adminMsgs)
	}

	// non-admins cannot resolve
	tb.bot.handleCallbackQuery(ctx, &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: 30},
		Data: cbReject + ":" + res.Ownership.ID,
	})
	pending, _ := tb.admin.ListWithdrawalRequests(ctx)
	if len(pending) != 1 {
		t.Fatalf("request should still be pending")
	}

	tb.bot.handleCallbackQuery(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb-2",
		From:    &tgbotapi.User{ID: testAdminChat},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: testAdminChat}},
		Data:    cbReject + ":" + res.Ownership.ID,
	})
	tb.events.Wait()

	pending, _ = tb.admin.ListWithdrawalRequests(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected empty queue after reject, got %d", len(pending))
	}
	userMsgs := tb.sender.sentTo(30)
	if len(userMsgs) == 0 || !strings.Contains(userMsgs[len(userMsgs)-1], "отклонён") {
		t.Errorf("expected rejection notice, got %v", userMsgs)
	}
}

func TestReferralRewardNotification(t *testing.T) {
	tb := setupTestBot(t)
	ctx := context.Background()

	tb.bot.HandleUpdate(ctx, command(40, "/start"))
	tb.bot.HandleUpdate(ctx, command(41, "/start ref_40"))

	card, err := tb.admin.CreateCard(ctx, service.CardInput{
		Title:  "Камчатка",
		Price:  decimal.NewFromInt(1000),
		Rarity: models.RarityLegendary,
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if _, err := tb.admin.AdjustBalance(ctx, 41, models.FieldSpendable, decimal.NewFromInt(1000), "seed"); err != nil {
		t.Fatalf("AdjustBalance: %v", err)
	}
	res, err := tb.svc.Purchase(ctx, 41, card.ID)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := tb.svc.PropagateReferralBonus(ctx, res.Event); err != nil {
		t.Fatalf("PropagateReferralBonus: %v", err)
	}
	tb.events.Wait()

	msgs := tb.sender.sentTo(40)
	last := msgs[len(msgs)-1]
	if !strings.Contains(last, "`30.00` баллов") {
		t.Errorf("expected bonus notice, got %q", last)
	}
}
