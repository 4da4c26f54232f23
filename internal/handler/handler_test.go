package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/config"
	"github.com/worckguarddev/ton-trip-bonanza/db"
	"github.com/worckguarddev/ton-trip-bonanza/internal/cache"
	"github.com/worckguarddev/ton-trip-bonanza/internal/middleware"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

const (
	testBotToken = "123456:TEST-TOKEN"
	adminID      = int64(900)
)

type testServer struct {
	router *chi.Mux
	admin  *service.AdminService
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := utils.NewLogger("error")
	database, err := db.ConnectDb(filepath.Join(t.TempDir(), "handler_test.db"), logger)
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
		BotUsername:            "TestBonanzaBot",
		AdminIDs:               []int64{adminID},
		ReferralRewardCurrency: config.RewardCurrencyPoints,
		SBPPaymentURL:          "https://qr.example.test/pay?type=02",
		CatalogCacheTTL:        time.Minute,
	}
	repo := repository.NewRepository(database, logger)
	c := cache.NewInMemoryCache()
	svc := service.NewService(repo, cfg, c, nil, logger)
	admin := service.NewAdminService(repo, c, nil, logger)

	h := NewHandler(svc, admin, logger)
	router := NewRouter(h, RouterOptions{
		Auth:    middleware.AuthConfig{BotToken: testBotToken, MaxAge: time.Hour},
		IsAdmin: cfg.IsAdmin,
	})
	return &testServer{router: router, admin: admin}
}

func initData(t *testing.T, userID int64, startParam string) string {
	t.Helper()
	user, _ := json.Marshal(models.Identity{TelegramID: userID, FirstName: "User" + strconv.FormatInt(userID, 10)})
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", string(user))
	if startParam != "" {
		values.Set("start_param", startParam)
	}
	values.Set("hash", middleware.SignInitData(values, testBotToken))
	return values.Encode()
}

func (s *testServer) do(t *testing.T, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(middleware.InitDataHeader, initData(t, userID, ""))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", 0, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/balance", 0, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/admin/users", 1, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, http.MethodGet, "/api/admin/users", adminID, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestLaunchWithStartParamFromInitData(t *testing.T) {
	s := setupTestServer(t)

	expectStatus(t, s.do(t, http.MethodPost, "/api/launch", 10, nil), http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/api/launch", nil)
	req.Header.Set("Authorization", "tma "+initData(t, 11, "ref_10"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)

	var res service.LaunchResult
	decodeBody(t, rec, &res)
	if !res.Created || !res.Referred {
		t.Fatalf("expected new referred user, got created=%v referred=%v", res.Created, res.Referred)
	}
	if res.User.ReferrerID == nil || *res.User.ReferrerID != 10 {
		t.Fatalf("expected referrer 10, got %v", res.User.ReferrerID)
	}
}

func TestPurchaseFlowWithReferralCredit(t *testing.T) {
	s := setupTestServer(t)

	expectStatus(t, s.do(t, http.MethodPost, "/api/launch", 10, nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodPost, "/api/launch", 11, map[string]string{"start_param": "ref_10"}), http.StatusOK)

	rec := s.do(t, http.MethodPost, "/api/admin/cards", adminID, map[string]interface{}{
		"title":        "Sochi Weekend",
		"price":        "1000",
		"rarity":       "rare",
		"is_available": true,
	})
	expectStatus(t, rec, http.StatusCreated)
	var card models.Card
	decodeBody(t, rec, &card)

	// not enough funds yet
	rec = s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/purchase", 11, nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = s.do(t, http.MethodPost, "/api/admin/users/11/balance", adminID, map[string]string{
		"field": "spendable",
		"delta": "1500",
	})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/purchase", 11, nil)
	expectStatus(t, rec, http.StatusCreated)

	var resp struct {
		Purchase struct {
			Balance models.Balance `json:"balance"`
		} `json:"purchase"`
		ReferralCredit *service.ReferralCredit `json:"referral_credit"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Purchase.Balance.RubBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected 500 left, got %s", resp.Purchase.Balance.RubBalance)
	}
	if resp.ReferralCredit == nil || resp.ReferralCredit.ReferrerID != 10 {
		t.Fatalf("expected referral credit for 10, got %+v", resp.ReferralCredit)
	}
	if !resp.ReferralCredit.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected bonus 30, got %s", resp.ReferralCredit.Amount)
	}

	rec = s.do(t, http.MethodGet, "/api/balance", 10, nil)
	expectStatus(t, rec, http.StatusOK)
	var referrerBalance models.Balance
	decodeBody(t, rec, &referrerBalance)
	if !referrerBalance.BonusPoints.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected referrer bonus 30, got %s", referrerBalance.BonusPoints)
	}

	rec = s.do(t, http.MethodGet, "/api/me/cards", 11, nil)
	expectStatus(t, rec, http.StatusOK)
	var owned []service.OwnedCard
	decodeBody(t, rec, &owned)
	if len(owned) != 1 {
		t.Fatalf("expected 1 owned card, got %d", len(owned))
	}
}

func TestPurchaseUnknownCard(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/cards/does-not-exist/purchase", 11, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestWithdrawalRoutes(t *testing.T) {
	s := setupTestServer(t)

	card, err := s.admin.CreateCard(t.Context(), service.CardInput{
		Title:  "Altai Trip",
		Price:  decimal.NewFromInt(100),
		Rarity: models.RarityCommon,
	})
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if _, err := s.admin.AdjustBalance(t.Context(), 20, models.FieldSpendable, decimal.NewFromInt(100), "seed"); err != nil {
		t.Fatalf("AdjustBalance: %v", err)
	}

	rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/purchase", 20, nil)
	expectStatus(t, rec, http.StatusCreated)
	var resp struct {
		Purchase struct {
			Ownership models.UserCard `json:"ownership"`
		} `json:"purchase"`
	}
	decodeBody(t, rec, &resp)
	ownershipID := resp.Purchase.Ownership.ID

	// someone else's card
	rec = s.do(t, http.MethodPost, "/api/me/cards/"+ownershipID+"/withdraw", 21, map[string]string{
		"address": "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t",
	})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, http.MethodPost, "/api/me/cards/"+ownershipID+"/withdraw", 20, map[string]string{
		"address": "short",
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, "/api/me/cards/"+ownershipID+"/withdraw", 20, map[string]string{
		"address": "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t",
	})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodPost, "/api/me/cards/"+ownershipID+"/withdraw", 20, map[string]string{
		"address": "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t",
	})
	expectStatus(t, rec, http.StatusConflict)

	rec = s.do(t, http.MethodGet, "/api/admin/withdrawals", adminID, nil)
	expectStatus(t, rec, http.StatusOK)
	var pending []models.UserCard
	decodeBody(t, rec, &pending)
	if len(pending) != 1 || pending[0].ID != ownershipID {
		t.Fatalf("expected the request in the queue, got %+v", pending)
	}

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%s/reject", ownershipID), adminID, nil)
	expectStatus(t, rec, http.StatusOK)
	var row models.UserCard
	decodeBody(t, rec, &row)
	if row.IsWithdrawn || row.BlockchainAddress != nil {
		t.Errorf("expected row back in pre-request state, got %+v", row)
	}
}

func TestBadRequestBodies(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/wallet", bytes.NewBufferString("{not json"))
	req.Header.Set(middleware.InitDataHeader, initData(t, 30, ""))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, "/api/admin/users/abc/balance", adminID, map[string]string{"field": "spendable", "delta": "1"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, "/api/admin/users/30/balance", adminID, map[string]string{"field": "gold", "delta": "1"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestTopUpRoutes(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/topup/reference", 40, map[string]string{"amount": "50"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, http.MethodPost, "/api/topup/reference", 40, map[string]string{"amount": "500"})
	expectStatus(t, rec, http.StatusOK)
	var ref service.PaymentReference
	decodeBody(t, rec, &ref)

	rec = s.do(t, http.MethodPost, "/api/topup/confirm", 40, map[string]string{"amount": "500", "reference": "sbp-1"})
	expectStatus(t, rec, http.StatusOK)
	var balance models.Balance
	decodeBody(t, rec, &balance)
	if !balance.RubBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected 500 after top-up, got %s", balance.RubBalance)
	}

	rec = s.do(t, http.MethodGet, "/api/ledger", 40, nil)
	expectStatus(t, rec, http.StatusOK)
	var entries []models.LedgerEntry
	decodeBody(t, rec, &entries)
	if len(entries) != 1 || entries[0].Kind != models.LedgerTopUp {
		t.Fatalf("expected one top-up ledger entry, got %+v", entries)
	}
}
