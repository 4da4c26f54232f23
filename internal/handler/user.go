package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
)

type launchRequest struct {
	StartParam string `json:"start_param" validate:"max=64"`
}

type rentRequest struct {
	RentPrice decimal.Decimal `json:"rent_price"`
}

type withdrawRequest struct {
	Address string `json:"address" validate:"max=128"`
}

type walletRequest struct {
	Address string `json:"address" validate:"required"`
	Chain   string `json:"chain" validate:"omitempty,max=16"`
}

type amountRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=64"`
}

type purchaseResponse struct {
	Purchase       *service.PurchaseResult `json:"purchase"`
	ReferralCredit *service.ReferralCredit `json:"referral_credit,omitempty"`
}

// Launch handles POST /api/launch. The start parameter comes from the init
// data, or from the body when the client passes it explicitly.
func (h *Handler) Launch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req launchRequest
	if err := h.decode(w, r, &req, true); err != nil {
		h.fail(w, err)
		return
	}
	startParam := s.StartParam
	if req.StartParam != "" {
		startParam = req.StartParam
	}

	res, err := h.service.RegisterLaunch(r.Context(), s.Identity, startParam)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	balance, err := h.service.GetOrCreateBalance(r.Context(), s.Identity.TelegramID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ListLedger(r.Context(), s.Identity.TelegramID, queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.service.ListAvailable(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cards)
}

func (h *Handler) ListOwnedCards(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	owned, err := h.service.ListOwned(r.Context(), s.Identity.TelegramID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, owned)
}

// PurchaseCard handles POST /api/cards/{cardID}/purchase. The referral bonus
// is propagated after the purchase has committed; its failure is logged and
// does not affect the response.
func (h *Handler) PurchaseCard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	res, err := h.service.Purchase(r.Context(), s.Identity.TelegramID, chi.URLParam(r, "cardID"))
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := purchaseResponse{Purchase: res}
	credit, err := h.service.PropagateReferralBonus(r.Context(), res.Event)
	if err != nil {
		h.logger.Errorf("referral propagation for purchase %s failed: %v", res.Event.ID, err)
	} else {
		resp.ReferralCredit = credit
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) RentCard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req rentRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	row, err := h.service.RentCard(r.Context(), s.Identity.TelegramID, chi.URLParam(r, "ownershipID"), req.RentPrice)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, row)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := h.decode(w, r, &req, true); err != nil {
		h.fail(w, err)
		return
	}

	row, err := h.service.RequestWithdrawal(r.Context(), s.Identity.TelegramID, chi.URLParam(r, "ownershipID"), req.Address)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, row)
}

func (h *Handler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	overview, err := h.service.ListReferrals(r.Context(), s.Identity.TelegramID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, overview)
}

func (h *Handler) LinkWallet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req walletRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	user, err := h.service.LinkWallet(r.Context(), s.Identity.TelegramID, req.Address, req.Chain)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, user)
}

func (h *Handler) UnlinkWallet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	user, err := h.service.UnlinkWallet(r.Context(), s.Identity.TelegramID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, user)
}

func (h *Handler) TopUpReference(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	ref, err := h.service.PaymentReference(s.Identity.TelegramID, req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ref)
}

func (h *Handler) ConfirmTopUp(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	balance, err := h.service.ConfirmTopUp(r.Context(), s.Identity.TelegramID, req.Amount, req.Reference)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}
