package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
)

type adjustBalanceRequest struct {
	Field  models.BalanceField `json:"field" validate:"required,oneof=spendable token bonus_points"`
	Delta  decimal.Decimal     `json:"delta"`
	Reason string              `json:"reason" validate:"max=200"`
}

func (h *Handler) AdminListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.admin.ListAllCards(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cards)
}

func (h *Handler) AdminCreateCard(w http.ResponseWriter, r *http.Request) {
	var req service.CardInput
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, err)
		return
	}
	card, err := h.admin.CreateCard(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, card)
}

func (h *Handler) AdminUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req service.CardInput
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, err)
		return
	}
	card, err := h.admin.UpdateCard(r.Context(), chi.URLParam(r, "cardID"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, card)
}

func (h *Handler) AdminDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteCard(r.Context(), chi.URLParam(r, "cardID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context(), queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, users)
}

func (h *Handler) AdminAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if _, err := fmt.Sscan(chi.URLParam(r, "userID"), &userID); err != nil || userID <= 0 {
		h.respondError(w, http.StatusBadRequest, "userID must be a positive integer")
		return
	}

	var req adjustBalanceRequest
	if err := h.decode(w, r, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("admin %d", s.Identity.TelegramID)
	}

	balance, err := h.admin.AdjustBalance(r.Context(), userID, req.Field, req.Delta, reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, balance)
}

func (h *Handler) AdminListWithdrawals(w http.ResponseWriter, r *http.Request) {
	rows, err := h.admin.ListWithdrawalRequests(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) AdminApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	row, err := h.admin.ApproveWithdrawal(r.Context(), chi.URLParam(r, "ownershipID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, row)
}

func (h *Handler) AdminRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	row, err := h.admin.RejectWithdrawal(r.Context(), chi.URLParam(r, "ownershipID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, row)
}
