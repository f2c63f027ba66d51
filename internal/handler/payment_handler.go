// internal/handler/payment_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"payment-engine/internal/domain"
	"payment-engine/internal/repository"
	"payment-engine/internal/usecase"
	"payment-engine/internal/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	controller *usecase.Controller
	wallets    repository.WalletStore
	entries    repository.EntryStore
	logger     *zap.Logger
}

func NewPaymentHandler(
	controller *usecase.Controller,
	wallets repository.WalletStore,
	entries repository.EntryStore,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		controller: controller,
		wallets:    wallets,
		entries:    entries,
		logger:     logger,
	}
}

type createRequest struct {
	WalletID     int64  `json:"wallet_id"`
	CustomerID   *int64 `json:"customer_id,omitempty"`
	InstrumentID *int64 `json:"instrument_id,omitempty"`
	Provider     string `json:"provider"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
}

func (h *PaymentHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.controller.CreateDeposit)
}

func (h *PaymentHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.controller.CreateWithdrawal)
}

func (h *PaymentHandler) create(
	w http.ResponseWriter,
	r *http.Request,
	do func(ctx context.Context, p usecase.CreateParams) (*domain.Transaction, error),
) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := domain.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	trx, err := do(r.Context(), usecase.CreateParams{
		WalletID:     req.WalletID,
		CustomerID:   req.CustomerID,
		InstrumentID: req.InstrumentID,
		Provider:     req.Provider,
		Amount:       amount,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, trx)
}

func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	trx, err := h.controller.GetTransaction(r.Context(), ref)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trx)
}

// FinalizeDeposit runs the second leg of a redirect flow and returns
// the transaction as it stands afterwards.
func (h *PaymentHandler) FinalizeDeposit(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	if err := h.controller.FinalizeDeposit(r.Context(), ref); err != nil {
		h.respondErr(w, err)
		return
	}

	trx, err := h.controller.GetTransaction(r.Context(), ref)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trx)
}

func (h *PaymentHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	wallet, err := h.wallets.GetByID(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		*domain.Wallet
		Available string `json:"available"`
	}{wallet, wallet.Available().String()})
}

func (h *PaymentHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	entries, err := h.entries.ListByWallet(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *PaymentHandler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, xerrors.ErrInvalidRequest),
		errors.Is(err, xerrors.ErrUnknownProvider),
		errors.Is(err, domain.ErrCurrencyMismatch):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, xerrors.ErrInsufficientFunds):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, xerrors.ErrStatusConflict),
		errors.Is(err, xerrors.ErrDeclineMismatch):
		respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
