// internal/handler/webhook_handler.go
package handler

import (
	"errors"
	"io"
	"net/http"

	"payment-engine/internal/domain"
	"payment-engine/internal/usecase"
	"payment-engine/internal/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxWebhookBody caps callback payloads; anything bigger is hostile.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	controller *usecase.Controller
	logger     *zap.Logger
}

func NewWebhookHandler(controller *usecase.Controller, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{controller: controller, logger: logger}
}

type webhookAck struct {
	Classification domain.WebhookClassification `json:"classification"`
}

// Receive ingests a provider callback. The response codes matter to
// providers: 2xx stops redelivery, 401 tells them (and us) the payload
// failed verification, 5xx asks for a retry.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	wh, err := h.controller.HandleWebhook(r.Context(), providerName, r.Header, body)
	if err != nil {
		h.logger.Warn("webhook processing failed",
			zap.String("provider", providerName),
			zap.Error(err))

		switch {
		case errors.Is(err, xerrors.ErrUnknownProvider):
			respondError(w, http.StatusNotFound, "unknown provider")
		case errors.Is(err, xerrors.ErrInvalidSignature):
			respondError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, xerrors.ErrWebhookUnmatched):
			// Acknowledged so the provider stops redelivering; the stored
			// row carries the classification for later investigation.
			respondJSON(w, http.StatusAccepted, webhookAck{Classification: wh.Classification})
		case errors.Is(err, xerrors.ErrStatusConflict),
			errors.Is(err, xerrors.ErrDeclineMismatch),
			errors.Is(err, xerrors.ErrAmountMismatch):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	respondJSON(w, http.StatusOK, webhookAck{Classification: wh.Classification})
}
