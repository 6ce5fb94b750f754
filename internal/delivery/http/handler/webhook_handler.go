package handler

import (
	"errors"
	"io"
	"net/http"

	"consultation-booking/internal/usecase"
	"consultation-booking/pkg/response"

	"github.com/sirupsen/logrus"
)

const (
	maxWebhookBodyBytes = int64(65536)
	stripeSignatureHdr  = "Stripe-Signature"
)

type WebhookHandler struct {
	paymentEventUsecase usecase.PaymentEventUsecase
	log                 *logrus.Logger
}

func NewWebhookHandler(paymentEventUsecase usecase.PaymentEventUsecase, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		paymentEventUsecase: paymentEventUsecase,
		log:                 log,
	}
}

// HandleStripe receives payment provider events. The raw body is needed
// for signature verification, so it is read before any decoding.
// Non-2xx responses make the provider redeliver.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Unreadable request body", nil)
		return
	}

	result, err := h.paymentEventUsecase.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHdr))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrMissingSignature):
			response.Error(w, http.StatusBadRequest, "Missing signature", nil)
		case errors.Is(err, usecase.ErrInvalidSignature):
			response.Error(w, http.StatusBadRequest, "Invalid signature", nil)
		case errors.Is(err, usecase.ErrMissingMetadata):
			response.Error(w, http.StatusBadRequest, err.Error(), nil)
		default:
			h.log.Errorf("Webhook processing failed, provider will retry: %+v", err)
			response.InternalServerError(w, "Failed to process event")
		}
		return
	}

	response.JSON(w, http.StatusOK, result)
}
