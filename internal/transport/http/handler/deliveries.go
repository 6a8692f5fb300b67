package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-otp-api/internal/domain"
)

// DeliveryReader lists recorded delivery attempts for one OTP record.
type DeliveryReader interface {
	ListByOtp(ctx context.Context, otpID string) ([]domain.Delivery, error)
}

// DeliveryHandler exposes the delivery audit trail.
type DeliveryHandler struct {
	deliveries DeliveryReader
}

func NewDeliveryHandler(deliveries DeliveryReader) *DeliveryHandler {
	return &DeliveryHandler{deliveries: deliveries}
}

func (h *DeliveryHandler) ListByOtp(w http.ResponseWriter, r *http.Request) {
	otpID := chi.URLParam(r, "id")
	list, err := h.deliveries.ListByOtp(r.Context(), otpID)
	if err != nil {
		internalError(w, "list deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
