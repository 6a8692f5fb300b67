package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-otp-api/internal/application/otp"
	"github.com/go-otp-api/internal/domain"
	"github.com/go-otp-api/internal/pkg/validate"
)

// OtpHandler exposes the OTP lifecycle operations over HTTP.
type OtpHandler struct {
	svc otp.Service
}

func NewOtpHandler(svc otp.Service) *OtpHandler {
	return &OtpHandler{svc: svc}
}

func (h *OtpHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req otp.RequestOTP
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.Request(r.Context(), req)
	if err != nil {
		internalError(w, "otp request failed", err)
		return
	}
	writeResult(w, res)
}

func (h *OtpHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req otp.ValidateOTP
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.Validate(r.Context(), req)
	if err != nil {
		internalError(w, "otp validation failed", err)
		return
	}
	writeResult(w, res)
}

func (h *OtpHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UniqueID string `json:"unique_id" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := h.svc.Resend(r.Context(), body.UniqueID)
	if err != nil {
		internalError(w, "otp resend failed", err)
		return
	}
	writeResult(w, res)
}

// writeResult writes the lifecycle outcome. The legacy result code travels in
// the body; the HTTP status only distinguishes created (201) from handled (200),
// since codes like 204 would suppress the response body if reused as statuses.
func writeResult(w http.ResponseWriter, res *domain.Result) {
	status := http.StatusOK
	if res.Code == domain.CodeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
