package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-otp-api/internal/application/otp"
	"github.com/go-otp-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockOtpSvc struct{ mock.Mock }

func (m *mockOtpSvc) Request(ctx context.Context, req otp.RequestOTP) (*domain.Result, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOtpSvc) Validate(ctx context.Context, req otp.ValidateOTP) (*domain.Result, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*domain.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOtpSvc) Resend(ctx context.Context, uniqueID string) (*domain.Result, error) {
	args := m.Called(ctx, uniqueID)
	if r, _ := args.Get(0).(*domain.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

// --- Request ---

func TestRequestHandler_Created(t *testing.T) {
	svc := &mockOtpSvc{}
	svc.On("Request", mock.Anything, otp.RequestOTP{ClientReqID: "r1", Number: "555", Type: "login"}).
		Return(&domain.Result{Code: domain.CodeCreated, OK: true, UniqueID: "o1", Type: "login"}, nil)

	h := NewOtpHandler(svc)
	rr := postJSON(t, h.Request, `{"client_req_id":"r1","number":"555","type":"login"}`)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var res domain.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, domain.CodeCreated, res.Code)
	assert.Equal(t, "o1", res.UniqueID)
}

func TestRequestHandler_MalformedBody(t *testing.T) {
	h := NewOtpHandler(&mockOtpSvc{})
	rr := postJSON(t, h.Request, `{"client_req_id":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestHandler_ValidationError(t *testing.T) {
	h := NewOtpHandler(&mockOtpSvc{})
	rr := postJSON(t, h.Request, `{"number":"555","type":"login"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRequestHandler_StoreFailure(t *testing.T) {
	svc := &mockOtpSvc{}
	svc.On("Request", mock.Anything, mock.Anything).Return(nil, errors.New("dynamo down"))

	h := NewOtpHandler(svc)
	rr := postJSON(t, h.Request, `{"client_req_id":"r1","number":"555","type":"login"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal error")
	assert.NotContains(t, rr.Body.String(), "dynamo")
}

// --- Validate ---

func TestValidateHandler_TooManyTries_BodyPreserved(t *testing.T) {
	svc := &mockOtpSvc{}
	svc.On("Validate", mock.Anything, otp.ValidateOTP{UniqueID: "o1", OTP: "9999"}).
		Return(&domain.Result{Code: domain.CodeTooManyTries, ResendID: "o1", Error: "too many wrong try"}, nil)

	h := NewOtpHandler(svc)
	rr := postJSON(t, h.Validate, `{"unique_id":"o1","otp":"9999"}`)

	// Result code 204 travels in the body; the HTTP status stays 200 so the
	// payload is not suppressed.
	assert.Equal(t, http.StatusOK, rr.Code)
	var res domain.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, domain.CodeTooManyTries, res.Code)
	assert.Equal(t, "o1", res.ResendID)
}

func TestValidateHandler_Success(t *testing.T) {
	svc := &mockOtpSvc{}
	svc.On("Validate", mock.Anything, mock.Anything).
		Return(&domain.Result{Code: domain.CodeValidated, OK: true, RequestID: "r1", Type: "login"}, nil)

	h := NewOtpHandler(svc)
	rr := postJSON(t, h.Validate, `{"unique_id":"o1","otp":"1234"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	var res domain.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "r1", res.RequestID)
}

func TestValidateHandler_MissingFields(t *testing.T) {
	h := NewOtpHandler(&mockOtpSvc{})
	rr := postJSON(t, h.Validate, `{"unique_id":"o1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

// --- Resend ---

func TestResendHandler_NoActiveRecord(t *testing.T) {
	svc := &mockOtpSvc{}
	svc.On("Resend", mock.Anything, "o1").
		Return(&domain.Result{Code: domain.CodeExpired, ResendID: "o1", Error: "no active otp to resend"}, nil)

	h := NewOtpHandler(svc)
	rr := postJSON(t, h.Resend, `{"unique_id":"o1"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	var res domain.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, domain.CodeExpired, res.Code)
	assert.Equal(t, "no active otp to resend", res.Error)
}

func TestResendHandler_MissingID(t *testing.T) {
	h := NewOtpHandler(&mockOtpSvc{})
	rr := postJSON(t, h.Resend, `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
