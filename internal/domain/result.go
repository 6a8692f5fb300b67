package domain

// Result codes, kept wire-compatible with the legacy OTP validator responses.
// Request: 201 created, 403 bad request, 404 service unavailable, 405 resend disabled.
// Validate: 200 ok, 203 invalid otp, 204 too many wrong tries, 404 expired/timeout.
const (
	CodeCreated            = 201
	CodeValidated          = 200
	CodeInvalidCode        = 203
	CodeTooManyTries       = 204
	CodeExpired            = 404
	CodeServiceUnavailable = 404
	CodeBadRequest         = 403
	CodeResendDisabled     = 405
)

// Result is the structured outcome of every OTP lifecycle operation.
// All three operations return the same shape; resend no longer collapses
// ineligible lookups into a bare sentinel value.
type Result struct {
	Code      int    `json:"code"`
	OK        bool   `json:"status"`
	UniqueID  string `json:"uniqueId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	ResendID  string `json:"resendId,omitempty"`
	Type      string `json:"type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Delivery is the outcome of a single notification channel invocation.
// Persisted best-effort as an audit trail; never fails the issuing request.
type Delivery struct {
	DeliveryID string `json:"delivery_id" dynamodbav:"delivery_id"`
	OtpID      string `json:"otp_id" dynamodbav:"otp_id"`
	Channel    string `json:"channel" dynamodbav:"channel"`
	Target     string `json:"target" dynamodbav:"target"`
	Success    bool   `json:"success" dynamodbav:"success"`
	StatusCode int    `json:"status_code,omitempty" dynamodbav:"status_code"`
	Diagnostic string `json:"diagnostic,omitempty" dynamodbav:"diagnostic"`
	CreatedAt  int64  `json:"created_at" dynamodbav:"created_at"`
}
