package domain

// OTP record statuses. Transitions are monotonic: new → used or new → expired.
const (
	OtpStatusNew     = "new"
	OtpStatusUsed    = "used"
	OtpStatusExpired = "expired"
)

// OtpRecord is the persisted state of one OTP issuance cycle.
// PK: otp_id. The destination attribute is a derived key (number when present,
// email otherwise) and feeds the destination-type GSI together with type.
type OtpRecord struct {
	OtpID       string `json:"otp_id" dynamodbav:"otp_id"`
	ClientReqID string `json:"client_req_id" dynamodbav:"client_req_id"`
	Number      string `json:"number,omitempty" dynamodbav:"number"`
	Email       string `json:"email,omitempty" dynamodbav:"email"`
	Type        string `json:"type" dynamodbav:"type"`
	Code        string `json:"-" dynamodbav:"code"`
	Retry       int    `json:"retry" dynamodbav:"retry"`
	Status      string `json:"status" dynamodbav:"status"`
	Destination string `json:"-" dynamodbav:"destination"`
	CreatedAt   int64  `json:"created_at" dynamodbav:"created_at"` // Unix seconds
}

// DestinationKey scopes the single-active-code invariant: the phone number
// when present, otherwise the email address.
func DestinationKey(number, email string) string {
	if number != "" {
		return number
	}
	return email
}
