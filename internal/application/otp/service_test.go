package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-otp-api/internal/config"
	"github.com/go-otp-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, rec *domain.OtpRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockStore) GetActive(ctx context.Context, otpID string, notBefore int64) (*domain.OtpRecord, error) {
	args := m.Called(ctx, otpID, notBefore)
	if rec, _ := args.Get(0).(*domain.OtpRecord); rec != nil {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) GetNew(ctx context.Context, otpID string) (*domain.OtpRecord, error) {
	args := m.Called(ctx, otpID)
	if rec, _ := args.Get(0).(*domain.OtpRecord); rec != nil {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) ExpireActive(ctx context.Context, destination, otpType string) (int, error) {
	args := m.Called(ctx, destination, otpType)
	return args.Int(0), args.Error(1)
}
func (m *mockStore) MarkUsed(ctx context.Context, otpID string) error {
	return m.Called(ctx, otpID).Error(0)
}
func (m *mockStore) MarkExpired(ctx context.Context, otpID string) error {
	return m.Called(ctx, otpID).Error(0)
}
func (m *mockStore) IncrementRetry(ctx context.Context, otpID string) error {
	return m.Called(ctx, otpID).Error(0)
}

type mockChannel struct {
	mock.Mock
	kind string
}

func (m *mockChannel) Kind() string { return m.kind }
func (m *mockChannel) Send(ctx context.Context, target, otpCode string) domain.Delivery {
	args := m.Called(ctx, target, otpCode)
	return args.Get(0).(domain.Delivery)
}

type mockDeliveryLog struct{ mock.Mock }

func (m *mockDeliveryLog) Put(ctx context.Context, d *domain.Delivery) error {
	return m.Called(ctx, d).Error(0)
}

// --- builders ---

func testPolicy() config.OTPPolicy {
	return config.OTPPolicy{
		Digits:         4,
		Expiry:         120 * time.Second,
		MaxRetry:       3,
		ServiceEnabled: true,
		ResendEnabled:  true,
		SendBySMS:      true,
		SendByEmail:    true,
	}
}

func newTestService(store Store, policy config.OTPPolicy, channels []Channel, dlog DeliveryLog) Service {
	return NewService(Deps{Store: store, Channels: channels, DeliveryLog: dlog, Policy: policy})
}

func activeRecord(otpID string) *domain.OtpRecord {
	return &domain.OtpRecord{
		OtpID:       otpID,
		ClientReqID: "req-1",
		Number:      "5551234",
		Type:        "login",
		Code:        "1234",
		Status:      domain.OtpStatusNew,
		Destination: "5551234",
		CreatedAt:   time.Now().Unix(),
	}
}

// --- Request ---

func TestRequest_ServiceDisabled(t *testing.T) {
	policy := testPolicy()
	policy.ServiceEnabled = false
	store := &mockStore{}

	svc := newTestService(store, policy, nil, nil)
	res, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "555", Type: "login"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeServiceUnavailable, res.Code)
	assert.False(t, res.OK)
	store.AssertNotCalled(t, "ExpireActive", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequest_EmptyClientReqID(t *testing.T) {
	svc := newTestService(&mockStore{}, testPolicy(), nil, nil)
	res, err := svc.Request(context.Background(), RequestOTP{Number: "555", Type: "login"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeBadRequest, res.Code)
}

func TestRequest_NoDestination(t *testing.T) {
	svc := newTestService(&mockStore{}, testPolicy(), nil, nil)
	res, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Type: "login"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeBadRequest, res.Code)
}

func TestRequest_ResendDisabled_PriorActiveCode(t *testing.T) {
	policy := testPolicy()
	policy.ResendEnabled = false
	store := &mockStore{}
	store.On("ExpireActive", mock.Anything, "555", "login").Return(1, nil)

	svc := newTestService(store, policy, nil, nil)
	res, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "555", Type: "login"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeResendDisabled, res.Code)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequest_ResendDisabled_FirstIssuanceStillWorks(t *testing.T) {
	policy := testPolicy()
	policy.ResendEnabled = false
	policy.SendBySMS = false
	policy.SendByEmail = false
	store := &mockStore{}
	store.On("ExpireActive", mock.Anything, "555", "login").Return(0, nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.OtpRecord")).Return(nil)

	svc := newTestService(store, policy, nil, nil)
	res, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "555", Type: "login"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeCreated, res.Code)
	assert.True(t, res.OK)
}

func TestRequest_HappyPath_SMSDelivery(t *testing.T) {
	store := &mockStore{}
	sms := &mockChannel{kind: ChannelSMS}
	dlog := &mockDeliveryLog{}

	var created *domain.OtpRecord
	store.On("ExpireActive", mock.Anything, "5551234", "login").Return(0, nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.OtpRecord")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.OtpRecord) }).
		Return(nil)
	sms.On("Send", mock.Anything, "5551234", mock.AnythingOfType("string")).
		Return(domain.Delivery{Channel: "sms", Target: "5551234", Success: true, StatusCode: 200})
	dlog.On("Put", mock.Anything, mock.AnythingOfType("*domain.Delivery")).Return(nil)

	svc := newTestService(store, testPolicy(), []Channel{sms}, dlog)
	res, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "5551234", Type: "login"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeCreated, res.Code)
	assert.Equal(t, "login", res.Type)

	require.NotNil(t, created)
	assert.Equal(t, res.UniqueID, created.OtpID)
	assert.Equal(t, domain.OtpStatusNew, created.Status)
	assert.Equal(t, 0, created.Retry)
	assert.Len(t, created.Code, 4)
	assert.Equal(t, "5551234", created.Destination)

	sms.AssertExpectations(t)
	dlog.AssertExpectations(t)
}

func TestRequest_DeliveryFailureDoesNotFailIssuance(t *testing.T) {
	store := &mockStore{}
	sms := &mockChannel{kind: ChannelSMS}
	dlog := &mockDeliveryLog{}

	store.On("ExpireActive", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(nil)
	sms.On("Send", mock.Anything, "555", mock.Anything).
		Return(domain.Delivery{Channel: "sms", Target: "555", Success: false, Diagnostic: "gateway timeout"})
	dlog.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))

	svc := newTestService(store, testPolicy(), []Channel{sms}, dlog)
	res, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "555", Type: "login"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeCreated, res.Code)
}

func TestRequest_EmailChannelSkippedWhenDisabled(t *testing.T) {
	policy := testPolicy()
	policy.SendByEmail = false
	store := &mockStore{}
	sms := &mockChannel{kind: ChannelSMS}
	email := &mockChannel{kind: ChannelEmail}

	store.On("ExpireActive", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(nil)
	sms.On("Send", mock.Anything, "555", mock.Anything).
		Return(domain.Delivery{Channel: "sms", Success: true})

	svc := newTestService(store, policy, []Channel{sms, email}, nil)
	_, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "555", Email: "a@b.com", Type: "login"})

	require.NoError(t, err)
	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequest_EmailChannelSkippedWithoutAddress(t *testing.T) {
	store := &mockStore{}
	email := &mockChannel{kind: ChannelEmail}

	store.On("ExpireActive", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	store.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, testPolicy(), []Channel{email}, nil)
	_, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "555", Type: "login"})

	require.NoError(t, err)
	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequest_StoreFailurePropagates(t *testing.T) {
	store := &mockStore{}
	store.On("ExpireActive", mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("dynamo down"))

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Request(context.Background(), RequestOTP{ClientReqID: "r1", Number: "555", Type: "login"})

	require.Error(t, err)
	assert.Nil(t, res)
}

// --- Validate ---

func TestValidate_NotFound(t *testing.T) {
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.AnythingOfType("int64")).Return(nil, domain.ErrNotFound)

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "1234"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeExpired, res.Code)
	assert.Equal(t, "o1", res.ResendID)
	assert.Equal(t, "otp expired/timeout", res.Error)
}

func TestValidate_ExpiryThreshold(t *testing.T) {
	store := &mockStore{}
	var gotThreshold int64
	store.On("GetActive", mock.Anything, "o1", mock.AnythingOfType("int64")).
		Run(func(args mock.Arguments) { gotThreshold = args.Get(2).(int64) }).
		Return(nil, domain.ErrNotFound)

	svc := newTestService(store, testPolicy(), nil, nil)
	_, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "1234"})
	require.NoError(t, err)

	want := time.Now().Add(-120 * time.Second).Unix()
	assert.InDelta(t, want, gotThreshold, 2)
}

func TestValidate_CorrectCode(t *testing.T) {
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(activeRecord("o1"), nil)
	store.On("MarkUsed", mock.Anything, "o1").Return(nil)

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "1234"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeValidated, res.Code)
	assert.True(t, res.OK)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, "login", res.Type)
	store.AssertExpectations(t)
}

func TestValidate_ReplayAfterConsumption(t *testing.T) {
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(activeRecord("o1"), nil).Once()
	store.On("MarkUsed", mock.Anything, "o1").Return(nil).Once()
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(nil, domain.ErrNotFound)

	svc := newTestService(store, testPolicy(), nil, nil)

	first, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "1234"})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeValidated, first.Code)

	second, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "1234"})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeExpired, second.Code)
}

func TestValidate_WrongCode_IncrementsRetry(t *testing.T) {
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(activeRecord("o1"), nil)
	store.On("IncrementRetry", mock.Anything, "o1").Return(nil)

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "9999"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeInvalidCode, res.Code)
	assert.Equal(t, "o1", res.ResendID)
	assert.Equal(t, "invalid otp", res.Error)
	store.AssertExpectations(t)
}

// retry == maxRetry is still tolerated: the record expires only once the
// counter exceeds maxRetry, so maxRetry+1 wrong attempts keep it alive.
func TestValidate_WrongCode_AtMaxRetryBoundary(t *testing.T) {
	rec := activeRecord("o1")
	rec.Retry = 3
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(rec, nil)
	store.On("IncrementRetry", mock.Anything, "o1").Return(nil)

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "9999"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeInvalidCode, res.Code)
	store.AssertNotCalled(t, "MarkExpired", mock.Anything, mock.Anything)
}

func TestValidate_WrongCode_PastMaxRetryExpires(t *testing.T) {
	rec := activeRecord("o1")
	rec.Retry = 4
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(rec, nil)
	store.On("MarkExpired", mock.Anything, "o1").Return(nil)

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "9999"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeTooManyTries, res.Code)
	assert.Equal(t, "o1", res.ResendID)
	assert.Equal(t, "too many wrong try", res.Error)
	store.AssertNotCalled(t, "IncrementRetry", mock.Anything, mock.Anything)
}

func TestValidate_MarkUsedConflictTreatedAsExpired(t *testing.T) {
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(activeRecord("o1"), nil)
	store.On("MarkUsed", mock.Anything, "o1").Return(domain.ErrConflict)

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "1234"})

	require.NoError(t, err)
	assert.Equal(t, domain.CodeExpired, res.Code)
}

func TestValidate_StoreFailurePropagates(t *testing.T) {
	store := &mockStore{}
	store.On("GetActive", mock.Anything, "o1", mock.Anything).Return(nil, errors.New("dynamo down"))

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Validate(context.Background(), ValidateOTP{UniqueID: "o1", OTP: "1234"})

	require.Error(t, err)
	assert.Nil(t, res)
}

// --- Resend ---

func TestResend_NoActiveRecord(t *testing.T) {
	store := &mockStore{}
	store.On("GetNew", mock.Anything, "o1").Return(nil, domain.ErrNotFound)

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Resend(context.Background(), "o1")

	require.NoError(t, err)
	assert.Equal(t, domain.CodeExpired, res.Code)
	assert.Equal(t, "no active otp to resend", res.Error)
}

func TestResend_Disabled(t *testing.T) {
	policy := testPolicy()
	policy.ResendEnabled = false
	store := &mockStore{}
	store.On("GetNew", mock.Anything, "o1").Return(activeRecord("o1"), nil)

	svc := newTestService(store, policy, nil, nil)
	res, err := svc.Resend(context.Background(), "o1")

	require.NoError(t, err)
	assert.Equal(t, domain.CodeResendDisabled, res.Code)
	store.AssertNotCalled(t, "ExpireActive", mock.Anything, mock.Anything, mock.Anything)
}

func TestResend_HappyPath_IssuesFreshRecord(t *testing.T) {
	store := &mockStore{}
	store.On("GetNew", mock.Anything, "o1").Return(activeRecord("o1"), nil)
	// The full request cycle runs: the prior record is superseded and a new
	// one is created for the same destination/type.
	store.On("ExpireActive", mock.Anything, "5551234", "login").Return(1, nil)

	var created *domain.OtpRecord
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.OtpRecord")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.OtpRecord) }).
		Return(nil)

	sms := &mockChannel{kind: ChannelSMS}
	sms.On("Send", mock.Anything, "5551234", mock.Anything).
		Return(domain.Delivery{Channel: "sms", Success: true})

	svc := newTestService(store, testPolicy(), []Channel{sms}, nil)
	res, err := svc.Resend(context.Background(), "o1")

	require.NoError(t, err)
	assert.Equal(t, domain.CodeCreated, res.Code)
	require.NotNil(t, created)
	assert.NotEqual(t, "o1", created.OtpID)
	assert.Equal(t, "req-1", created.ClientReqID)
	store.AssertExpectations(t)
}

func TestResend_StoreFailurePropagates(t *testing.T) {
	store := &mockStore{}
	store.On("GetNew", mock.Anything, "o1").Return(nil, errors.New("dynamo down"))

	svc := newTestService(store, testPolicy(), nil, nil)
	res, err := svc.Resend(context.Background(), "o1")

	require.Error(t, err)
	assert.Nil(t, res)
}
