package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-otp-api/internal/config"
	"github.com/go-otp-api/internal/domain"
	"github.com/go-otp-api/internal/pkg/code"
	"github.com/go-otp-api/internal/pkg/id"
)

// Channel kinds. A channel's kind decides which destination field it targets.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Store is the OTP record store consumed by the lifecycle manager.
// Implementations must make MarkUsed/MarkExpired/ExpireActive conditional on
// status=new so concurrent callers cannot double-consume a record.
type Store interface {
	Create(ctx context.Context, rec *domain.OtpRecord) error
	// GetActive returns the record with the given id while status=new and
	// created_at > notBefore (Unix seconds). Missing, consumed, expired and
	// timed-out records all surface as domain.ErrNotFound.
	GetActive(ctx context.Context, otpID string, notBefore int64) (*domain.OtpRecord, error)
	// GetNew returns the record with the given id while status=new,
	// with no created_at constraint.
	GetNew(ctx context.Context, otpID string) (*domain.OtpRecord, error)
	// ExpireActive marks every record matching (destination, type, status=new)
	// as expired and returns the number of records affected.
	ExpireActive(ctx context.Context, destination, otpType string) (int, error)
	MarkUsed(ctx context.Context, otpID string) error
	MarkExpired(ctx context.Context, otpID string) error
	IncrementRetry(ctx context.Context, otpID string) error
}

// Channel delivers a generated code to a single destination.
type Channel interface {
	Kind() string
	Send(ctx context.Context, target, otpCode string) domain.Delivery
}

// DeliveryLog persists channel outcomes as an audit trail.
type DeliveryLog interface {
	Put(ctx context.Context, d *domain.Delivery) error
}

type RequestOTP struct {
	ClientReqID string `json:"client_req_id" validate:"required"`
	Number      string `json:"number"`
	Email       string `json:"email" validate:"omitempty,email"`
	Type        string `json:"type" validate:"required"`
}

type ValidateOTP struct {
	UniqueID string `json:"unique_id" validate:"required"`
	OTP      string `json:"otp" validate:"required"`
}

type Service interface {
	Request(ctx context.Context, req RequestOTP) (*domain.Result, error)
	Validate(ctx context.Context, req ValidateOTP) (*domain.Result, error)
	Resend(ctx context.Context, uniqueID string) (*domain.Result, error)
}

// Deps holds the collaborators of the lifecycle manager.
type Deps struct {
	Store       Store
	Channels    []Channel
	DeliveryLog DeliveryLog // optional; nil disables the audit trail
	Policy      config.OTPPolicy
	Timezone    *time.Location
}

type service struct {
	store       Store
	channels    []Channel
	deliveryLog DeliveryLog
	policy      config.OTPPolicy
	loc         *time.Location
}

func NewService(deps Deps) Service {
	loc := deps.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		store:       deps.Store,
		channels:    deps.Channels,
		deliveryLog: deps.DeliveryLog,
		policy:      deps.Policy,
		loc:         loc,
	}
}

// Request issues a fresh OTP for (destination, type), superseding any code
// still active for the same pair. Delivery is best-effort: the issuance
// succeeds once the record is durably created.
func (s *service) Request(ctx context.Context, req RequestOTP) (*domain.Result, error) {
	if !s.policy.ServiceEnabled {
		return &domain.Result{Code: domain.CodeServiceUnavailable, Error: "Service Unavailable"}, nil
	}
	if req.ClientReqID == "" || req.Type == "" || (req.Number == "" && req.Email == "") {
		return &domain.Result{Code: domain.CodeBadRequest, Error: "Bad Request"}, nil
	}

	dest := domain.DestinationKey(req.Number, req.Email)
	expired, err := s.store.ExpireActive(ctx, dest, req.Type)
	if err != nil {
		return nil, fmt.Errorf("expire active otps: %w", err)
	}

	// Exactly one superseded record means this is the resend path, not the
	// first issuance: with resend disabled the caller must wait the prior
	// code out instead of forcing a new one.
	if !s.policy.ResendEnabled && expired == 1 {
		return &domain.Result{Code: domain.CodeResendDisabled, Error: "Resend Service is disabled"}, nil
	}

	otpCode, err := code.Numeric(s.policy.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	rec := &domain.OtpRecord{
		OtpID:       id.New(),
		ClientReqID: req.ClientReqID,
		Number:      req.Number,
		Email:       req.Email,
		Type:        req.Type,
		Code:        otpCode,
		Retry:       0,
		Status:      domain.OtpStatusNew,
		Destination: dest,
		CreatedAt:   s.now().Unix(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create otp record: %w", err)
	}

	s.deliver(ctx, rec)

	return &domain.Result{Code: domain.CodeCreated, OK: true, UniqueID: rec.OtpID, Type: rec.Type}, nil
}

// Validate checks a submitted code against the addressable record for the id.
// A correct code consumes the record permanently; a wrong one increments the
// retry counter until it passes maxRetry, at which point the record expires.
func (s *service) Validate(ctx context.Context, req ValidateOTP) (*domain.Result, error) {
	notBefore := s.now().Add(-s.policy.Expiry).Unix()
	rec, err := s.store.GetActive(ctx, req.UniqueID, notBefore)
	if errors.Is(err, domain.ErrNotFound) {
		return s.expiredResult(req.UniqueID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup otp record: %w", err)
	}

	if rec.Code == req.OTP {
		if err := s.store.MarkUsed(ctx, req.UniqueID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Lost the race to a concurrent submission; the record is
				// no longer addressable.
				return s.expiredResult(req.UniqueID), nil
			}
			return nil, fmt.Errorf("mark otp used: %w", err)
		}
		return &domain.Result{
			Code:      domain.CodeValidated,
			OK:        true,
			RequestID: rec.ClientReqID,
			Type:      rec.Type,
		}, nil
	}

	// Strict > keeps the legacy boundary: a record tolerates maxRetry+1 wrong
	// attempts before it expires.
	if rec.Retry > s.policy.MaxRetry {
		if err := s.store.MarkExpired(ctx, req.UniqueID); err != nil && !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("expire otp record: %w", err)
		}
		return &domain.Result{
			Code:     domain.CodeTooManyTries,
			ResendID: req.UniqueID,
			Error:    "too many wrong try",
		}, nil
	}
	if err := s.store.IncrementRetry(ctx, req.UniqueID); err != nil {
		return nil, fmt.Errorf("increment otp retry: %w", err)
	}
	return &domain.Result{
		Code:     domain.CodeInvalidCode,
		ResendID: req.UniqueID,
		Error:    "invalid otp",
	}, nil
}

// Resend reissues the code for a still-active record, running a full Request
// cycle with the original request fields. The looked-up record is expired as
// part of that cycle.
func (s *service) Resend(ctx context.Context, uniqueID string) (*domain.Result, error) {
	rec, err := s.store.GetNew(ctx, uniqueID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Result{Code: domain.CodeExpired, ResendID: uniqueID, Error: "no active otp to resend"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup otp record: %w", err)
	}
	if !s.policy.ResendEnabled {
		return &domain.Result{Code: domain.CodeResendDisabled, Error: "Resend Service is disabled"}, nil
	}
	return s.Request(ctx, RequestOTP{
		ClientReqID: rec.ClientReqID,
		Number:      rec.Number,
		Email:       rec.Email,
		Type:        rec.Type,
	})
}

// deliver invokes every enabled channel whose destination field is populated.
// Channel failures are logged and recorded, never surfaced to the caller.
func (s *service) deliver(ctx context.Context, rec *domain.OtpRecord) {
	for _, ch := range s.channels {
		var target string
		switch ch.Kind() {
		case ChannelSMS:
			if !s.policy.SendBySMS || rec.Number == "" {
				continue
			}
			target = rec.Number
		case ChannelEmail:
			if !s.policy.SendByEmail || rec.Email == "" {
				continue
			}
			target = rec.Email
		default:
			continue
		}

		d := ch.Send(ctx, target, rec.Code)
		d.DeliveryID = id.New()
		d.OtpID = rec.OtpID
		d.CreatedAt = s.now().Unix()

		if d.Success {
			slog.Info("otp delivered", "channel", d.Channel, "otp_id", rec.OtpID, "gateway_status", d.StatusCode)
		} else {
			slog.Error("otp delivery failed", "channel", d.Channel, "otp_id", rec.OtpID, "diagnostic", d.Diagnostic)
		}
		if s.deliveryLog != nil {
			if err := s.deliveryLog.Put(ctx, &d); err != nil {
				slog.Warn("failed to record delivery outcome", "otp_id", rec.OtpID, "channel", d.Channel, "err", err)
			}
		}
	}
}

func (s *service) expiredResult(uniqueID string) *domain.Result {
	return &domain.Result{Code: domain.CodeExpired, ResendID: uniqueID, Error: "otp expired/timeout"}
}

func (s *service) now() time.Time {
	return time.Now().In(s.loc)
}
