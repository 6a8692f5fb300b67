package http

import (
	"context"

	"github.com/go-otp-api/internal/application/otp"
	"github.com/go-otp-api/internal/domain"
)

// DeliveryReader is the minimal interface the router requires to expose the
// delivery audit trail.
type DeliveryReader interface {
	ListByOtp(ctx context.Context, otpID string) ([]domain.Delivery, error)
}

// Deps holds all infrastructure dependencies for the router. The lifecycle
// interfaces are defined next to their consumer in the otp application
// package; any store/channel implementation satisfying them can be wired here.
type Deps struct {
	OtpStore    otp.Store
	Channels    []otp.Channel
	DeliveryLog otp.DeliveryLog // optional
	Deliveries  DeliveryReader  // optional, enables the audit-trail endpoint
}
