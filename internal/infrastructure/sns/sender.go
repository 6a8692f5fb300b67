package sns

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-otp-api/internal/config"
	"github.com/go-otp-api/internal/domain"
	"github.com/go-otp-api/internal/pkg/template"
)

// Channel is the SMS notification channel backed by AWS SNS, used when no
// custom HTTP gateway is configured (SMS_PROVIDER=sns).
type Channel struct {
	client  *sns.Client
	tmpl    string
	service string
	company string
}

func NewChannel(cfg *config.Config, tmpl string) (*Channel, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &Channel{
		client:  sns.NewFromConfig(awsCfg),
		tmpl:    tmpl,
		service: cfg.ServiceName,
		company: cfg.CompanyName,
	}, nil
}

func (c *Channel) Kind() string { return "sms" }

func (c *Channel) Send(ctx context.Context, target, otpCode string) domain.Delivery {
	d := domain.Delivery{Channel: c.Kind(), Target: target}

	msg, err := template.Render(c.tmpl, template.Data{OTP: otpCode, Service: c.service, Company: c.company})
	if err != nil {
		d.Diagnostic = fmt.Sprintf("render template: %v", err)
		return d
	}

	out, err := c.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: &target,
		Message:     &msg,
	})
	if err != nil {
		d.Diagnostic = fmt.Sprintf("sns publish: %v", err)
		return d
	}
	d.Success = true
	if out.MessageId != nil {
		d.Diagnostic = "message id " + *out.MessageId
	}
	return d
}
