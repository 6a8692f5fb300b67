package smtp

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/go-otp-api/internal/config"
	"github.com/go-otp-api/internal/domain"
	"github.com/go-otp-api/internal/pkg/template"
)

// Mailer sends emails.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
	}
}

func (m *mailer) SendEmail(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}

// Channel is the email notification channel, dispatching rendered OTP
// messages through a Mailer.
type Channel struct {
	mailer  Mailer
	tmpl    string
	service string
	company string
}

func NewChannel(mailer Mailer, tmpl, service, company string) *Channel {
	return &Channel{mailer: mailer, tmpl: tmpl, service: service, company: company}
}

func (c *Channel) Kind() string { return "email" }

func (c *Channel) Send(_ context.Context, target, otpCode string) domain.Delivery {
	d := domain.Delivery{Channel: c.Kind(), Target: target}

	body, err := template.Render(c.tmpl, template.Data{OTP: otpCode, Service: c.service, Company: c.company})
	if err != nil {
		d.Diagnostic = fmt.Sprintf("render template: %v", err)
		return d
	}

	subject := fmt.Sprintf("Your %s verification code", c.service)
	if err := c.mailer.SendEmail(target, subject, body); err != nil {
		d.Diagnostic = fmt.Sprintf("send email: %v", err)
		return d
	}
	d.Success = true
	return d
}
