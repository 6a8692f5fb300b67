// Package smsgateway sends OTP messages through an HTTP SMS gateway whose
// request shape (method, parameter names, headers, payload wrapping) is
// configuration-driven, so one binary can talk to different providers.
package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-otp-api/internal/config"
	"github.com/go-otp-api/internal/domain"
	"github.com/go-otp-api/internal/pkg/template"
)

// maxDiagnosticBytes caps how much of a gateway response body is kept as the
// delivery diagnostic.
const maxDiagnosticBytes = 2048

// Channel is the SMS notification channel backed by the configured gateway.
// It owns a single pooled HTTP client shared across sends.
type Channel struct {
	cfg     config.SMSGateway
	client  *http.Client
	tmpl    string
	service string
	company string
}

func New(cfg config.SMSGateway, tmpl, service, company string) *Channel {
	return &Channel{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		tmpl:    tmpl,
		service: service,
		company: company,
	}
}

func (c *Channel) Kind() string { return "sms" }

// Send renders the message and performs one gateway call. The gateway's
// response code and body are recorded as the delivery diagnostic.
func (c *Channel) Send(ctx context.Context, target, otpCode string) domain.Delivery {
	d := domain.Delivery{Channel: c.Kind(), Target: c.cfg.AddCode + target}

	msg, err := template.Render(c.tmpl, template.Data{OTP: otpCode, Service: c.service, Company: c.company})
	if err != nil {
		d.Diagnostic = fmt.Sprintf("render template: %v", err)
		return d
	}

	req, err := c.buildRequest(ctx, d.Target, msg)
	if err != nil {
		d.Diagnostic = err.Error()
		return d
	}

	resp, err := c.client.Do(req)
	if err != nil {
		d.Diagnostic = fmt.Sprintf("gateway call: %v", err)
		slog.Error("sms gateway call failed", "number", d.Target, "err", err)
		return d
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBytes))
	d.StatusCode = resp.StatusCode
	d.Diagnostic = strings.TrimSpace(string(body))
	d.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	slog.Info("sms gateway response",
		"number", d.Target,
		"response_code", resp.StatusCode,
		"response_body", d.Diagnostic,
	)
	return d
}

func (c *Channel) buildRequest(ctx context.Context, number, msg string) (*http.Request, error) {
	switch c.cfg.Method {
	case http.MethodGet:
		return c.queryRequest(ctx, http.MethodGet, number, msg)
	case http.MethodPost:
		if c.cfg.JSONBody {
			return c.jsonRequest(ctx, number, msg)
		}
		return c.queryRequest(ctx, http.MethodPost, number, msg)
	default:
		return nil, fmt.Errorf("unsupported sms gateway method %q: only GET and POST allowed", c.cfg.Method)
	}
}

// queryRequest carries everything in the query string: extra params plus the
// destination and message under their configured parameter names.
func (c *Channel) queryRequest(ctx context.Context, method, number, msg string) (*http.Request, error) {
	q := url.Values{}
	for k, v := range c.cfg.ExtraParams {
		q.Set(k, v)
	}
	q.Set(c.cfg.SendToParam, number)
	q.Set(c.cfg.MessageParam, msg)

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.URL.RawQuery = q.Encode()
	c.applyHeaders(req)
	return req, nil
}

// jsonRequest posts a JSON body. When a wrapper key is configured, the
// destination/message pair (plus wrapper params) is nested in a single-element
// array under that key, alongside the extra params at the top level.
func (c *Channel) jsonRequest(ctx context.Context, number, msg string) (*http.Request, error) {
	payload := make(map[string]interface{})
	for k, v := range c.cfg.ExtraParams {
		payload[k] = v
	}

	if c.cfg.Wrapper != "" {
		inner := map[string]interface{}{
			c.cfg.SendToParam:  number,
			c.cfg.MessageParam: msg,
		}
		for k, v := range c.cfg.WrapperParams {
			inner[k] = v
		}
		payload[c.cfg.Wrapper] = []map[string]interface{}{inner}
	} else {
		payload[c.cfg.SendToParam] = number
		payload[c.cfg.MessageParam] = msg
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)
	return req, nil
}

func (c *Channel) applyHeaders(req *http.Request) {
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
}
