// Package template renders OTP message bodies. Rendering is a pure function
// of the template text and the otp/service/company values, independent of
// where the template text came from.
package template

import (
	"strings"
	"text/template"
)

// Built-in defaults, used when no override is configured.
const (
	DefaultSMS   = "{{.OTP}} is your {{.Service}} verification code from {{.Company}}. Do not share it."
	DefaultEmail = "Hello,\r\n\r\nYour {{.Service}} verification code is {{.OTP}}.\r\n\r\n{{.Company}}"
)

// Data holds the variables available inside a message template.
type Data struct {
	OTP     string
	Service string
	Company string
}

// Render executes tmpl with the given data.
func Render(tmpl string, data Data) (string, error) {
	t, err := template.New("otp").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
