package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	// StoreBackend selects the OTP record store: "dynamo" (default) or "memory".
	StoreBackend string

	OTP OTPPolicy

	ServiceName string
	CompanyName string
	Timezone    *time.Location

	SMSProvider string // "gateway" (default) or "sns"
	SMSGateway  SMSGateway
	SNSRegion   string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	// Optional S3 template overrides; empty bucket disables the lookup.
	TemplateBucket   string
	SMSTemplateKey   string
	EmailTemplateKey string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Otps       string
	Deliveries string
}

// OTPPolicy is the read-only policy surface consumed by the lifecycle manager.
type OTPPolicy struct {
	Digits         int
	Expiry         time.Duration
	MaxRetry       int
	ServiceEnabled bool
	ResendEnabled  bool
	SendBySMS      bool
	SendByEmail    bool
}

// SMSGateway describes the shape of the outbound SMS HTTP gateway.
type SMSGateway struct {
	Method        string // GET or POST
	URL           string
	Headers       map[string]string
	SendToParam   string // query/body key carrying the destination number
	MessageParam  string // query/body key carrying the rendered message
	ExtraParams   map[string]string
	Wrapper       string // optional key wrapping the payload in POST bodies
	WrapperParams map[string]string
	AddCode       string // country-code prefix prepended to the number
	JSONBody      bool   // POST as JSON instead of query parameters
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Otps:       getEnv("DYNAMO_TABLE_OTPS", "otps"),
			Deliveries: getEnv("DYNAMO_TABLE_OTP_DELIVERIES", "otp_deliveries"),
		},
		StoreBackend: getEnv("OTP_STORE_BACKEND", "dynamo"),

		OTP: OTPPolicy{
			Digits:         getEnvInt("OTP_DIGITS", 4),
			Expiry:         time.Duration(getEnvInt("OTP_TIMEOUT_SECONDS", 120)) * time.Second,
			MaxRetry:       getEnvInt("OTP_MAX_RETRY", 3),
			ServiceEnabled: getEnvBool("OTP_SERVICE_ENABLED", true),
			ResendEnabled:  getEnvBool("OTP_RESEND_ENABLED", true),
			SendBySMS:      getEnvBool("OTP_SEND_BY_SMS", true),
			SendByEmail:    getEnvBool("OTP_SEND_BY_EMAIL", false),
		},

		ServiceName: getEnv("OTP_SERVICE_NAME", "otp-api"),
		CompanyName: getEnv("OTP_COMPANY_NAME", "Example Co"),
		Timezone:    getEnvLocation("APP_TIMEZONE"),

		SMSProvider: getEnv("SMS_PROVIDER", "gateway"),
		SMSGateway: SMSGateway{
			Method:        strings.ToUpper(getEnv("SMS_GATEWAY_METHOD", "GET")),
			URL:           getEnv("SMS_GATEWAY_URL", ""),
			Headers:       getEnvMap("SMS_GATEWAY_HEADERS"),
			SendToParam:   getEnv("SMS_GATEWAY_SEND_TO_PARAM", "to"),
			MessageParam:  getEnv("SMS_GATEWAY_MSG_PARAM", "message"),
			ExtraParams:   getEnvMap("SMS_GATEWAY_PARAMS"),
			Wrapper:       getEnv("SMS_GATEWAY_WRAPPER", ""),
			WrapperParams: getEnvMap("SMS_GATEWAY_WRAPPER_PARAMS"),
			AddCode:       getEnv("SMS_GATEWAY_ADD_CODE", ""),
			JSONBody:      getEnvBool("SMS_GATEWAY_JSON", false),
		},
		SNSRegion: getEnv("SNS_REGION", "us-east-1"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		TemplateBucket:   getEnv("TEMPLATE_S3_BUCKET", ""),
		SMSTemplateKey:   getEnv("TEMPLATE_S3_SMS_KEY", "templates/otp-sms.tmpl"),
		EmailTemplateKey: getEnv("TEMPLATE_S3_EMAIL_KEY", "templates/otp-email.tmpl"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvMap parses "k1:v1,k2:v2" into a map. Malformed pairs are skipped.
func getEnvMap(key string) map[string]string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	m := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return m
}

func getEnvLocation(key string) *time.Location {
	if v := os.Getenv(key); v != "" {
		if loc, err := time.LoadLocation(v); err == nil {
			return loc
		}
	}
	return time.UTC
}
