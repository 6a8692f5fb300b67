package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-otp-api/internal/config"
	"github.com/go-otp-api/internal/infrastructure/dynamo"
	"github.com/go-otp-api/internal/infrastructure/memory"
	s3infra "github.com/go-otp-api/internal/infrastructure/s3"
	"github.com/go-otp-api/internal/infrastructure/smsgateway"
	"github.com/go-otp-api/internal/infrastructure/smtp"
	snsinfra "github.com/go-otp-api/internal/infrastructure/sns"
	"github.com/go-otp-api/internal/pkg/template"
	transporthttp "github.com/go-otp-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	deps := &transporthttp.Deps{}

	// OTP record store. DynamoDB in production; the in-memory store is for
	// local development only.
	switch cfg.StoreBackend {
	case "memory":
		log.Println("WARN: using in-memory OTP store, records will not survive a restart")
		deps.OtpStore = memory.NewStore()
	default:
		dynamoClient := dynamo.NewClient(cfg)
		dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)
		deps.OtpStore = dynamo.NewOtpRepo(dynamoClient, cfg.DynamoTables.Otps)
		deliveryRepo := dynamo.NewDeliveryRepo(dynamoClient, cfg.DynamoTables.Deliveries)
		deps.DeliveryLog = deliveryRepo
		deps.Deliveries = deliveryRepo
	}

	smsTmpl, emailTmpl := loadTemplates(cfg)

	// SMS channel: custom HTTP gateway, or SNS when configured (graceful
	// fallback if SNS is unavailable).
	if cfg.OTP.SendBySMS {
		switch cfg.SMSProvider {
		case "sns":
			if ch, err := snsinfra.NewChannel(cfg, smsTmpl); err == nil {
				deps.Channels = append(deps.Channels, ch)
			} else {
				log.Printf("WARN: SNS channel not available: %v", err)
			}
		default:
			deps.Channels = append(deps.Channels, smsgateway.New(cfg.SMSGateway, smsTmpl, cfg.ServiceName, cfg.CompanyName))
		}
	}

	if cfg.OTP.SendByEmail {
		mailer := smtp.NewMailer(cfg)
		deps.Channels = append(deps.Channels, smtp.NewChannel(mailer, emailTmpl, cfg.ServiceName, cfg.CompanyName))
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// loadTemplates returns the SMS and email message templates, preferring S3
// overrides when a template bucket is configured.
func loadTemplates(cfg *config.Config) (smsTmpl, emailTmpl string) {
	smsTmpl, emailTmpl = template.DefaultSMS, template.DefaultEmail
	if cfg.TemplateBucket == "" {
		return smsTmpl, emailTmpl
	}

	src := s3infra.NewTemplateSource(s3infra.NewClient(cfg), cfg.TemplateBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if t, err := src.Fetch(ctx, cfg.SMSTemplateKey); err == nil {
		smsTmpl = t
	} else {
		log.Printf("WARN: SMS template override not loaded, using default: %v", err)
	}
	if t, err := src.Fetch(ctx, cfg.EmailTemplateKey); err == nil {
		emailTmpl = t
	} else {
		log.Printf("WARN: email template override not loaded, using default: %v", err)
	}
	return smsTmpl, emailTmpl
}
