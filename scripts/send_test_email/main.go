// scripts/send_test_email/main.go
//
// Sends a test email through the configured provider. Useful for checking
// SMTP credentials without placing an order:
//
//	go run ./scripts/send_test_email recipient@example.com
package main

import (
	"log"
	"os"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/pkg/email"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run ./scripts/send_test_email <recipient>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	emailService := email.NewService(cfg)

	testEmail := &email.Email{
		To:          []string{os.Args[1]},
		Subject:     "Test Email from " + cfg.App.CompanyName,
		HTMLContent: "<h1>It works</h1><p>The email provider is configured correctly.</p>",
		Type:        email.TypeOrderConfirmation,
	}

	if err := emailService.Send(testEmail); err != nil {
		log.Fatalf("Failed to send: %v", err)
	}

	log.Printf("Test email sent to %s via provider %q", os.Args[1], cfg.External.Email.Provider)
}
