// internal/testutil/testutil.go
package testutil

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/storefront-backend/internal/config"
)

// NewDB opens an isolated in-memory database and migrates the given
// models. The pool is pinned to one connection so every gorm session,
// including transactions, sees the same in-memory store.
func NewDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate test models: %v", err)
	}

	return db
}

// NewConfig returns the configuration services expect under test: the
// store's pricing rules, console email provider, and fixed gateway
// secrets so signatures are reproducible.
func NewConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:         "Storefront Backend",
			Version:      "test",
			Environment:  "test",
			CompanyName:  "Storefront",
			CompanyEmail: "support@example.com",
		},
		JWT: config.JWTConfig{
			Secret:            "0123456789abcdef0123456789abcdef",
			AccessTokenExpiry: 15 * time.Minute,
			Issuer:            "storefront-test",
		},
		Checkout: config.CheckoutConfig{
			FreeShippingThreshold: 999,
			StandardShippingFee:   50,
			TaxRatePercent:        18,
			StoreState:            "Karnataka",
			Currency:              "INR",
			OrderNumberPrefix:     "ORD",
			ReservationTTL:        30 * time.Minute,
			SweepInterval:         5 * time.Minute,
		},
		External: config.ExternalConfig{
			Razorpay: config.RazorpayConfig{
				KeyID:         "rzp_test_key",
				KeySecret:     "test_key_secret",
				WebhookSecret: "test_webhook_secret",
			},
			Email: config.EmailConfig{
				Provider:  "console",
				FromEmail: "orders@example.com",
				FromName:  "Storefront",
			},
		},
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "text",
		},
	}
}
