// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/auth"
)

// Migration represents database migration functionality
type Migration struct {
	db        *gorm.DB
	passwords *auth.PasswordManager
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, cfg *config.Config) *Migration {
	return &Migration{
		db:        db,
		passwords: auth.NewPasswordManager(cfg),
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database migrations...")

	err := m.db.AutoMigrate(
		// User related tables
		&user.User{},
		&user.Address{},

		// Catalog tables
		&product.Product{},

		// Coupon tables
		&coupon.Coupon{},

		// Cart tables
		&cart.Cart{},
		&cart.CartItem{},

		// Order related tables
		&order.Order{},
		&order.OrderItem{},
		&order.Payment{},
		&order.OrderStatusHistory{},
		&order.OrderSequence{},

		// Inventory tables
		&inventory.InventoryLogEntry{},
		&inventory.StockReservation{},
	)

	if err != nil {
		return fmt.Errorf("failed to run auto migrations: %w", err)
	}

	log.Println("✅ Database migrations completed successfully")
	return nil
}

// CreateIndexes creates additional database indexes for performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating database indexes...")

	indexes := []string{
		// Order queries: a user's order list and admin status dashboards
		"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status)",

		// Order items
		"CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_product_id ON order_items(product_id)",

		// Status history is always read per-order in chronological order
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order_created ON order_status_history(order_id, created_at)",

		// Inventory ledger: per-product history and reference lookups
		"CREATE INDEX IF NOT EXISTS idx_inventory_ledger_product_created ON inventory_ledger(product_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_inventory_ledger_reference ON inventory_ledger(reference_type, reference_id)",

		// Stock reservations: the sweeper scans by status and expiry
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_status_expires ON stock_reservations(status, expires_at)",
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_order_status ON stock_reservations(order_id, status)",

		// Product queries
		"CREATE INDEX IF NOT EXISTS idx_products_active_stock ON products(is_active, stock)",

		// Address queries
		"CREATE INDEX IF NOT EXISTS idx_addresses_user_default ON addresses(user_id, is_default)",
	}

	for _, index := range indexes {
		if err := m.db.Exec(index).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			// Continue with other indexes even if one fails
		}
	}

	log.Println("✅ Database indexes created successfully")
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	// Create default admin user
	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	// Create test user for development
	if err := m.seedTestUser(); err != nil {
		return fmt.Errorf("failed to seed test user: %w", err)
	}

	// Seed sample products for checkout testing
	if err := m.seedSampleProducts(); err != nil {
		return fmt.Errorf("failed to seed sample products: %w", err)
	}

	// Seed sample coupons
	if err := m.seedSampleCoupons(); err != nil {
		return fmt.Errorf("failed to seed sample coupons: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

func (m *Migration) seedAdminUser() error {
	log.Println("👤 Seeding admin user...")

	var existing user.User
	result := m.db.Where("email = ?", "admin@example.com").First(&existing)
	if result.Error != nil {
		hashedPassword, err := m.passwords.HashPassword("admin123")
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		adminUser := user.User{
			Email:     "admin@example.com",
			Password:  hashedPassword,
			FirstName: "Admin",
			LastName:  "User",
			IsActive:  true,
			IsAdmin:   true,
		}

		if err := m.db.Create(&adminUser).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Println("✅ Created admin user: admin@example.com (password: admin123)")
	} else {
		log.Printf("⏭️ Admin user already exists with ID: %d", existing.ID)
	}

	return nil
}

func (m *Migration) seedTestUser() error {
	log.Println("👤 Seeding test user...")

	var existing user.User
	result := m.db.Where("email = ?", "test1@example.com").First(&existing)
	if result.Error != nil {
		hashedPassword, err := m.passwords.HashPassword("test123")
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		testUser := user.User{
			Email:     "test1@example.com",
			Password:  hashedPassword,
			FirstName: "Test",
			LastName:  "User",
			Phone:     "+919876543210",
			IsActive:  true,
			IsAdmin:   false,
		}

		if err := m.db.Create(&testUser).Error; err != nil {
			return err
		}

		// Give the test user a default shipping address so checkout works
		// immediately after seeding
		address := user.Address{
			UserID:       testUser.ID,
			Type:         "shipping",
			FirstName:    "Test",
			LastName:     "User",
			AddressLine1: "221B Residency Road",
			City:         "Bengaluru",
			State:        "Karnataka",
			PostalCode:   "560025",
			Country:      "IN",
			Phone:        "+919876543210",
			IsDefault:    true,
		}
		if err := m.db.Create(&address).Error; err != nil {
			return err
		}

		log.Println("✅ Created test user: test1@example.com (password: test123)")
	} else {
		log.Println("⏭️ Test user already exists")
	}

	return nil
}

// seedSampleProducts creates sample products for checkout testing
func (m *Migration) seedSampleProducts() error {
	log.Println("🛍️ Seeding sample products...")

	var productCount int64
	m.db.Model(&product.Product{}).Count(&productCount)

	if productCount >= 3 {
		log.Println("⏭️ Sample products already exist")
		return nil
	}

	sampleProducts := []product.Product{
		{
			SKU:               "SF-LAPTOP-001",
			Name:              "Premium Gaming Laptop",
			Slug:              "premium-gaming-laptop",
			Description:       "High-performance gaming laptop with dedicated graphics and premium build quality.",
			Price:             149999,
			Thumbnail:         "https://cdn.example.com/products/gaming-laptop.jpg",
			Stock:             25,
			LowStockThreshold: 5,
			IsActive:          true,
		},
		{
			SKU:               "SF-MOUSE-002",
			Name:              "Wireless Gaming Mouse",
			Slug:              "wireless-gaming-mouse",
			Description:       "Ergonomic wireless gaming mouse with a high-precision sensor and customizable buttons.",
			Price:             2499,
			Thumbnail:         "https://cdn.example.com/products/gaming-mouse.jpg",
			Stock:             100,
			LowStockThreshold: 10,
			IsActive:          true,
		},
		{
			SKU:               "SF-CABLE-003",
			Name:              "USB-C Charging Cable",
			Slug:              "usb-c-charging-cable",
			Description:       "Braided 1.5m USB-C cable supporting 100W fast charging.",
			Price:             499,
			Thumbnail:         "https://cdn.example.com/products/usb-c-cable.jpg",
			Stock:             500,
			LowStockThreshold: 50,
			IsActive:          true,
		},
		{
			SKU:               "SF-STAND-004",
			Name:              "Aluminium Laptop Stand",
			Slug:              "aluminium-laptop-stand",
			Description:       "Adjustable aluminium laptop stand with ventilated design.",
			Price:             1299,
			Thumbnail:         "https://cdn.example.com/products/laptop-stand.jpg",
			Stock:             60,
			LowStockThreshold: 10,
			IsActive:          true,
		},
	}

	for _, p := range sampleProducts {
		var existing product.Product
		result := m.db.Where("sku = ?", p.SKU).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&p).Error; err != nil {
				return err
			}
			log.Printf("✅ Created product: %s (%s)", p.Name, p.SKU)
		} else {
			log.Printf("⏭️ Product already exists: %s", p.SKU)
		}
	}

	return nil
}

// seedSampleCoupons creates sample coupons covering each discount scheme
func (m *Migration) seedSampleCoupons() error {
	log.Println("🎟️ Seeding sample coupons...")

	now := time.Now().UTC()
	sampleCoupons := []coupon.Coupon{
		{
			Code:          "WELCOME10",
			Description:   "10% off for new customers, up to ₹500",
			Type:          coupon.TypePercentage,
			Value:         10,
			MaxDiscount:   500,
			MinOrderValue: 0,
			ValidFrom:     now,
			ValidUntil:    now.AddDate(1, 0, 0),
			MaxUses:       0,
			IsActive:      true,
		},
		{
			Code:          "FLAT300",
			Description:   "Flat ₹300 off on orders above ₹1999",
			Type:          coupon.TypeFlat,
			Value:         300,
			MinOrderValue: 1999,
			ValidFrom:     now,
			ValidUntil:    now.AddDate(0, 6, 0),
			MaxUses:       1000,
			IsActive:      true,
		},
		{
			Code:        "FREESHIP",
			Description: "Free shipping on any order",
			Type:        coupon.TypeFreeShipping,
			Value:       0,
			ValidFrom:   now,
			ValidUntil:  now.AddDate(0, 3, 0),
			MaxUses:     500,
			IsActive:    true,
		},
	}

	for _, c := range sampleCoupons {
		var existing coupon.Coupon
		result := m.db.Where("code = ?", c.Code).First(&existing)
		if result.Error != nil {
			if err := m.db.Create(&c).Error; err != nil {
				return err
			}
			log.Printf("✅ Created coupon: %s", c.Code)
		} else {
			log.Printf("⏭️ Coupon already exists: %s", c.Code)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with caution - for development only)
func (m *Migration) DropAllTables() error {
	log.Println("⚠️ Dropping all database tables...")

	// Drop in reverse dependency order
	tables := []interface{}{
		&inventory.StockReservation{},
		&inventory.InventoryLogEntry{},
		&order.OrderSequence{},
		&order.OrderStatusHistory{},
		&order.Payment{},
		&order.OrderItem{},
		&order.Order{},
		&cart.CartItem{},
		&cart.Cart{},
		&coupon.Coupon{},
		&product.Product{},
		&user.Address{},
		&user.User{},
	}

	for _, table := range tables {
		if err := m.db.Migrator().DropTable(table); err != nil {
			log.Printf("⚠️ Failed to drop table %T: %v", table, err)
		}
	}

	log.Println("✅ All tables dropped successfully")
	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() {
	log.Println("📊 Database table information:")

	tables := []string{
		"users", "addresses", "products", "coupons",
		"carts", "cart_items",
		"orders", "order_items", "payments", "order_status_history", "order_sequences",
		"inventory_ledger", "stock_reservations",
	}

	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		log.Printf("  %s: %d records", table, count)
	}
}

// CleanupTestData removes transactional data (development only)
func (m *Migration) CleanupTestData() error {
	log.Println("🧹 Cleaning up transactional data...")

	// Delete in FK-safe order
	statements := []string{
		"DELETE FROM order_status_history",
		"DELETE FROM payments",
		"DELETE FROM order_items",
		"DELETE FROM stock_reservations",
		"DELETE FROM inventory_ledger",
		"DELETE FROM orders",
		"DELETE FROM order_sequences",
		"DELETE FROM cart_items",
		"DELETE FROM carts",
	}

	for _, stmt := range statements {
		if err := m.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("cleanup failed on %q: %w", stmt, err)
		}
	}

	log.Println("✅ Transactional data cleaned up")
	return nil
}
