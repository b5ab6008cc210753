// internal/domain/product/entity.go
package product

import (
	"time"

	"gorm.io/gorm"
)

// Product is the storefront's view of a catalog item. The catalog subsystem
// owns product content; this service owns stock and soldCount, and mutates
// stock only through inventory ledger operations.
type Product struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	SKU               string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name              string         `gorm:"not null;size:255" json:"name"`
	Slug              string         `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description       string         `gorm:"type:text" json:"description"`
	Price             int64          `gorm:"not null" json:"price"` // Rupees
	Thumbnail         string         `gorm:"size:500" json:"thumbnail"`
	Stock             int            `gorm:"not null;default:0" json:"stock"`
	SoldCount         int            `gorm:"not null;default:0" json:"sold_count"`
	LowStockThreshold int            `gorm:"default:5" json:"low_stock_threshold"`
	// No column default so delisted products can be written as inactive.
	IsActive  bool           `gorm:"not null" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Product) TableName() string { return "products" }

// Business methods for Product

func (p *Product) IsInStock() bool {
	return p.Stock > 0
}

func (p *Product) IsLowStock() bool {
	return p.Stock <= p.LowStockThreshold
}

// HasStock reports whether the product can cover qty. Advisory only: the
// authoritative check is the conditional decrement at checkout time.
func (p *Product) HasStock(qty int) bool {
	return p.Stock >= qty
}
