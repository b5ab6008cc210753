// internal/domain/coupon/entity.go
package coupon

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Type represents the discount scheme of a coupon
type Type string

const (
	TypePercentage   Type = "percentage"
	TypeFlat         Type = "flat"
	TypeFreeShipping Type = "free_shipping"
)

// Coupon represents a redeemable discount code. UsedCount is incremented
// exactly once per successful checkout, atomically against MaxUses.
type Coupon struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Code          string         `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Description   string         `gorm:"size:255" json:"description"`
	Type          Type           `gorm:"not null;size:20" json:"type"`
	Value         int64          `gorm:"not null" json:"value"` // Percent for percentage, rupees for flat
	MaxDiscount   int64          `gorm:"default:0" json:"max_discount"`    // 0 = uncapped
	MinOrderValue int64          `gorm:"default:0" json:"min_order_value"` // Rupees
	ValidFrom     time.Time      `json:"valid_from"`
	ValidUntil    time.Time      `json:"valid_until"`
	MaxUses       int            `gorm:"default:0" json:"max_uses"` // 0 = unlimited
	UsedCount     int            `gorm:"default:0" json:"used_count"`
	// No column default: a default would make gorm drop explicit false on
	// insert, and draft coupons are created inactive.
	IsActive  bool           `gorm:"not null" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name for Coupon
func (Coupon) TableName() string {
	return "coupons"
}

// BeforeCreate hook normalizes the code
func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	return nil
}

// IsStarted reports whether the validity window has opened
func (c *Coupon) IsStarted(now time.Time) bool {
	return c.ValidFrom.IsZero() || !now.Before(c.ValidFrom)
}

// IsExpired reports whether the validity window has closed
func (c *Coupon) IsExpired(now time.Time) bool {
	return !c.ValidUntil.IsZero() && now.After(c.ValidUntil)
}

// HasUsesLeft reports whether the usage cap still allows redemption
func (c *Coupon) HasUsesLeft() bool {
	return c.MaxUses == 0 || c.UsedCount < c.MaxUses
}
