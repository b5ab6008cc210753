// internal/domain/inventory/entity.go
package inventory

import (
	"fmt"
	"time"
)

// EntryType classifies a stock movement in the ledger
type EntryType string

const (
	EntrySale       EntryType = "sale"
	EntryReturn     EntryType = "return"
	EntryPurchase   EntryType = "purchase"
	EntryAdjustment EntryType = "adjustment"
)

// Reference types tie a ledger entry to its cause
const (
	ReferenceOrder  = "order"
	ReferenceManual = "manual"
	ReferenceSweep  = "sweep"
)

// ReservationStatus tracks a stock reservation through the payment window
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationReleased  ReservationStatus = "released"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// InventoryLogEntry is one row of the append-only stock ledger. Rows are
// never updated or deleted; replaying a product's entries in order must
// reproduce its current stock exactly.
type InventoryLogEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProductID     uint      `gorm:"not null;index" json:"product_id"`
	Type          EntryType `gorm:"not null;size:20" json:"type"`
	QuantityDelta int       `gorm:"not null" json:"quantity_delta"` // Signed; negative removes stock
	StockBefore   int       `gorm:"not null" json:"stock_before"`
	StockAfter    int       `gorm:"not null" json:"stock_after"`
	ReferenceType string    `gorm:"size:50" json:"reference_type"` // order, manual, sweep
	ReferenceID   uint      `json:"reference_id"`
	Note          string    `gorm:"type:text" json:"note,omitempty"`
	CreatedBy     uint      `gorm:"index" json:"created_by"` // 0 = system
	CreatedAt     time.Time `json:"created_at"`
}

// StockReservation marks stock provisionally sold for an online-payment
// order. Created at checkout, resolved by payment capture, payment failure,
// cancellation, or the expiry sweep.
type StockReservation struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	OrderID     uint              `gorm:"not null;index" json:"order_id"`
	OrderItemID uint              `gorm:"not null" json:"order_item_id"`
	ProductID   uint              `gorm:"not null;index" json:"product_id"`
	Quantity    int               `gorm:"not null" json:"quantity"`
	Status      ReservationStatus `gorm:"not null;size:20;default:'active';index" json:"status"`
	ExpiresAt   time.Time         `gorm:"index" json:"expires_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName overrides
func (InventoryLogEntry) TableName() string { return "inventory_ledger" }
func (StockReservation) TableName() string  { return "stock_reservations" }

// Validate checks the ledger arithmetic before an append
func (e *InventoryLogEntry) Validate() error {
	if e.QuantityDelta == 0 {
		return fmt.Errorf("ledger entry must not have a zero delta")
	}
	if e.StockAfter != e.StockBefore+e.QuantityDelta {
		return fmt.Errorf("ledger entry arithmetic mismatch: %d + %d != %d",
			e.StockBefore, e.QuantityDelta, e.StockAfter)
	}
	if e.StockAfter < 0 {
		return fmt.Errorf("ledger entry would record negative stock: %d", e.StockAfter)
	}
	return nil
}

// IsExpired reports whether the reservation window has lapsed
func (r *StockReservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}
