// internal/domain/order/entity.go
package order

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus represents the order lifecycle state
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// PaymentStatus represents payment settlement state
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment methods accepted at checkout
const (
	PaymentMethodRazorpay = "razorpay"
	PaymentMethodCOD      = "cod"
)

// Actor identifies who drove a status change
type Actor string

const (
	ActorUser    Actor = "user"
	ActorAdmin   Actor = "admin"
	ActorSystem  Actor = "system"
	ActorGateway Actor = "gateway"
)

// TaxBreakdown splits the tax amount into its GST components. Intra-state
// orders split into CGST+SGST; inter-state orders carry IGST only.
type TaxBreakdown struct {
	CGST int64 `gorm:"default:0" json:"cgst"`
	SGST int64 `gorm:"default:0" json:"sgst"`
	IGST int64 `gorm:"default:0" json:"igst"`
}

// Order represents the order entity
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	OrderNumber   string        `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	UserID        uint          `gorm:"not null;index" json:"user_id"`
	Status        OrderStatus   `gorm:"not null;default:'pending';size:30" json:"status"`
	PaymentStatus PaymentStatus `gorm:"not null;default:'pending';size:20" json:"payment_status"`
	PaymentMethod string        `gorm:"not null;size:20" json:"payment_method"`

	// Money, in whole rupees; paise exist only at the gateway boundary
	Subtotal       int64        `gorm:"not null" json:"subtotal"`
	DiscountAmount int64        `gorm:"default:0" json:"discount_amount"` // subtracted from goods
	CouponDiscount int64        `gorm:"default:0" json:"coupon_discount"` // total coupon savings incl. waived shipping
	ShippingFee    int64        `gorm:"default:0" json:"shipping_fee"`
	TaxAmount      int64        `gorm:"default:0" json:"tax_amount"`
	TaxBreakdown   TaxBreakdown `gorm:"embedded;embeddedPrefix:tax_" json:"tax_breakdown"`
	TotalAmount    int64        `gorm:"not null" json:"total_amount"`

	// Coupon snapshot
	CouponID   *uint  `json:"coupon_id,omitempty"`
	CouponCode string `gorm:"size:50" json:"coupon_code,omitempty"`

	// Shipping address snapshot, frozen at checkout
	ShippingAddress Address `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`

	Currency string `gorm:"size:3;default:'INR'" json:"currency"`
	Notes    string `gorm:"type:text" json:"notes,omitempty"`

	// Fulfillment
	TrackingNumber string `gorm:"size:100" json:"tracking_number,omitempty"`
	Carrier        string `gorm:"size:50" json:"carrier,omitempty"`
	CancelReason   string `gorm:"size:255" json:"cancel_reason,omitempty"`

	// Lifecycle timestamps, set once on first entry into the state
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
	ShippedAt   *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time     `json:"refunded_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	Payment       *Payment             `gorm:"foreignKey:OrderID" json:"payment,omitempty"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem is a frozen snapshot of one cart line at checkout time
type OrderItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	ProductID   uint      `gorm:"not null;index" json:"product_id"`
	ProductName string    `gorm:"not null;size:255" json:"product_name"`
	ProductSKU  string    `gorm:"not null;size:100" json:"product_sku"`
	Thumbnail   string    `gorm:"size:500" json:"thumbnail,omitempty"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	UnitPrice   int64     `gorm:"not null" json:"unit_price"`
	LineTotal   int64     `gorm:"not null" json:"line_total"`
	CreatedAt   time.Time `json:"created_at"`
}

// Payment represents the payment attempt attached to an order
type Payment struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	OrderID          uint          `gorm:"not null;uniqueIndex" json:"order_id"`
	Amount           int64         `gorm:"not null" json:"amount"`
	Currency         string        `gorm:"size:3;default:'INR'" json:"currency"`
	Method           string        `gorm:"not null;size:20" json:"method"`
	Status           PaymentStatus `gorm:"not null;default:'pending';size:20" json:"status"`
	GatewayOrderID   string        `gorm:"size:100;index" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string        `gorm:"size:100" json:"gateway_payment_id,omitempty"`
	GatewaySignature string        `gorm:"size:255" json:"-"`
	GatewayResponse  string        `gorm:"type:text" json:"-"`
	FailureReason    string        `gorm:"size:255" json:"failure_reason,omitempty"`
	FailureCode      string        `gorm:"size:100" json:"failure_code,omitempty"`
	RefundID         string        `gorm:"size:100" json:"refund_id,omitempty"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
	RefundedAt       *time.Time    `json:"refunded_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// OrderStatusHistory records one lifecycle transition
type OrderStatusHistory struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"not null;index" json:"order_id"`
	FromStatus OrderStatus `gorm:"not null;size:30" json:"from_status"`
	ToStatus   OrderStatus `gorm:"not null;size:30" json:"to_status"`
	Comment    string      `gorm:"type:text" json:"comment,omitempty"`
	ChangedBy  Actor       `gorm:"not null;size:20" json:"changed_by"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderSequence backs order numbers with a year-scoped counter
type OrderSequence struct {
	Year  int   `gorm:"primaryKey" json:"year"`
	Value int64 `gorm:"not null;default:0" json:"value"`
}

// Address is the shipping address snapshot embedded in Order
type Address struct {
	FirstName    string `gorm:"size:100" json:"first_name"`
	LastName     string `gorm:"size:100" json:"last_name"`
	Company      string `gorm:"size:100" json:"company,omitempty"`
	AddressLine1 string `gorm:"size:255" json:"address_line1"`
	AddressLine2 string `gorm:"size:255" json:"address_line2,omitempty"`
	City         string `gorm:"size:100" json:"city"`
	State        string `gorm:"size:100" json:"state"`
	PostalCode   string `gorm:"size:20" json:"postal_code"`
	Country      string `gorm:"size:2" json:"country"`
	Phone        string `gorm:"size:20" json:"phone,omitempty"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (Payment) TableName() string            { return "payments" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }
func (OrderSequence) TableName() string      { return "order_sequences" }

// Business methods for Order

// CanBeCancelled reports whether the customer may still cancel. Customers
// can only cancel before payment confirmation; admins are governed by the
// transition table instead.
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending
}

// CanBeRefunded reports whether a refund may be issued
func (o *Order) CanBeRefunded() bool {
	return o.PaymentStatus == PaymentStatusPaid &&
		o.Status != OrderStatusCancelled &&
		o.Status != OrderStatusRefunded
}

// IsTerminal reports whether the order has reached a final state
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusDelivered ||
		o.Status == OrderStatusCancelled ||
		o.Status == OrderStatusRefunded
}

// IsOnlinePayment reports whether the order pays through the gateway
func (o *Order) IsOnlinePayment() bool {
	return o.PaymentMethod == PaymentMethodRazorpay
}

// GetFullName returns the recipient name from the address snapshot
func (a *Address) GetFullName() string {
	return a.FirstName + " " + a.LastName
}
