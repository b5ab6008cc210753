// internal/pkg/email/types.go
package email

import (
	"time"
)

// Type represents the type of email being sent
type Type string

const (
	TypeOrderConfirmation Type = "order_confirmation"
	TypePaymentSuccess    Type = "payment_success"
	TypePaymentFailed     Type = "payment_failed"
	TypeOrderStatusUpdate Type = "order_status_update"
)

// Email represents an email message
type Email struct {
	To          []string `json:"to"`
	Subject     string   `json:"subject"`
	HTMLContent string   `json:"html_content"`
	Type        Type     `json:"type"`
}

// TemplateData contains common data for all email templates
type TemplateData struct {
	SiteName     string `json:"site_name"`
	SupportEmail string `json:"support_email"`
	UserName     string `json:"user_name"`
	UserEmail    string `json:"user_email"`
	Year         int    `json:"year"`
}

// OrderLine represents an order line in a confirmation email
type OrderLine struct {
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// OrderConfirmationData contains data for the order confirmation email
type OrderConfirmationData struct {
	TemplateData
	OrderNumber     string      `json:"order_number"`
	OrderDate       string      `json:"order_date"`
	Items           []OrderLine `json:"items"`
	Subtotal        int64       `json:"subtotal"`
	Discount        int64       `json:"discount"`
	Shipping        int64       `json:"shipping"`
	Tax             int64       `json:"tax"`
	Total           int64       `json:"total"`
	PaymentMethod   string      `json:"payment_method"`
	ShippingAddress string      `json:"shipping_address"`
}

// PaymentNotificationData contains data for payment success/failure emails
type PaymentNotificationData struct {
	TemplateData
	OrderNumber   string `json:"order_number"`
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// OrderStatusUpdateData contains data for order status update emails
type OrderStatusUpdateData struct {
	TemplateData
	OrderNumber    string `json:"order_number"`
	Status         string `json:"status"`
	StatusMessage  string `json:"status_message"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

// GetBaseTemplateData returns common template data
func GetBaseTemplateData(siteName, supportEmail, userName, userEmail string) TemplateData {
	return TemplateData{
		SiteName:     siteName,
		SupportEmail: supportEmail,
		UserName:     userName,
		UserEmail:    userEmail,
		Year:         time.Now().Year(),
	}
}

