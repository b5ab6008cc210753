// internal/domain/checkout/service.go
package checkout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"github.com/your-org/storefront-backend/internal/pkg/email"
	"gorm.io/gorm"
)

// Service turns a cart into an order. PlaceOrder is the only write path:
// one transaction covering totals, order rows, coupon redemption and the
// authoritative stock commitment, so a failure at any step leaves nothing
// behind.
type Service struct {
	db               *gorm.DB
	config           *config.Config
	gateway          payment.Gateway
	cartService      *cart.Service
	couponService    *coupon.Service
	orderService     *order.Service
	inventoryService *inventory.Service
	addressService   *user.AddressService
	emails           *email.Service
}

// NewService creates a checkout service backed by the live payment gateway
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return NewServiceWithGateway(db, cfg, payment.NewRazorpayClient(cfg))
}

// NewServiceWithGateway creates a checkout service with an explicit gateway
func NewServiceWithGateway(db *gorm.DB, cfg *config.Config, gateway payment.Gateway) *Service {
	return &Service{
		db:               db,
		config:           cfg,
		gateway:          gateway,
		cartService:      cart.NewService(db, cfg),
		couponService:    coupon.NewService(db, cfg),
		orderService:     order.NewService(db, cfg),
		inventoryService: inventory.NewService(db, cfg),
		addressService:   user.NewAddressService(db),
		emails:           email.NewService(cfg),
	}
}

// SummaryRequest parameterizes the checkout preview
type SummaryRequest struct {
	AddressID  *uint  `json:"address_id,omitempty" form:"address_id"`
	CouponCode string `json:"coupon_code,omitempty" form:"coupon_code"`
}

// PlaceOrderRequest represents the order placement payload
type PlaceOrderRequest struct {
	AddressID     uint   `json:"address_id" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	CouponCode    string `json:"coupon_code,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// SummaryItem is one cart line with its current availability
type SummaryItem struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
	InStock   bool   `json:"in_stock"`
	Available int    `json:"available"`
}

// Pricing is the money breakdown shared by summary and receipt
type Pricing struct {
	Subtotal       int64              `json:"subtotal"`
	DiscountAmount int64              `json:"discount_amount"`
	CouponDiscount int64              `json:"coupon_discount"`
	ShippingFee    int64              `json:"shipping_fee"`
	TaxAmount      int64              `json:"tax_amount"`
	TaxBreakdown   order.TaxBreakdown `json:"tax_breakdown"`
	TotalAmount    int64              `json:"total_amount"`
}

// CouponPreview reports the outcome of evaluating a code in the summary
type CouponPreview struct {
	Code     string `json:"code"`
	Applied  bool   `json:"applied"`
	Discount int64  `json:"discount"`
	Message  string `json:"message,omitempty"`
}

// PaymentMethodOption is one way to pay
type PaymentMethodOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// CheckoutSummary is the non-mutating checkout preview
type CheckoutSummary struct {
	Items           []SummaryItem         `json:"items"`
	ShippingAddress *user.Address         `json:"shipping_address,omitempty"`
	Pricing         Pricing               `json:"pricing"`
	Coupon          *CouponPreview        `json:"coupon,omitempty"`
	PaymentMethods  []PaymentMethodOption `json:"payment_methods"`
}

// OrderReceipt is the PlaceOrder response
type OrderReceipt struct {
	Order      *order.Order          `json:"order"`
	Payment    *payment.Instructions `json:"payment,omitempty"`
	ReceiptURL string                `json:"receipt_url"`
	// Set when the gateway order could not be created after the order
	// committed; the client retries through the payment initiate endpoint.
	PaymentSetupError string `json:"payment_setup_error,omitempty"`
}

// GetCheckoutSummary previews the checkout without mutating anything.
// Coupon problems are reported inline; only an empty cart is fatal.
func (s *Service) GetCheckoutSummary(userID uint, req *SummaryRequest) (*CheckoutSummary, error) {
	crt, err := s.cartService.GetCart(userID)
	if err != nil {
		return nil, err
	}
	if crt.IsEmpty() {
		return nil, apperrors.Conflict(apperrors.CodeEmptyCart, "cart is empty")
	}

	summary := &CheckoutSummary{
		Items:          make([]SummaryItem, 0, len(crt.Items)),
		PaymentMethods: s.availablePaymentMethods(),
	}

	var subtotal int64
	for _, item := range crt.Items {
		subtotal += item.LineTotal
		summary.Items = append(summary.Items, SummaryItem{
			ProductID: item.ProductID,
			Name:      item.Product.Name,
			SKU:       item.Product.SKU,
			Thumbnail: item.Product.Thumbnail,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
			InStock:   item.Product.IsActive && item.Product.Stock >= item.Quantity,
			Available: item.Product.Stock,
		})
	}

	if req.AddressID != nil {
		addr, err := s.addressService.GetAddress(userID, *req.AddressID)
		if err != nil {
			return nil, err
		}
		summary.ShippingAddress = addr
	} else if addr, err := s.addressService.GetDefaultAddress(userID, "shipping"); err == nil {
		summary.ShippingAddress = addr
	}

	// Explicit code overrides the coupon already applied to the cart.
	var appliedCoupon *coupon.Coupon
	if req.CouponCode != "" {
		c, err := s.couponService.GetByCode(req.CouponCode)
		if err == nil {
			err = s.couponService.CheckRedeemable(c, subtotal, time.Now().UTC())
		}
		if err != nil {
			summary.Coupon = &CouponPreview{Code: strings.ToUpper(strings.TrimSpace(req.CouponCode)), Message: err.Error()}
		} else {
			appliedCoupon = c
		}
	} else if crt.Coupon != nil {
		appliedCoupon = crt.Coupon
	}

	// Without an address the preview assumes an in-state delivery.
	state := s.config.Checkout.StoreState
	if summary.ShippingAddress != nil {
		state = summary.ShippingAddress.State
	}

	summary.Pricing = s.price(subtotal, appliedCoupon, state)
	if appliedCoupon != nil {
		summary.Coupon = &CouponPreview{
			Code:     appliedCoupon.Code,
			Applied:  true,
			Discount: summary.Pricing.CouponDiscount,
		}
	}

	return summary, nil
}

// PlaceOrder converts the cart into an order inside a single transaction.
// After commit, online orders get a gateway order; a gateway failure there
// leaves the order pending for the initiate-payment retry path.
func (s *Service) PlaceOrder(userID uint, req *PlaceOrderRequest) (*OrderReceipt, error) {
	if req.PaymentMethod != order.PaymentMethodRazorpay && req.PaymentMethod != order.PaymentMethodCOD {
		return nil, apperrors.Validation(apperrors.CodeUnsupportedPayment,
			fmt.Sprintf("unsupported payment method: %s", req.PaymentMethod))
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	crt, err := s.cartService.GetCartByUserID(tx, userID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if crt.IsEmpty() {
		tx.Rollback()
		return nil, apperrors.Conflict(apperrors.CodeEmptyCart, "cart is empty")
	}

	// Advisory pass so most shortages fail before any write; the
	// conditional decrement below remains the authority.
	for _, item := range crt.Items {
		if !item.Product.IsActive {
			tx.Rollback()
			return nil, apperrors.Validation("product_unavailable",
				fmt.Sprintf("%s is no longer available", item.Product.Name))
		}
		if item.Product.Stock < item.Quantity {
			tx.Rollback()
			return nil, apperrors.Conflict(apperrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for %s", item.Product.Name))
		}
	}

	var addr user.Address
	if err := tx.Where("id = ? AND user_id = ?", req.AddressID, userID).First(&addr).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("address")
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	var subtotal int64
	for _, item := range crt.Items {
		subtotal += item.LineTotal
	}

	appliedCoupon, err := s.resolveCoupon(crt, req.CouponCode, subtotal)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	pricing := s.price(subtotal, appliedCoupon, addr.State)

	orderNumber, err := s.orderService.NextOrderNumber(tx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ord := order.Order{
		OrderNumber:    orderNumber,
		UserID:         userID,
		Status:         order.OrderStatusPending,
		PaymentStatus:  order.PaymentStatusPending,
		PaymentMethod:  req.PaymentMethod,
		Subtotal:       pricing.Subtotal,
		DiscountAmount: pricing.DiscountAmount,
		CouponDiscount: pricing.CouponDiscount,
		ShippingFee:    pricing.ShippingFee,
		TaxAmount:      pricing.TaxAmount,
		TaxBreakdown:   pricing.TaxBreakdown,
		TotalAmount:    pricing.TotalAmount,
		ShippingAddress: order.Address{
			FirstName:    addr.FirstName,
			LastName:     addr.LastName,
			Company:      addr.Company,
			AddressLine1: addr.AddressLine1,
			AddressLine2: addr.AddressLine2,
			City:         addr.City,
			State:        addr.State,
			PostalCode:   addr.PostalCode,
			Country:      addr.Country,
			Phone:        addr.Phone,
		},
		Currency: s.config.Checkout.Currency,
		Notes:    req.Notes,
	}
	if appliedCoupon != nil {
		ord.CouponID = &appliedCoupon.ID
		ord.CouponCode = appliedCoupon.Code
	}

	if err := tx.Create(&ord).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	reservationLines := make([]inventory.ReservationLine, 0, len(crt.Items))
	for _, item := range crt.Items {
		orderItem := order.OrderItem{
			OrderID:     ord.ID,
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			ProductSKU:  item.Product.SKU,
			Thumbnail:   item.Product.Thumbnail,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		}
		if err := tx.Create(&orderItem).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		reservationLines = append(reservationLines, inventory.ReservationLine{
			OrderItemID: orderItem.ID,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
		})
	}

	pay := order.Payment{
		OrderID:  ord.ID,
		Amount:   pricing.TotalAmount,
		Currency: s.config.Checkout.Currency,
		Method:   req.PaymentMethod,
		Status:   order.PaymentStatusPending,
	}
	if err := tx.Create(&pay).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if appliedCoupon != nil {
		if err := s.couponService.Redeem(tx, appliedCoupon.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	// Authoritative stock commitment: one conditional decrement plus a
	// ledger entry per line. Losing a last-unit race rolls back everything.
	for i := range crt.Items {
		item := &crt.Items[i]
		if err := s.inventoryService.CommitSale(tx, &item.Product, item.Quantity, ord.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if req.PaymentMethod == order.PaymentMethodRazorpay {
		expiresAt := time.Now().UTC().Add(s.config.Checkout.ReservationTTL)
		if err := s.inventoryService.CreateReservations(tx, ord.ID, reservationLines, expiresAt); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	history := order.OrderStatusHistory{
		OrderID:    ord.ID,
		FromStatus: order.OrderStatusPending,
		ToStatus:   order.OrderStatusPending,
		Comment:    "order placed",
		ChangedBy:  order.ActorUser,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}

	if err := s.cartService.Empty(tx, crt.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit checkout transaction: %w", err)
	}

	receipt := &OrderReceipt{
		ReceiptURL: fmt.Sprintf("/api/v1/orders/%d/receipt", ord.ID),
	}

	if req.PaymentMethod == order.PaymentMethodRazorpay {
		instructions, err := s.createGatewayOrder(&ord)
		if err != nil {
			receipt.PaymentSetupError = "payment initialization failed; retry via the payment initiate endpoint"
		} else {
			receipt.Payment = instructions
		}
	}

	full, err := s.orderService.GetOrder(userID, ord.ID)
	if err != nil {
		return nil, err
	}
	receipt.Order = full

	s.sendConfirmationEmail(full)

	return receipt, nil
}

// Private helper methods

// resolveCoupon picks the explicit code over the cart's applied coupon and
// enforces redeemability at checkout time.
func (s *Service) resolveCoupon(crt *cart.Cart, code string, subtotal int64) (*coupon.Coupon, error) {
	var c *coupon.Coupon
	switch {
	case code != "":
		found, err := s.couponService.GetByCode(code)
		if err != nil {
			return nil, err
		}
		c = found
	case crt.Coupon != nil:
		c = crt.Coupon
	case crt.CouponID != nil:
		found, err := s.couponService.GetByID(*crt.CouponID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		c = found
	default:
		return nil, nil
	}

	if err := s.couponService.CheckRedeemable(c, subtotal, time.Now().UTC()); err != nil {
		return nil, err
	}
	return c, nil
}

// price computes the money breakdown for a subtotal, an optional coupon and
// the destination state.
func (s *Service) price(subtotal int64, c *coupon.Coupon, shippingState string) Pricing {
	p := Pricing{Subtotal: subtotal}

	baseShipping := int64(0)
	if subtotal < s.config.Checkout.FreeShippingThreshold {
		baseShipping = s.config.Checkout.StandardShippingFee
	}
	p.ShippingFee = baseShipping

	if c != nil {
		if c.Type == coupon.TypeFreeShipping {
			// Waives the shipping actually charged instead of
			// discounting goods.
			p.CouponDiscount = baseShipping
			p.ShippingFee = 0
		} else {
			p.DiscountAmount = s.couponService.Evaluate(c, subtotal)
			p.CouponDiscount = p.DiscountAmount
		}
	}

	taxable := subtotal - p.DiscountAmount
	p.TaxAmount = (taxable*s.config.Checkout.TaxRatePercent + 50) / 100
	if strings.EqualFold(shippingState, s.config.Checkout.StoreState) {
		p.TaxBreakdown.CGST = p.TaxAmount / 2
		p.TaxBreakdown.SGST = p.TaxAmount - p.TaxBreakdown.CGST
	} else {
		p.TaxBreakdown.IGST = p.TaxAmount
	}

	p.TotalAmount = subtotal - p.DiscountAmount + p.ShippingFee + p.TaxAmount
	return p
}

// createGatewayOrder runs after commit and persists the gateway order ID on
// the payment row.
func (s *Service) createGatewayOrder(ord *order.Order) (*payment.Instructions, error) {
	gwOrder, err := s.gateway.CreateOrder(&payment.GatewayOrderRequest{
		Amount:   ord.TotalAmount,
		Currency: ord.Currency,
		Receipt:  ord.OrderNumber,
		Notes:    map[string]string{"order_id": fmt.Sprintf("%d", ord.ID)},
	})
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&order.Payment{}).
		Where("order_id = ?", ord.ID).
		Update("gateway_order_id", gwOrder.ID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to persist gateway order id: %w", err)
	}

	return &payment.Instructions{
		GatewayOrderID: gwOrder.ID,
		KeyID:          s.config.External.Razorpay.KeyID,
		Amount:         ord.TotalAmount,
		Currency:       ord.Currency,
	}, nil
}

func (s *Service) availablePaymentMethods() []PaymentMethodOption {
	return []PaymentMethodOption{
		{
			ID:          order.PaymentMethodRazorpay,
			Name:        "Razorpay",
			Description: "Pay using Credit Card, Debit Card, NetBanking, UPI, or Wallets",
			Available:   s.config.External.Razorpay.KeyID != "",
		},
		{
			ID:          order.PaymentMethodCOD,
			Name:        "Cash on Delivery",
			Description: "Pay cash when your order is delivered",
			Available:   true,
		},
	}
}

// sendConfirmationEmail fires the order placed email without blocking the
// checkout response. All data is materialized before the goroutine starts
// so the send never touches the database.
func (s *Service) sendConfirmationEmail(ord *order.Order) {
	var u user.User
	if err := s.db.Select("email", "first_name", "last_name").First(&u, ord.UserID).Error; err != nil {
		return
	}

	lines := make([]email.OrderLine, 0, len(ord.Items))
	for _, item := range ord.Items {
		lines = append(lines, email.OrderLine{
			Name:      item.ProductName,
			SKU:       item.ProductSKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}

	addr := ord.ShippingAddress
	data := email.OrderConfirmationData{
		TemplateData: email.TemplateData{
			UserName:  u.GetDisplayName(),
			UserEmail: u.Email,
		},
		OrderNumber:   ord.OrderNumber,
		OrderDate:     ord.CreatedAt.Format("02 Jan 2006"),
		Items:         lines,
		Subtotal:      ord.Subtotal,
		Discount:      ord.DiscountAmount,
		Shipping:      ord.ShippingFee,
		Tax:           ord.TaxAmount,
		Total:         ord.TotalAmount,
		PaymentMethod: string(ord.PaymentMethod),
		ShippingAddress: fmt.Sprintf("%s, %s, %s, %s %s",
			addr.GetFullName(), addr.AddressLine1, addr.City, addr.State, addr.PostalCode),
	}

	go s.emails.SendOrderConfirmation(data)
}
