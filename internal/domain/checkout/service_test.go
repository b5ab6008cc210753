// internal/domain/checkout/service_test.go
package checkout

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"github.com/your-org/storefront-backend/internal/testutil"
)

// fakeGateway records created orders and never talks to the network.
type fakeGateway struct {
	createdOrders []*payment.GatewayOrderRequest
	orderErr      error
}

func (f *fakeGateway) CreateOrder(req *payment.GatewayOrderRequest) (*payment.GatewayOrder, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.createdOrders = append(f.createdOrders, req)
	return &payment.GatewayOrder{
		ID:       fmt.Sprintf("order_fake%d", len(f.createdOrders)),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (f *fakeGateway) FetchPayment(string) (*payment.GatewayPayment, error) {
	return nil, apperrors.Gateway("not implemented in fake", nil)
}

func (f *fakeGateway) CreateRefund(string, int64, map[string]string) (*payment.GatewayRefund, error) {
	return nil, apperrors.Gateway("not implemented in fake", nil)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeGateway) {
	t.Helper()
	db := testutil.NewDB(t,
		&cart.Cart{}, &cart.CartItem{},
		&coupon.Coupon{}, &product.Product{},
		&order.Order{}, &order.OrderItem{}, &order.Payment{}, &order.OrderStatusHistory{}, &order.OrderSequence{},
		&user.User{}, &user.Address{},
		&inventory.InventoryLogEntry{}, &inventory.StockReservation{},
	)
	require.NoError(t, db.Create(&user.User{
		ID:        1,
		Email:     "asha@example.com",
		Password:  "x",
		FirstName: "Asha",
		LastName:  "Rao",
	}).Error)
	gw := &fakeGateway{}
	return NewServiceWithGateway(db, testutil.NewConfig(), gw), db, gw
}

func seedAddress(t *testing.T, db *gorm.DB, a user.Address) *user.Address {
	t.Helper()
	if a.UserID == 0 {
		a.UserID = 1
	}
	if a.Type == "" {
		a.Type = "shipping"
	}
	if a.FirstName == "" {
		a.FirstName = "Asha"
		a.LastName = "Rao"
	}
	if a.AddressLine1 == "" {
		a.AddressLine1 = "12 MG Road"
	}
	if a.City == "" {
		a.City = "Bengaluru"
	}
	if a.State == "" {
		a.State = "Karnataka"
	}
	if a.PostalCode == "" {
		a.PostalCode = "560001"
	}
	if a.Country == "" {
		a.Country = "IN"
	}
	require.NoError(t, db.Create(&a).Error)
	return &a
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price int64, stock int) *product.Product {
	t.Helper()
	p := product.Product{
		SKU:      sku,
		Slug:     sku,
		Name:     "Product " + sku,
		Price:    price,
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func seedCoupon(t *testing.T, db *gorm.DB, c coupon.Coupon) *coupon.Coupon {
	t.Helper()
	if c.ValidUntil.IsZero() {
		c.ValidUntil = time.Now().UTC().Add(24 * time.Hour)
	}
	c.IsActive = true
	require.NoError(t, db.Create(&c).Error)
	return &c
}

func addToCart(t *testing.T, svc *Service, productID uint, qty int) {
	t.Helper()
	_, err := svc.cartService.AddItem(1, &cart.AddItemRequest{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestPrice(t *testing.T) {
	svc, _, _ := newTestService(t)

	percent10 := &coupon.Coupon{Type: coupon.TypePercentage, Value: 10}
	percent10Capped := &coupon.Coupon{Type: coupon.TypePercentage, Value: 10, MaxDiscount: 500}
	flat300 := &coupon.Coupon{Type: coupon.TypeFlat, Value: 300}
	freeShip := &coupon.Coupon{Type: coupon.TypeFreeShipping}

	tests := []struct {
		name  string
		sub   int64
		c     *coupon.Coupon
		state string
		want  Pricing
	}{
		{
			name: "free shipping at threshold", sub: 999, state: "Karnataka",
			want: Pricing{Subtotal: 999, ShippingFee: 0, TaxAmount: 180,
				TaxBreakdown: order.TaxBreakdown{CGST: 90, SGST: 90}, TotalAmount: 1179},
		},
		{
			name: "standard shipping below threshold", sub: 998, state: "Karnataka",
			want: Pricing{Subtotal: 998, ShippingFee: 50, TaxAmount: 180,
				TaxBreakdown: order.TaxBreakdown{CGST: 90, SGST: 90}, TotalAmount: 1228},
		},
		{
			name: "odd tax splits with the extra rupee on sgst", sub: 25, state: "Karnataka",
			want: Pricing{Subtotal: 25, ShippingFee: 50, TaxAmount: 5,
				TaxBreakdown: order.TaxBreakdown{CGST: 2, SGST: 3}, TotalAmount: 80},
		},
		{
			name: "inter-state carries igst only", sub: 10000, state: "Maharashtra",
			want: Pricing{Subtotal: 10000, ShippingFee: 0, TaxAmount: 1800,
				TaxBreakdown: order.TaxBreakdown{IGST: 1800}, TotalAmount: 11800},
		},
		{
			name: "state comparison ignores case", sub: 10000, state: "karnataka",
			want: Pricing{Subtotal: 10000, ShippingFee: 0, TaxAmount: 1800,
				TaxBreakdown: order.TaxBreakdown{CGST: 900, SGST: 900}, TotalAmount: 11800},
		},
		{
			name: "percentage coupon reduces the taxable base", sub: 10000, c: percent10, state: "Karnataka",
			want: Pricing{Subtotal: 10000, DiscountAmount: 1000, CouponDiscount: 1000,
				ShippingFee: 0, TaxAmount: 1620,
				TaxBreakdown: order.TaxBreakdown{CGST: 810, SGST: 810}, TotalAmount: 10620},
		},
		{
			name: "percentage coupon cap", sub: 10000, c: percent10Capped, state: "Karnataka",
			want: Pricing{Subtotal: 10000, DiscountAmount: 500, CouponDiscount: 500,
				ShippingFee: 0, TaxAmount: 1710,
				TaxBreakdown: order.TaxBreakdown{CGST: 855, SGST: 855}, TotalAmount: 11210},
		},
		{
			name: "flat coupon", sub: 10000, c: flat300, state: "Karnataka",
			want: Pricing{Subtotal: 10000, DiscountAmount: 300, CouponDiscount: 300,
				ShippingFee: 0, TaxAmount: 1746,
				TaxBreakdown: order.TaxBreakdown{CGST: 873, SGST: 873}, TotalAmount: 11446},
		},
		{
			name: "free shipping coupon waives the fee actually charged", sub: 500, c: freeShip, state: "Karnataka",
			want: Pricing{Subtotal: 500, CouponDiscount: 50, ShippingFee: 0, TaxAmount: 90,
				TaxBreakdown: order.TaxBreakdown{CGST: 45, SGST: 45}, TotalAmount: 590},
		},
		{
			name: "free shipping coupon is worthless above the threshold", sub: 2000, c: freeShip, state: "Karnataka",
			want: Pricing{Subtotal: 2000, CouponDiscount: 0, ShippingFee: 0, TaxAmount: 360,
				TaxBreakdown: order.TaxBreakdown{CGST: 180, SGST: 180}, TotalAmount: 2360},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.price(tt.sub, tt.c, tt.state))
		})
	}
}

func TestGetCheckoutSummaryEmptyCart(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetCheckoutSummary(1, &SummaryRequest{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEmptyCart, apperrors.CodeOf(err))
}

func TestGetCheckoutSummaryDefaults(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 5000, 10)
	seedAddress(t, db, user.Address{IsDefault: true})
	addToCart(t, svc, p.ID, 2)

	summary, err := svc.GetCheckoutSummary(1, &SummaryRequest{})
	require.NoError(t, err)

	require.Len(t, summary.Items, 1)
	assert.Equal(t, p.ID, summary.Items[0].ProductID)
	assert.Equal(t, "Product DESK-01", summary.Items[0].Name)
	assert.Equal(t, 2, summary.Items[0].Quantity)
	assert.True(t, summary.Items[0].InStock)
	assert.Equal(t, 10, summary.Items[0].Available)

	require.NotNil(t, summary.ShippingAddress)
	assert.Equal(t, "Karnataka", summary.ShippingAddress.State)

	assert.Equal(t, int64(10000), summary.Pricing.Subtotal)
	assert.Equal(t, int64(1800), summary.Pricing.TaxAmount)
	assert.Equal(t, int64(900), summary.Pricing.TaxBreakdown.CGST)
	assert.Equal(t, int64(11800), summary.Pricing.TotalAmount)
	assert.Nil(t, summary.Coupon)

	require.Len(t, summary.PaymentMethods, 2)
	assert.Equal(t, order.PaymentMethodRazorpay, summary.PaymentMethods[0].ID)
	assert.True(t, summary.PaymentMethods[0].Available)
	assert.Equal(t, order.PaymentMethodCOD, summary.PaymentMethods[1].ID)
	assert.True(t, summary.PaymentMethods[1].Available)
}

func TestGetCheckoutSummaryExplicitAddress(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 5000, 10)
	seedAddress(t, db, user.Address{IsDefault: true})
	away := seedAddress(t, db, user.Address{City: "Pune", State: "Maharashtra", PostalCode: "411001"})
	addToCart(t, svc, p.ID, 2)

	summary, err := svc.GetCheckoutSummary(1, &SummaryRequest{AddressID: &away.ID})
	require.NoError(t, err)
	assert.Equal(t, "Maharashtra", summary.ShippingAddress.State)
	assert.Equal(t, int64(1800), summary.Pricing.TaxBreakdown.IGST)
	assert.Zero(t, summary.Pricing.TaxBreakdown.CGST)

	missing := uint(9999)
	_, err = svc.GetCheckoutSummary(1, &SummaryRequest{AddressID: &missing})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetCheckoutSummaryWithoutAddressAssumesInState(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 5000, 10)
	addToCart(t, svc, p.ID, 1)

	summary, err := svc.GetCheckoutSummary(1, &SummaryRequest{})
	require.NoError(t, err)
	assert.Nil(t, summary.ShippingAddress)
	assert.Equal(t, int64(450), summary.Pricing.TaxBreakdown.CGST)
	assert.Equal(t, int64(450), summary.Pricing.TaxBreakdown.SGST)
}

func TestGetCheckoutSummaryInlineCouponProblems(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 1000, 10)
	seedCoupon(t, db, coupon.Coupon{Code: "BIGSPEND", Type: coupon.TypeFlat, Value: 100, MinOrderValue: 99999})
	addToCart(t, svc, p.ID, 1)

	unknown, err := svc.GetCheckoutSummary(1, &SummaryRequest{CouponCode: "nope"})
	require.NoError(t, err)
	require.NotNil(t, unknown.Coupon)
	assert.Equal(t, "NOPE", unknown.Coupon.Code)
	assert.False(t, unknown.Coupon.Applied)
	assert.NotEmpty(t, unknown.Coupon.Message)
	assert.Zero(t, unknown.Pricing.CouponDiscount)

	rejected, err := svc.GetCheckoutSummary(1, &SummaryRequest{CouponCode: "BIGSPEND"})
	require.NoError(t, err)
	require.NotNil(t, rejected.Coupon)
	assert.False(t, rejected.Coupon.Applied)
	assert.Contains(t, rejected.Coupon.Message, "at least")
}

func TestGetCheckoutSummaryAppliesCoupon(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 5000, 10)
	seedCoupon(t, db, coupon.Coupon{Code: "TEN", Type: coupon.TypePercentage, Value: 10})
	addToCart(t, svc, p.ID, 2)

	// Explicit code.
	summary, err := svc.GetCheckoutSummary(1, &SummaryRequest{CouponCode: "TEN"})
	require.NoError(t, err)
	require.NotNil(t, summary.Coupon)
	assert.True(t, summary.Coupon.Applied)
	assert.Equal(t, int64(1000), summary.Coupon.Discount)
	assert.Equal(t, int64(1000), summary.Pricing.DiscountAmount)

	// Coupon already applied to the cart.
	_, err = svc.cartService.ApplyCoupon(1, &cart.ApplyCouponRequest{Code: "TEN"})
	require.NoError(t, err)
	summary, err = svc.GetCheckoutSummary(1, &SummaryRequest{})
	require.NoError(t, err)
	require.NotNil(t, summary.Coupon)
	assert.True(t, summary.Coupon.Applied)
	assert.Equal(t, "TEN", summary.Coupon.Code)
}

func TestGetCheckoutSummaryReportsShortage(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 1000, 2)
	addToCart(t, svc, p.ID, 2)
	require.NoError(t, db.Model(&product.Product{}).Where("id = ?", p.ID).
		UpdateColumn("stock", 1).Error)

	summary, err := svc.GetCheckoutSummary(1, &SummaryRequest{})
	require.NoError(t, err)
	assert.False(t, summary.Items[0].InStock)
	assert.Equal(t, 1, summary.Items[0].Available)
}

func TestPlaceOrderUnsupportedMethod(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.PlaceOrder(1, &PlaceOrderRequest{AddressID: 1, PaymentMethod: "bank_transfer"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnsupportedPayment, apperrors.CodeOf(err))
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.PlaceOrder(1, &PlaceOrderRequest{AddressID: 1, PaymentMethod: order.PaymentMethodCOD})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEmptyCart, apperrors.CodeOf(err))
}

func TestPlaceOrderForeignAddress(t *testing.T) {
	svc, db, _ := newTestService(t)
	require.NoError(t, db.Create(&user.User{ID: 2, Email: "ravi@example.com", Password: "x"}).Error)
	p := seedProduct(t, db, "DESK-01", 1000, 10)
	theirs := seedAddress(t, db, user.Address{UserID: 2})
	addToCart(t, svc, p.ID, 1)

	_, err := svc.PlaceOrder(1, &PlaceOrderRequest{AddressID: theirs.ID, PaymentMethod: order.PaymentMethodCOD})
	assert.True(t, apperrors.IsNotFound(err))
	assert.Zero(t, countRows(t, db, &order.Order{}))
}

func TestPlaceOrderCODHappyPath(t *testing.T) {
	svc, db, gw := newTestService(t)
	desk := seedProduct(t, db, "DESK-01", 5000, 10)
	mat := seedProduct(t, db, "MAT-02", 500, 5)
	addr := seedAddress(t, db, user.Address{IsDefault: true})
	c := seedCoupon(t, db, coupon.Coupon{Code: "FLAT300", Type: coupon.TypeFlat, Value: 300, MaxUses: 10})
	addToCart(t, svc, desk.ID, 2)
	addToCart(t, svc, mat.ID, 1)
	year := time.Now().UTC().Year()

	receipt, err := svc.PlaceOrder(1, &PlaceOrderRequest{
		AddressID:     addr.ID,
		PaymentMethod: order.PaymentMethodCOD,
		CouponCode:    "FLAT300",
		Notes:         "leave at the gate",
	})
	require.NoError(t, err)
	require.NotNil(t, receipt.Order)
	ord := receipt.Order

	// Subtotal 10500, flat 300 off, free shipping, 18% on 10200.
	assert.Equal(t, fmt.Sprintf("ORD-%d-000001", year), ord.OrderNumber)
	assert.Equal(t, order.OrderStatusPending, ord.Status)
	assert.Equal(t, order.PaymentStatusPending, ord.PaymentStatus)
	assert.Equal(t, order.PaymentMethodCOD, ord.PaymentMethod)
	assert.Equal(t, int64(10500), ord.Subtotal)
	assert.Equal(t, int64(300), ord.DiscountAmount)
	assert.Equal(t, int64(300), ord.CouponDiscount)
	assert.Zero(t, ord.ShippingFee)
	assert.Equal(t, int64(1836), ord.TaxAmount)
	assert.Equal(t, int64(918), ord.TaxBreakdown.CGST)
	assert.Equal(t, int64(918), ord.TaxBreakdown.SGST)
	assert.Equal(t, int64(12036), ord.TotalAmount)
	assert.Equal(t, "INR", ord.Currency)
	assert.Equal(t, "leave at the gate", ord.Notes)
	require.NotNil(t, ord.CouponID)
	assert.Equal(t, c.ID, *ord.CouponID)
	assert.Equal(t, "FLAT300", ord.CouponCode)

	// Frozen address snapshot.
	assert.Equal(t, "Asha", ord.ShippingAddress.FirstName)
	assert.Equal(t, "12 MG Road", ord.ShippingAddress.AddressLine1)
	assert.Equal(t, "Karnataka", ord.ShippingAddress.State)

	// Frozen line snapshots.
	require.Len(t, ord.Items, 2)
	assert.Equal(t, "Product DESK-01", ord.Items[0].ProductName)
	assert.Equal(t, "DESK-01", ord.Items[0].ProductSKU)
	assert.Equal(t, int64(5000), ord.Items[0].UnitPrice)
	assert.Equal(t, int64(10000), ord.Items[0].LineTotal)

	// Payment row mirrors the total.
	require.NotNil(t, ord.Payment)
	assert.Equal(t, int64(12036), ord.Payment.Amount)
	assert.Equal(t, order.PaymentMethodCOD, ord.Payment.Method)
	assert.Equal(t, order.PaymentStatusPending, ord.Payment.Status)

	// Coupon redeemed once.
	var freshCoupon coupon.Coupon
	require.NoError(t, db.First(&freshCoupon, c.ID).Error)
	assert.Equal(t, 1, freshCoupon.UsedCount)

	// Stock committed with ledger entries.
	var freshDesk, freshMat product.Product
	require.NoError(t, db.First(&freshDesk, desk.ID).Error)
	require.NoError(t, db.First(&freshMat, mat.ID).Error)
	assert.Equal(t, 8, freshDesk.Stock)
	assert.Equal(t, 2, freshDesk.SoldCount)
	assert.Equal(t, 4, freshMat.Stock)
	assert.Equal(t, 1, freshMat.SoldCount)

	var entries []inventory.InventoryLogEntry
	require.NoError(t, db.Where("reference_id = ?", ord.ID).Find(&entries).Error)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, inventory.EntrySale, e.Type)
		assert.Equal(t, inventory.ReferenceOrder, e.ReferenceType)
	}

	// Cash orders reserve nothing; there is no payment window.
	assert.Zero(t, countRows(t, db, &inventory.StockReservation{}))
	assert.Empty(t, gw.createdOrders)
	assert.Nil(t, receipt.Payment)
	assert.Empty(t, receipt.PaymentSetupError)

	// History opens with the placement row.
	require.Len(t, ord.StatusHistory, 1)
	assert.Equal(t, "order placed", ord.StatusHistory[0].Comment)
	assert.Equal(t, order.ActorUser, ord.StatusHistory[0].ChangedBy)

	// Cart is empty again.
	crt, err := svc.cartService.GetCart(1)
	require.NoError(t, err)
	assert.True(t, crt.IsEmpty())
	assert.Nil(t, crt.CouponID)
	assert.Zero(t, crt.Total)

	assert.Equal(t, fmt.Sprintf("/api/v1/orders/%d/receipt", ord.ID), receipt.ReceiptURL)
}

func TestPlaceOrderRazorpayOpensPaymentWindow(t *testing.T) {
	svc, db, gw := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 750, 10)
	addr := seedAddress(t, db, user.Address{IsDefault: true})
	addToCart(t, svc, p.ID, 2)
	before := time.Now().UTC()

	receipt, err := svc.PlaceOrder(1, &PlaceOrderRequest{
		AddressID:     addr.ID,
		PaymentMethod: order.PaymentMethodRazorpay,
	})
	require.NoError(t, err)
	ord := receipt.Order

	// Subtotal 1500, free shipping, tax 270.
	assert.Equal(t, int64(1770), ord.TotalAmount)

	// One active reservation per line, expiring a payment window from now.
	var reservations []inventory.StockReservation
	require.NoError(t, db.Where("order_id = ?", ord.ID).Find(&reservations).Error)
	require.Len(t, reservations, 1)
	assert.Equal(t, inventory.ReservationActive, reservations[0].Status)
	assert.Equal(t, p.ID, reservations[0].ProductID)
	assert.Equal(t, 2, reservations[0].Quantity)
	assert.WithinDuration(t, before.Add(30*time.Minute), reservations[0].ExpiresAt, time.Minute)

	// The gateway order is created in store units; the client converts.
	require.Len(t, gw.createdOrders, 1)
	assert.Equal(t, int64(1770), gw.createdOrders[0].Amount)
	assert.Equal(t, "INR", gw.createdOrders[0].Currency)
	assert.Equal(t, ord.OrderNumber, gw.createdOrders[0].Receipt)

	require.NotNil(t, receipt.Payment)
	assert.Equal(t, "order_fake1", receipt.Payment.GatewayOrderID)
	assert.Equal(t, "rzp_test_key", receipt.Payment.KeyID)
	assert.Equal(t, int64(1770), receipt.Payment.Amount)

	require.NotNil(t, ord.Payment)
	assert.Equal(t, "order_fake1", ord.Payment.GatewayOrderID)
}

func TestPlaceOrderSurvivesGatewayFailure(t *testing.T) {
	svc, db, gw := newTestService(t)
	gw.orderErr = apperrors.Gateway("gateway down", nil)
	p := seedProduct(t, db, "DESK-01", 750, 10)
	addr := seedAddress(t, db, user.Address{IsDefault: true})
	addToCart(t, svc, p.ID, 1)

	receipt, err := svc.PlaceOrder(1, &PlaceOrderRequest{
		AddressID:     addr.ID,
		PaymentMethod: order.PaymentMethodRazorpay,
	})
	require.NoError(t, err)

	// The order stands; payment setup retries through the initiate endpoint.
	assert.NotEmpty(t, receipt.PaymentSetupError)
	assert.Nil(t, receipt.Payment)
	assert.Equal(t, int64(1), countRows(t, db, &order.Order{}))
	require.NotNil(t, receipt.Order.Payment)
	assert.Empty(t, receipt.Order.Payment.GatewayOrderID)
}

func TestPlaceOrderInsufficientStockLeavesNothing(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 1000, 2)
	addr := seedAddress(t, db, user.Address{IsDefault: true})
	c := seedCoupon(t, db, coupon.Coupon{Code: "TEN", Type: coupon.TypePercentage, Value: 10})
	addToCart(t, svc, p.ID, 2)
	_, err := svc.cartService.ApplyCoupon(1, &cart.ApplyCouponRequest{Code: "TEN"})
	require.NoError(t, err)

	// Another checkout takes the last unit between add-to-cart and here.
	require.NoError(t, db.Model(&product.Product{}).Where("id = ?", p.ID).
		UpdateColumn("stock", 1).Error)

	_, err = svc.PlaceOrder(1, &PlaceOrderRequest{AddressID: addr.ID, PaymentMethod: order.PaymentMethodCOD})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInsufficientStock, apperrors.CodeOf(err))

	assert.Zero(t, countRows(t, db, &order.Order{}))
	assert.Zero(t, countRows(t, db, &order.OrderItem{}))
	assert.Zero(t, countRows(t, db, &order.Payment{}))
	assert.Zero(t, countRows(t, db, &inventory.InventoryLogEntry{}))

	var freshCoupon coupon.Coupon
	require.NoError(t, db.First(&freshCoupon, c.ID).Error)
	assert.Zero(t, freshCoupon.UsedCount)

	crt, err := svc.cartService.GetCart(1)
	require.NoError(t, err)
	require.Len(t, crt.Items, 1)
	require.NotNil(t, crt.CouponID)
}

func TestPlaceOrderRejectsExhaustedCoupon(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 1000, 10)
	addr := seedAddress(t, db, user.Address{IsDefault: true})
	c := seedCoupon(t, db, coupon.Coupon{Code: "ONCE", Type: coupon.TypeFlat, Value: 100, MaxUses: 1})
	addToCart(t, svc, p.ID, 1)
	_, err := svc.cartService.ApplyCoupon(1, &cart.ApplyCouponRequest{Code: "ONCE"})
	require.NoError(t, err)

	// The last redemption went to another customer meanwhile.
	require.NoError(t, db.Model(&coupon.Coupon{}).Where("id = ?", c.ID).
		UpdateColumn("used_count", 1).Error)

	_, err = svc.PlaceOrder(1, &PlaceOrderRequest{AddressID: addr.ID, PaymentMethod: order.PaymentMethodCOD})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCouponUsageCap, apperrors.CodeOf(err))
	assert.Zero(t, countRows(t, db, &order.Order{}))
}

func TestPlaceOrderExplicitCouponOverridesCart(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedProduct(t, db, "DESK-01", 5000, 10)
	addr := seedAddress(t, db, user.Address{IsDefault: true})
	flat100 := seedCoupon(t, db, coupon.Coupon{Code: "FLAT100", Type: coupon.TypeFlat, Value: 100})
	flat200 := seedCoupon(t, db, coupon.Coupon{Code: "FLAT200", Type: coupon.TypeFlat, Value: 200})
	addToCart(t, svc, p.ID, 1)
	_, err := svc.cartService.ApplyCoupon(1, &cart.ApplyCouponRequest{Code: "FLAT100"})
	require.NoError(t, err)

	receipt, err := svc.PlaceOrder(1, &PlaceOrderRequest{
		AddressID:     addr.ID,
		PaymentMethod: order.PaymentMethodCOD,
		CouponCode:    "FLAT200",
	})
	require.NoError(t, err)
	assert.Equal(t, "FLAT200", receipt.Order.CouponCode)
	assert.Equal(t, int64(200), receipt.Order.DiscountAmount)

	var a, b coupon.Coupon
	require.NoError(t, db.First(&a, flat100.ID).Error)
	require.NoError(t, db.First(&b, flat200.ID).Error)
	assert.Zero(t, a.UsedCount)
	assert.Equal(t, 1, b.UsedCount)
}

func TestAvailablePaymentMethodsWithoutGatewayKeys(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.config.External.Razorpay.KeyID = ""

	methods := svc.availablePaymentMethods()
	require.Len(t, methods, 2)
	assert.False(t, methods[0].Available)
	assert.True(t, methods[1].Available)
}
