// internal/interfaces/http/handlers/payment_test.go
package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/testutil"
)

func newWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t,
		&order.Order{}, &order.OrderItem{}, &order.Payment{}, &order.OrderStatusHistory{}, &order.OrderSequence{},
		&user.User{}, &product.Product{},
		&inventory.InventoryLogEntry{}, &inventory.StockReservation{},
	)
	require.NoError(t, db.Create(&user.User{ID: 1, Email: "asha@example.com", Password: "x"}).Error)

	handler := NewPaymentHandler(db, nil, testutil.NewConfig())
	r := gin.New()
	r.POST("/api/v1/webhooks/payment", handler.Webhook)
	return r, db
}

func seedAwaitingPayment(t *testing.T, db *gorm.DB, gatewayOrderID string) *order.Order {
	t.Helper()
	ord := order.Order{
		OrderNumber:   "ORD-2026-000100",
		UserID:        1,
		Status:        order.OrderStatusPending,
		PaymentStatus: order.PaymentStatusPending,
		PaymentMethod: order.PaymentMethodRazorpay,
		Subtotal:      1500,
		TaxAmount:     270,
		TotalAmount:   1770,
		Currency:      "INR",
	}
	require.NoError(t, db.Create(&ord).Error)
	require.NoError(t, db.Create(&order.Payment{
		OrderID:        ord.ID,
		Amount:         1770,
		Currency:       "INR",
		Method:         order.PaymentMethodRazorpay,
		Status:         order.PaymentStatusPending,
		GatewayOrderID: gatewayOrderID,
	}).Error)
	return &ord
}

func webhookSig(body []byte) string {
	mac := hmac.New(sha256.New, []byte("test_webhook_secret"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(r *gin.Engine, body []byte, signature, eventID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	if eventID != "" {
		req.Header.Set("X-Razorpay-Event-Id", eventID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookSettlesOrder(t *testing.T) {
	r, db := newWebhookRouter(t)
	ord := seedAwaitingPayment(t, db, "order_gw1")

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_hook1","order_id":"order_gw1","amount":177000,"status":"captured"}}}}`)
	w := postWebhook(r, body, webhookSig(body), "evt_1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "received")

	var fresh order.Order
	require.NoError(t, db.First(&fresh, ord.ID).Error)
	assert.Equal(t, order.OrderStatusConfirmed, fresh.Status)
	assert.Equal(t, order.PaymentStatusPaid, fresh.PaymentStatus)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r, db := newWebhookRouter(t)
	ord := seedAwaitingPayment(t, db, "order_gw1")

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_hook1","order_id":"order_gw1","amount":177000,"status":"captured"}}}}`)
	w := postWebhook(r, body, "deadbeef", "evt_1")

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var fresh order.Order
	require.NoError(t, db.First(&fresh, ord.ID).Error)
	assert.Equal(t, order.OrderStatusPending, fresh.Status)
}

func TestWebhookRequiresSignatureHeader(t *testing.T) {
	r, _ := newWebhookRouter(t)

	body := []byte(`{"event":"payment.captured"}`)
	w := postWebhook(r, body, "", "evt_1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	r, _ := newWebhookRouter(t)

	body := []byte(`{"event":`)
	w := postWebhook(r, body, webhookSig(body), "evt_1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
