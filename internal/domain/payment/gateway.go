// internal/domain/payment/gateway.go
package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
)

// Gateway abstracts the payment provider's REST API. Signature checks are
// local HMAC and never round-trip to the provider.
type Gateway interface {
	CreateOrder(req *GatewayOrderRequest) (*GatewayOrder, error)
	FetchPayment(paymentID string) (*GatewayPayment, error)
	CreateRefund(paymentID string, amount int64, notes map[string]string) (*GatewayRefund, error)
}

// GatewayOrderRequest creates a provider-side order for an amount
type GatewayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// GatewayOrder is the provider's order record
type GatewayOrder struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// GatewayPayment is the provider's payment record
type GatewayPayment struct {
	ID          string `json:"id"`
	Entity      string `json:"entity"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"` // created|authorized|captured|failed|refunded
	OrderID     string `json:"order_id"`
	Method      string `json:"method"`
	Email       string `json:"email"`
	Contact     string `json:"contact"`
	ErrorCode   string `json:"error_code"`
	ErrorReason string `json:"error_reason"`
	CreatedAt   int64  `json:"created_at"`
}

// GatewayRefund is the provider's refund record
type GatewayRefund struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// GatewayPaymentCaptured is the only provider payment status that settles
// an order.
const GatewayPaymentCaptured = "captured"

// Instructions is what the storefront needs to open the payment widget
type Instructions struct {
	GatewayOrderID string `json:"gateway_order_id"`
	KeyID          string `json:"key_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// RazorpayClient implements Gateway against the live REST API
type RazorpayClient struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
}

// Razorpay expresses INR amounts in paise; store amounts are whole rupees.
// Conversion happens inside the client so callers stay in store units.
const paisePerRupee = 100

// NewRazorpayClient creates a gateway client from configuration
func NewRazorpayClient(cfg *config.Config) *RazorpayClient {
	return &RazorpayClient{
		keyID:     cfg.External.Razorpay.KeyID,
		keySecret: cfg.External.Razorpay.KeySecret,
		baseURL:   cfg.External.Razorpay.BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateOrder creates a provider-side order to collect a payment against
func (r *RazorpayClient) CreateOrder(req *GatewayOrderRequest) (*GatewayOrder, error) {
	wireReq := *req
	wireReq.Amount = req.Amount * paisePerRupee

	body, err := r.call(http.MethodPost, "/orders", &wireReq)
	if err != nil {
		return nil, err
	}

	var gwOrder GatewayOrder
	if err := json.Unmarshal(body, &gwOrder); err != nil {
		return nil, apperrors.Gateway("failed to parse gateway order response", err)
	}
	gwOrder.Amount /= paisePerRupee
	return &gwOrder, nil
}

// FetchPayment retrieves a payment record from the provider
func (r *RazorpayClient) FetchPayment(paymentID string) (*GatewayPayment, error) {
	body, err := r.call(http.MethodGet, "/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}

	var gwPayment GatewayPayment
	if err := json.Unmarshal(body, &gwPayment); err != nil {
		return nil, apperrors.Gateway("failed to parse gateway payment response", err)
	}
	gwPayment.Amount /= paisePerRupee
	return &gwPayment, nil
}

// CreateRefund refunds a captured payment, fully or partially
func (r *RazorpayClient) CreateRefund(paymentID string, amount int64, notes map[string]string) (*GatewayRefund, error) {
	payload := map[string]interface{}{"amount": amount * paisePerRupee}
	if len(notes) > 0 {
		payload["notes"] = notes
	}

	body, err := r.call(http.MethodPost, fmt.Sprintf("/payments/%s/refund", paymentID), payload)
	if err != nil {
		return nil, err
	}

	var gwRefund GatewayRefund
	if err := json.Unmarshal(body, &gwRefund); err != nil {
		return nil, apperrors.Gateway("failed to parse gateway refund response", err)
	}
	gwRefund.Amount /= paisePerRupee
	return &gwRefund, nil
}

func (r *RazorpayClient) call(method, endpoint string, data interface{}) ([]byte, error) {
	if r.keyID == "" || r.keySecret == "" {
		return nil, apperrors.Gateway("payment gateway credentials not configured", nil)
	}

	var reqBody []byte
	if data != nil {
		var err error
		reqBody, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %w", err)
		}
	}

	req, err := http.NewRequest(method, r.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Gateway("payment gateway unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Gateway("failed to read gateway response", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apperrors.Gateway(
			fmt.Sprintf("payment gateway returned status %d", resp.StatusCode),
			errors.New(string(respBody)))
	}

	return respBody, nil
}

// VerifyPaymentSignature checks the checkout callback signature: HMAC-SHA256
// over "<gatewayOrderID>|<gatewayPaymentID>" with the key secret, hex encoded.
func VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature, keySecret string) bool {
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks a webhook signature computed over the raw
// request body with the webhook secret.
func VerifyWebhookSignature(body []byte, signature, webhookSecret string) bool {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
