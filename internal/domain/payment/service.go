// internal/domain/payment/service.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"github.com/your-org/storefront-backend/internal/pkg/email"
	"gorm.io/gorm"
)

const (
	verifyLockTTL   = 30 * time.Second
	webhookDedupTTL = 24 * time.Hour
)

// Service reconciles gateway payments with orders. The database row state
// is the authority everywhere; Redis locks only serialize concurrent
// callbacks, they never decide outcomes.
type Service struct {
	db               *gorm.DB
	redisClient      *redis.Client
	config           *config.Config
	gateway          Gateway
	orderService     *order.Service
	inventoryService *inventory.Service
	emails           *email.Service
}

// NewService creates a payment service backed by the live gateway
func NewService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *Service {
	return NewServiceWithGateway(db, redisClient, cfg, NewRazorpayClient(cfg))
}

// NewServiceWithGateway creates a payment service with an explicit gateway
func NewServiceWithGateway(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, gateway Gateway) *Service {
	return &Service{
		db:               db,
		redisClient:      redisClient,
		config:           cfg,
		gateway:          gateway,
		orderService:     order.NewService(db, cfg),
		inventoryService: inventory.NewService(db, cfg),
		emails:           email.NewService(cfg),
	}
}

// VerifyPaymentRequest is the storefront's payment callback
type VerifyPaymentRequest struct {
	OrderID          uint   `json:"order_id" binding:"required"`
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// PaymentFailureRequest reports a failed payment attempt
type PaymentFailureRequest struct {
	OrderID uint   `json:"order_id" binding:"required"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
}

// RefundRequest is the admin refund payload
type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
}

// InitiatePayment creates the gateway order for a pending online order that
// does not have one yet. This is the retry path when gateway setup failed
// after checkout committed.
func (s *Service) InitiatePayment(userID, orderID uint) (*Instructions, error) {
	ord, pay, err := s.loadOrderWithPayment(orderID, &userID)
	if err != nil {
		return nil, err
	}

	if !ord.IsOnlinePayment() {
		return nil, apperrors.Validation(apperrors.CodeUnsupportedPayment,
			"order does not use online payment")
	}
	if ord.PaymentStatus != order.PaymentStatusPending || ord.Status != order.OrderStatusPending {
		return nil, apperrors.Conflict(apperrors.CodePaymentSettled,
			fmt.Sprintf("order %s is not awaiting payment", ord.OrderNumber))
	}

	if pay.GatewayOrderID == "" {
		gwOrder, err := s.gateway.CreateOrder(&GatewayOrderRequest{
			Amount:   ord.TotalAmount,
			Currency: ord.Currency,
			Receipt:  ord.OrderNumber,
			Notes:    map[string]string{"order_id": fmt.Sprintf("%d", ord.ID)},
		})
		if err != nil {
			return nil, err
		}
		err = s.db.Model(&order.Payment{}).
			Where("id = ?", pay.ID).
			Update("gateway_order_id", gwOrder.ID).Error
		if err != nil {
			return nil, fmt.Errorf("failed to persist gateway order id: %w", err)
		}
		pay.GatewayOrderID = gwOrder.ID
	}

	return &Instructions{
		GatewayOrderID: pay.GatewayOrderID,
		KeyID:          s.config.External.Razorpay.KeyID,
		Amount:         ord.TotalAmount,
		Currency:       ord.Currency,
	}, nil
}

// VerifyPayment settles an order after the storefront's payment callback.
// The signature is recomputed locally; the payment is then fetched from the
// gateway and must be captured for the full amount. Replays of an already
// settled payment succeed without touching state.
func (s *Service) VerifyPayment(userID uint, req *VerifyPaymentRequest) (*order.Order, error) {
	unlock, acquired, err := s.acquireLock(fmt.Sprintf("payment:verify:%d", req.OrderID), verifyLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperrors.Conflict("verification_in_progress",
			"payment verification already in progress")
	}
	defer unlock()

	ord, pay, err := s.loadOrderWithPayment(req.OrderID, &userID)
	if err != nil {
		return nil, err
	}

	if !ord.IsOnlinePayment() {
		return nil, apperrors.Validation(apperrors.CodeUnsupportedPayment,
			"order does not use online payment")
	}

	// Replay of a settled payment: success for the same gateway payment,
	// conflict for a different one.
	if ord.PaymentStatus == order.PaymentStatusPaid {
		if pay.GatewayPaymentID == req.GatewayPaymentID {
			return s.orderService.GetOrder(userID, ord.ID)
		}
		return nil, apperrors.Conflict(apperrors.CodePaymentSettled,
			fmt.Sprintf("order %s is already paid", ord.OrderNumber))
	}
	if ord.PaymentStatus != order.PaymentStatusPending {
		return nil, apperrors.Conflict(apperrors.CodePaymentSettled,
			fmt.Sprintf("order %s payment is %s", ord.OrderNumber, ord.PaymentStatus))
	}

	if pay.GatewayOrderID != "" && pay.GatewayOrderID != req.GatewayOrderID {
		return nil, apperrors.Validation(apperrors.CodeGatewayOrderMixup,
			"gateway order does not match this order")
	}

	if !VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature,
		s.config.External.Razorpay.KeySecret) {
		return nil, apperrors.Validation(apperrors.CodeSignatureMismatch,
			"payment signature mismatch")
	}

	gwPayment, err := s.gateway.FetchPayment(req.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if gwPayment.Status != GatewayPaymentCaptured {
		return nil, apperrors.Conflict(apperrors.CodePaymentNotCaptured,
			fmt.Sprintf("payment is %s, not captured", gwPayment.Status))
	}
	if gwPayment.Amount != ord.TotalAmount {
		return nil, apperrors.Conflict(apperrors.CodeAmountMismatch,
			"captured amount does not match the order total")
	}

	rawResponse, _ := json.Marshal(gwPayment)
	err = s.settleCapturedPayment(ord, req.GatewayOrderID, req.GatewayPaymentID,
		req.Signature, string(rawResponse))
	if err != nil {
		return nil, err
	}

	return s.orderService.GetOrder(userID, ord.ID)
}

// HandlePaymentFailure records a failed attempt and returns the reserved
// stock. The order itself stays pending. Safe to call repeatedly: once the
// payment row left pending and the reservations are gone, nothing changes.
func (s *Service) HandlePaymentFailure(req *PaymentFailureRequest) error {
	ord, _, err := s.loadOrderWithPayment(req.OrderID, nil)
	if err != nil {
		return err
	}
	if !ord.IsOnlinePayment() {
		return apperrors.Validation(apperrors.CodeUnsupportedPayment,
			"order does not use online payment")
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	err = tx.Model(&order.Payment{}).
		Where("order_id = ? AND status = ?", ord.ID, order.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         order.PaymentStatusFailed,
			"failure_reason": req.Reason,
			"failure_code":   req.Code,
		}).Error
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record payment failure: %w", err)
	}

	flip := tx.Model(&order.Order{}).
		Where("id = ? AND payment_status = ?", ord.ID, order.PaymentStatusPending).
		Update("payment_status", order.PaymentStatusFailed)
	if flip.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update order payment status: %w", flip.Error)
	}

	claimed, err := s.inventoryService.ReleaseActiveReservations(tx, ord.ID, inventory.ReservationReleased)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, r := range claimed {
		if err := s.inventoryService.RestockLine(tx, r.ProductID, r.Quantity,
			inventory.ReferenceOrder, ord.ID, "payment failed"); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit payment failure: %w", err)
	}

	// Only the attempt that actually flipped the order notifies; replays
	// of the same failure callback stay silent.
	if flip.RowsAffected > 0 {
		s.notifyPaymentOutcome(ord, "", req.Reason, false)
	}
	return nil
}

// Refund refunds a paid online order through the gateway and moves the
// order to refunded. Stock is not returned; physical goods are handled by
// a manual inventory adjustment when they come back.
func (s *Service) Refund(orderID, adminID uint, reason string) (*order.Order, error) {
	ord, pay, err := s.loadOrderWithPayment(orderID, nil)
	if err != nil {
		return nil, err
	}

	if !ord.IsOnlinePayment() {
		return nil, apperrors.Validation(apperrors.CodeUnsupportedPayment,
			"cash orders are refunded off-platform")
	}
	if !ord.CanBeRefunded() {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("order %s cannot be refunded", ord.OrderNumber))
	}

	notes := map[string]string{}
	if reason != "" {
		notes["reason"] = reason
	}
	gwRefund, err := s.gateway.CreateRefund(pay.GatewayPaymentID, pay.Amount, notes)
	if err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	result := tx.Model(&order.Payment{}).
		Where("order_id = ? AND status = ?", ord.ID, order.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"status":      order.PaymentStatusRefunded,
			"refund_id":   gwRefund.ID,
			"refunded_at": now,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperrors.Conflict(apperrors.CodePaymentSettled,
			fmt.Sprintf("order %s payment changed state concurrently", ord.OrderNumber))
	}

	err = tx.Model(&order.Order{}).
		Where("id = ?", ord.ID).
		Updates(map[string]interface{}{
			"status":         order.OrderStatusRefunded,
			"payment_status": order.PaymentStatusRefunded,
			"refunded_at":    now,
		}).Error
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	history := order.OrderStatusHistory{
		OrderID:    ord.ID,
		FromStatus: ord.Status,
		ToStatus:   order.OrderStatusRefunded,
		Comment:    reason,
		ChangedBy:  order.ActorAdmin,
		CreatedAt:  now,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	return s.orderService.AdminGetOrder(ord.ID)
}

// webhookEvent is the provider's event envelope
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity GatewayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ProcessWebhook handles provider events. The signature covers the raw
// body; a mismatch changes nothing. Unknown events are acknowledged.
func (s *Service) ProcessWebhook(body []byte, signature, eventID string) error {
	if !VerifyWebhookSignature(body, signature, s.config.External.Razorpay.WebhookSecret) {
		return apperrors.Validation(apperrors.CodeSignatureMismatch, "webhook signature mismatch")
	}

	if eventID == "" {
		eventID = uuid.NewString()
	}
	fresh, err := s.markEventSeen(eventID)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apperrors.Validation("malformed_webhook", "webhook body is not valid JSON")
	}

	entity := event.Payload.Payment.Entity
	// Webhook bodies carry paise, unlike amounts that pass through the client
	entity.Amount /= paisePerRupee
	switch event.Event {
	case "payment.captured":
		return s.confirmFromWebhook(&entity)
	case "payment.failed":
		return s.failFromWebhook(&entity)
	default:
		return nil
	}
}

// Private helper methods

// settleCapturedPayment flips payment and order to paid/confirmed and
// fulfills the reservations, all guarded so concurrent settlements cannot
// double-apply.
func (s *Service) settleCapturedPayment(ord *order.Order, gatewayOrderID, gatewayPaymentID, signature, rawResponse string) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	result := tx.Model(&order.Payment{}).
		Where("order_id = ? AND status = ?", ord.ID, order.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":             order.PaymentStatusPaid,
			"gateway_order_id":   gatewayOrderID,
			"gateway_payment_id": gatewayPaymentID,
			"gateway_signature":  signature,
			"gateway_response":   rawResponse,
			"processed_at":       now,
		})
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return apperrors.Conflict(apperrors.CodePaymentSettled,
			fmt.Sprintf("order %s payment changed state concurrently", ord.OrderNumber))
	}

	result = tx.Model(&order.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?",
			ord.ID, order.OrderStatusPending, order.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         order.OrderStatusConfirmed,
			"payment_status": order.PaymentStatusPaid,
			"confirmed_at":   now,
		})
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to confirm order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("order %s changed state concurrently", ord.OrderNumber))
	}

	history := order.OrderStatusHistory{
		OrderID:    ord.ID,
		FromStatus: order.OrderStatusPending,
		ToStatus:   order.OrderStatusConfirmed,
		Comment:    "payment captured",
		ChangedBy:  order.ActorGateway,
		CreatedAt:  now,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create status history: %w", err)
	}

	if err := s.inventoryService.FulfillReservations(tx, ord.ID); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit payment settlement: %w", err)
	}

	s.notifyPaymentOutcome(ord, gatewayPaymentID, "", true)
	return nil
}

// confirmFromWebhook settles a captured payment reported by the provider.
// The signed body is the authority; no second fetch is made.
func (s *Service) confirmFromWebhook(entity *GatewayPayment) error {
	ord, pay, err := s.findOrderByGatewayOrder(entity.OrderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil // not ours; acknowledge
		}
		return err
	}

	if ord.PaymentStatus == order.PaymentStatusPaid {
		return nil
	}
	if ord.PaymentStatus != order.PaymentStatusPending {
		return nil
	}
	if entity.Amount != ord.TotalAmount {
		return apperrors.Conflict(apperrors.CodeAmountMismatch,
			"captured amount does not match the order total")
	}

	rawResponse, _ := json.Marshal(entity)
	return s.settleCapturedPayment(ord, pay.GatewayOrderID, entity.ID, "", string(rawResponse))
}

func (s *Service) failFromWebhook(entity *GatewayPayment) error {
	ord, _, err := s.findOrderByGatewayOrder(entity.OrderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	return s.HandlePaymentFailure(&PaymentFailureRequest{
		OrderID: ord.ID,
		Reason:  entity.ErrorReason,
		Code:    entity.ErrorCode,
	})
}

func (s *Service) findOrderByGatewayOrder(gatewayOrderID string) (*order.Order, *order.Payment, error) {
	if gatewayOrderID == "" {
		return nil, nil, apperrors.NotFound("payment")
	}

	var pay order.Payment
	err := s.db.Where("gateway_order_id = ?", gatewayOrderID).First(&pay).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("payment")
		}
		return nil, nil, fmt.Errorf("failed to find payment: %w", err)
	}

	var ord order.Order
	if err := s.db.First(&ord, pay.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("order")
		}
		return nil, nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &ord, &pay, nil
}

// loadOrderWithPayment loads an order and its payment row, optionally
// scoped to a user.
func (s *Service) loadOrderWithPayment(orderID uint, userID *uint) (*order.Order, *order.Payment, error) {
	query := s.db.Where("id = ?", orderID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var ord order.Order
	if err := query.First(&ord).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("order")
		}
		return nil, nil, fmt.Errorf("failed to get order: %w", err)
	}

	var pay order.Payment
	if err := s.db.Where("order_id = ?", ord.ID).First(&pay).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("payment")
		}
		return nil, nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &ord, &pay, nil
}

// acquireLock takes a short Redis lock and returns its release func. With
// no Redis configured it degrades to a no-op; the conditional updates
// still guarantee correctness.
func (s *Service) acquireLock(key string, ttl time.Duration) (func(), bool, error) {
	if s.redisClient == nil {
		return func() {}, true, nil
	}

	ctx := context.Background()
	ok, err := s.redisClient.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() { s.redisClient.Del(ctx, key) }, true, nil
}

// markEventSeen dedupes webhook deliveries; returns false for replays.
func (s *Service) markEventSeen(eventID string) (bool, error) {
	if s.redisClient == nil {
		return true, nil
	}

	ctx := context.Background()
	fresh, err := s.redisClient.SetNX(ctx, "webhook:event:"+eventID, "1", webhookDedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to dedupe webhook event: %w", err)
	}
	return fresh, nil
}

// notifyPaymentOutcome fires the payment success or failure email. Data is
// materialized before the goroutine starts so the send never touches the
// database.
func (s *Service) notifyPaymentOutcome(ord *order.Order, transactionID, reason string, success bool) {
	var u user.User
	if err := s.db.Select("email", "first_name", "last_name").First(&u, ord.UserID).Error; err != nil {
		return
	}

	data := email.PaymentNotificationData{
		TemplateData: email.TemplateData{
			UserName:  u.GetDisplayName(),
			UserEmail: u.Email,
		},
		OrderNumber:   ord.OrderNumber,
		Amount:        ord.TotalAmount,
		PaymentMethod: string(ord.PaymentMethod),
		TransactionID: transactionID,
		Reason:        reason,
	}

	if success {
		go s.emails.SendPaymentSuccess(data)
	} else {
		go s.emails.SendPaymentFailed(data)
	}
}
