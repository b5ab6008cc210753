// internal/domain/order/service.go
package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"github.com/your-org/storefront-backend/internal/pkg/email"
	"gorm.io/gorm"
)

// Service drives the order lifecycle. Every status change goes through the
// transition table, appends a history row, and runs as a conditional update
// so concurrent writers cannot double-apply a transition.
type Service struct {
	db               *gorm.DB
	config           *config.Config
	inventoryService *inventory.Service
	emails           *email.Service
}

// NewService creates a new order service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:               db,
		config:           cfg,
		inventoryService: inventory.NewService(db, cfg),
		emails:           email.NewService(cfg),
	}
}

// UpdateStatusRequest represents an admin status change
type UpdateStatusRequest struct {
	Status         OrderStatus `json:"status" binding:"required"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Carrier        string      `json:"carrier,omitempty"`
	Comment        string      `json:"comment,omitempty"`
}

// CancelOrderRequest represents a customer cancellation
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page          int           `form:"page,default=1"`
	Limit         int           `form:"limit,default=20"`
	Status        OrderStatus   `form:"status"`
	PaymentStatus PaymentStatus `form:"payment_status"`
	UserID        uint          `form:"user_id"`
	SortBy        string        `form:"sort_by,default=created_at"`
	SortOrder     string        `form:"sort_order,default=desc"`
	DateFrom      string        `form:"date_from"`
	DateTo        string        `form:"date_to"`
}

// OrderListResponse represents orders with pagination
type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// OrderStats summarizes orders for the admin dashboard
type OrderStats struct {
	TotalOrders  int64                 `json:"total_orders"`
	StatusCounts map[OrderStatus]int64 `json:"status_counts"`
	PaidOrders   int64                 `json:"paid_orders"`
	PaidRevenue  int64                 `json:"paid_revenue"`
}

// NextOrderNumber advances the year's sequence inside the caller's
// transaction and formats the order number, e.g. ORD-2026-000042.
func (s *Service) NextOrderNumber(tx *gorm.DB) (string, error) {
	year := time.Now().UTC().Year()

	result := tx.Model(&OrderSequence{}).
		Where("year = ?", year).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if result.Error != nil {
		return "", fmt.Errorf("failed to advance order sequence: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// First order of the year. A concurrent insert loses on the
		// primary key and falls back to the increment.
		if err := tx.Create(&OrderSequence{Year: year, Value: 1}).Error; err != nil {
			retry := tx.Model(&OrderSequence{}).
				Where("year = ?", year).
				UpdateColumn("value", gorm.Expr("value + 1"))
			if retry.Error != nil || retry.RowsAffected == 0 {
				return "", fmt.Errorf("failed to initialize order sequence: %w", err)
			}
		}
	}

	var seq OrderSequence
	if err := tx.Where("year = ?", year).First(&seq).Error; err != nil {
		return "", fmt.Errorf("failed to read order sequence: %w", err)
	}

	return fmt.Sprintf("%s-%d-%06d", s.config.Checkout.OrderNumberPrefix, year, seq.Value), nil
}

// UpdateStatus applies one lifecycle transition. Cancellation targets go
// through the cancel path so stock comes back; everything else is a guarded
// update plus a history row.
func (s *Service) UpdateStatus(orderID uint, req *UpdateStatusRequest, actor Actor) (*Order, error) {
	var order Order
	if err := s.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order")
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if !s.isValidTransition(order.Status, req.Status) {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move order %s from %s to %s", order.OrderNumber, order.Status, req.Status))
	}

	if req.Status == OrderStatusCancelled {
		reason := req.Comment
		if reason == "" {
			reason = "cancelled by admin"
		}
		return s.cancelTx(&order, reason, actor)
	}

	if req.Status == OrderStatusShipped && req.TrackingNumber == "" && order.TrackingNumber == "" {
		return nil, apperrors.Validation("tracking_required", "shipping an order requires a tracking number")
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": req.Status}

	// Lifecycle timestamps are written on first entry only.
	switch req.Status {
	case OrderStatusConfirmed:
		if order.ConfirmedAt == nil {
			updates["confirmed_at"] = now
		}
	case OrderStatusShipped, OrderStatusOutForDelivery:
		if order.ShippedAt == nil {
			updates["shipped_at"] = now
		}
	case OrderStatusDelivered:
		if order.DeliveredAt == nil {
			updates["delivered_at"] = now
		}
		// Delivery settles cash-on-delivery orders.
		updates["payment_status"] = PaymentStatusPaid
	}

	if req.TrackingNumber != "" {
		updates["tracking_number"] = req.TrackingNumber
	}
	if req.Carrier != "" {
		updates["carrier"] = req.Carrier
	}

	result := tx.Model(&Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if result.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("order %s changed state concurrently", order.OrderNumber))
	}

	if req.Status == OrderStatusDelivered {
		err := tx.Model(&Payment{}).
			Where("order_id = ? AND status = ?", order.ID, PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":       PaymentStatusPaid,
				"processed_at": now,
			}).Error
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to settle payment on delivery: %w", err)
		}
	}

	history := OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: order.Status,
		ToStatus:   req.Status,
		Comment:    req.Comment,
		ChangedBy:  actor,
		CreatedAt:  now,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	updated, err := s.loadOrder(order.ID)
	if err != nil {
		return nil, err
	}

	s.sendStatusEmail(updated)
	return updated, nil
}

// CancelOrder cancels a customer's own order. Only pending orders qualify;
// later states belong to the fulfillment flow.
func (s *Service) CancelOrder(userID, orderID uint, reason string) (*Order, error) {
	var order Order
	if err := s.db.Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order")
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if !order.CanBeCancelled() {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("order %s can no longer be cancelled", order.OrderNumber))
	}

	if reason == "" {
		reason = "cancelled by customer"
	}
	return s.cancelTx(&order, reason, ActorUser)
}

// cancelTx moves an order to cancelled and returns its stock. Online orders
// restock only the reservations still active (a failed payment already
// restocked them); cash-on-delivery orders restock every line.
func (s *Service) cancelTx(order *Order, reason string, actor Actor) (*Order, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	result := tx.Model(&Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(map[string]interface{}{
			"status":        OrderStatusCancelled,
			"cancelled_at":  now,
			"cancel_reason": reason,
		})
	if result.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to cancel order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("order %s changed state concurrently", order.OrderNumber))
	}

	if order.IsOnlinePayment() {
		claimed, err := s.inventoryService.ReleaseActiveReservations(tx, order.ID, inventory.ReservationCancelled)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		for _, r := range claimed {
			if err := s.inventoryService.RestockLine(tx, r.ProductID, r.Quantity,
				inventory.ReferenceOrder, order.ID, "order cancelled"); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	} else {
		var items []OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to get order items: %w", err)
		}
		for _, item := range items {
			if err := s.inventoryService.RestockLine(tx, item.ProductID, item.Quantity,
				inventory.ReferenceOrder, order.ID, "order cancelled"); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	history := OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: order.Status,
		ToStatus:   OrderStatusCancelled,
		Comment:    reason,
		ChangedBy:  actor,
		CreatedAt:  now,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	cancelled, err := s.loadOrder(order.ID)
	if err != nil {
		return nil, err
	}

	s.sendStatusEmail(cancelled)
	return cancelled, nil
}

// GetOrders retrieves a user's orders, newest first
func (s *Service) GetOrders(userID uint, page, limit int, status OrderStatus) (*OrderListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.Model(&Order{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	offset := (page - 1) * limit
	if err := query.Preload("Items").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	return &OrderListResponse{
		Orders:     orders,
		Pagination: buildPagination(page, limit, total),
	}, nil
}

// GetOrder retrieves one of the user's orders with its full history
func (s *Service) GetOrder(userID, orderID uint) (*Order, error) {
	var order Order
	err := s.db.
		Preload("Items").
		Preload("Payment").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order")
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &order, nil
}

// AdminGetOrder retrieves any order by ID
func (s *Service) AdminGetOrder(orderID uint) (*Order, error) {
	return s.loadOrder(orderID)
}

// ListOrders retrieves orders with admin filters and pagination
func (s *Service) ListOrders(req *OrderListRequest) (*OrderListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.db.Model(&Order{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.PaymentStatus != "" {
		query = query.Where("payment_status = ?", req.PaymentStatus)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.DateFrom != "" {
		query = query.Where("created_at >= ?", req.DateFrom)
	}
	if req.DateTo != "" {
		query = query.Where("created_at <= ?", req.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	offset := (req.Page - 1) * req.Limit
	err := query.Preload("Items").Preload("Payment").
		Order(s.buildOrderClause(req.SortBy, req.SortOrder)).
		Offset(offset).Limit(req.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	return &OrderListResponse{
		Orders:     orders,
		Pagination: buildPagination(req.Page, req.Limit, total),
	}, nil
}

// GetOrderStats summarizes order counts and paid revenue
func (s *Service) GetOrderStats() (*OrderStats, error) {
	stats := &OrderStats{
		StatusCounts: make(map[OrderStatus]int64),
	}

	var rows []struct {
		Status OrderStatus
		Count  int64
	}
	err := s.db.Model(&Order{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	for _, row := range rows {
		stats.StatusCounts[row.Status] = row.Count
		stats.TotalOrders += row.Count
	}

	var paid struct {
		Count   int64
		Revenue int64
	}
	err = s.db.Model(&Order{}).
		Select("COUNT(*) as count, COALESCE(SUM(total_amount), 0) as revenue").
		Where("payment_status = ?", PaymentStatusPaid).
		Scan(&paid).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum paid revenue: %w", err)
	}
	stats.PaidOrders = paid.Count
	stats.PaidRevenue = paid.Revenue

	return stats, nil
}

// Private helper methods

func (s *Service) loadOrder(orderID uint) (*Order, error) {
	var order Order
	err := s.db.
		Preload("Items").
		Preload("Payment").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("order")
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &order, nil
}

// isValidTransition is the only legality authority for status changes.
// Delivered, cancelled and refunded are terminal; refunded is reached
// through the refund operation, never through a status update.
func (s *Service) isValidTransition(from, to OrderStatus) bool {
	validTransitions := map[OrderStatus][]OrderStatus{
		OrderStatusPending: {
			OrderStatusConfirmed,
			OrderStatusCancelled,
		},
		OrderStatusConfirmed: {
			OrderStatusProcessing,
			OrderStatusCancelled,
		},
		OrderStatusProcessing: {
			OrderStatusShipped,
			OrderStatusOutForDelivery,
			OrderStatusCancelled,
		},
		OrderStatusShipped: {
			OrderStatusOutForDelivery,
			OrderStatusDelivered,
		},
		OrderStatusOutForDelivery: {
			OrderStatusDelivered,
		},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}

func (s *Service) buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"total_amount": true,
		"status":       true,
		"order_number": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}

func buildPagination(page, limit int, total int64) Pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

var statusEmailMessages = map[OrderStatus]string{
	OrderStatusConfirmed:      "Your order has been confirmed and will be processed shortly.",
	OrderStatusShipped:        "Your order has been handed to the carrier.",
	OrderStatusOutForDelivery: "Your order is out for delivery.",
	OrderStatusDelivered:      "Your order has been delivered. Thank you for shopping with us!",
	OrderStatusCancelled:      "Your order has been cancelled.",
}

// sendStatusEmail fires the status update email for customer-visible
// transitions. Data is materialized before the goroutine starts so the
// send never touches the database.
func (s *Service) sendStatusEmail(ord *Order) {
	statusMessage, ok := statusEmailMessages[ord.Status]
	if !ok {
		return
	}

	var u user.User
	if err := s.db.Select("email", "first_name", "last_name").First(&u, ord.UserID).Error; err != nil {
		return
	}

	data := email.OrderStatusUpdateData{
		TemplateData: email.TemplateData{
			UserName:  u.GetDisplayName(),
			UserEmail: u.Email,
		},
		OrderNumber:    ord.OrderNumber,
		Status:         string(ord.Status),
		StatusMessage:  statusMessage,
		TrackingNumber: ord.TrackingNumber,
		Carrier:        ord.Carrier,
	}

	go s.emails.SendOrderStatusUpdate(data)
}
