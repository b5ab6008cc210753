// internal/domain/payment/worker.go
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
)

const (
	sweepLockKey   = "inventory:sweep:lock"
	sweepBatchSize = 100
)

// Worker cancels orders whose payment window lapsed with their
// reservations still active. One instance sweeps at a time; the Redis lock
// only prevents wasted work, the per-order guards carry correctness.
type Worker struct {
	service  *Service
	logger   *logrus.Logger
	interval time.Duration
}

// NewWorker creates the reservation sweeper
func NewWorker(service *Service, logger *logrus.Logger) *Worker {
	return &Worker{
		service:  service,
		logger:   logger,
		interval: service.config.Checkout.SweepInterval,
	}
}

// Start runs the sweep loop in its own goroutine until ctx is cancelled
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.WithField("interval", w.interval.String()).Info("Reservation sweeper started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reservation sweeper stopped")
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep reclaims one batch of expired payment windows
func (w *Worker) sweep() {
	unlock, acquired, err := w.service.acquireLock(sweepLockKey, w.interval)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to acquire sweep lock")
		return
	}
	if !acquired {
		return
	}
	defer unlock()

	orderIDs, err := w.service.inventoryService.ExpiredOrderIDs(time.Now().UTC(), sweepBatchSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to list expired reservations")
		return
	}
	if len(orderIDs) == 0 {
		return
	}

	expired := 0
	for _, orderID := range orderIDs {
		if err := w.service.ExpireOrder(orderID); err != nil {
			w.logger.WithError(err).WithField("order_id", orderID).Error("Failed to expire order")
			continue
		}
		expired++
	}

	w.logger.WithFields(logrus.Fields{
		"candidates": len(orderIDs),
		"expired":    expired,
	}).Info("Reservation sweep completed")
}

// ExpireOrder cancels one pending order whose payment window lapsed,
// restocking exactly the reservations it claims. An order that got paid or
// cancelled in the meantime has no active reservations, or fails the
// status guard, and is left alone.
func (s *Service) ExpireOrder(orderID uint) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	claimed, err := s.inventoryService.ReleaseActiveReservations(tx, orderID, inventory.ReservationExpired)
	if err != nil {
		tx.Rollback()
		return err
	}
	if len(claimed) == 0 {
		tx.Rollback()
		return nil
	}

	for _, r := range claimed {
		if err := s.inventoryService.RestockLine(tx, r.ProductID, r.Quantity,
			inventory.ReferenceSweep, orderID, "payment window expired"); err != nil {
			tx.Rollback()
			return err
		}
	}

	now := time.Now().UTC()
	result := tx.Model(&order.Order{}).
		Where("id = ? AND status = ?", orderID, order.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":         order.OrderStatusCancelled,
			"payment_status": order.PaymentStatusFailed,
			"cancelled_at":   now,
			"cancel_reason":  "payment window expired",
		})
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to cancel expired order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil
	}

	err = tx.Model(&order.Payment{}).
		Where("order_id = ? AND status = ?", orderID, order.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         order.PaymentStatusFailed,
			"failure_reason": "payment window expired",
		}).Error
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to fail expired payment: %w", err)
	}

	history := order.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: order.OrderStatusPending,
		ToStatus:   order.OrderStatusCancelled,
		Comment:    "payment window expired",
		ChangedBy:  order.ActorSystem,
		CreatedAt:  now,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create status history: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit order expiry: %w", err)
	}

	var expired order.Order
	if err := s.db.First(&expired, orderID).Error; err == nil {
		s.notifyPaymentOutcome(&expired, "", "payment window expired", false)
	}
	return nil
}
