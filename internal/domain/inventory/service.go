// internal/domain/inventory/service.go
package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// Service owns every stock mutation. Each change runs a conditional update
// paired with a ledger append in the same transaction, so the ledger's
// replay always matches the live stock value.
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new inventory service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// Append validates and inserts one ledger row inside the caller's
// transaction. There is no update or delete counterpart.
func (s *Service) Append(tx *gorm.DB, entry *InventoryLogEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid ledger entry: %w", err)
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// CommitSale performs the authoritative stock decrement for one order line:
// a conditional update that fails when stock is short, the soldCount
// increment, and the SALE ledger entry. Zero rows affected means a
// concurrent checkout won the stock; the caller must abort its transaction.
func (s *Service) CommitSale(tx *gorm.DB, p *product.Product, qty int, orderID uint) error {
	result := tx.Model(&product.Product{}).
		Where("id = ? AND stock >= ?", p.ID, qty).
		UpdateColumns(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", qty),
			"sold_count": gorm.Expr("sold_count + ?", qty),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to decrement stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Conflict(apperrors.CodeInsufficientStock,
			fmt.Sprintf("insufficient stock for %s", p.Name))
	}

	after, err := s.currentStock(tx, p.ID)
	if err != nil {
		return err
	}

	entry := &InventoryLogEntry{
		ProductID:     p.ID,
		Type:          EntrySale,
		QuantityDelta: -qty,
		StockBefore:   after + qty,
		StockAfter:    after,
		ReferenceType: ReferenceOrder,
		ReferenceID:   orderID,
	}
	return s.Append(tx, entry)
}

// RestockLine returns one order line's quantity to stock, reverses its
// soldCount contribution and appends the RETURN entry. Used by
// cancellation, payment failure and the reservation sweep.
func (s *Service) RestockLine(tx *gorm.DB, productID uint, qty int, refType string, orderID uint, note string) error {
	result := tx.Model(&product.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", qty),
			"sold_count": gorm.Expr("sold_count - ?", qty),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to restore stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("product")
	}

	after, err := s.currentStock(tx, productID)
	if err != nil {
		return err
	}

	entry := &InventoryLogEntry{
		ProductID:     productID,
		Type:          EntryReturn,
		QuantityDelta: qty,
		StockBefore:   after - qty,
		StockAfter:    after,
		ReferenceType: refType,
		ReferenceID:   orderID,
		Note:          note,
	}
	return s.Append(tx, entry)
}

// AdjustmentRequest represents a manual stock movement (admin)
type AdjustmentRequest struct {
	ProductID     uint      `json:"product_id" binding:"required"`
	Type          EntryType `json:"type" binding:"required,oneof=purchase adjustment return"`
	QuantityDelta int       `json:"quantity_delta" binding:"required"`
	Note          string    `json:"note"`
}

// RecordAdjustment applies a manual stock movement with its ledger entry.
// Purchases and returns add stock; adjustments carry either sign but may
// never drive stock negative. Manual movements do not touch soldCount.
func (s *Service) RecordAdjustment(req *AdjustmentRequest, adminID uint) (*InventoryLogEntry, error) {
	switch req.Type {
	case EntryPurchase, EntryReturn:
		if req.QuantityDelta <= 0 {
			return nil, apperrors.Validation("invalid_delta",
				fmt.Sprintf("%s movements must add stock", req.Type))
		}
	case EntryAdjustment:
		// Either sign.
	default:
		return nil, apperrors.Validation("invalid_type", "sale entries are written by checkout only")
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var prod product.Product
	if err := tx.First(&prod, req.ProductID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	query := tx.Model(&product.Product{}).Where("id = ?", req.ProductID)
	if req.QuantityDelta < 0 {
		// Guard against underflow at write time, not read time.
		query = query.Where("stock >= ?", -req.QuantityDelta)
	}
	result := query.UpdateColumn("stock", gorm.Expr("stock + ?", req.QuantityDelta))
	if result.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to adjust stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperrors.Conflict(apperrors.CodeInsufficientStock,
			fmt.Sprintf("adjustment would drive %s stock negative", prod.Name))
	}

	after, err := s.currentStock(tx, req.ProductID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := &InventoryLogEntry{
		ProductID:     req.ProductID,
		Type:          req.Type,
		QuantityDelta: req.QuantityDelta,
		StockBefore:   after - req.QuantityDelta,
		StockAfter:    after,
		ReferenceType: ReferenceManual,
		Note:          req.Note,
		CreatedBy:     adminID,
	}
	if err := s.Append(tx, entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return entry, nil
}

// LedgerHistoryResponse represents a page of ledger entries
type LedgerHistoryResponse struct {
	Entries    []InventoryLogEntry `json:"entries"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"total_pages"`
}

// History returns a product's ledger entries, newest first
func (s *Service) History(productID uint, page, limit int) (*LedgerHistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.Model(&InventoryLogEntry{}).Where("product_id = ?", productID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	var entries []InventoryLogEntry
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	return &LedgerHistoryResponse{
		Entries:    entries,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// AuditReport is the result of replaying a product's ledger
type AuditReport struct {
	ProductID     uint      `json:"product_id"`
	Consistent    bool      `json:"consistent"`
	ComputedStock int       `json:"computed_stock"`
	ActualStock   int       `json:"actual_stock"`
	EntryCount    int       `json:"entry_count"`
	FirstGapEntry *uint     `json:"first_gap_entry,omitempty"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// VerifyAudit replays a product's ledger oldest-first and checks that each
// entry chains off the previous one and that the final value matches the
// live stock.
func (s *Service) VerifyAudit(productID uint) (*AuditReport, error) {
	var prod product.Product
	if err := s.db.First(&prod, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	var entries []InventoryLogEntry
	if err := s.db.Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}

	report := &AuditReport{
		ProductID:  productID,
		EntryCount: len(entries),
		VerifiedAt: time.Now(),
	}

	running := 0
	chained := true
	for i := range entries {
		e := &entries[i]
		if e.StockBefore != running || e.StockAfter != e.StockBefore+e.QuantityDelta {
			if chained {
				id := e.ID
				report.FirstGapEntry = &id
				chained = false
			}
		}
		running = e.StockAfter
	}

	report.ComputedStock = running
	report.ActualStock = prod.Stock
	report.Consistent = chained && running == prod.Stock

	return report, nil
}

// ReservationLine describes one order line to reserve
type ReservationLine struct {
	OrderItemID uint
	ProductID   uint
	Quantity    int
}

// CreateReservations opens the payment window for an online order: one
// active reservation per line, expiring together.
func (s *Service) CreateReservations(tx *gorm.DB, orderID uint, lines []ReservationLine, expiresAt time.Time) error {
	for _, line := range lines {
		reservation := StockReservation{
			OrderID:     orderID,
			OrderItemID: line.OrderItemID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			Status:      ReservationActive,
			ExpiresAt:   expiresAt,
		}
		if err := tx.Create(&reservation).Error; err != nil {
			return fmt.Errorf("failed to create stock reservation: %w", err)
		}
	}
	return nil
}

// FulfillReservations marks an order's active reservations fulfilled after
// payment capture. No stock change: the sale already committed at checkout.
func (s *Service) FulfillReservations(tx *gorm.DB, orderID uint) error {
	err := tx.Model(&StockReservation{}).
		Where("order_id = ? AND status = ?", orderID, ReservationActive).
		Update("status", ReservationFulfilled).Error
	if err != nil {
		return fmt.Errorf("failed to fulfill reservations: %w", err)
	}
	return nil
}

// ReleaseActiveReservations claims an order's active reservations into the
// given terminal status and returns exactly the rows claimed. Each claim is
// a conditional update, so concurrent releases split the rows between them
// and nothing is restocked twice.
func (s *Service) ReleaseActiveReservations(tx *gorm.DB, orderID uint, to ReservationStatus) ([]StockReservation, error) {
	var candidates []StockReservation
	if err := tx.Where("order_id = ? AND status = ?", orderID, ReservationActive).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}

	claimed := make([]StockReservation, 0, len(candidates))
	for _, r := range candidates {
		result := tx.Model(&StockReservation{}).
			Where("id = ? AND status = ?", r.ID, ReservationActive).
			Update("status", to)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to release reservation: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			r.Status = to
			claimed = append(claimed, r)
		}
	}

	return claimed, nil
}

// ExpiredOrderIDs returns orders whose payment window has lapsed with
// reservations still active.
func (s *Service) ExpiredOrderIDs(now time.Time, limit int) ([]uint, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var orderIDs []uint
	err := s.db.Model(&StockReservation{}).
		Where("status = ? AND expires_at < ?", ReservationActive, now).
		Distinct("order_id").
		Limit(limit).
		Pluck("order_id", &orderIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired reservations: %w", err)
	}

	return orderIDs, nil
}

func (s *Service) currentStock(tx *gorm.DB, productID uint) (int, error) {
	var stock int
	err := tx.Model(&product.Product{}).
		Where("id = ?", productID).
		Select("stock").
		Scan(&stock).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return stock, nil
}
