// internal/domain/product/service.go
package product

import (
	"errors"
	"fmt"

	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// Service reads products for cart and checkout flows. Stock mutation lives
// in the inventory service so every change is paired with a ledger entry.
type Service struct {
	db *gorm.DB
}

// NewService creates a new product service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetByID returns a product by ID
func (s *Service) GetByID(id uint) (*Product, error) {
	var p Product
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetActiveByID returns a product that is active and purchasable
func (s *Service) GetActiveByID(id uint) (*Product, error) {
	var p Product
	if err := s.db.Where("id = ? AND is_active = ?", id, true).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetBySKU returns a product by SKU
func (s *Service) GetBySKU(sku string) (*Product, error) {
	var p Product
	if err := s.db.Where("sku = ?", sku).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ListLowStock returns active products at or below their low-stock threshold
func (s *Service) ListLowStock(limit int) ([]Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var products []Product
	err := s.db.
		Where("is_active = ? AND stock <= low_stock_threshold", true).
		Order("stock ASC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	return products, nil
}
