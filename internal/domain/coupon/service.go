// internal/domain/coupon/service.go
package coupon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// Service evaluates and manages coupons
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new coupon service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// Evaluate computes the discount a coupon yields on a subtotal. Pure with
// respect to storage; does not check redeemability.
//   - percentage: subtotal*value/100 rounded half-up, capped by MaxDiscount
//   - flat: the face value, clamped to the subtotal
//   - free_shipping: the standard shipping fee (charged against shipping,
//     not goods, by the checkout engine)
func (s *Service) Evaluate(c *Coupon, subtotal int64) int64 {
	switch c.Type {
	case TypePercentage:
		discount := (subtotal*c.Value + 50) / 100
		if c.MaxDiscount > 0 && discount > c.MaxDiscount {
			discount = c.MaxDiscount
		}
		return discount
	case TypeFlat:
		if c.Value > subtotal {
			return subtotal
		}
		return c.Value
	case TypeFreeShipping:
		return s.config.Checkout.StandardShippingFee
	default:
		return 0
	}
}

// CheckRedeemable validates a coupon against a subtotal at a point in time.
// Returns a ConflictError carrying the specific reason code.
func (s *Service) CheckRedeemable(c *Coupon, subtotal int64, now time.Time) error {
	if !c.IsActive {
		return apperrors.Conflict(apperrors.CodeCouponInactive, "coupon is not active")
	}
	if !c.IsStarted(now) {
		return apperrors.Conflict(apperrors.CodeCouponNotStarted, "coupon is not valid yet")
	}
	if c.IsExpired(now) {
		return apperrors.Conflict(apperrors.CodeCouponExpired, "coupon has expired")
	}
	if !c.HasUsesLeft() {
		return apperrors.Conflict(apperrors.CodeCouponUsageCap, "coupon usage limit reached")
	}
	if subtotal < c.MinOrderValue {
		return apperrors.Conflict(apperrors.CodeCouponMinOrder,
			fmt.Sprintf("order must be at least %d to use this coupon", c.MinOrderValue))
	}
	return nil
}

// GetByCode looks up a coupon case-insensitively
func (s *Service) GetByCode(code string) (*Coupon, error) {
	var c Coupon
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if err := s.db.Where("code = ?", normalized).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("coupon")
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// GetByID returns a coupon by primary key
func (s *Service) GetByID(id uint) (*Coupon, error) {
	var c Coupon
	if err := s.db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("coupon")
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// Redeem increments a coupon's usage count inside the caller's transaction.
// The increment is conditional on the cap so concurrent checkouts can never
// push UsedCount past MaxUses; losing the race is a ConflictError and must
// abort the caller's transaction.
func (s *Service) Redeem(tx *gorm.DB, couponID uint) error {
	result := tx.Model(&Coupon{}).
		Where("id = ? AND (max_uses = 0 OR used_count < max_uses)", couponID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))

	if result.Error != nil {
		return fmt.Errorf("failed to redeem coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Conflict(apperrors.CodeCouponExhausted, "coupon usage limit reached")
	}
	return nil
}

// CreateCouponRequest represents coupon creation data
type CreateCouponRequest struct {
	Code          string    `json:"code" binding:"required"`
	Description   string    `json:"description"`
	Type          Type      `json:"type" binding:"required,oneof=percentage flat free_shipping"`
	Value         int64     `json:"value"`
	MaxDiscount   int64     `json:"max_discount"`
	MinOrderValue int64     `json:"min_order_value"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidUntil    time.Time `json:"valid_until" binding:"required"`
	MaxUses       int       `json:"max_uses"`
	IsActive      *bool     `json:"is_active"`
}

// UpdateCouponRequest represents coupon update data
type UpdateCouponRequest struct {
	Description   *string    `json:"description"`
	MaxDiscount   *int64     `json:"max_discount"`
	MinOrderValue *int64     `json:"min_order_value"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
	MaxUses       *int       `json:"max_uses"`
	IsActive      *bool      `json:"is_active"`
}

// ListCouponsRequest represents coupon list query parameters
type ListCouponsRequest struct {
	Page     int   `form:"page,default=1"`
	Limit    int   `form:"limit,default=20"`
	IsActive *bool `form:"is_active"`
}

// ListCouponsResponse represents a page of coupons
type ListCouponsResponse struct {
	Coupons    []Coupon `json:"coupons"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int      `json:"total_pages"`
}

// Create creates a coupon (admin)
func (s *Service) Create(req *CreateCouponRequest) (*Coupon, error) {
	if err := validateCouponValues(req.Type, req.Value); err != nil {
		return nil, err
	}
	if !req.ValidFrom.IsZero() && req.ValidUntil.Before(req.ValidFrom) {
		return nil, apperrors.Validation("invalid_window", "valid_until must be after valid_from")
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	c := Coupon{
		Code:          req.Code,
		Description:   req.Description,
		Type:          req.Type,
		Value:         req.Value,
		MaxDiscount:   req.MaxDiscount,
		MinOrderValue: req.MinOrderValue,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		MaxUses:       req.MaxUses,
		IsActive:      isActive,
	}

	if err := s.db.Create(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.Conflict("coupon_code_taken", "coupon code already exists")
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	return &c, nil
}

// Update updates mutable coupon fields (admin). Code, type and value are
// immutable once issued; withdraw a coupon and issue a new code instead.
func (s *Service) Update(id uint, req *UpdateCouponRequest) (*Coupon, error) {
	c, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.MaxDiscount != nil {
		updates["max_discount"] = *req.MaxDiscount
	}
	if req.MinOrderValue != nil {
		updates["min_order_value"] = *req.MinOrderValue
	}
	if req.ValidFrom != nil {
		updates["valid_from"] = *req.ValidFrom
	}
	if req.ValidUntil != nil {
		updates["valid_until"] = *req.ValidUntil
	}
	if req.MaxUses != nil {
		updates["max_uses"] = *req.MaxUses
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.Model(c).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update coupon: %w", err)
		}
	}

	return s.GetByID(id)
}

// Deactivate withdraws a coupon from circulation (admin)
func (s *Service) Deactivate(id uint) error {
	result := s.db.Model(&Coupon{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("coupon")
	}
	return nil
}

// List returns a page of coupons (admin)
func (s *Service) List(req *ListCouponsRequest) (*ListCouponsResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.db.Model(&Coupon{})
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count coupons: %w", err)
	}

	var coupons []Coupon
	offset := (req.Page - 1) * req.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.Limit).Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))

	return &ListCouponsResponse{
		Coupons:    coupons,
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: totalPages,
	}, nil
}

func validateCouponValues(t Type, value int64) error {
	switch t {
	case TypePercentage:
		if value <= 0 || value > 100 {
			return apperrors.Validation("invalid_value", "percentage value must be between 1 and 100")
		}
	case TypeFlat:
		if value <= 0 {
			return apperrors.Validation("invalid_value", "flat value must be positive")
		}
	case TypeFreeShipping:
		// Value is ignored; the discount equals the standard shipping fee.
	default:
		return apperrors.Validation("invalid_type", "unknown coupon type")
	}
	return nil
}
