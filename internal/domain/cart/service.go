// internal/domain/cart/service.go
package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// Service handles cart business logic
type Service struct {
	db            *gorm.DB
	config        *config.Config
	couponService *coupon.Service
}

// NewService creates a new cart service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:            db,
		config:        cfg,
		couponService: coupon.NewService(db, cfg),
	}
}

// AddItemRequest represents add-to-cart data
type AddItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest represents cart item update data. Quantity 0 removes
// the line.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// ApplyCouponRequest represents coupon application data
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetCart returns the user's cart, creating it lazily on first access
func (s *Service) GetCart(userID uint) (*Cart, error) {
	cart, err := s.getOrCreate(s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.loadCart(cart.ID)
}

// AddItem adds a product to the cart or merges quantity into an existing
// line. The stock check here is advisory; checkout re-checks inside its
// transaction.
func (s *Service) AddItem(userID uint, req *AddItemRequest) (*Cart, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var prod product.Product
	if err := tx.Where("id = ? AND is_active = ?", req.ProductID, true).First(&prod).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	cart, err := s.getOrCreate(tx, userID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var item CartItem
	err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, req.ProductID).First(&item).Error
	switch {
	case err == nil:
		newQty := item.Quantity + req.Quantity
		if !prod.HasStock(newQty) {
			tx.Rollback()
			return nil, insufficientStock(&prod)
		}
		item.Quantity = newQty
		item.LineTotal = item.UnitPrice * int64(newQty)
		if err := tx.Save(&item).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !prod.HasStock(req.Quantity) {
			tx.Rollback()
			return nil, insufficientStock(&prod)
		}
		item = CartItem{
			CartID:    cart.ID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: prod.Price,
			LineTotal: prod.Price * int64(req.Quantity),
		}
		if err := tx.Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create cart item: %w", err)
		}
	default:
		tx.Rollback()
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}

	if err := s.recalculate(tx, cart.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.loadCart(cart.ID)
}

// UpdateItem sets a line's quantity; zero removes the line
func (s *Service) UpdateItem(userID, productID uint, req *UpdateItemRequest) (*Cart, error) {
	if req.Quantity == 0 {
		return s.RemoveItem(userID, productID)
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	cart, err := s.getCartForUpdate(tx, userID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var item CartItem
	if err := tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("cart item")
		}
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}

	var prod product.Product
	if err := tx.First(&prod, productID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("product")
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !prod.HasStock(req.Quantity) {
		tx.Rollback()
		return nil, insufficientStock(&prod)
	}

	item.Quantity = req.Quantity
	item.LineTotal = item.UnitPrice * int64(req.Quantity)
	if err := tx.Save(&item).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	if err := s.recalculate(tx, cart.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.loadCart(cart.ID)
}

// RemoveItem deletes a line from the cart
func (s *Service) RemoveItem(userID, productID uint) (*Cart, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	cart, err := s.getCartForUpdate(tx, userID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	result := tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).Delete(&CartItem{})
	if result.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperrors.NotFound("cart item")
	}

	if err := s.recalculate(tx, cart.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.loadCart(cart.ID)
}

// ApplyCoupon attaches a coupon to the cart after validating it against the
// current subtotal. Failures surface the typed reason and leave the cart
// untouched.
func (s *Service) ApplyCoupon(userID uint, req *ApplyCouponRequest) (*Cart, error) {
	c, err := s.couponService.GetByCode(req.Code)
	if err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	cart, err := s.getCartForUpdate(tx, userID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var subtotal int64
	if err := tx.Model(&CartItem{}).Where("cart_id = ?", cart.ID).
		Select("COALESCE(SUM(line_total), 0)").Scan(&subtotal).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to sum cart items: %w", err)
	}

	if err := s.couponService.CheckRedeemable(c, subtotal, time.Now()); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&Cart{}).Where("id = ?", cart.ID).Update("coupon_id", c.ID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to apply coupon: %w", err)
	}

	if err := s.recalculate(tx, cart.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.loadCart(cart.ID)
}

// RemoveCoupon detaches the applied coupon
func (s *Service) RemoveCoupon(userID uint) (*Cart, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	cart, err := s.getCartForUpdate(tx, userID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&Cart{}).Where("id = ?", cart.ID).Update("coupon_id", nil).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to remove coupon: %w", err)
	}

	if err := s.recalculate(tx, cart.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.loadCart(cart.ID)
}

// Clear empties the cart: lines, coupon and totals. The cart row survives.
func (s *Service) Clear(userID uint) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	cart, err := s.getCartForUpdate(tx, userID)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := s.Empty(tx, cart.ID); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// Empty removes all lines and resets derived fields inside the caller's
// transaction. Checkout uses this as its final step.
func (s *Service) Empty(tx *gorm.DB, cartID uint) error {
	if err := tx.Where("cart_id = ?", cartID).Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}

	updates := map[string]interface{}{
		"coupon_id": nil,
		"subtotal":  0,
		"discount":  0,
		"total":     0,
	}
	if err := tx.Model(&Cart{}).Where("id = ?", cartID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to reset cart: %w", err)
	}

	return nil
}

// GetCartByUserID returns the cart with items for checkout, without
// creating one.
func (s *Service) GetCartByUserID(tx *gorm.DB, userID uint) (*Cart, error) {
	var cart Cart
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.created_at ASC")
	}).Preload("Items.Product").Preload("Coupon").
		Where("user_id = ?", userID).First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Conflict(apperrors.CodeEmptyCart, "cart is empty")
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// recalculate rederives subtotal/discount/total from the lines and the
// applied coupon. Pure arithmetic: redeemability is enforced at apply time
// and again, authoritatively, at checkout.
func (s *Service) recalculate(tx *gorm.DB, cartID uint) error {
	var cart Cart
	if err := tx.Preload("Items").First(&cart, cartID).Error; err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}

	var subtotal int64
	for _, item := range cart.Items {
		subtotal += item.LineTotal
	}

	var discount int64
	couponID := cart.CouponID
	if couponID != nil {
		var c coupon.Coupon
		if err := tx.First(&c, *couponID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load coupon: %w", err)
			}
			// Coupon withdrawn from circulation since apply; detach it.
			couponID = nil
		} else {
			discount = s.couponService.Evaluate(&c, subtotal)
		}
	}

	updates := map[string]interface{}{
		"coupon_id": couponID,
		"subtotal":  subtotal,
		"discount":  discount,
		"total":     subtotal - discount,
	}
	if err := tx.Model(&Cart{}).Where("id = ?", cartID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to persist cart totals: %w", err)
	}

	return nil
}

// getOrCreate fetches the user's cart, creating it on first access
func (s *Service) getOrCreate(tx *gorm.DB, userID uint) (*Cart, error) {
	var cart Cart
	if err := tx.Where(Cart{UserID: userID}).FirstOrCreate(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}
	return &cart, nil
}

// getCartForUpdate fetches the bare cart row for a mutation
func (s *Service) getCartForUpdate(tx *gorm.DB, userID uint) (*Cart, error) {
	var cart Cart
	if err := tx.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("cart")
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// loadCart returns a cart with items, products and coupon preloaded
func (s *Service) loadCart(cartID uint) (*Cart, error) {
	var cart Cart
	err := s.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.created_at ASC")
	}).Preload("Items.Product").Preload("Coupon").
		First(&cart, cartID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

func insufficientStock(p *product.Product) error {
	return apperrors.Conflict(apperrors.CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for %s: %d available", p.Name, p.Stock))
}
