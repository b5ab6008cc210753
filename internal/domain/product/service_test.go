// internal/domain/product/service_test.go
package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"github.com/your-org/storefront-backend/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t, &Product{})
	return NewService(db), db
}

func seedProduct(t *testing.T, db *gorm.DB, p Product) *Product {
	t.Helper()
	if p.Slug == "" {
		p.Slug = p.SKU
	}
	if p.Name == "" {
		p.Name = "Product " + p.SKU
	}
	if p.Price == 0 {
		p.Price = 1000
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func TestGetByID(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, Product{SKU: "DESK-01", Stock: 10, IsActive: true})

	got, err := svc.GetByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "DESK-01", got.SKU)

	_, err = svc.GetByID(9999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetActiveByID(t *testing.T) {
	svc, db := newTestService(t)
	active := seedProduct(t, db, Product{SKU: "DESK-01", Stock: 10, IsActive: true})
	delisted := seedProduct(t, db, Product{SKU: "OLD-99", Stock: 10, IsActive: false})

	got, err := svc.GetActiveByID(active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	// Delisted products exist but are not purchasable.
	_, err = svc.GetActiveByID(delisted.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.GetByID(delisted.ID)
	assert.NoError(t, err)
}

func TestGetBySKU(t *testing.T) {
	svc, db := newTestService(t)
	seedProduct(t, db, Product{SKU: "DESK-01", Stock: 10, IsActive: true})

	got, err := svc.GetBySKU("DESK-01")
	require.NoError(t, err)
	assert.Equal(t, "Product DESK-01", got.Name)

	_, err = svc.GetBySKU("NOPE-00")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListLowStock(t *testing.T) {
	svc, db := newTestService(t)
	seedProduct(t, db, Product{SKU: "GONE-01", Stock: 0, IsActive: true})
	seedProduct(t, db, Product{SKU: "LOW-02", Stock: 2, IsActive: true})
	seedProduct(t, db, Product{SKU: "EDGE-03", Stock: 5, IsActive: true})
	seedProduct(t, db, Product{SKU: "FULL-04", Stock: 50, IsActive: true})
	seedProduct(t, db, Product{SKU: "DEAD-05", Stock: 1, IsActive: false})
	seedProduct(t, db, Product{SKU: "WIDE-06", Stock: 8, IsActive: true, LowStockThreshold: 10})

	low, err := svc.ListLowStock(0)
	require.NoError(t, err)
	require.Len(t, low, 4)
	assert.Equal(t, "GONE-01", low[0].SKU, "emptiest first")
	assert.Equal(t, "LOW-02", low[1].SKU)
	assert.Equal(t, "EDGE-03", low[2].SKU, "at the threshold counts")
	assert.Equal(t, "WIDE-06", low[3].SKU, "per-product thresholds apply")

	capped, err := svc.ListLowStock(2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}
