// internal/domain/inventory/service_test.go
package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
	"github.com/your-org/storefront-backend/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t, &InventoryLogEntry{}, &StockReservation{}, &product.Product{})
	return NewService(db, testutil.NewConfig()), db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) *product.Product {
	t.Helper()
	p := product.Product{
		SKU:      "DESK-01",
		Slug:     "walnut-desk",
		Name:     "Walnut Desk",
		Price:    14999,
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func ledgerFor(t *testing.T, db *gorm.DB, productID uint) []InventoryLogEntry {
	t.Helper()
	var entries []InventoryLogEntry
	require.NoError(t, db.Where("product_id = ?", productID).Order("id ASC").Find(&entries).Error)
	return entries
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   InventoryLogEntry
		wantErr bool
	}{
		{"valid sale", InventoryLogEntry{QuantityDelta: -2, StockBefore: 10, StockAfter: 8}, false},
		{"valid purchase", InventoryLogEntry{QuantityDelta: 5, StockBefore: 0, StockAfter: 5}, false},
		{"zero delta", InventoryLogEntry{QuantityDelta: 0, StockBefore: 5, StockAfter: 5}, true},
		{"arithmetic mismatch", InventoryLogEntry{QuantityDelta: -2, StockBefore: 10, StockAfter: 9}, true},
		{"negative result", InventoryLogEntry{QuantityDelta: -3, StockBefore: 2, StockAfter: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommitSaleDecrementsAndLogs(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 10)

	require.NoError(t, svc.CommitSale(db, p, 3, 77))

	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 7, fresh.Stock)
	assert.Equal(t, 3, fresh.SoldCount)

	entries := ledgerFor(t, db, p.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, EntrySale, entries[0].Type)
	assert.Equal(t, -3, entries[0].QuantityDelta)
	assert.Equal(t, 10, entries[0].StockBefore)
	assert.Equal(t, 7, entries[0].StockAfter)
	assert.Equal(t, ReferenceOrder, entries[0].ReferenceType)
	assert.Equal(t, uint(77), entries[0].ReferenceID)
}

func TestCommitSaleInsufficientStock(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 2)

	err := svc.CommitSale(db, p, 3, 77)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInsufficientStock, apperrors.CodeOf(err))

	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 2, fresh.Stock)
	assert.Empty(t, ledgerFor(t, db, p.ID))
}

func TestCommitSaleExactStock(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 3)

	require.NoError(t, svc.CommitSale(db, p, 3, 77))

	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 0, fresh.Stock)
}

func TestRestockLineReversesSale(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 10)

	require.NoError(t, svc.CommitSale(db, p, 4, 77))
	require.NoError(t, svc.RestockLine(db, p.ID, 4, ReferenceOrder, 77, "order cancelled"))

	var fresh product.Product
	require.NoError(t, db.First(&fresh, p.ID).Error)
	assert.Equal(t, 10, fresh.Stock)
	assert.Equal(t, 0, fresh.SoldCount)

	entries := ledgerFor(t, db, p.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, EntryReturn, entries[1].Type)
	assert.Equal(t, 4, entries[1].QuantityDelta)
	assert.Equal(t, 6, entries[1].StockBefore)
	assert.Equal(t, 10, entries[1].StockAfter)
	assert.Equal(t, "order cancelled", entries[1].Note)

	_, err := svc.VerifyAudit(p.ID)
	require.NoError(t, err)
}

func TestRestockLineUnknownProduct(t *testing.T) {
	svc, db := newTestService(t)

	err := svc.RestockLine(db, 9999, 1, ReferenceSweep, 1, "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRecordAdjustment(t *testing.T) {
	tests := []struct {
		name      string
		entryType EntryType
		delta     int
		stock     int
		wantStock int
		wantCode  string
	}{
		{"purchase adds stock", EntryPurchase, 5, 10, 15, ""},
		{"return adds stock", EntryReturn, 2, 10, 12, ""},
		{"purchase must be positive", EntryPurchase, -5, 10, 10, "invalid_delta"},
		{"return must be positive", EntryReturn, 0, 10, 10, "invalid_delta"},
		{"adjustment down", EntryAdjustment, -4, 10, 6, ""},
		{"adjustment up", EntryAdjustment, 4, 10, 14, ""},
		{"adjustment cannot underflow", EntryAdjustment, -11, 10, 10, apperrors.CodeInsufficientStock},
		{"sale not allowed manually", EntrySale, -1, 10, 10, "invalid_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db := newTestService(t)
			p := seedProduct(t, db, tt.stock)

			entry, err := svc.RecordAdjustment(&AdjustmentRequest{
				ProductID:     p.ID,
				Type:          tt.entryType,
				QuantityDelta: tt.delta,
				Note:          "stocktake",
			}, 42)

			var fresh product.Product
			require.NoError(t, db.First(&fresh, p.ID).Error)
			assert.Equal(t, tt.wantStock, fresh.Stock)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
				assert.Empty(t, ledgerFor(t, db, p.ID))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.delta, entry.QuantityDelta)
			assert.Equal(t, tt.stock, entry.StockBefore)
			assert.Equal(t, tt.wantStock, entry.StockAfter)
			assert.Equal(t, ReferenceManual, entry.ReferenceType)
			assert.Equal(t, uint(42), entry.CreatedBy)
			// Manual movements never touch soldCount.
			assert.Equal(t, 0, fresh.SoldCount)
		})
	}
}

func TestRecordAdjustmentUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordAdjustment(&AdjustmentRequest{
		ProductID:     9999,
		Type:          EntryPurchase,
		QuantityDelta: 5,
	}, 42)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestHistoryPagination(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 0)

	for i := 0; i < 5; i++ {
		_, err := svc.RecordAdjustment(&AdjustmentRequest{
			ProductID:     p.ID,
			Type:          EntryPurchase,
			QuantityDelta: 10,
		}, 42)
		require.NoError(t, err)
	}

	page, err := svc.History(p.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, 3, page.TotalPages)
	// Newest first.
	assert.Greater(t, page.Entries[0].ID, page.Entries[1].ID)

	last, err := svc.History(p.ID, 3, 2)
	require.NoError(t, err)
	assert.Len(t, last.Entries, 1)

	defaulted, err := svc.History(p.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, defaulted.Page)
	assert.Equal(t, 20, defaulted.Limit)
}

func TestVerifyAuditConsistent(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 0)

	_, err := svc.RecordAdjustment(&AdjustmentRequest{ProductID: p.ID, Type: EntryPurchase, QuantityDelta: 10}, 42)
	require.NoError(t, err)
	require.NoError(t, db.First(p, p.ID).Error)
	require.NoError(t, svc.CommitSale(db, p, 3, 77))
	require.NoError(t, svc.RestockLine(db, p.ID, 1, ReferenceOrder, 77, "partial return"))

	report, err := svc.VerifyAudit(p.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 8, report.ComputedStock)
	assert.Equal(t, 8, report.ActualStock)
	assert.Equal(t, 3, report.EntryCount)
	assert.Nil(t, report.FirstGapEntry)
}

func TestVerifyAuditDetectsGap(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 0)

	_, err := svc.RecordAdjustment(&AdjustmentRequest{ProductID: p.ID, Type: EntryPurchase, QuantityDelta: 10}, 42)
	require.NoError(t, err)

	// A movement that bypassed the ledger leaves the replay short.
	require.NoError(t, db.Model(&product.Product{}).Where("id = ?", p.ID).
		UpdateColumn("stock", gorm.Expr("stock - ?", 2)).Error)

	report, err := svc.VerifyAudit(p.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, 10, report.ComputedStock)
	assert.Equal(t, 8, report.ActualStock)
	assert.Nil(t, report.FirstGapEntry)
}

func TestVerifyAuditDetectsBrokenChain(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db, 0)

	_, err := svc.RecordAdjustment(&AdjustmentRequest{ProductID: p.ID, Type: EntryPurchase, QuantityDelta: 10}, 42)
	require.NoError(t, err)

	// Forge an entry that does not chain off the previous StockAfter.
	forged := InventoryLogEntry{
		ProductID:     p.ID,
		Type:          EntryAdjustment,
		QuantityDelta: -1,
		StockBefore:   99,
		StockAfter:    98,
		ReferenceType: ReferenceManual,
	}
	require.NoError(t, db.Create(&forged).Error)

	report, err := svc.VerifyAudit(p.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	require.NotNil(t, report.FirstGapEntry)
	assert.Equal(t, forged.ID, *report.FirstGapEntry)
}

func TestVerifyAuditUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.VerifyAudit(9999)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestReservationLifecycle(t *testing.T) {
	svc, db := newTestService(t)
	expires := time.Now().UTC().Add(30 * time.Minute)

	lines := []ReservationLine{
		{OrderItemID: 1, ProductID: 10, Quantity: 2},
		{OrderItemID: 2, ProductID: 11, Quantity: 1},
	}
	require.NoError(t, svc.CreateReservations(db, 77, lines, expires))

	var active []StockReservation
	require.NoError(t, db.Where("order_id = ? AND status = ?", 77, ReservationActive).Find(&active).Error)
	require.Len(t, active, 2)

	require.NoError(t, svc.FulfillReservations(db, 77))

	var fulfilled int64
	require.NoError(t, db.Model(&StockReservation{}).
		Where("order_id = ? AND status = ?", 77, ReservationFulfilled).Count(&fulfilled).Error)
	assert.Equal(t, int64(2), fulfilled)
}

func TestReleaseActiveReservationsClaimsOnce(t *testing.T) {
	svc, db := newTestService(t)
	expires := time.Now().UTC().Add(30 * time.Minute)

	lines := []ReservationLine{
		{OrderItemID: 1, ProductID: 10, Quantity: 2},
		{OrderItemID: 2, ProductID: 11, Quantity: 1},
	}
	require.NoError(t, svc.CreateReservations(db, 77, lines, expires))

	claimed, err := svc.ReleaseActiveReservations(db, 77, ReservationCancelled)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
	for _, r := range claimed {
		assert.Equal(t, ReservationCancelled, r.Status)
	}

	// A second release finds nothing left to claim.
	again, err := svc.ReleaseActiveReservations(db, 77, ReservationExpired)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestExpiredOrderIDs(t *testing.T) {
	svc, db := newTestService(t)
	now := time.Now().UTC()

	require.NoError(t, svc.CreateReservations(db, 1,
		[]ReservationLine{{OrderItemID: 1, ProductID: 10, Quantity: 1}}, now.Add(-time.Minute)))
	require.NoError(t, svc.CreateReservations(db, 2,
		[]ReservationLine{{OrderItemID: 2, ProductID: 10, Quantity: 1}, {OrderItemID: 3, ProductID: 11, Quantity: 2}},
		now.Add(-time.Minute)))
	require.NoError(t, svc.CreateReservations(db, 3,
		[]ReservationLine{{OrderItemID: 4, ProductID: 10, Quantity: 1}}, now.Add(time.Hour)))

	// Fulfilled reservations are never swept even when past their window.
	require.NoError(t, svc.CreateReservations(db, 4,
		[]ReservationLine{{OrderItemID: 5, ProductID: 12, Quantity: 1}}, now.Add(-time.Minute)))
	require.NoError(t, svc.FulfillReservations(db, 4))

	ids, err := svc.ExpiredOrderIDs(now, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{1, 2}, ids)
}

func TestIsExpired(t *testing.T) {
	now := time.Now().UTC()

	active := StockReservation{Status: ReservationActive, ExpiresAt: now.Add(-time.Second)}
	assert.True(t, active.IsExpired(now))

	future := StockReservation{Status: ReservationActive, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, future.IsExpired(now))

	fulfilled := StockReservation{Status: ReservationFulfilled, ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, fulfilled.IsExpired(now))
}
