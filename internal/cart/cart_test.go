package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"griff_shop/internal/apperr"
	"griff_shop/internal/model"
	"griff_shop/internal/storage/storagetest"
)

func seedProduct(t *testing.T, db *gorm.DB, p model.Product) model.Product {
	t.Helper()
	require.NoError(t, db.Create(&p).Error)
	return p
}

func ptr(v int64) *int64 { return &v }

func TestSnapshotJoinsLiveProductState(t *testing.T) {
	db := storagetest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()

	mug := seedProduct(t, db, model.Product{Name: "mug", Price: 5000, Stock: 10, IsActive: true})
	pen := seedProduct(t, db, model.Product{Name: "pen", Price: 2000, SalePrice: ptr(1500), Stock: 3, IsActive: true})

	_, err := svc.Add(ctx, 1, mug.ID, 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, 1, pen.ID, 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, 2, pen.ID, 1)
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Count)
	assert.EqualValues(t, 2*5000+1500, snap.TotalPrice)

	require.NoError(t, db.Model(&mug).Update("price", 7000).Error)
	snap, err = svc.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2*7000+1500, snap.TotalPrice)

	empty, err := svc.Snapshot(ctx, 99)
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.Count)
}

func TestAddMergesQuantities(t *testing.T) {
	db := storagetest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	p := seedProduct(t, db, model.Product{Name: "mug", Price: 5000, Stock: 5, IsActive: true})

	first, err := svc.Add(ctx, 1, p.ID, 2)
	require.NoError(t, err)
	second, err := svc.Add(ctx, 1, p.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	var count int64
	require.NoError(t, db.Model(&model.CartItem{}).Where("user_id = ?", 1).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	_, err = svc.Add(ctx, 1, p.ID, 1)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 5, apperr.As(err).Details["in_cart"])
}

func TestAddRejectsMissingAndInactiveProducts(t *testing.T) {
	db := storagetest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	off := seedProduct(t, db, model.Product{Name: "off", Price: 100, Stock: 5, IsActive: false})

	_, err := svc.Add(ctx, 1, off.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrProductInactive)
	_, err = svc.Add(ctx, 1, 12345, 1)
	assert.ErrorIs(t, err, apperr.ErrProductNotFound)
	_, err = svc.Add(ctx, 1, 0, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestUpdateQuantityIsOwnerScoped(t *testing.T) {
	db := storagetest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	p := seedProduct(t, db, model.Product{Name: "mug", Price: 5000, Stock: 4, IsActive: true})
	item, err := svc.Add(ctx, 1, p.ID, 1)
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(ctx, 2, item.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrCartItemNotFound)

	_, err = svc.UpdateQuantity(ctx, 1, item.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.UpdateQuantity(ctx, 1, item.ID, 5)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	updated, err := svc.UpdateQuantity(ctx, 1, item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Quantity)
}

func TestRemoveAndClear(t *testing.T) {
	db := storagetest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	a := seedProduct(t, db, model.Product{Name: "a", Price: 100, Stock: 5, IsActive: true})
	b := seedProduct(t, db, model.Product{Name: "b", Price: 100, Stock: 5, IsActive: true})

	item, err := svc.Add(ctx, 1, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, 1, b.ID, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Remove(ctx, 2, item.ID), apperr.ErrCartItemNotFound)
	require.NoError(t, svc.Remove(ctx, 1, item.ID))
	assert.ErrorIs(t, svc.Remove(ctx, 1, item.ID), apperr.ErrCartItemNotFound)

	n, err := svc.Clear(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMergeAddsToExistingRows(t *testing.T) {
	db := storagetest.New(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	a := seedProduct(t, db, model.Product{Name: "a", Price: 100, Stock: 10, IsActive: true})
	b := seedProduct(t, db, model.Product{Name: "b", Price: 100, Stock: 10, IsActive: true})
	_, err := svc.Add(ctx, 1, a.ID, 1)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return Merge(tx, 1, []model.OrderItem{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 3},
		})
	})
	require.NoError(t, err)

	items, err := Items(db, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 3, items[1].Quantity)
}
