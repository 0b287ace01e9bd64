package order

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"griff_shop/internal/apperr"
	"griff_shop/internal/cart"
	"griff_shop/internal/model"
	"griff_shop/internal/queue"
	"griff_shop/internal/storage/storagetest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) snapshot() []queue.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.OrderEvent(nil), p.events...)
}

type env struct {
	db     *gorm.DB
	svc    *Service
	admin  *AdminService
	carts  *cart.Service
	events *recordingPublisher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvOn(t, storagetest.New(t))
}

func newEnvOn(t *testing.T, db *gorm.DB) *env {
	t.Helper()
	events := &recordingPublisher{}
	svc := NewService(Deps{DB: db, Events: events})
	return &env{db: db, svc: svc, admin: NewAdminService(svc), carts: cart.NewService(db, nil), events: events}
}

func (e *env) product(t *testing.T, name string, price int64, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: name, Price: price, Stock: stock, IsActive: true}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *env) addToCart(t *testing.T, userID, productID uint, qty int) {
	t.Helper()
	_, err := e.carts.Add(context.Background(), userID, productID, qty)
	require.NoError(t, err)
}

func (e *env) stock(t *testing.T, id uint) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, e.db.First(&p, id).Error)
	return p.Stock
}

func TestCreateMaterializesCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mug := e.product(t, "mug", 5000, 10)
	sale := int64(3000)
	pen := model.Product{Name: "pen", Price: 4000, SalePrice: &sale, Stock: 4, IsActive: true}
	require.NoError(t, e.db.Create(&pen).Error)

	e.addToCart(t, 1, pen.ID, 1)
	e.addToCart(t, 1, mug.ID, 2)

	addr := "  Seoul  "
	ord, err := e.svc.Create(ctx, 1, CreateInput{ShippingAddress: &addr})
	require.NoError(t, err)

	assert.Equal(t, model.OrderPending, ord.Status)
	assert.EqualValues(t, 2*5000+3000, ord.TotalAmount)
	require.NotNil(t, ord.ShippingAddress)
	assert.Equal(t, "Seoul", *ord.ShippingAddress)
	require.Len(t, ord.Items, 2)
	assert.Equal(t, mug.ID, ord.Items[0].ProductID)
	assert.Equal(t, "mug", ord.Items[0].Name)
	assert.EqualValues(t, 3000, ord.Items[1].Price)

	assert.EqualValues(t, 8, e.stock(t, mug.ID))
	assert.EqualValues(t, 3, e.stock(t, pen.ID))

	items, err := cart.Items(e.db, 1)
	require.NoError(t, err)
	assert.Empty(t, items)

	evs := e.events.snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, queue.EventOrderCreated, evs[0].Type)
	assert.Equal(t, ord.ID, evs[0].OrderID)
}

func TestCreateFailuresWriteNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Create(ctx, 1, CreateInput{})
	require.ErrorIs(t, err, apperr.ErrEmptyCart)

	a := e.product(t, "a", 100, 5)
	b := e.product(t, "b", 100, 1)
	e.addToCart(t, 1, a.ID, 2)
	e.addToCart(t, 1, b.ID, 1)
	require.NoError(t, e.db.Model(&model.Product{}).Where("id = ?", b.ID).Update("stock", 0).Error)

	_, err = e.svc.Create(ctx, 1, CreateInput{})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	d := apperr.As(err).Details
	assert.Equal(t, "b", d["name"])
	assert.EqualValues(t, 0, d["stock"])
	assert.Equal(t, 1, d["requested"])

	require.NoError(t, e.db.Model(&model.Product{}).Where("id = ?", b.ID).Updates(map[string]any{"stock": 3, "is_active": false}).Error)
	_, err = e.svc.Create(ctx, 1, CreateInput{})
	require.ErrorIs(t, err, apperr.ErrProductInactive)
	assert.Equal(t, "b", apperr.As(err).Details["name"])

	var orders int64
	require.NoError(t, e.db.Model(&model.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
	assert.EqualValues(t, 5, e.stock(t, a.ID))
	items, err := cart.Items(e.db, 1)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Empty(t, e.events.snapshot())
}

func TestConcurrentCreateNeverOversells(t *testing.T) {
	e := newEnv(t)
	p := e.product(t, "limited", 1000, 3)
	e.addToCart(t, 1, p.ID, 2)
	e.addToCart(t, 2, p.ID, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = e.svc.Create(context.Background(), uint(idx+1), CreateInput{})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.As(err).Code == apperr.CodeInsufficientStock:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.EqualValues(t, 1, e.stock(t, p.ID))
}

func TestSameUserConcurrentCheckoutCreatesOneOrder(t *testing.T) {
	e := newEnvOn(t, storagetest.NewFile(t))
	p := e.product(t, "bag", 2000, 100)

	for round := 0; round < 10; round++ {
		e.addToCart(t, 1, p.ID, 2)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, errs[idx] = e.svc.Create(context.Background(), 1, CreateInput{})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, apperr.ErrEmptyCart, "round %d", round)
		}
		require.Equal(t, 1, succeeded, "round %d", round)
	}

	var orders int64
	require.NoError(t, e.db.Model(&model.Order{}).Count(&orders).Error)
	assert.EqualValues(t, 10, orders)
	assert.EqualValues(t, 80, e.stock(t, p.ID))
}

func TestTotalIgnoresLaterPriceChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, "lamp", 12000, 5)
	e.addToCart(t, 1, p.ID, 2)

	ord, err := e.svc.Create(ctx, 1, CreateInput{})
	require.NoError(t, err)
	require.NoError(t, e.db.Model(&model.Product{}).Where("id = ?", p.ID).Update("price", 99000).Error)

	got, err := e.svc.Get(ctx, 1, ord.ID)
	require.NoError(t, err)
	var sum int64
	for _, it := range got.Items {
		sum += it.Subtotal()
	}
	assert.EqualValues(t, 24000, got.TotalAmount)
	assert.Equal(t, got.TotalAmount, sum)
}

func TestGetAndListAreOwnerScoped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, "lamp", 1000, 5)
	e.addToCart(t, 1, p.ID, 2)
	ord, err := e.svc.Create(ctx, 1, CreateInput{})
	require.NoError(t, err)

	_, err = e.svc.Get(ctx, 2, ord.ID)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)
	_, err = e.svc.Get(ctx, 1, 999)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	list, err := e.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 1, list[0].ItemCount)
	assert.Equal(t, model.OrderPending, list[0].Status)

	other, err := e.svc.List(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCancelRestoresStockAndMergesCart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.product(t, "a", 1000, 5)
	b := e.product(t, "b", 1000, 5)
	e.addToCart(t, 1, a.ID, 2)
	e.addToCart(t, 1, b.ID, 1)
	ord, err := e.svc.Create(ctx, 1, CreateInput{})
	require.NoError(t, err)

	// the user re-adds a product before cancelling
	e.addToCart(t, 1, a.ID, 1)

	_, err = e.svc.Cancel(ctx, 2, ord.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	cancelled, err := e.svc.Cancel(ctx, 1, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)
	assert.EqualValues(t, 5, e.stock(t, a.ID))
	assert.EqualValues(t, 5, e.stock(t, b.ID))

	items, err := cart.Items(e.db, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 1, items[1].Quantity)

	_, err = e.svc.Cancel(ctx, 1, ord.ID)
	require.ErrorIs(t, err, apperr.ErrOrderNotPending)
	assert.EqualValues(t, 5, e.stock(t, a.ID))

	_, err = e.svc.Cancel(ctx, 1, 999)
	assert.ErrorIs(t, err, apperr.ErrOrderNotFound)

	evs := e.events.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, "pending", evs[1].From)
	assert.Equal(t, "cancelled", evs[1].To)
}

func TestCreateRejectsOversizedAddress(t *testing.T) {
	e := newEnv(t)
	addr := strings.Repeat("주", maxAddressLen+1)
	_, err := e.svc.Create(context.Background(), 1, CreateInput{ShippingAddress: &addr})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = e.svc.Create(context.Background(), 0, CreateInput{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
