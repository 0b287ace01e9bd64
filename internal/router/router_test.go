package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"griff_shop/internal/apperr"
	"griff_shop/internal/audit"
	"griff_shop/internal/cart"
	"griff_shop/internal/config"
	"griff_shop/internal/middleware"
	"griff_shop/internal/model"
	"griff_shop/internal/order"
	"griff_shop/internal/payment"
	"griff_shop/internal/storage/storagetest"
	rediskey "griff_shop/pkg/redis"
)

const adminToken = "test-admin"

type stubGateway struct {
	err error
}

func (g stubGateway) Confirm(_ context.Context, req payment.ConfirmRequest) (payment.Approval, error) {
	if g.err != nil {
		return payment.Approval{}, g.err
	}
	now := time.Now().UTC()
	return payment.Approval{PaymentKey: req.PaymentKey, Method: "card", Status: "DONE", ApprovedAt: &now}, nil
}

type server struct {
	engine *gin.Engine
	db     *gorm.DB
}

func newServer(t *testing.T, gw payment.Gateway, rateLimit int) *server {
	t.Helper()
	return newServerWithAudit(t, gw, rateLimit, nil)
}

func newServerWithAudit(t *testing.T, gw payment.Gateway, rateLimit int, trail AuditTrail) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storagetest.New(t)
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	orders := order.NewService(order.Deps{DB: db})
	r := gin.New()
	r.Use(middleware.RequestLogger(nil))
	Setup(r, Deps{
		DB:     db,
		Redis:  rdb,
		Orders: orders,
		Admin:  order.NewAdminService(orders),
		Carts:  cart.NewService(db, nil),
		Reconciler: payment.NewReconciler(payment.Deps{
			DB:      db,
			Gateway: gw,
			Seen:    rediskey.NewWebhookMarks(rdb, time.Hour),
		}),
		Audit:  trail,
		Config: config.AppConfig{RateLimit: rateLimit, RateWindow: time.Minute, AdminToken: adminToken},
	})
	return &server{engine: r, db: db}
}

type envelope struct {
	Code  int             `json:"code"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Msg   string          `json:"msg"`
}

func (s *server) call(t *testing.T, method, path string, user string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	if user == "admin" {
		req.Header.Del(middleware.HeaderUserID)
		req.Header.Set(middleware.HeaderAdminToken, adminToken)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *server) product(t *testing.T, price, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: "item", Price: price, Stock: stock, IsActive: true}
	require.NoError(t, s.db.Create(&p).Error)
	return p
}

func TestCheckoutPayAndShip(t *testing.T) {
	s := newServer(t, stubGateway{}, 100)
	p := s.product(t, 7500, 3)

	w, env := s.call(t, http.MethodPost, "/api/cart", "1", gin.H{"product_id": p.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.call(t, http.MethodGet, "/api/cart", "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap cart.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.EqualValues(t, 15000, snap.TotalPrice)
	assert.Equal(t, 1, snap.Count)

	w, env = s.call(t, http.MethodPost, "/api/orders", "1", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ord model.Order
	require.NoError(t, json.Unmarshal(env.Data, &ord))
	assert.Equal(t, model.OrderPending, ord.Status)
	assert.EqualValues(t, 15000, ord.TotalAmount)
	require.Len(t, ord.Items, 1)

	w, _ = s.call(t, http.MethodPost, "/api/payments/confirm", "1", gin.H{
		"paymentKey": "pk_router", "orderId": ord.ID, "amount": 15000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.call(t, http.MethodGet, "/api/payments/"+itoa(ord.ID), "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pay model.Payment
	require.NoError(t, json.Unmarshal(env.Data, &pay))
	assert.Equal(t, model.PaymentDone, pay.Status)

	w, _ = s.call(t, http.MethodPut, "/api/admin/orders/"+itoa(ord.ID)+"/status", "admin", gin.H{"status": "shipping"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.call(t, http.MethodGet, "/api/admin/orders/"+itoa(ord.ID), "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail order.Detail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, model.OrderShipping, detail.Status)
	assert.Len(t, detail.Payments, 1)
}

func TestErrorEnvelopeCarriesDetails(t *testing.T) {
	s := newServer(t, stubGateway{}, 100)
	p := s.product(t, 1000, 3)

	w, env := s.call(t, http.MethodPost, "/api/orders", "1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_cart", env.Error)
	assert.Equal(t, http.StatusBadRequest, env.Code)

	w, _ = s.call(t, http.MethodPost, "/api/cart", "1", gin.H{"product_id": p.ID, "quantity": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.EqualValues(t, 3, body["stock"])
	assert.EqualValues(t, 5, body["requested"])

	w, env = s.call(t, http.MethodGet, "/api/orders/abc", "1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", env.Error)

	w, env = s.call(t, http.MethodGet, "/api/orders/77", "1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order_not_found", env.Error)

	w, env = s.call(t, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", env.Error)
}

func TestCancelOwnershipAndIllegalTransition(t *testing.T) {
	s := newServer(t, stubGateway{}, 100)
	p := s.product(t, 1000, 3)
	s.call(t, http.MethodPost, "/api/cart", "1", gin.H{"product_id": p.ID, "quantity": 1})
	_, env := s.call(t, http.MethodPost, "/api/orders", "1", nil)
	var ord model.Order
	require.NoError(t, json.Unmarshal(env.Data, &ord))

	w, env := s.call(t, http.MethodPost, "/api/orders/"+itoa(ord.ID)+"/cancel", "2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", env.Error)

	for _, st := range []string{"paid", "shipping", "delivered"} {
		w, _ = s.call(t, http.MethodPut, "/api/admin/orders/"+itoa(ord.ID)+"/status", "admin", gin.H{"status": st})
		require.Equal(t, http.StatusOK, w.Code, st)
	}
	w, _ = s.call(t, http.MethodPut, "/api/admin/orders/"+itoa(ord.ID)+"/status", "admin", gin.H{"status": "shipping"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"code":400,"error":"illegal_transition","msg":"transition delivered -> shipping is not allowed","from":"delivered","to":"shipping","allowed":[]}`,
		w.Body.String())

	w, env = s.call(t, http.MethodPost, "/api/orders/"+itoa(ord.ID)+"/cancel", "1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "order_not_pending", env.Error)
}

func TestGatewayRejectionRelaysStatus(t *testing.T) {
	rejected := apperr.New(apperr.CodeGatewayRejected, "카드 한도 초과").
		WithStatus(http.StatusForbidden).
		WithDetails(map[string]any{"gateway_code": "REJECT_CARD_COMPANY"})
	s := newServer(t, stubGateway{err: rejected}, 100)
	p := s.product(t, 1000, 3)
	s.call(t, http.MethodPost, "/api/cart", "1", gin.H{"product_id": p.ID, "quantity": 1})
	_, env := s.call(t, http.MethodPost, "/api/orders", "1", nil)
	var ord model.Order
	require.NoError(t, json.Unmarshal(env.Data, &ord))

	w, env := s.call(t, http.MethodPost, "/api/payments/confirm", "1", gin.H{
		"paymentKey": "pk_x", "orderId": itoa(ord.ID), "amount": "1000",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "gateway_rejected", env.Error)
	assert.Contains(t, w.Body.String(), "REJECT_CARD_COMPANY")

	w, env = s.call(t, http.MethodPost, "/api/payments/confirm", "1", gin.H{
		"paymentKey": "pk_x", "orderId": ord.ID, "amount": 999,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "amount_mismatch", env.Error)

	w, env = s.call(t, http.MethodPost, "/api/payments/confirm", "1", gin.H{"paymentKey": "pk_x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", env.Error)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	s := newServer(t, stubGateway{}, 100)

	for _, body := range []gin.H{
		{"eventType": "SOMETHING_ELSE"},
		{"eventType": payment.EventPaymentStatusChanged, "data": gin.H{"paymentKey": "nope", "status": "WEIRD"}},
		{"eventType": payment.EventPaymentStatusChanged, "data": gin.H{"paymentKey": "unknown", "status": "DONE", "orderId": 5}},
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", jsonBody(t, body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
	}
}

func TestAdminRequiresToken(t *testing.T) {
	s := newServer(t, stubGateway{}, 100)
	w, _ := s.call(t, http.MethodGet, "/api/admin/stats", "1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.call(t, http.MethodGet, "/api/admin/stats", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st order.Stats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Zero(t, st.TotalOrders)

	w, env = s.call(t, http.MethodGet, "/api/admin/orders?status=bogus", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", env.Error)
}

func TestOrderCreationIsRateLimited(t *testing.T) {
	s := newServer(t, stubGateway{}, 1)

	w, _ := s.call(t, http.MethodPost, "/api/orders", "9", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, env := s.call(t, http.MethodPost, "/api/orders", "9", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", env.Error)

	w, _ = s.call(t, http.MethodGet, "/api/orders", "9", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPing(t *testing.T) {
	s := newServer(t, stubGateway{}, 100)
	w, _ := s.call(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type fakeTrail struct {
	entries []audit.Entry
	pingErr error
	orderID uint
	limit   int64
}

func (f *fakeTrail) History(_ context.Context, orderID uint, limit int64) ([]audit.Entry, error) {
	f.orderID, f.limit = orderID, limit
	return f.entries, nil
}

func (f *fakeTrail) Ping(context.Context) error { return f.pingErr }

func TestAdminOrderAudit(t *testing.T) {
	trail := &fakeTrail{entries: []audit.Entry{
		{ID: "ev-2", Action: "order.status_changed", EntityID: "order:1"},
		{ID: "ev-1", Action: "order.created", EntityID: "order:1"},
	}}
	s := newServerWithAudit(t, stubGateway{}, 100, trail)
	p := s.product(t, 1000, 3)
	s.call(t, http.MethodPost, "/api/cart", "1", gin.H{"product_id": p.ID, "quantity": 1})
	_, env := s.call(t, http.MethodPost, "/api/orders", "1", nil)
	var ord model.Order
	require.NoError(t, json.Unmarshal(env.Data, &ord))

	w, env := s.call(t, http.MethodGet, "/api/admin/orders/"+itoa(ord.ID)+"/audit?limit=500", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		OrderID uint          `json:"order_id"`
		Entries []audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, ord.ID, got.OrderID)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "ev-2", got.Entries[0].ID)
	assert.Equal(t, ord.ID, trail.orderID)
	assert.EqualValues(t, maxAuditLimit, trail.limit)

	w, env = s.call(t, http.MethodGet, "/api/admin/orders/9999/audit", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order_not_found", env.Error)

	w, _ = s.call(t, http.MethodGet, "/api/admin/orders/"+itoa(ord.ID)+"/audit", "1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 未配置审计库时不注册该路由。
	plain := newServer(t, stubGateway{}, 100)
	w, _ = plain.call(t, http.MethodGet, "/api/admin/orders/1/audit", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPingReportsAuditStore(t *testing.T) {
	trail := &fakeTrail{pingErr: context.DeadlineExceeded}
	s := newServerWithAudit(t, stubGateway{}, 100, trail)

	w, _ := s.call(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"audit":"unavailable"`)

	trail.pingErr = nil
	w, _ = s.call(t, http.MethodGet, "/ping", "", nil)
	assert.Contains(t, w.Body.String(), `"audit":"ok"`)
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
