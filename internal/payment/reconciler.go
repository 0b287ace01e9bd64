// Package payment reconciles the synchronous confirm call and the
// asynchronous gateway webhook against the same order and payment.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"griff_shop/internal/apperr"
	"griff_shop/internal/identity"
	"griff_shop/internal/inventory"
	"griff_shop/internal/logging"
	"griff_shop/internal/model"
	"griff_shop/internal/order"
	"griff_shop/internal/queue"
)

const maxPaymentKeyLen = 200

// SeenMarker short-circuits webhook replays that already committed.
type SeenMarker interface {
	Seen(ctx context.Context, parts ...string) (bool, error)
	Mark(ctx context.Context, parts ...string) error
}

// Deps 由 main 注入。
type Deps struct {
	DB      *gorm.DB
	Ledger  *inventory.Ledger
	Gateway Gateway
	Seen    SeenMarker
	Events  order.EventPublisher
	Logger  *zap.Logger
}

// Reconciler merges confirm calls and webhooks into one stored state.
type Reconciler struct {
	db      *gorm.DB
	ledger  *inventory.Ledger
	gateway Gateway
	seen    SeenMarker
	events  order.EventPublisher
	logger  *zap.Logger
}

// NewReconciler builds a reconciler.
func NewReconciler(deps Deps) *Reconciler {
	logger := logging.OrNop(deps.Logger)
	ledger := deps.Ledger
	if ledger == nil {
		ledger = inventory.NewLedger(logger)
	}
	events := deps.Events
	if events == nil {
		events = order.NopPublisher{}
	}
	return &Reconciler{
		db:      deps.DB,
		ledger:  ledger,
		gateway: deps.Gateway,
		seen:    deps.Seen,
		events:  events,
		logger:  logger,
	}
}

// ConfirmInput is the confirm request; orderId and amount accept numbers and
// numeric strings.
type ConfirmInput struct {
	PaymentKey string      `json:"paymentKey"`
	OrderID    identity.ID `json:"orderId"`
	Amount     *Amount     `json:"amount"`
}

func (in ConfirmInput) validate() error {
	key := strings.TrimSpace(in.PaymentKey)
	switch {
	case key == "":
		return apperr.New(apperr.CodeInvalidInput, "paymentKey, orderId and amount are required")
	case len(key) > maxPaymentKeyLen:
		return apperr.Newf(apperr.CodeInvalidInput, "paymentKey must be at most %d characters", maxPaymentKeyLen)
	case in.OrderID == 0 || in.Amount == nil:
		return apperr.New(apperr.CodeInvalidInput, "paymentKey, orderId and amount are required")
	case in.Amount.Int64() < 0:
		return apperr.New(apperr.CodeInvalidInput, "amount must be >= 0")
	}
	return nil
}

// Confirm 支付确认：
// 1. 短事务锁订单行，校验存在、归属、pending、金额
// 2. 不持有事务调网关确认（有超时，失败不落任何记录）
// 3. 新事务重新锁订单并复核 pending，写 Payment(done) + 订单 pending → paid
// 网关调用期间订单可能被 webhook 或另一次确认推进，第 3 步复核失败时返回 order_not_pending。
func (r *Reconciler) Confirm(ctx context.Context, userID uint, in ConfirmInput) (model.Payment, error) {
	if err := in.validate(); err != nil {
		return model.Payment{}, err
	}
	key := strings.TrimSpace(in.PaymentKey)
	amount := in.Amount.Int64()
	orderID := in.OrderID.Uint()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := r.lockPayable(tx, userID, orderID, amount)
		return err
	})
	if err != nil {
		return model.Payment{}, r.confirmFailed(orderID, key, err)
	}
	if r.gateway == nil {
		return model.Payment{}, apperr.New(apperr.CodeGatewayMisconfigured, "payment gateway is not configured")
	}

	approval, err := r.gateway.Confirm(ctx, ConfirmRequest{
		PaymentKey: key,
		OrderID:    in.OrderID.String(),
		Amount:     amount,
	})
	if err != nil {
		// 并发的另一次确认已经支付成功时，网关会以重复支付拒绝，此时按 order_not_pending 返回。
		var cur model.Order
		if r.db.WithContext(ctx).Select("id", "status").Take(&cur, orderID).Error == nil && cur.Status != model.OrderPending {
			return model.Payment{}, order.NotPending(cur)
		}
		return model.Payment{}, r.confirmFailed(orderID, key, err)
	}

	var pay model.Payment
	var ord model.Order
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ord, err = r.lockPayable(tx, userID, orderID, amount)
		if err != nil {
			return err
		}
		pay = model.Payment{
			PaymentKey: key,
			OrderID:    ord.ID,
			Amount:     amount,
			Method:     approval.Method,
			Status:     model.PaymentDone,
			ApprovedAt: approval.ApprovedAt,
		}
		if pay.ApprovedAt == nil {
			now := time.Now().UTC()
			pay.ApprovedAt = &now
		}
		if err := tx.Create(&pay).Error; err != nil {
			return err
		}
		return order.Apply(tx, r.ledger, &ord, model.OrderPaid)
	})
	if err != nil {
		// 网关已批准但本地未提交，需要人工对账。
		r.logger.Warn("payment approved but not recorded",
			zap.Uint("order_id", orderID),
			zap.String("payment_key", key),
			zap.Error(err))
		return model.Payment{}, r.confirmFailed(orderID, key, err)
	}

	r.logger.Info("payment confirmed",
		zap.Uint("order_id", ord.ID),
		zap.String("payment_key", key),
		zap.String("method", pay.Method),
		zap.Int64("amount", amount))
	order.Emit(ctx, r.events, r.logger, queue.NewOrderEvent(queue.EventOrderStatusChanged, ord, model.OrderPending, queue.SourceConfirm))
	return pay, nil
}

// lockPayable 锁订单行并校验归属、pending 和金额。
func (r *Reconciler) lockPayable(tx *gorm.DB, userID, orderID uint, amount int64) (model.Order, error) {
	ord, err := order.LockOrder(tx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if !identity.Same(ord.UserID, userID) {
		return model.Order{}, apperr.Newf(apperr.CodeForbidden, "order %d belongs to another user", orderID)
	}
	if ord.Status != model.OrderPending {
		return model.Order{}, order.NotPending(ord)
	}
	if ord.TotalAmount != amount {
		return model.Order{}, apperr.Newf(apperr.CodeAmountMismatch, "amount %d does not match order total %d", amount, ord.TotalAmount).
			WithDetails(map[string]any{"expected": ord.TotalAmount, "got": amount})
	}
	return ord, nil
}

func (r *Reconciler) confirmFailed(orderID uint, key string, err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	r.logger.Error("payment confirm failed",
		zap.Uint("order_id", orderID),
		zap.String("payment_key", key),
		zap.Error(err))
	return apperr.Internal("payment.confirm", err)
}

// WebhookEvent is the gateway notification payload.
type WebhookEvent struct {
	EventType string      `json:"eventType"`
	Data      WebhookData `json:"data"`
}

// WebhookData carries the payment the event refers to.
type WebhookData struct {
	PaymentKey string          `json:"paymentKey"`
	Status     string          `json:"status"`
	OrderID    json.RawMessage `json:"orderId"`
}

// orderRef 解析 orderId，无法解析时视为缺省。
func (d WebhookData) orderRef() identity.ID {
	raw := bytes.TrimSpace(d.OrderID)
	if len(raw) == 0 {
		return 0
	}
	var id identity.ID
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0
	}
	return id
}

// WebhookOutcome describes what a webhook delivery changed.
type WebhookOutcome string

const (
	OutcomeIgnoredEventType WebhookOutcome = "ignored_event_type"
	OutcomeIgnoredStatus    WebhookOutcome = "ignored_status"
	OutcomeDuplicate        WebhookOutcome = "duplicate"
	OutcomeApplied          WebhookOutcome = "applied"
	OutcomeNoChange         WebhookOutcome = "no_change"
)

// WebhookResult reports the effect of one delivery.
type WebhookResult struct {
	Outcome        WebhookOutcome
	PaymentUpdated bool
	OrderID        uint
	OrderFrom      model.OrderStatus
	OrderTo        model.OrderStatus
}

// HandleWebhook 幂等处理网关 webhook：
// - 只处理 PAYMENT_STATUS_CHANGED；未知状态直接确认，不报错
// - 按 payment_key 更新支付状态，订单状态经状态机迁移（同状态 no-op，非法迁移记日志跳过）
// - 进入 cancelled 时回补库存
// 重放同一事件不会产生重复副作用。
func (r *Reconciler) HandleWebhook(ctx context.Context, ev WebhookEvent) (WebhookResult, error) {
	if ev.EventType != EventPaymentStatusChanged {
		return WebhookResult{Outcome: OutcomeIgnoredEventType}, nil
	}
	ps, ok := PaymentStatusFor(ev.Data.Status)
	if !ok {
		r.logger.Info("webhook status ignored",
			zap.String("payment_key", ev.Data.PaymentKey),
			zap.String("status", ev.Data.Status))
		return WebhookResult{Outcome: OutcomeIgnoredStatus}, nil
	}
	key := strings.TrimSpace(ev.Data.PaymentKey)
	ref := ev.Data.orderRef()
	marker := []string{key, ev.Data.Status, ref.String()}

	if r.seen != nil {
		seen, err := r.seen.Seen(ctx, marker...)
		if err != nil {
			r.logger.Warn("webhook seen lookup failed", zap.Error(err))
		} else if seen {
			return WebhookResult{Outcome: OutcomeDuplicate}, nil
		}
	}

	res := WebhookResult{Outcome: OutcomeNoChange}
	var changed model.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pay model.Payment
		found := false
		if key != "" {
			err := tx.Where("payment_key = ?", key).Take(&pay).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		orderID := ref.Uint()
		if found {
			if orderID != 0 && orderID != pay.OrderID {
				r.logger.Warn("webhook orderId does not match payment",
					zap.String("payment_key", key),
					zap.Uint("payload_order_id", orderID),
					zap.Uint("payment_order_id", pay.OrderID))
			}
			orderID = pay.OrderID
		}

		// 先锁订单再改支付，与确认路径的加锁顺序一致。
		var ord model.Order
		locked := false
		if orderID != 0 {
			var err error
			ord, err = order.LockOrder(tx, orderID)
			switch {
			case err == nil:
				locked = true
			case errors.Is(err, apperr.ErrOrderNotFound):
				r.logger.Warn("webhook order not found", zap.Uint("order_id", orderID))
			default:
				return err
			}
		}

		if found && pay.Status != ps {
			upd := tx.Model(&model.Payment{}).
				Where("id = ? AND status = ?", pay.ID, pay.Status).
				Update("status", ps)
			if upd.Error != nil {
				return upd.Error
			}
			res.PaymentUpdated = upd.RowsAffected == 1
		}

		if !locked {
			return nil
		}
		target, _ := OrderStatusFor(ps)
		res.OrderID = ord.ID
		res.OrderFrom = ord.Status
		res.OrderTo = ord.Status
		if ord.Status == target {
			return nil
		}
		if !order.CanTransition(ord.Status, target) {
			r.logger.Warn("webhook transition skipped",
				zap.Uint("order_id", ord.ID),
				zap.String("from", string(ord.Status)),
				zap.String("to", string(target)),
				zap.String("payment_key", key))
			return nil
		}
		if err := order.Apply(tx, r.ledger, &ord, target); err != nil {
			return err
		}
		res.OrderTo = target
		changed = ord
		return nil
	})
	if err != nil {
		return WebhookResult{}, apperr.OrInternal("payment.webhook", err)
	}

	if res.PaymentUpdated || res.OrderTo != res.OrderFrom {
		res.Outcome = OutcomeApplied
	}
	if r.seen != nil {
		if err := r.seen.Mark(ctx, marker...); err != nil {
			r.logger.Warn("webhook seen mark failed", zap.Error(err))
		}
	}

	r.logger.Info("webhook processed",
		zap.String("payment_key", key),
		zap.String("status", ev.Data.Status),
		zap.String("outcome", string(res.Outcome)),
		zap.Uint("order_id", res.OrderID))
	if changed.ID != 0 {
		order.Emit(ctx, r.events, r.logger, queue.NewOrderEvent(queue.EventOrderStatusChanged, changed, res.OrderFrom, queue.SourceWebhook))
	}
	return res, nil
}

// Get 查询自己订单的支付记录。
func (r *Reconciler) Get(ctx context.Context, userID, orderID uint) (model.Payment, error) {
	var pay model.Payment
	err := r.db.WithContext(ctx).
		Joins("JOIN orders o ON o.id = payments.order_id").
		Where("payments.order_id = ? AND o.user_id = ?", orderID, userID).
		Order("payments.id ASC").
		Take(&pay).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Payment{}, apperr.Newf(apperr.CodePaymentNotFound, "payment for order %d not found", orderID)
		}
		return model.Payment{}, apperr.Internal("payment.get", err)
	}
	return pay, nil
}
