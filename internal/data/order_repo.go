package data

import (
	"context"
	"errors"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/constants"
	"fulfillment-service/internal/data/model"
)

// orderRepo 订单数据访问
type orderRepo struct {
	data *Data
	log  *log.Helper
}

// NewOrderRepo 创建订单 repo（返回 biz.OrderRepo 接口）
func NewOrderRepo(data *Data, logger log.Logger) biz.OrderRepo {
	return &orderRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func toBizOrder(m *model.Order) *biz.Order {
	return &biz.Order{
		ID:             m.OrderID,
		UserID:         m.UserID,
		ServiceID:      m.ServiceID,
		ProviderID:     m.ProviderID,
		Target:         m.Target,
		Quantity:       m.Quantity,
		Remains:        m.Remains,
		Status:         m.Status,
		PricePerUnit:   m.PricePerUnit,
		CostPerUnit:    m.CostPerUnit,
		TotalCharge:    m.TotalCharge,
		TotalCost:      m.TotalCost,
		Profit:         m.Profit,
		IsRefillable:   m.IsRefillable,
		RefillDeadline: m.RefillDeadline,
		CompletedAt:    m.CompletedAt,
		VendorOrderID:  m.VendorOrderID,
		IdempotencyKey: m.IdempotencyKey,
		BalanceHoldID:  m.BalanceHoldID,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// GetOrder 按ID查询订单
func (r *orderRepo) GetOrder(ctx context.Context, orderID string) (*biz.Order, error) {
	var m model.Order
	if err := r.data.db.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizOrder(&m), nil
}

// GetOrderByIdempotencyKey 按幂等键查询订单
func (r *orderRepo) GetOrderByIdempotencyKey(ctx context.Context, key string) (*biz.Order, error) {
	var m model.Order
	if err := r.data.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizOrder(&m), nil
}

// CreateWithReservation 第一阶段事务：余额预扣 + PENDING 订单插入。
// 预扣与订单共用幂等键；余额检查、扣减、HELD 记录、ORDER 流水、订单行
// 在同一个事务内提交或一起回滚。
func (r *orderRepo) CreateWithReservation(ctx context.Context, o *biz.Order, ttl time.Duration) (*biz.Order, error) {
	orderID := uuid.New().String()
	var (
		created    model.Order
		newBalance decimal.Decimal
	)

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hold, balance, err := reserveInTx(tx, biz.ReserveParams{
			UserID:         o.UserID,
			Amount:         o.TotalCharge,
			IdempotencyKey: o.IdempotencyKey,
			ReferenceType:  constants.RefTypeOrder,
			ReferenceID:    orderID,
			TTL:            ttl,
		}, time.Now())
		if err != nil {
			return err
		}
		newBalance = balance

		created = model.Order{
			OrderID:        orderID,
			UserID:         o.UserID,
			ServiceID:      o.ServiceID,
			ProviderID:     o.ProviderID,
			Target:         o.Target,
			Quantity:       o.Quantity,
			Remains:        o.Remains,
			Status:         model.OrderStatusPending,
			PricePerUnit:   o.PricePerUnit,
			CostPerUnit:    o.CostPerUnit,
			TotalCharge:    o.TotalCharge,
			TotalCost:      o.TotalCost,
			Profit:         o.Profit,
			IsRefillable:   o.IsRefillable,
			IdempotencyKey: o.IdempotencyKey,
			BalanceHoldID:  hold.BalanceHoldID,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		// 幂等键唯一索引冲突：并发重试，返回已存在的订单
		if existing, getErr := r.GetOrderByIdempotencyKey(ctx, o.IdempotencyKey); getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	r.data.cacheBalance(o.UserID, newBalance)
	return toBizOrder(&created), nil
}

// MarkSubmitted 第二阶段成功出口（事务）：订单 PENDING→PROCESSING + 预扣 capture。
// 订单更新以 version 为守卫，预扣更新以状态列为守卫；任一守卫不命中整体回滚。
func (r *orderRepo) MarkSubmitted(ctx context.Context, orderID string, version int64, vendorOrderID string) error {
	return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).
			First(&order).Error; err != nil {
			return err
		}

		result := tx.Model(&model.Order{}).
			Where("order_id = ? AND version = ? AND status = ?", orderID, version, model.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":          model.OrderStatusProcessing,
				"vendor_order_id": vendorOrderID,
				"version":         gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return biz.ErrOptimisticConflict
		}

		return captureHeldInTx(tx, order.BalanceHoldID, time.Now())
	})
}

// MarkSubmissionFailed 第二阶段失败出口（事务）：订单 PENDING→CANCELLED +
// 预扣释放退回 + REFUND 流水。提交后本地已一致，调用方无须补偿。
func (r *orderRepo) MarkSubmissionFailed(ctx context.Context, orderID string, version int64, reason string) error {
	var (
		userID     string
		newBalance decimal.Decimal
	)
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", orderID).
			First(&order).Error; err != nil {
			return err
		}

		result := tx.Model(&model.Order{}).
			Where("order_id = ? AND version = ? AND status = ?", orderID, version, model.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":  model.OrderStatusCancelled,
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return biz.ErrOptimisticConflict
		}

		hold, balance, err := finalizeHeldInTx(tx, order.BalanceHoldID, model.HoldStatusReleased, reason, time.Now())
		if err != nil {
			return err
		}
		userID = hold.UserID
		newBalance = balance
		return nil
	})
	if err != nil {
		return err
	}

	r.data.cacheBalance(userID, newBalance)
	return nil
}

// UpdateProgress 对账更新（乐观锁）：remains/status/completed_at/refill_deadline/profit
func (r *orderRepo) UpdateProgress(ctx context.Context, o *biz.Order) error {
	result := r.data.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND version = ?", o.ID, o.Version).
		Updates(map[string]interface{}{
			"status":          o.Status,
			"remains":         o.Remains,
			"completed_at":    o.CompletedAt,
			"refill_deadline": o.RefillDeadline,
			"profit":          o.Profit,
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return biz.ErrOptimisticConflict
	}
	o.Version++
	return nil
}

// RefundRemains 供应商取消后的退款（事务）：订单状态更新（乐观锁）+
// 余额退回 + REFUND 流水。预扣早已 CAPTURED，这里是 capture 之后
// 唯一允许的反向资金流。
func (r *orderRepo) RefundRemains(ctx context.Context, o *biz.Order, amount decimal.Decimal, description string) error {
	var newBalance decimal.Decimal
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Order{}).
			Where("order_id = ? AND version = ?", o.ID, o.Version).
			Updates(map[string]interface{}{
				"status":  o.Status,
				"remains": o.Remains,
				"profit":  o.Profit,
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return biz.ErrOptimisticConflict
		}

		balance, err := lockUserBalance(tx, o.UserID)
		if err != nil {
			return err
		}
		newBalance = balance.Balance.Add(amount)
		if err := tx.Model(balance).Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		}).Error; err != nil {
			return err
		}

		return writeLedger(tx, o.UserID, model.TransactionTypeRefund,
			amount, balance.Balance, newBalance,
			constants.RefTypeOrder, o.ID, description)
	})
	if err != nil {
		return err
	}

	o.Version++
	r.data.cacheBalance(o.UserID, newBalance)
	return nil
}

// ListActiveOrders 查询指定状态的订单（按创建时间先进先出）
func (r *orderRepo) ListActiveOrders(ctx context.Context, statuses []string, limit int) ([]*biz.Order, error) {
	var models []model.Order
	if err := r.data.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	orders := make([]*biz.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toBizOrder(&models[i]))
	}
	return orders, nil
}
