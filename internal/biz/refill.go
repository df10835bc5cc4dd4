package biz

import (
	"context"
	"errors"
	"time"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"

	"fulfillment-service/internal/constants"
	fulfillmentErrors "fulfillment-service/internal/errors"
)

// ErrRefillAlreadyActive 该订单已存在非终态补单
var ErrRefillAlreadyActive = errors.New("refill already active for order")

// OrderRefill 补单领域对象
type OrderRefill struct {
	ID             string
	OrderID        string
	VendorRefillID string
	Quantity       int
	Status         string
	CreatedAt      time.Time
}

// Terminal 补单是否已到终态
func (r *OrderRefill) Terminal() bool {
	switch r.Status {
	case constants.RefillStatusCompleted, constants.RefillStatusRejected, constants.RefillStatusCancelled:
		return true
	}
	return false
}

// RefillRepo 补单数据层接口（定义在 biz 层）
//
// CreateRefill 在事务内检查该订单不存在非终态补单，存在则返回
// ErrRefillAlreadyActive——"每单至多一条进行中补单"的不变式在这里落地。
// UpdateRefillStatus 以非终态为更新守卫，终态写入后不再改变。
// CancelStaleRefillIntents 取消超过时限仍无供应商补单号的 PENDING 意向，
// 创建方崩溃遗留的意向行靠它腾出名额。
type RefillRepo interface {
	CreateRefill(ctx context.Context, r *OrderRefill) (*OrderRefill, error)
	UpdateRefillStatus(ctx context.Context, refillID, vendorRefillID, status string) error
	ListActiveRefills(ctx context.Context, limit int) ([]*OrderRefill, error)
	CancelStaleRefillIntents(ctx context.Context, olderThan time.Time) (int64, error)
}

// RequestRefill 为已完成订单发起补单。
// 仅 COMPLETED 且在补单时限内的订单可补；同一订单同时只允许一条非终态补单。
// 与下单第二阶段同样的纪律：校验与供应商查询全部通过后才落 PENDING 意向记录，
// 再调供应商，成功则补上供应商补单号并转 PROCESSING，失败则把意向记录终结为
// CANCELLED。落库与确认之间崩溃遗留的 PENDING 行由补单轮询按时限清理。
func (uc *OrderUseCase) RequestRefill(ctx context.Context, orderID string) (*OrderRefill, error) {
	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeOrderNotFound)
	}
	if order.Status != constants.OrderStatusCompleted || !order.IsRefillable {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeOrderNotRefillable)
	}
	if order.RefillDeadline == nil || time.Now().After(*order.RefillDeadline) {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeRefillWindowClosed)
	}

	// 供应商先解析：意向记录一旦落库就占住"每单一条进行中补单"的名额，
	// 目录查询失败不应留下这样的记录
	provider, err := uc.catalog.GetProvider(ctx, order.ProviderID)
	if err != nil || provider == nil {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeProviderNotFound)
	}

	refill, err := uc.refillRepo.CreateRefill(ctx, &OrderRefill{
		OrderID:  order.ID,
		Quantity: order.Quantity,
		Status:   constants.RefillStatusPending,
	})
	if err != nil {
		if errors.Is(err, ErrRefillAlreadyActive) {
			return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeRefillAlreadyActive)
		}
		return nil, err
	}

	vendorRefillID, vendorErr := uc.gateways.Gateway(provider).RequestRefill(ctx, order.VendorOrderID)
	if vendorErr != nil {
		if err := uc.refillRepo.UpdateRefillStatus(ctx, refill.ID, "", constants.RefillStatusCancelled); err != nil {
			uc.log.Errorf("cancel refill intent failed: refill_id=%s, err=%v", refill.ID, err)
		}
		uc.log.Warnf("vendor refill request failed: order_id=%s, err=%v", order.ID, vendorErr)
		return nil, vendorErr
	}

	if err := uc.refillRepo.UpdateRefillStatus(ctx, refill.ID, vendorRefillID, constants.RefillStatusProcessing); err != nil {
		return nil, err
	}
	refill.VendorRefillID = vendorRefillID
	refill.Status = constants.RefillStatusProcessing

	uc.log.Infof("refill requested: order_id=%s, refill_id=%s, vendor_refill_id=%s",
		order.ID, refill.ID, vendorRefillID)
	return refill, nil
}
