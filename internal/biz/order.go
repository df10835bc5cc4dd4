package biz

import (
	"context"
	"time"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
	fulfillmentErrors "fulfillment-service/internal/errors"
	"fulfillment-service/internal/metrics"
)

// Order 履约订单领域对象
type Order struct {
	ID             string
	UserID         string
	ServiceID      string
	ProviderID     string
	Target         string
	Quantity       int
	Remains        int
	Status         string
	PricePerUnit   decimal.Decimal
	CostPerUnit    decimal.Decimal
	TotalCharge    decimal.Decimal
	TotalCost      decimal.Decimal
	Profit         decimal.Decimal
	IsRefillable   bool
	RefillDeadline *time.Time
	CompletedAt    *time.Time
	VendorOrderID  string
	IdempotencyKey string
	BalanceHoldID  string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RecomputeProfit 重算利润，任何变更后都必须保持 profit = totalCharge - totalCost
func (o *Order) RecomputeProfit() {
	o.Profit = o.TotalCharge.Sub(o.TotalCost)
}

// Active 订单是否还需要对账轮询
func (o *Order) Active() bool {
	switch o.Status {
	case constants.OrderStatusPending, constants.OrderStatusProcessing, constants.OrderStatusInProgress:
		return true
	}
	return false
}

// 状态格次：订单只能沿格次向前，禁止任何组件往回拨。
var orderStatusRank = map[string]int{
	constants.OrderStatusPending:    0,
	constants.OrderStatusProcessing: 1,
	constants.OrderStatusInProgress: 2,
	constants.OrderStatusCompleted:  3,
	constants.OrderStatusPartial:    3,
	constants.OrderStatusCancelled:  3,
	constants.OrderStatusRefunded:   4,
}

// StatusAdvances from → to 是否是前向迁移
func StatusAdvances(from, to string) bool {
	return orderStatusRank[to] > orderStatusRank[from]
}

// CatalogService 服务项目领域对象（目录，核心只读）
type CatalogService struct {
	ID              string
	ProviderID      string
	Name            string
	VendorServiceID string
	PricePerUnit    decimal.Decimal
	CostPerUnit     decimal.Decimal
	MinQuantity     int
	MaxQuantity     int
	RefillDays      int
	DripFeed        bool
	Enabled         bool
}

// CreateOrderParams 下单参数，由上游请求校验/鉴权层提供
type CreateOrderParams struct {
	UserID         string
	ServiceID      string
	Target         string
	Quantity       int
	IdempotencyKey string
}

// OrderRepo 订单数据层接口（定义在 biz 层）
//
// CreateWithReservation 在单个事务内完成余额预扣与 PENDING 订单插入（第一阶段）。
// MarkSubmitted / MarkSubmissionFailed 是第二阶段的两个出口，各自在单个事务内
// 完成订单状态迁移与预扣 capture / release；预扣侧沿用状态列 CAS 守卫。
// 订单更新一律 WHERE version = ?，不命中返回 ErrOptimisticConflict。
type OrderRepo interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	CreateWithReservation(ctx context.Context, o *Order, ttl time.Duration) (*Order, error)
	MarkSubmitted(ctx context.Context, orderID string, version int64, vendorOrderID string) error
	MarkSubmissionFailed(ctx context.Context, orderID string, version int64, reason string) error
	UpdateProgress(ctx context.Context, o *Order) error
	RefundRemains(ctx context.Context, o *Order, amount decimal.Decimal, description string) error
	ListActiveOrders(ctx context.Context, statuses []string, limit int) ([]*Order, error)
}

// CatalogRepo 目录数据层接口（目录维护不在本服务范围内，只读）
type CatalogRepo interface {
	GetService(ctx context.Context, serviceID string) (*CatalogService, error)
	GetProvider(ctx context.Context, providerID string) (*Provider, error)
}

// OrderUseCase 订单提交管道
//
// 两阶段，各自独立提交：第一阶段本地预扣+落单，绝不触碰供应商；
// 第二阶段调用供应商并按结果 capture 或 release。供应商故障因此
// 不会把余额事务挂住，这是两阶段拆分的全部理由。
type OrderUseCase struct {
	repo       OrderRepo
	catalog    CatalogRepo
	refillRepo RefillRepo
	holdUC     *HoldUseCase
	gateways   GatewayFactory
	conf       *FulfillmentConfig
	log        *log.Helper
	metrics    *metrics.FulfillmentMetrics
}

// NewOrderUseCase 创建订单 UseCase
func NewOrderUseCase(
	repo OrderRepo,
	catalog CatalogRepo,
	refillRepo RefillRepo,
	holdUC *HoldUseCase,
	gateways GatewayFactory,
	conf *FulfillmentConfig,
	logger log.Logger,
) *OrderUseCase {
	return &OrderUseCase{
		repo:       repo,
		catalog:    catalog,
		refillRepo: refillRepo,
		holdUC:     holdUC,
		gateways:   gateways,
		conf:       conf,
		log:        log.NewHelper(logger),
		metrics:    metrics.GetMetrics(),
	}
}

// CreateOrder 第一阶段：校验 → 预扣余额 → 落 PENDING 订单，一个事务提交。
// 同一幂等键重复调用返回已有订单，余额只预扣一次。本阶段不调用供应商。
func (uc *OrderUseCase) CreateOrder(ctx context.Context, p CreateOrderParams) (*Order, error) {
	startTime := time.Now()
	defer func() {
		if uc.metrics != nil {
			uc.metrics.OrderCreateDuration.Observe(time.Since(startTime).Seconds())
		}
	}()

	if p.IdempotencyKey == "" {
		return nil, BadRequestf("idempotency key is required")
	}

	// 幂等重试：已有订单原样返回
	existing, err := uc.repo.GetOrderByIdempotencyKey(ctx, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	svc, err := uc.catalog.GetService(ctx, p.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc == nil || !svc.Enabled {
		uc.countCreate("bad_request")
		return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeServiceNotFound)
	}
	if p.Quantity < svc.MinQuantity || p.Quantity > svc.MaxQuantity {
		uc.countCreate("bad_request")
		return nil, BadRequestf("quantity %d out of range [%d, %d]", p.Quantity, svc.MinQuantity, svc.MaxQuantity)
	}

	totalCharge := ChargeFor(svc.PricePerUnit, p.Quantity)
	totalCost := ChargeFor(svc.CostPerUnit, p.Quantity)
	if !totalCharge.IsPositive() {
		uc.countCreate("bad_request")
		return nil, BadRequestf("total charge must be positive, got %s", totalCharge)
	}

	order := &Order{
		UserID:         p.UserID,
		ServiceID:      svc.ID,
		ProviderID:     svc.ProviderID,
		Target:         p.Target,
		Quantity:       p.Quantity,
		Remains:        p.Quantity,
		Status:         constants.OrderStatusPending,
		PricePerUnit:   svc.PricePerUnit,
		CostPerUnit:    svc.CostPerUnit,
		TotalCharge:    totalCharge,
		TotalCost:      totalCost,
		IsRefillable:   svc.RefillDays > 0,
		IdempotencyKey: p.IdempotencyKey,
	}
	order.RecomputeProfit()

	created, err := uc.repo.CreateWithReservation(ctx, order, uc.conf.HoldTTL)
	if err != nil {
		if ib, ok := err.(*InsufficientBalanceError); ok {
			uc.countCreate("insufficient_balance")
			uc.log.Infof("order rejected, insufficient balance: user_id=%s required=%s available=%s",
				p.UserID, ib.Required, ib.Available)
			return nil, err
		}
		uc.countCreate("error")
		return nil, err
	}

	uc.countCreate("success")
	return created, nil
}

// SubmitOrder 第二阶段：提交供应商，按结果 capture 或 release 预扣。
// 非 PENDING 订单原样返回（第二阶段成功后的重试不会重复提交）。
// 供应商失败（超时、拒绝、报文异常一视同仁）时先完成本地补偿——预扣释放、
// 订单终结为 CANCELLED——再向调用方返回 VendorSubmissionFailedError，
// 调用方看到失败时本地已一致，无须任何补偿动作。
func (uc *OrderUseCase) SubmitOrder(ctx context.Context, orderID string) (*Order, error) {
	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeOrderNotFound)
	}
	if order.Status != constants.OrderStatusPending {
		if uc.metrics != nil {
			uc.metrics.OrderSubmitTotal.WithLabelValues("skipped").Inc()
		}
		return order, nil
	}

	svc, err := uc.catalog.GetService(ctx, order.ServiceID)
	if err != nil {
		return nil, err
	}
	provider, err := uc.catalog.GetProvider(ctx, order.ProviderID)
	if err != nil {
		return nil, err
	}
	if svc == nil || provider == nil {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, fulfillmentErrors.ErrCodeProviderNotFound)
	}

	gw := uc.gateways.Gateway(provider)
	startTime := time.Now()
	reply, vendorErr := gw.SubmitOrder(ctx, &VendorSubmitRequest{
		VendorServiceID: svc.VendorServiceID,
		Target:          order.Target,
		Quantity:        order.Quantity,
	})
	if uc.metrics != nil {
		uc.metrics.OrderSubmitDuration.WithLabelValues(provider.Name).Observe(time.Since(startTime).Seconds())
	}

	if vendorErr != nil {
		// 超时与拒绝同样处理：本地先恢复一致，再上抛失败
		if err := uc.repo.MarkSubmissionFailed(ctx, order.ID, order.Version, constants.ReleaseReasonSubmitFailed); err != nil {
			// 并发提交竞争：重新加载判断对方结局
			if err == ErrOptimisticConflict {
				return uc.reloadAfterConflict(ctx, order.ID)
			}
			// 补偿没能落库。预扣仍是 HELD，过期清理任务会兜底释放。
			uc.log.Errorf("submission compensation failed: order_id=%s, err=%v", order.ID, err)
			return nil, err
		}
		if uc.metrics != nil {
			uc.metrics.OrderSubmitTotal.WithLabelValues("failed").Inc()
		}
		uc.log.Warnf("vendor submission failed: order_id=%s, vendor=%s, err=%v", order.ID, provider.Name, vendorErr)
		return nil, &VendorSubmissionFailedError{OrderID: order.ID, Cause: vendorErr}
	}

	if err := uc.repo.MarkSubmitted(ctx, order.ID, order.Version, reply.VendorOrderID); err != nil {
		if err == ErrOptimisticConflict {
			return uc.reloadAfterConflict(ctx, order.ID)
		}
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.OrderSubmitTotal.WithLabelValues("success").Inc()
	}

	uc.log.Infof("order submitted: order_id=%s, vendor=%s, vendor_order_id=%s",
		order.ID, provider.Name, reply.VendorOrderID)
	return uc.repo.GetOrder(ctx, order.ID)
}

// reloadAfterConflict 版本冲突后重读订单；若对方已推进出 PENDING，则按幂等语义返回现状
func (uc *OrderUseCase) reloadAfterConflict(ctx context.Context, orderID string) (*Order, error) {
	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order != nil && order.Status != constants.OrderStatusPending {
		return order, nil
	}
	return nil, ErrOptimisticConflict
}

// PlaceOrder 组合入口：第一阶段成功后立即执行第二阶段。
// 上游（范围外的 API 层）只需要调这一个方法。
func (uc *OrderUseCase) PlaceOrder(ctx context.Context, p CreateOrderParams) (*Order, error) {
	order, err := uc.CreateOrder(ctx, p)
	if err != nil {
		return nil, err
	}
	return uc.SubmitOrder(ctx, order.ID)
}

// GetOrder 查询订单
func (uc *OrderUseCase) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return uc.repo.GetOrder(ctx, orderID)
}

// CancelOrders 批量请求供应商取消，单次最多 constants.VendorBatchLimit 个。
// 返回供应商侧逐单结果；本地状态变更交给状态轮询对账（供应商确认取消后
// 订单在下一轮被置为 CANCELLED/REFUNDED）。
func (uc *OrderUseCase) CancelOrders(ctx context.Context, orderIDs []string) ([]*VendorCancelResult, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	if len(orderIDs) > constants.VendorBatchLimit {
		return nil, BadRequestf("cancel batch size %d exceeds limit %d", len(orderIDs), constants.VendorBatchLimit)
	}

	// 按供应商分组
	byProvider := make(map[string][]string)
	vendorToLocal := make(map[string]string)
	for _, id := range orderIDs {
		order, err := uc.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if order == nil || order.VendorOrderID == "" {
			continue
		}
		byProvider[order.ProviderID] = append(byProvider[order.ProviderID], order.VendorOrderID)
		vendorToLocal[order.VendorOrderID] = order.ID
	}

	var results []*VendorCancelResult
	for providerID, vendorIDs := range byProvider {
		provider, err := uc.catalog.GetProvider(ctx, providerID)
		if err != nil || provider == nil {
			uc.log.Warnf("cancel: provider %s unavailable: %v", providerID, err)
			continue
		}
		rs, err := uc.gateways.Gateway(provider).Cancel(ctx, vendorIDs)
		if err != nil {
			uc.log.Warnf("cancel failed: vendor=%s, err=%v", provider.Name, err)
			continue
		}
		results = append(results, rs...)
	}
	return results, nil
}

func (uc *OrderUseCase) countCreate(result string) {
	if uc.metrics != nil {
		uc.metrics.OrderCreateTotal.WithLabelValues(result).Inc()
	}
}
