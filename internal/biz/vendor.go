package biz

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
)

// Provider 供应商领域对象
type Provider struct {
	ID      string
	Name    string
	ApiURL  string
	ApiKey  string
	Enabled bool
}

// VendorSubmitRequest 提交订单请求
type VendorSubmitRequest struct {
	VendorServiceID string
	Target          string
	Quantity        int
	// 按滴度投放时设置（仅 drip-feed 服务）
	Runs     int
	Interval int
}

// VendorSubmitReply 提交订单响应
type VendorSubmitReply struct {
	VendorOrderID string
}

// VendorOrderStatus 供应商侧订单状态
type VendorOrderStatus struct {
	Status     string // 供应商原始状态串
	Remains    int    // 供应商未返回时为 -1
	StartCount int
	Charge     decimal.Decimal
}

// VendorCancelResult 单个订单的取消结果
type VendorCancelResult struct {
	VendorOrderID string
	Err           string // 为空表示取消成功
}

// VendorService 供应商目录条目
type VendorService struct {
	VendorServiceID string
	Name            string
	Category        string
	Rate            decimal.Decimal // 千单位成本价
	MinQuantity     int
	MaxQuantity     int
	Refillable      bool
	DripFeed        bool
}

// VendorGateway 供应商网关能力集，每个外部供应商一个适配器实现。
// 所有调用都是单次带超时的出站请求；非 2xx 或响应不可解析统一包装为
// VendorApiError，供应商侧的报文结构不越过该边界。
type VendorGateway interface {
	SubmitOrder(ctx context.Context, req *VendorSubmitRequest) (*VendorSubmitReply, error)
	GetStatus(ctx context.Context, vendorOrderID string) (*VendorOrderStatus, error)
	// GetStatusBatch 单次最多 constants.VendorBatchLimit 个单号，超出直接报错而不是截断
	GetStatusBatch(ctx context.Context, vendorOrderIDs []string) (map[string]*VendorOrderStatus, error)
	RequestRefill(ctx context.Context, vendorOrderID string) (string, error)
	GetRefillStatus(ctx context.Context, vendorRefillID string) (string, error)
	Cancel(ctx context.Context, vendorOrderIDs []string) ([]*VendorCancelResult, error)
	GetBalance(ctx context.Context) (decimal.Decimal, string, error)
	ListServices(ctx context.Context) ([]*VendorService, error)
}

// GatewayFactory 按供应商记录选择网关适配器
type GatewayFactory interface {
	Gateway(provider *Provider) VendorGateway
}

// MapVendorOrderStatus 供应商订单状态串 → 本地订单状态。
// 未知状态返回空串，调用方保持原状态不动（留待下一轮对账）。
func MapVendorOrderStatus(vendorStatus string) string {
	switch strings.ToLower(strings.TrimSpace(vendorStatus)) {
	case "pending":
		return constants.OrderStatusProcessing
	case "processing":
		return constants.OrderStatusProcessing
	case "in progress", "inprogress":
		return constants.OrderStatusInProgress
	case "completed":
		return constants.OrderStatusCompleted
	case "partial":
		return constants.OrderStatusPartial
	case "canceled", "cancelled":
		return constants.OrderStatusCancelled
	default:
		return ""
	}
}

// MapVendorRefillStatus 供应商补单状态串 → 本地补单状态（大小写不敏感）。
// error 视为 REJECTED；未知状态返回空串。
func MapVendorRefillStatus(vendorStatus string) string {
	switch strings.ToLower(strings.TrimSpace(vendorStatus)) {
	case "pending":
		return constants.RefillStatusPending
	case "in progress", "inprogress", "processing":
		return constants.RefillStatusProcessing
	case "completed":
		return constants.RefillStatusCompleted
	case "rejected", "error":
		return constants.RefillStatusRejected
	default:
		return ""
	}
}
