package biz

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 核心错误类型。管道和调度器用 errors.Is / errors.As 区分语义，
// 对外 RPC 层再包装为 go-pkg 错误码（见 internal/errors）。

// ErrBadRequest 入参非法（无副作用）
var ErrBadRequest = errors.New("bad request")

// ErrOptimisticConflict 乐观锁版本冲突，调用方应整体重试
var ErrOptimisticConflict = errors.New("optimistic version conflict")

// BadRequestf 构造带说明的入参错误
func BadRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrBadRequest}, args...)...)
}

// InsufficientBalanceError 余额不足，预扣被拒绝（无副作用）
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required=%s available=%s",
		e.Required.StringFixed(4), e.Available.StringFixed(4))
}

// HoldAlreadyFinalizedError capture/release 竞争失败，调用方不得改试相反动作
type HoldAlreadyFinalizedError struct {
	HoldID string
}

func (e *HoldAlreadyFinalizedError) Error() string {
	return fmt.Sprintf("hold %s already finalized", e.HoldID)
}

// VendorApiError 供应商可达但返回错误（非 2xx 或响应不可解析）
// 供应商侧的响应结构不允许越过网关边界，只保留文本信息。
type VendorApiError struct {
	Vendor  string
	Action  string
	Message string
}

func (e *VendorApiError) Error() string {
	return fmt.Sprintf("vendor %s action %s: %s", e.Vendor, e.Action, e.Message)
}

// VendorSubmissionFailedError 第二阶段提交失败。
// 返回该错误时本地补偿已经完成（预扣已释放、订单已终态），调用方无须再补偿。
type VendorSubmissionFailedError struct {
	OrderID string
	Cause   error
}

func (e *VendorSubmissionFailedError) Error() string {
	return fmt.Sprintf("vendor submission failed for order %s: %v", e.OrderID, e.Cause)
}

func (e *VendorSubmissionFailedError) Unwrap() error {
	return e.Cause
}
