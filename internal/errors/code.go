package errors

import (
	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	i18nPkg "github.com/gaoyong06/go-pkg/middleware/i18n"
)

func init() {
	// 初始化全局错误管理器（使用项目特定的配置）
	pkgErrors.InitGlobalErrorManager("i18n", i18nPkg.Language)
}

// Fulfillment Service 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Fulfillment 固定为 21
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块（复用 go-pkg 通用错误码）
//   01: 余额/预扣模块
//   02: 订单模块
//   03: 供应商模块
//   04: 补单模块
//   05: 充值模块
//   06-99: 预留扩展

// 余额/预扣模块错误码 (210100-210199)
const (
	// ErrCodeBalanceNotFound 余额记录不存在
	ErrCodeBalanceNotFound = 210101
	// ErrCodeInsufficientBalance 余额不足
	ErrCodeInsufficientBalance = 210102
	// ErrCodeBalanceUpdateFailed 余额更新失败
	ErrCodeBalanceUpdateFailed = 210103
	// ErrCodeHoldNotFound 预扣记录不存在
	ErrCodeHoldNotFound = 210104
	// ErrCodeHoldCreateFailed 预扣创建失败
	ErrCodeHoldCreateFailed = 210105
	// ErrCodeHoldAlreadyFinalized 预扣已终结（capture/release 竞争失败）
	ErrCodeHoldAlreadyFinalized = 210106
)

// 订单模块错误码 (210200-210299)
const (
	// ErrCodeServiceNotFound 服务项目不存在
	ErrCodeServiceNotFound = 210201
	// ErrCodeQuantityOutOfRange 数量超出服务允许范围
	ErrCodeQuantityOutOfRange = 210202
	// ErrCodeOrderNotFound 订单不存在
	ErrCodeOrderNotFound = 210203
	// ErrCodeOrderCreateFailed 订单创建失败
	ErrCodeOrderCreateFailed = 210204
	// ErrCodeOrderUpdateFailed 订单更新失败
	ErrCodeOrderUpdateFailed = 210205
	// ErrCodeOrderVersionConflict 订单版本冲突（乐观锁）
	ErrCodeOrderVersionConflict = 210206
)

// 供应商模块错误码 (210300-210399)
const (
	// ErrCodeProviderNotFound 供应商记录不存在
	ErrCodeProviderNotFound = 210301
	// ErrCodeProviderDisabled 供应商已停用
	ErrCodeProviderDisabled = 210302
	// ErrCodeVendorRequestFailed 供应商接口调用失败
	ErrCodeVendorRequestFailed = 210303
	// ErrCodeVendorSubmissionFailed 提交供应商失败（本地已补偿）
	ErrCodeVendorSubmissionFailed = 210304
	// ErrCodeVendorBatchTooLarge 批量请求超出上限
	ErrCodeVendorBatchTooLarge = 210305
)

// 补单模块错误码 (210400-210499)
const (
	// ErrCodeOrderNotRefillable 订单不支持补单
	ErrCodeOrderNotRefillable = 210401
	// ErrCodeRefillWindowClosed 已超出补单时限
	ErrCodeRefillWindowClosed = 210402
	// ErrCodeRefillAlreadyActive 已存在进行中的补单
	ErrCodeRefillAlreadyActive = 210403
	// ErrCodeRefillCreateFailed 补单创建失败
	ErrCodeRefillCreateFailed = 210404
)

// 充值模块错误码 (210500-210599)
const (
	// ErrCodeDepositOrderNotFound 充值订单不存在
	ErrCodeDepositOrderNotFound = 210501
	// ErrCodeDepositCreditFailed 充值入账失败
	ErrCodeDepositCreditFailed = 210502
)
