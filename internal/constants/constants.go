package constants

// Redis Key 前缀常量
const (
	// RedisKeyBalance 余额缓存 key 前缀
	RedisKeyBalance = "balance:"
	// RedisKeySchedulerLock 调度任务分布式锁 key 前缀
	RedisKeySchedulerLock = "scheduler:lock:"
)

// 调度任务锁名称常量
const (
	// LockHoldCleanup 过期预扣清理任务锁
	LockHoldCleanup = "hold_cleanup"
	// LockOrderStatusPoll 订单状态轮询任务锁
	LockOrderStatusPoll = "order_status_poll"
	// LockRefillStatusPoll 补单状态轮询任务锁
	LockRefillStatusPoll = "refill_status_poll"
)

// 预扣（Hold）状态常量
const (
	// HoldStatusHeld 预扣中
	HoldStatusHeld = "HELD"
	// HoldStatusCaptured 已确认扣款
	HoldStatusCaptured = "CAPTURED"
	// HoldStatusReleased 已释放退回
	HoldStatusReleased = "RELEASED"
	// HoldStatusExpired 已过期释放
	HoldStatusExpired = "EXPIRED"
)

// 订单状态常量
const (
	// OrderStatusPending 已创建，未提交供应商
	OrderStatusPending = "PENDING"
	// OrderStatusProcessing 供应商已受理
	OrderStatusProcessing = "PROCESSING"
	// OrderStatusInProgress 供应商执行中
	OrderStatusInProgress = "IN_PROGRESS"
	// OrderStatusCompleted 已完成
	OrderStatusCompleted = "COMPLETED"
	// OrderStatusPartial 部分完成
	OrderStatusPartial = "PARTIAL"
	// OrderStatusCancelled 已取消
	OrderStatusCancelled = "CANCELLED"
	// OrderStatusRefunded 已退款
	OrderStatusRefunded = "REFUNDED"
)

// 流水类型常量
const (
	// TransactionTypeDeposit 充值入账
	TransactionTypeDeposit = "DEPOSIT"
	// TransactionTypeOrder 下单扣款
	TransactionTypeOrder = "ORDER"
	// TransactionTypeRefund 退款
	TransactionTypeRefund = "REFUND"
	// TransactionTypeAdjustment 人工调账
	TransactionTypeAdjustment = "ADJUSTMENT"
)

// 流水引用类型常量
const (
	// RefTypeHold 引用预扣记录
	RefTypeHold = "HOLD"
	// RefTypeOrder 引用订单
	RefTypeOrder = "ORDER"
	// RefTypeDeposit 引用充值订单
	RefTypeDeposit = "DEPOSIT"
)

// 补单（Refill）状态常量
const (
	// RefillStatusPending 已受理，未获得供应商补单号
	RefillStatusPending = "PENDING"
	// RefillStatusProcessing 供应商处理中
	RefillStatusProcessing = "PROCESSING"
	// RefillStatusCompleted 已完成
	RefillStatusCompleted = "COMPLETED"
	// RefillStatusRejected 已拒绝
	RefillStatusRejected = "REJECTED"
	// RefillStatusCancelled 已取消
	RefillStatusCancelled = "CANCELLED"
)

// 充值订单状态常量
const (
	// DepositStatusPending 待支付
	DepositStatusPending = "pending"
	// DepositStatusSuccess 支付成功
	DepositStatusSuccess = "success"
	// DepositStatusFailed 支付失败
	DepositStatusFailed = "failed"
)

// 预扣释放原因常量
const (
	// ReleaseReasonExpired 超时未提交，由清理任务释放
	ReleaseReasonExpired = "expired"
	// ReleaseReasonSubmitFailed 供应商提交失败
	ReleaseReasonSubmitFailed = "vendor submission failed"
)

// 供应商接口动作常量
const (
	VendorActionAdd          = "add"
	VendorActionStatus       = "status"
	VendorActionRefill       = "refill"
	VendorActionRefillStatus = "refill_status"
	VendorActionCancel       = "cancel"
	VendorActionBalance      = "balance"
	VendorActionServices     = "services"
)

// VendorBatchLimit status/cancel 批量接口一次最多 100 个单号
const VendorBatchLimit = 100

// 充值订单ID前缀常量
const (
	// OrderIDPrefixDeposit 充值订单ID前缀
	OrderIDPrefixDeposit = "deposit_"
)
