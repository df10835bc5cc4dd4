package model

import (
	"time"

	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
)

// 充值订单状态常量（引用 constants 包中的常量，保持一致性）
const (
	DepositStatusPending = constants.DepositStatusPending // 待支付
	DepositStatusSuccess = constants.DepositStatusSuccess // 支付成功
	DepositStatusFailed  = constants.DepositStatusFailed  // 支付失败
)

// DepositOrder 充值订单表（用于入账幂等性保证）
// payment_id 唯一索引使同一笔支付回调重复消费时只入账一次。
type DepositOrder struct {
	DepositOrderID string          `gorm:"primaryKey;type:varchar(64)"`
	UserID         string          `gorm:"type:varchar(36);not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	PaymentID      string          `gorm:"type:varchar(64);uniqueIndex"` // 支付网关流水号
	Status         string          `gorm:"type:enum('pending','success','failed');not null;default:'pending'"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (DepositOrder) TableName() string {
	return "deposit_order"
}
