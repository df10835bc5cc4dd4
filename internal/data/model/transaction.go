package model

import (
	"time"

	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
)

// 流水类型常量（引用 constants 包中的常量，保持一致性）
const (
	TransactionTypeDeposit    = constants.TransactionTypeDeposit
	TransactionTypeOrder      = constants.TransactionTypeOrder
	TransactionTypeRefund     = constants.TransactionTypeRefund
	TransactionTypeAdjustment = constants.TransactionTypeAdjustment
)

// Transaction 余额流水表（只追加，写入后不可变）
// 不变式：balance_after = balance_before + amount，每次余额变动恰好对应一条流水。
type Transaction struct {
	TransactionID string          `gorm:"primaryKey;type:varchar(36)"`
	UserID        string          `gorm:"type:varchar(36);not null;index:idx_user_date,priority:1"`
	Type          string          `gorm:"type:enum('DEPOSIT','ORDER','REFUND','ADJUSTMENT');not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(19,4);not null"` // 带符号：入账为正，扣款为负
	BalanceBefore decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	ReferenceType string          `gorm:"type:varchar(16)"`
	ReferenceID   string          `gorm:"type:varchar(64);index"`
	Description   string          `gorm:"type:varchar(255)"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_user_date,priority:2"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "balance_transaction"
}
