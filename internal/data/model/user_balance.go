package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserBalance 账户余额表
type UserBalance struct {
	UserBalanceID string          `gorm:"primaryKey;type:varchar(36)"`
	UserID        string          `gorm:"uniqueIndex;type:varchar(36);not null"`
	Balance       decimal.Decimal `gorm:"type:decimal(19,4);default:0.0000"`
	Version       int64           `gorm:"default:0"` // 乐观锁版本号
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (UserBalance) TableName() string {
	return "user_balance"
}
