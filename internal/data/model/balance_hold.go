package model

import (
	"time"

	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
)

// 预扣状态常量（引用 constants 包中的常量，保持一致性）
const (
	HoldStatusHeld     = constants.HoldStatusHeld     // 预扣中
	HoldStatusCaptured = constants.HoldStatusCaptured // 已确认扣款
	HoldStatusReleased = constants.HoldStatusReleased // 已释放退回
	HoldStatusExpired  = constants.HoldStatusExpired  // 已过期释放
)

// BalanceHold 余额预扣表
// 金额在创建后不可变；状态是唯一可变列，终态迁移由 WHERE status='HELD' 保证恰好一次。
// 记录永不删除，作为审计痕迹保留。
type BalanceHold struct {
	BalanceHoldID  string          `gorm:"primaryKey;type:varchar(36)"`
	UserID         string          `gorm:"type:varchar(36);not null;index:idx_user"`
	Amount         decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	Status         string          `gorm:"type:enum('HELD','CAPTURED','RELEASED','EXPIRED');not null;default:'HELD';index:idx_status_expires,priority:1"`
	IdempotencyKey *string         `gorm:"type:varchar(64);uniqueIndex"`
	ReferenceType  string          `gorm:"type:varchar(16)"`
	ReferenceID    string          `gorm:"type:varchar(64)"`
	ExpiresAt      time.Time       `gorm:"not null;index:idx_status_expires,priority:2"`
	ReleaseReason  string          `gorm:"type:varchar(128)"`
	FinalizedAt    *time.Time
	Version        int64     `gorm:"default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (BalanceHold) TableName() string {
	return "balance_hold"
}
