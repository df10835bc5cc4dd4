package model

import (
	"time"

	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
)

// 订单状态常量（引用 constants 包中的常量，保持一致性）
const (
	OrderStatusPending    = constants.OrderStatusPending
	OrderStatusProcessing = constants.OrderStatusProcessing
	OrderStatusInProgress = constants.OrderStatusInProgress
	OrderStatusCompleted  = constants.OrderStatusCompleted
	OrderStatusPartial    = constants.OrderStatusPartial
	OrderStatusCancelled  = constants.OrderStatusCancelled
	OrderStatusRefunded   = constants.OrderStatusRefunded
)

// Order 履约订单表
// version 每次更新自增，并发写通过 WHERE version = ? 判定，冲突方失败而不是静默覆盖。
type Order struct {
	OrderID        string          `gorm:"primaryKey;type:varchar(36)"`
	UserID         string          `gorm:"type:varchar(36);not null;index:idx_user"`
	ServiceID      string          `gorm:"type:varchar(36);not null"`
	ProviderID     string          `gorm:"type:varchar(36);not null;index:idx_provider_status,priority:1"`
	Target         string          `gorm:"type:varchar(512);not null"`
	Quantity       int             `gorm:"not null"`
	Remains        int             `gorm:"not null;default:0"`
	Status         string          `gorm:"type:enum('PENDING','PROCESSING','IN_PROGRESS','COMPLETED','PARTIAL','CANCELLED','REFUNDED');not null;default:'PENDING';index:idx_provider_status,priority:2"`
	PricePerUnit   decimal.Decimal `gorm:"type:decimal(19,4);not null"` // 千单位售价
	CostPerUnit    decimal.Decimal `gorm:"type:decimal(19,4);not null"` // 千单位成本
	TotalCharge    decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	TotalCost      decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	Profit         decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	IsRefillable   bool            `gorm:"default:false"`
	RefillDeadline *time.Time
	CompletedAt    *time.Time
	VendorOrderID  string    `gorm:"type:varchar(64);index"`
	IdempotencyKey string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	BalanceHoldID  string    `gorm:"type:varchar(36);not null"`
	Version        int64     `gorm:"default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "fulfillment_order"
}
